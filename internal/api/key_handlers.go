package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/vrsandeep/transdoc-go/internal/jobs"
	"github.com/vrsandeep/transdoc-go/internal/models"
	"github.com/vrsandeep/transdoc-go/internal/store"
)

// keyView never carries the full secret.
type keyView struct {
	*models.ApiKey
	Key string `json:"key"`
}

func newKeyView(k *models.ApiKey) keyView {
	return keyView{ApiKey: k, Key: k.MaskedKey()}
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.store.ListApiKeys()
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to list api keys")
		return
	}
	views := make([]keyView, 0, len(keys))
	for _, k := range keys {
		views = append(views, newKeyView(k))
	}
	RespondWithJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Key     string `json:"key"`
		BaseURL string `json:"base_url"`
		APIType string `json:"api_type"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	payload.Key = strings.TrimSpace(payload.Key)
	if payload.Key == "" {
		RespondWithError(w, http.StatusBadRequest, "Key is required")
		return
	}
	if u, err := url.Parse(payload.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		RespondWithError(w, http.StatusBadRequest, "Invalid base_url")
		return
	}
	switch strings.ToLower(payload.APIType) {
	case "", models.APITypeOpenAI, models.APITypeGemini:
	default:
		RespondWithError(w, http.StatusBadRequest, "Unsupported api_type")
		return
	}

	key, err := s.store.CreateApiKey(payload.Key, payload.BaseURL, strings.ToLower(payload.APIType))
	if errors.Is(err, store.ErrDuplicateApiKey) {
		RespondWithError(w, http.StatusConflict, "Api key already exists")
		return
	}
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to create api key")
		return
	}
	s.reloadPool()
	RespondWithJSON(w, http.StatusCreated, newKeyView(key))
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "keyID")
	if !ok {
		return
	}
	err := s.store.DeleteApiKey(id)
	if errors.Is(err, store.ErrApiKeyNotFound) {
		RespondWithError(w, http.StatusNotFound, "Api key not found")
		return
	}
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to delete api key")
		return
	}
	s.reloadPool()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) reloadPool() {
	if _, err := jobs.ReloadPool(s.app); err != nil {
		log.Error().Err(err).Msg("could not refresh client pool")
	}
}

func (s *Server) handleGetPoolStatus(w http.ResponseWriter, r *http.Request) {
	p := s.app.Pool()
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"cap":     p.Cap(),
		"size":    p.Size(),
		"clients": p.Status(),
	})
}
