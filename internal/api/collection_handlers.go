package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/vrsandeep/transdoc-go/internal/store"
)

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		RespondWithError(w, http.StatusBadRequest, "Name is required")
		return
	}
	coll, err := s.store.CreateCollection(name)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to create collection")
		return
	}
	RespondWithJSON(w, http.StatusCreated, coll)
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "collectionID")
	if !ok {
		return
	}
	coll, err := s.store.GetCollection(id)
	if errors.Is(err, store.ErrCollectionNotFound) {
		RespondWithError(w, http.StatusNotFound, "Collection not found")
		return
	}
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to get collection")
		return
	}
	RespondWithJSON(w, http.StatusOK, coll)
}

func (s *Server) handleListCollectionDocuments(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "collectionID")
	if !ok {
		return
	}
	if _, err := s.store.GetCollection(id); errors.Is(err, store.ErrCollectionNotFound) {
		RespondWithError(w, http.StatusNotFound, "Collection not found")
		return
	} else if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to get collection")
		return
	}
	docs, err := s.store.ListCollectionDocuments(id)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to list documents")
		return
	}
	RespondWithJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "documentID")
	if !ok {
		return
	}
	doc, err := s.store.GetDocument(id)
	if errors.Is(err, store.ErrDocumentNotFound) {
		RespondWithError(w, http.StatusNotFound, "Document not found")
		return
	}
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to get document")
		return
	}
	RespondWithJSON(w, http.StatusOK, doc)
}
