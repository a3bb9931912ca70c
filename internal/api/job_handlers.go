package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vrsandeep/transdoc-go/internal/store"
	"github.com/vrsandeep/transdoc-go/internal/util"
)

const maxUploadMemory = 32 << 20

// handleSubmitJob accepts a multipart upload and queues it. The file type is
// checked by the pipeline, so unsupported uploads still get a job that fails.
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Missing file")
		return
	}
	defer file.Close()

	var collectionID int64
	if raw := strings.TrimSpace(r.FormValue("collection_id")); raw != "" {
		collectionID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || collectionID < 0 {
			RespondWithError(w, http.StatusBadRequest, "Invalid collection_id")
			return
		}
	}
	if collectionID > 0 {
		if _, err := s.store.GetCollection(collectionID); errors.Is(err, store.ErrCollectionNotFound) {
			RespondWithError(w, http.StatusNotFound, "Collection not found")
			return
		} else if err != nil {
			RespondWithError(w, http.StatusInternalServerError, "Failed to look up collection")
			return
		}
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = util.TitleFromFilename(header.Filename)
	}

	path, err := s.saveUpload(file, header.Filename)
	if err != nil {
		log.Error().Err(err).Str("file", header.Filename).Msg("failed to save upload")
		RespondWithError(w, http.StatusInternalServerError, "Failed to save upload")
		return
	}

	id, err := s.app.Scheduler().AddTask(title, path, collectionID)
	if err != nil {
		os.Remove(path)
		log.Error().Err(err).Msg("failed to queue job")
		RespondWithError(w, http.StatusInternalServerError, "Failed to queue job")
		return
	}
	RespondWithJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) saveUpload(src io.Reader, filename string) (string, error) {
	dir := s.app.Config().Storage.Uploads
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, uuid.NewString()+"-"+util.SanitizeFilename(filename))
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("copy upload: %w", err)
	}
	return path, dst.Close()
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			RespondWithError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}
	jobs, err := s.store.ListJobs(limit)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	RespondWithJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "jobID")
	if !ok {
		return
	}
	job, err := s.store.GetJob(id)
	if errors.Is(err, store.ErrJobNotFound) {
		RespondWithError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}
	RespondWithJSON(w, http.StatusOK, job)
}

func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "jobID")
	if !ok {
		return
	}
	view, err := s.app.Scheduler().Status(id)
	if errors.Is(err, store.ErrJobNotFound) {
		RespondWithError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to get job status")
		return
	}
	RespondWithJSON(w, http.StatusOK, view)
}

// handleDeleteJob removes a finished job together with its stored files.
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "jobID")
	if !ok {
		return
	}
	job, err := s.store.GetJob(id)
	if errors.Is(err, store.ErrJobNotFound) {
		RespondWithError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}
	if !job.Status.IsTerminal() {
		RespondWithError(w, http.StatusConflict, "Job is still running")
		return
	}

	doc, err := s.store.GetDocumentByJob(id)
	if err != nil && !errors.Is(err, store.ErrDocumentNotFound) {
		RespondWithError(w, http.StatusInternalServerError, "Failed to look up document")
		return
	}
	if err := s.store.DeleteJob(id); err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to delete job")
		return
	}
	switch {
	case doc != nil && doc.LinkedPath != "":
		if err := os.RemoveAll(doc.LinkedPath); err != nil {
			log.Warn().Err(err).Str("dir", doc.LinkedPath).Msg("could not remove document files")
		}
	case doc == nil && withinDir(s.app.Config().Storage.Uploads, job.SourcePath):
		// Without a document the upload never left the uploads dir.
		if err := os.Remove(job.SourcePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("file", job.SourcePath).Msg("could not remove upload")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// withinDir reports whether path lies strictly inside dir.
func withinDir(dir, path string) bool {
	if dir == "" || path == "" {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
