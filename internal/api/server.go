// It defines the API server, sets up the routes (endpoints)
// using chi, and links them to the handler functions.

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vrsandeep/transdoc-go/internal/core"
	"github.com/vrsandeep/transdoc-go/internal/store"
	"github.com/vrsandeep/transdoc-go/internal/websocket"
)

// Server holds the dependencies for our API.
type Server struct {
	app   *core.App
	store *store.Store
}

// NewServer creates a new Server instance.
func NewServer(app *core.App) *Server {
	return &Server{
		app:   app,
		store: app.Store(),
	}
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer) // Recovers from panics

	r.Route("/api", func(r chi.Router) {
		// Uploads can take longer than the default request budget.
		r.Post("/jobs", s.handleSubmitJob)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/health", s.handleHealth)

			r.Get("/jobs", s.handleListJobs)
			r.Get("/jobs/{jobID}", s.handleGetJob)
			r.Get("/jobs/{jobID}/status", s.handleGetJobStatus)
			r.Delete("/jobs/{jobID}", s.handleDeleteJob)

			r.Get("/pool", s.handleGetPoolStatus)

			r.Get("/keys", s.handleListKeys)
			r.Post("/keys", s.handleCreateKey)
			r.Delete("/keys/{keyID}", s.handleDeleteKey)

			r.Post("/collections", s.handleCreateCollection)
			r.Get("/collections/{collectionID}", s.handleGetCollection)
			r.Get("/collections/{collectionID}/documents", s.handleListCollectionDocuments)

			r.Get("/documents/{documentID}", s.handleGetDocument)

			r.Route("/admin", func(r chi.Router) {
				r.Get("/jobs", s.handleGetAdminJobsStatus)
				r.Post("/jobs/run", s.handleRunAdminJob)
			})
		})
	})

	// WebSocket route
	r.Get("/ws/progress", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWs(s.app.WsHub(), w, r)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DB().Ping(); err != nil {
		RespondWithError(w, http.StatusServiceUnavailable, "Database connection failed")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"clients":   s.app.Pool().Size(),
		"queued":    s.app.Scheduler().Queued(),
		"scheduler": s.app.Scheduler().Running(),
	})
}
