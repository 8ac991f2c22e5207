package server

import (
	"log/slog"
	"net/http"

	"github.com/claude/liftlog/internal/storage"
	"github.com/go-chi/chi/v5"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	db     *storage.DB
	log    *slog.Logger
	apiKey string
	router chi.Router
}

// New creates a new Server with all routes configured.
func New(db *storage.DB, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		db:     db,
		log:    log,
		apiKey: apiKey,
		router: chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)
	s.router.Use(UserScope)

	// Session lifecycle and routine lookup, consumed by the tracker core
	s.router.Get("/api/v1/sessions/active", s.handleGetActiveSession)
	s.router.Post("/api/v1/sessions", s.handleStartSession)
	s.router.Post("/api/v1/sessions/{id}/complete", s.handleCompleteSession)
	s.router.Post("/api/v1/sessions/{id}/cancel", s.handleCancelSession)
	s.router.Get("/api/v1/routines", s.handleListRoutines)
	s.router.Get("/api/v1/routines/{id}", s.handleGetRoutine)
	s.router.Post("/api/v1/assignments", s.handleAssignRoutine)

	// Admin seeding endpoints (API key required)
	s.router.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Post("/routines", s.handleCreateRoutine)
		r.Delete("/routines/{id}", s.handleDeleteRoutine)
	})
}
