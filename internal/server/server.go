// Package server is the HTTP boundary: it parses uploads, invokes the
// pipeline, and maps the error taxonomy onto transport status codes.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/certiflow/certiflow/internal/artifacts"
	"github.com/certiflow/certiflow/internal/pipeline"
	"github.com/certiflow/certiflow/internal/storage"
	"github.com/certiflow/certiflow/internal/template"
)

type Server struct {
	orch      *pipeline.Orchestrator
	templates *template.Registry
	index     *artifacts.Registry
	store     storage.Store
	logger    *slog.Logger

	maxUploadBytes int64
}

func New(
	orch *pipeline.Orchestrator,
	templates *template.Registry,
	index *artifacts.Registry,
	store storage.Store,
	maxUploadBytes int64,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 * 1024 * 1024
	}
	return &Server{
		orch:           orch,
		templates:      templates,
		index:          index,
		store:          store,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/process", s.handleProcess)
		r.Get("/templates", s.handleListTemplates)
		r.Get("/artifacts", s.handleListArtifacts)
		r.Get("/artifacts/{id}", s.handleGetArtifact)
		r.Delete("/artifacts/{id}", s.handleDeleteArtifact)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
