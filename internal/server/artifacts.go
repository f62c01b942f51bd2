package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/certiflow/certiflow/internal/artifacts"
	"github.com/certiflow/certiflow/internal/storage"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	list, err := s.index.List(r.Context())
	if err != nil {
		s.logger.Error("server.artifacts.list_failed", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"artifacts": list})
}

// handleGetArtifact streams the stored workbook back to the caller.
func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	artifact, err := s.index.Get(r.Context(), id)
	if errors.Is(err, artifacts.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]errorBody{"error": {Message: "unknown artifact"}})
		return
	}
	if err != nil {
		s.logger.Error("server.artifacts.get_failed", "artifact_id", id, "error", err)
		writeError(w, err)
		return
	}

	data, err := s.store.Get(artifact.Filename())
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusGone, map[string]errorBody{"error": {Message: "artifact no longer stored"}})
		return
	}
	if err != nil {
		s.logger.Error("server.artifacts.read_failed", "artifact_id", id, "error", err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleDeleteArtifact ends an artifact's lifecycle: the stored workbook and
// its index row are both removed.
func (s *Server) handleDeleteArtifact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	artifact, err := s.index.Get(r.Context(), id)
	if errors.Is(err, artifacts.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]errorBody{"error": {Message: "unknown artifact"}})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.store.Delete(artifact.Filename()); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error("server.artifacts.delete_failed", "artifact_id", id, "error", err)
		writeError(w, err)
		return
	}
	if err := s.index.Delete(r.Context(), id); err != nil && !errors.Is(err, artifacts.ErrNotFound) {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
