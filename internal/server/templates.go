package server

import "net/http"

type templateSummary struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
}

// handleListTemplates enumerates available templates and their mapped field
// sets so callers can validate compatibility before submitting a document.
func (s *Server) handleListTemplates(w http.ResponseWriter, _ *http.Request) {
	descriptors := s.templates.List()
	out := make([]templateSummary, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, templateSummary{Name: d.Name, Fields: d.Fields()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": out})
}
