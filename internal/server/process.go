package server

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/certiflow/certiflow/constants"
	"github.com/certiflow/certiflow/internal/extract"
	"github.com/certiflow/certiflow/internal/llm"
	"github.com/certiflow/certiflow/internal/pipeline"
	"github.com/certiflow/certiflow/internal/template"
)

type processResponse struct {
	RunID    string             `json:"run_id"`
	Record   llm.Record         `json:"record"`
	Checksum string             `json:"checksum"`
	Warnings []string           `json:"warnings,omitempty"`
	Artifact *template.Artifact `json:"artifact,omitempty"`
}

// handleProcess accepts a multipart upload and runs it through the pipeline.
// Form fields: "file" (the PDF), "template" (identifier, required when
// output=xlsx), "fields" (optional JSON field-spec list overriding the
// default schema), "output" ("json", the default, or "xlsx").
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeBadRequest(w, "cannot parse multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, `multipart field "file" is required`)
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeBadRequest(w, "read upload: "+err.Error())
		return
	}

	// Multipart clients commonly declare octet-stream for file parts, so
	// the filename extension decides in that case.
	mediaType := header.Header.Get("Content-Type")
	if (mediaType == "" || mediaType == "application/octet-stream") &&
		constants.NormalizeExt(filepath.Ext(header.Filename)) == "pdf" {
		mediaType = constants.MediaTypePDF
	}

	wantArtifact := strings.EqualFold(r.FormValue("output"), "xlsx")
	templateID := strings.TrimSpace(r.FormValue("template"))
	if wantArtifact && templateID == "" {
		writeBadRequest(w, `form field "template" is required when output=xlsx`)
		return
	}

	var schema *llm.SchemaSpec
	if raw := strings.TrimSpace(r.FormValue("fields")); raw != "" {
		var fields []llm.FieldSpec
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			writeBadRequest(w, `form field "fields" must be a JSON array of field specs`)
			return
		}
		override := llm.SchemaSpec{Fields: fields}
		if err := override.Validate(); err != nil {
			writeBadRequest(w, "invalid field override: "+err.Error())
			return
		}
		schema = &override
	}

	result, err := s.orch.Run(r.Context(), pipeline.Request{
		Document: extract.RawDocument{
			Bytes:     data,
			MediaType: mediaType,
			Filename:  header.Filename,
		},
		TemplateID:   templateID,
		Schema:       schema,
		WantArtifact: wantArtifact,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, processResponse{
		RunID:    result.RunID,
		Record:   result.Record,
		Checksum: result.Checksum,
		Warnings: result.Warnings,
		Artifact: result.Artifact,
	})
}
