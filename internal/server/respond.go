package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/certiflow/certiflow/internal/common"
)

type errorBody struct {
	Stage   string `json:"stage,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the pipeline taxonomy onto HTTP status codes. Unknown
// errors become opaque 500s; their details stay in the logs.
func writeError(w http.ResponseWriter, err error) {
	var se *common.StageError
	if errors.As(err, &se) {
		writeJSON(w, statusForKind(se.Kind), map[string]errorBody{"error": {
			Stage:   string(se.Stage),
			Kind:    string(se.Kind),
			Message: se.Message,
		}})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]errorBody{"error": {
		Message: "internal error",
	}})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {Message: message}})
}

func statusForKind(kind common.Kind) int {
	switch kind {
	case common.KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case common.KindCorruptDocument, common.KindNoExtractableText, common.KindIncompleteExtraction:
		return http.StatusUnprocessableEntity
	case common.KindStructuringFailed:
		return http.StatusBadGateway
	case common.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case common.KindTemplateNotFound:
		return http.StatusNotFound
	case common.KindMappingMismatch:
		return http.StatusConflict
	case common.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
