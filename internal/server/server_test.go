package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/certiflow/certiflow/internal/artifacts"
	"github.com/certiflow/certiflow/internal/extract"
	"github.com/certiflow/certiflow/internal/llm/openai"
	"github.com/certiflow/certiflow/internal/pipeline"
	"github.com/certiflow/certiflow/internal/storage"
	"github.com/certiflow/certiflow/internal/template"
)

// newTestServer wires the full stack: real PDF extraction, a fake
// completion endpoint, a real template registry and filler over an
// in-memory store, and a throwaway SQLite artifact index.
func newTestServer(t *testing.T, completion string) http.Handler {
	t.Helper()

	fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := json.Marshal(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": completion}},
			},
		})
		if err != nil {
			t.Error(err)
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(fake.Close)

	dir := t.TempDir()
	wb := excelize.NewFile()
	if err := wb.SaveAs(filepath.Join(dir, "certificate.xlsx")); err != nil {
		t.Fatal(err)
	}
	_ = wb.Close()
	descriptor := template.Descriptor{
		Name: "certificate",
		Mappings: []template.Mapping{
			{Field: "name", Cell: "Sheet1!B2"},
			{Field: "course", Cell: "Sheet1!B3"},
			{Field: "score", Cell: "Sheet1!B4"},
		},
	}
	data, err := json.Marshal(descriptor)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "certificate.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	registry, err := template.NewRegistry(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	store := storage.NewMemStore()
	index, err := artifacts.Open(context.Background(), filepath.Join(t.TempDir(), "artifacts.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = index.Close() })

	structurer := openai.NewClient(openai.Config{
		APIKey:              "test-key",
		BaseURL:             fake.URL,
		Timeout:             5 * time.Second,
		MaxParseAttempts:    2,
		MaxUpstreamAttempts: 2,
		BackoffInitial:      time.Millisecond,
	}, nil)

	orch := pipeline.NewOrchestrator(
		pipeline.Config{},
		extract.NewPDFExtractor(nil),
		structurer,
		registry,
		template.NewFiller(registry, store, nil),
		index,
		nil,
	)
	return New(orch, registry, index, store, 0, nil).Router()
}

func multipartUpload(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	pdf, err := os.ReadFile(filepath.Join("testdata", "certificate.pdf"))
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "certificate.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(pdf); err != nil {
		t.Fatal(err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

const goodCompletion = `{"name":"Ada Lovelace","course":"Systems Design","score":95}`

func TestProcessJSONOutput(t *testing.T) {
	handler := newTestServer(t, goodCompletion)

	body, contentType := multipartUpload(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/process", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp struct {
		RunID    string         `json:"run_id"`
		Record   map[string]any `json:"record"`
		Checksum string         `json:"checksum"`
		Artifact *struct{}      `json:"artifact"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Record["name"] != "Ada Lovelace" || resp.Record["score"] != float64(95) {
		t.Errorf("record = %v", resp.Record)
	}
	if resp.Checksum == "" || resp.RunID == "" {
		t.Error("run_id and checksum are required in the response")
	}
	if resp.Artifact != nil {
		t.Error("json output must not produce an artifact")
	}
}

func TestProcessXLSXOutputAndArtifactLifecycle(t *testing.T) {
	handler := newTestServer(t, goodCompletion)

	body, contentType := multipartUpload(t, map[string]string{
		"output":   "xlsx",
		"template": "certificate",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/process", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp struct {
		Checksum string `json:"checksum"`
		Artifact *struct {
			ID       string `json:"id"`
			Template string `json:"template"`
			Checksum string `json:"checksum"`
		} `json:"artifact"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Artifact == nil {
		t.Fatal("expected artifact in response")
	}
	if resp.Artifact.Checksum != resp.Checksum {
		t.Error("artifact checksum must match the record checksum")
	}

	// Listed.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/artifacts", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list struct {
		Artifacts []struct {
			ID string `json:"id"`
		} `json:"artifacts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Artifacts) != 1 || list.Artifacts[0].ID != resp.Artifact.ID {
		t.Errorf("artifact list = %+v", list.Artifacts)
	}

	// Downloadable, and a real workbook.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/artifacts/"+resp.Artifact.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != xlsxContentType {
		t.Errorf("Content-Type = %q", got)
	}
	wb, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("downloaded artifact is not a workbook: %v", err)
	}
	for cell, want := range map[string]string{
		"B2": "Ada Lovelace",
		"B3": "Systems Design",
		"B4": "95",
	} {
		if got, _ := wb.GetCellValue("Sheet1", cell); got != want {
			t.Errorf("%s = %q, want %q", cell, got, want)
		}
	}
	_ = wb.Close()

	// Deletable, then gone.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/artifacts/"+resp.Artifact.ID, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/artifacts/"+resp.Artifact.ID, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestProcessFieldOverride(t *testing.T) {
	handler := newTestServer(t, `{"recipient":"Ada Lovelace"}`)

	body, contentType := multipartUpload(t, map[string]string{
		"fields": `[{"name":"recipient","type":"string","required":true}]`,
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/process", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp struct {
		Record map[string]any `json:"record"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Record["recipient"] != "Ada Lovelace" {
		t.Errorf("record = %v", resp.Record)
	}
}

func TestProcessErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		completion string
		fields     map[string]string
		fileBytes  []byte
		wantStatus int
		wantKind   string
	}{
		{
			name:       "garbage pdf",
			completion: goodCompletion,
			fileBytes:  []byte("not a pdf"),
			wantStatus: http.StatusUnprocessableEntity,
			wantKind:   "CORRUPT_DOCUMENT",
		},
		{
			name:       "missing required field",
			completion: `{"name":"Ada Lovelace","course":"Systems Design"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantKind:   "INCOMPLETE_EXTRACTION",
		},
		{
			name:       "unknown template",
			completion: goodCompletion,
			fields:     map[string]string{"output": "xlsx", "template": "missing"},
			wantStatus: http.StatusNotFound,
			wantKind:   "TEMPLATE_NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestServer(t, tt.completion)

			var body *bytes.Buffer
			var contentType string
			if tt.fileBytes != nil {
				var buf bytes.Buffer
				mw := multipart.NewWriter(&buf)
				fw, _ := mw.CreateFormFile("file", "bad.pdf")
				_, _ = fw.Write(tt.fileBytes)
				_ = mw.Close()
				body, contentType = &buf, mw.FormDataContentType()
			} else {
				body, contentType = multipartUpload(t, tt.fields)
			}

			req := httptest.NewRequest(http.MethodPost, "/v1/process", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.wantStatus, rec.Body)
			}
			var resp struct {
				Error struct {
					Kind string `json:"kind"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Error.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", resp.Error.Kind, tt.wantKind)
			}
		})
	}
}

func TestProcessMissingFileField(t *testing.T) {
	handler := newTestServer(t, goodCompletion)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("output", "json")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/process", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestProcessXLSXRequiresTemplate(t *testing.T) {
	handler := newTestServer(t, goodCompletion)

	body, contentType := multipartUpload(t, map[string]string{"output": "xlsx"})
	req := httptest.NewRequest(http.MethodPost, "/v1/process", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestListTemplates(t *testing.T) {
	handler := newTestServer(t, goodCompletion)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/templates", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Templates []struct {
			Name   string   `json:"name"`
			Fields []string `json:"fields"`
		} `json:"templates"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Templates) != 1 || resp.Templates[0].Name != "certificate" {
		t.Errorf("templates = %+v", resp.Templates)
	}
	if len(resp.Templates[0].Fields) != 3 {
		t.Errorf("fields = %v", resp.Templates[0].Fields)
	}
}

func TestHealthz(t *testing.T) {
	handler := newTestServer(t, goodCompletion)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if _, err := io.ReadAll(rec.Body); err != nil {
		t.Fatal(err)
	}
}
