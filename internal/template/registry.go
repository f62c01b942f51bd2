package template

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/certiflow/certiflow/internal/common"
)

// Registry enumerates the templates available in a directory. Each template
// is a `<name>.json` descriptor next to its `.xlsx` workbook. The registry
// is read-only after loading; templates are read-shared across concurrent
// runs and never written in place.
type Registry struct {
	dir    string
	logger *slog.Logger

	mu          sync.RWMutex
	descriptors map[string]Descriptor
}

func NewRegistry(dir string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{dir: dir, logger: logger, descriptors: make(map[string]Descriptor)}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) reload() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("read template dir %s: %w", r.dir, err)
	}

	loaded := make(map[string]Descriptor)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(r.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read descriptor %s: %w", path, err)
		}
		var d Descriptor
		if err := json.Unmarshal(data, &d); err != nil {
			return fmt.Errorf("decode descriptor %s: %w", path, err)
		}
		if d.Name == "" {
			d.Name = strings.TrimSuffix(entry.Name(), ".json")
		}
		if err := d.Validate(); err != nil {
			return fmt.Errorf("descriptor %s: %w", path, err)
		}
		loaded[d.Name] = d
	}

	r.mu.Lock()
	r.descriptors = loaded
	r.mu.Unlock()

	r.logger.Info("template.registry.loaded", "dir", r.dir, "templates", len(loaded))
	return nil
}

// Get resolves a template identifier to its descriptor.
func (r *Registry) Get(name string) (Descriptor, error) {
	r.mu.RLock()
	d, ok := r.descriptors[name]
	r.mu.RUnlock()
	if !ok {
		return Descriptor{}, common.StageErrorf(common.StageFill, common.KindTemplateNotFound,
			"unknown template %q", name)
	}
	return d, nil
}

// List returns all descriptors sorted by name, for callers that want to
// check compatibility before submitting a document.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	out := make([]Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// TemplatePath resolves the workbook location for a descriptor.
func (r *Registry) TemplatePath(d Descriptor) string {
	return filepath.Join(r.dir, d.TemplateFile())
}
