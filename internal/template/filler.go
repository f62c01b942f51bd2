package template

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/certiflow/certiflow/internal/common"
	"github.com/certiflow/certiflow/internal/llm"
	"github.com/certiflow/certiflow/internal/storage"
)

// Artifact references a filled spreadsheet: where it lives plus the checksum
// of the record it was generated from, for traceability. Immutable after
// creation; its lifecycle ends when the caller retrieves or deletes it.
type Artifact struct {
	ID        string    `json:"id"`
	Template  string    `json:"template"`
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}

// Filename returns the storage object name of the artifact.
func (a Artifact) Filename() string {
	return a.ID + ".xlsx"
}

// Filler maps structured records onto spreadsheet templates. Templates are
// opened read-only and every fill writes a fresh artifact through the
// storage capability, so concurrent runs never contend on a template.
type Filler struct {
	registry *Registry
	store    storage.Store
	logger   *slog.Logger
}

func NewFiller(registry *Registry, store storage.Store, logger *slog.Logger) *Filler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filler{registry: registry, store: store, logger: logger}
}

// Fill writes each mapped record value into its declared cell under the
// declared formatting rule and stores the result as a new artifact.
// All mapping and bounds problems are detected before the first write, so a
// failed fill never leaves a partial artifact behind.
func (f *Filler) Fill(ctx context.Context, record llm.Record, d Descriptor, schema llm.SchemaSpec) (Artifact, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}

	path := f.registry.TemplatePath(d)
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return Artifact{}, common.NewStageError(common.StageFill, common.KindTemplateNotFound,
			fmt.Sprintf("cannot load template %q", d.Name), err)
	}
	defer func() {
		if cerr := wb.Close(); cerr != nil {
			f.logger.Warn("template.fill.close_error", "template", d.Name, "error", cerr)
		}
	}()

	writes, err := planWrites(wb, record, d, schema)
	if err != nil {
		return Artifact{}, err
	}

	for _, w := range writes {
		if err := wb.SetCellValue(w.sheet, w.cell, w.value); err != nil {
			return Artifact{}, common.NewStageError(common.StageFill, common.KindMappingMismatch,
				fmt.Sprintf("write %s!%s", w.sheet, w.cell), err)
		}
	}

	buf, err := wb.WriteToBuffer()
	if err != nil {
		return Artifact{}, common.NewStageError(common.StageFill, common.KindMappingMismatch,
			"encode workbook", err)
	}

	artifact := Artifact{
		ID:        uuid.New().String(),
		Template:  d.Name,
		Checksum:  record.Checksum(),
		CreatedAt: time.Now().UTC(),
	}
	storedPath, err := f.store.Put(artifact.Filename(), buf.Bytes())
	if err != nil {
		return Artifact{}, fmt.Errorf("store artifact: %w", err)
	}
	artifact.Path = storedPath

	f.logger.Info("template.fill.ok",
		"template", d.Name,
		"artifact_id", artifact.ID,
		"cells", len(writes),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return artifact, nil
}

type cellWrite struct {
	sheet string
	cell  string
	value any
}

// planWrites validates the record against the descriptor and the descriptor
// against the workbook, producing the full write set up front. It fails with
// MAPPING_MISMATCH when a required schema field has no mapping, a mapping
// references a required field absent from the record, a target sheet is not
// in the workbook, or a declared format cannot render the value.
func planWrites(wb *excelize.File, record llm.Record, d Descriptor, schema llm.SchemaSpec) ([]cellWrite, error) {
	mapped := make(map[string]struct{}, len(d.Mappings))
	for _, m := range d.Mappings {
		mapped[m.Field] = struct{}{}
	}
	var unmapped []string
	for _, name := range schema.RequiredFields() {
		if _, ok := mapped[name]; !ok {
			unmapped = append(unmapped, name)
		}
	}
	if len(unmapped) > 0 {
		return nil, common.StageErrorf(common.StageFill, common.KindMappingMismatch,
			"template %q has no cell mapping for required fields: %s", d.Name, strings.Join(unmapped, ", "))
	}

	writes := make([]cellWrite, 0, len(d.Mappings))
	for _, m := range d.Mappings {
		sheet, cell, err := splitCellRef(m.Cell)
		if err != nil {
			return nil, common.NewStageError(common.StageFill, common.KindMappingMismatch,
				fmt.Sprintf("template %q: field %q", d.Name, m.Field), err)
		}
		if idx, err := wb.GetSheetIndex(sheet); err != nil || idx == -1 {
			return nil, common.StageErrorf(common.StageFill, common.KindMappingMismatch,
				"template %q has no sheet %q (mapping for field %q)", d.Name, sheet, m.Field)
		}

		value, ok := record[m.Field]
		if !ok {
			if fs, known := schema.Field(m.Field); known && !fs.Required {
				continue // optional field absent from the record
			}
			return nil, common.StageErrorf(common.StageFill, common.KindMappingMismatch,
				"record has no value for mapped field %q", m.Field)
		}

		rendered, err := formatValue(value, m.Format)
		if err != nil {
			return nil, common.NewStageError(common.StageFill, common.KindMappingMismatch,
				fmt.Sprintf("format field %q for cell %s", m.Field, m.Cell), err)
		}
		writes = append(writes, cellWrite{sheet: sheet, cell: cell, value: rendered})
	}
	return writes, nil
}
