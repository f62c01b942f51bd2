// Package pipeline sequences extraction, structuring, and template filling,
// translating stage failures into the uniform error taxonomy.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/certiflow/certiflow/internal/artifacts"
	"github.com/certiflow/certiflow/internal/common"
	"github.com/certiflow/certiflow/internal/extract"
	"github.com/certiflow/certiflow/internal/llm"
	"github.com/certiflow/certiflow/internal/template"
)

// State is the orchestrator's position in a run. Transitions are strictly
// forward; Failed is terminal and reachable from any non-terminal state.
type State string

const (
	StateReceived   State = "received"
	StateExtracted  State = "extracted"
	StateStructured State = "structured"
	StateFilled     State = "filled"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

// Config holds per-stage timeouts. The structuring timeout covers the
// upstream call including its internal retries.
type Config struct {
	ExtractTimeout   time.Duration
	StructureTimeout time.Duration
	FillTimeout      time.Duration
}

// Request is one unit of pipeline work. Each run owns its inputs outright;
// nothing is shared between concurrent runs.
type Request struct {
	Document   extract.RawDocument
	TemplateID string
	// Schema overrides the default field contract when set.
	Schema *llm.SchemaSpec
	// WantArtifact requests template filling; otherwise the run stops after
	// structuring and returns only the record.
	WantArtifact bool
}

// Result carries everything a successful run produced: the record for JSON
// consumers and, when requested, the artifact reference.
type Result struct {
	RunID    string
	State    State
	Record   llm.Record
	Checksum string
	Attempts int
	Warnings []string
	Artifact *template.Artifact
}

// Orchestrator wires the three stages together. It attempts each transition
// exactly once per request (retries, where applicable, live inside the
// structuring client) and halts on the first failure so no downstream stage
// ever sees partial data.
type Orchestrator struct {
	cfg        Config
	extractor  extract.TextExtractor
	structurer llm.Structurer
	templates  *template.Registry
	filler     *template.Filler
	index      *artifacts.Registry // optional
	logger     *slog.Logger
}

func NewOrchestrator(
	cfg Config,
	extractor extract.TextExtractor,
	structurer llm.Structurer,
	templates *template.Registry,
	filler *template.Filler,
	index *artifacts.Registry,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:        cfg,
		extractor:  extractor,
		structurer: structurer,
		templates:  templates,
		filler:     filler,
		index:      index,
		logger:     logger,
	}
}

// Run drives one document through the pipeline.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	runID := uuid.New().String()
	start := time.Now()
	state := StateReceived

	log := o.logger.With("run_id", runID)
	log.Info("pipeline.run.start",
		"filename", req.Document.Filename,
		"bytes", len(req.Document.Bytes),
		"template", req.TemplateID,
		"want_artifact", req.WantArtifact,
	)

	fail := func(stage common.Stage, err error) (Result, error) {
		err = tagTimeout(stage, err)
		log.Error("pipeline.run.failed",
			"state", string(state),
			"stage", string(common.StageOf(err)),
			"kind", string(common.KindOf(err)),
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return Result{RunID: runID, State: StateFailed}, err
	}

	// Received -> Extracted
	text, err := o.runExtract(ctx, req.Document)
	if err != nil {
		return fail(common.StageExtract, err)
	}
	state = StateExtracted
	log.Debug("pipeline.extracted", "pages", text.Pages, "text_len", len(text.Text))

	// Extracted -> Structured
	schema := llm.DefaultSchema()
	if req.Schema != nil {
		schema = *req.Schema
	}
	structured, err := o.runStructure(ctx, text, schema)
	if err != nil {
		return fail(common.StageStructure, err)
	}
	state = StateStructured
	log.Debug("pipeline.structured", "fields", len(structured.Record), "attempts", structured.Attempts)

	result := Result{
		RunID:    runID,
		Record:   structured.Record,
		Checksum: structured.Record.Checksum(),
		Attempts: structured.Attempts,
		Warnings: structured.Warnings,
	}

	// Structured -> Filled
	if req.WantArtifact {
		artifact, err := o.runFill(ctx, structured.Record, req.TemplateID, schema)
		if err != nil {
			return fail(common.StageFill, err)
		}
		state = StateFilled
		result.Artifact = &artifact

		if o.index != nil {
			if err := o.index.Record(ctx, artifact); err != nil {
				// The artifact exists and is usable; a bookkeeping failure
				// must not discard it.
				log.Warn("pipeline.index_failed", "artifact_id", artifact.ID, "error", err)
				result.Warnings = append(result.Warnings, "artifact produced but not indexed")
			}
		}
	}

	state = StateComplete
	result.State = state
	log.Info("pipeline.run.complete",
		"attempts", result.Attempts,
		"warnings", len(result.Warnings),
		"artifact", req.WantArtifact,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (o *Orchestrator) runExtract(ctx context.Context, doc extract.RawDocument) (extract.ExtractedText, error) {
	ctx, cancel := stageContext(ctx, o.cfg.ExtractTimeout)
	defer cancel()
	return o.extractor.Extract(ctx, doc)
}

func (o *Orchestrator) runStructure(ctx context.Context, text extract.ExtractedText, schema llm.SchemaSpec) (llm.StructureResult, error) {
	ctx, cancel := stageContext(ctx, o.cfg.StructureTimeout)
	defer cancel()
	return o.structurer.Structure(ctx, text, schema)
}

func (o *Orchestrator) runFill(ctx context.Context, record llm.Record, templateID string, schema llm.SchemaSpec) (template.Artifact, error) {
	ctx, cancel := stageContext(ctx, o.cfg.FillTimeout)
	defer cancel()
	descriptor, err := o.templates.Get(templateID)
	if err != nil {
		return template.Artifact{}, err
	}
	return o.filler.Fill(ctx, record, descriptor, schema)
}

func stageContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// tagTimeout converts a bare deadline overrun into a stage-tagged timeout
// error. Stage errors pass through untouched, including the structuring
// client's own UPSTREAM_UNAVAILABLE for upstream timeouts.
func tagTimeout(stage common.Stage, err error) error {
	var se *common.StageError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return common.NewStageError(stage, common.KindTimeout, "stage deadline exceeded", err)
	}
	return err
}
