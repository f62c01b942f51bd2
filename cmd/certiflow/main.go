package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/certiflow/certiflow/constants"
	"github.com/certiflow/certiflow/internal/common"
	"github.com/certiflow/certiflow/internal/extract"
	"github.com/certiflow/certiflow/internal/llm"
	"github.com/certiflow/certiflow/internal/llm/openai"
	"github.com/certiflow/certiflow/internal/pipeline"
	"github.com/certiflow/certiflow/internal/storage"
	"github.com/certiflow/certiflow/internal/template"
)

// certiflow processes a single document from the command line: extract its
// text, structure it into a record, and optionally fill a spreadsheet
// template with the result.
func main() {
	var (
		filePath   = flag.String("file", "", "path to the PDF to process (required)")
		templateID = flag.String("template", "", "template identifier; enables spreadsheet output")
		fieldsJSON = flag.String("fields", "", "JSON array of field specs overriding the default schema")
		outputDir  = flag.String("output", "", "directory for the filled spreadsheet (default: config OUTPUT_DIR)")
		verbose    = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: certiflow -file <document.pdf> [-template <name>] [-fields <json>] [-output <dir>]")
		os.Exit(2)
	}

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		fatal(logger, "config invalid", err)
	}
	if *outputDir != "" {
		cfg.Storage.OutputDir = *outputDir
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		fatal(logger, "read document", err)
	}

	var schema *llm.SchemaSpec
	if *fieldsJSON != "" {
		var fields []llm.FieldSpec
		if err := json.Unmarshal([]byte(*fieldsJSON), &fields); err != nil {
			fatal(logger, "parse -fields", err)
		}
		override := llm.SchemaSpec{Fields: fields}
		if err := override.Validate(); err != nil {
			fatal(logger, "invalid -fields", err)
		}
		schema = &override
	}

	store, err := storage.NewFSStore(cfg.Storage.OutputDir)
	if err != nil {
		fatal(logger, "open output directory", err)
	}
	registry, err := template.NewRegistry(cfg.Templates.Dir, logger)
	if err != nil {
		fatal(logger, "load templates", err)
	}

	structurer := openai.NewClient(openai.Config{
		APIKey:              cfg.LLM.APIKey,
		BaseURL:             cfg.LLM.BaseURL,
		Model:               cfg.LLM.Model,
		Temperature:         cfg.LLM.Temperature,
		Timeout:             cfg.LLM.Timeout,
		CharBudget:          cfg.LLM.CharBudget,
		MaxParseAttempts:    cfg.LLM.MaxParseAttempts,
		MaxUpstreamAttempts: cfg.LLM.MaxUpstreamAttempts,
		BackoffInitial:      cfg.LLM.BackoffInitial,
		BackoffMax:          cfg.LLM.BackoffMax,
	}, logger)

	orch := pipeline.NewOrchestrator(
		pipeline.Config{
			ExtractTimeout:   cfg.Pipeline.ExtractTimeout,
			StructureTimeout: cfg.Pipeline.StructureTimeout,
			FillTimeout:      cfg.Pipeline.FillTimeout,
		},
		extract.NewPDFExtractor(logger),
		structurer,
		registry,
		template.NewFiller(registry, store, logger),
		nil,
		logger,
	)

	mediaType := ""
	if constants.NormalizeExt(filepath.Ext(*filePath)) == "pdf" {
		mediaType = constants.MediaTypePDF
	}

	result, err := orch.Run(context.Background(), pipeline.Request{
		Document: extract.RawDocument{
			Bytes:     data,
			MediaType: mediaType,
			Filename:  filepath.Base(*filePath),
		},
		TemplateID:   *templateID,
		Schema:       schema,
		WantArtifact: *templateID != "",
	})
	if err != nil {
		fatal(logger, "process", err)
	}

	out := map[string]any{
		"run_id":   result.RunID,
		"record":   result.Record,
		"checksum": result.Checksum,
	}
	if len(result.Warnings) > 0 {
		out["warnings"] = result.Warnings
	}
	if result.Artifact != nil {
		out["artifact"] = result.Artifact
		fmt.Fprintf(os.Stderr, "wrote %s\n", result.Artifact.Path)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fatal(logger, "encode result", err)
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	fmt.Fprintf(os.Stderr, "certiflow: %s: %v\n", msg, err)
	os.Exit(1)
}
