package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/certiflow/certiflow/internal/artifacts"
	"github.com/certiflow/certiflow/internal/common"
	"github.com/certiflow/certiflow/internal/extract"
	"github.com/certiflow/certiflow/internal/llm/openai"
	"github.com/certiflow/certiflow/internal/pipeline"
	"github.com/certiflow/certiflow/internal/server"
	"github.com/certiflow/certiflow/internal/storage"
	"github.com/certiflow/certiflow/internal/template"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("config invalid", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewFSStore(cfg.Storage.OutputDir)
	if err != nil {
		logger.Error("open output store", "dir", cfg.Storage.OutputDir, "error", err)
		os.Exit(1)
	}

	registry, err := template.NewRegistry(cfg.Templates.Dir, logger)
	if err != nil {
		logger.Error("load templates", "dir", cfg.Templates.Dir, "error", err)
		os.Exit(1)
	}
	logger.Info("templates loaded", "dir", cfg.Templates.Dir, "count", len(registry.List()))

	index, err := artifacts.Open(ctx, cfg.Artifacts.DBPath, logger)
	if err != nil {
		logger.Error("open artifact index", "path", cfg.Artifacts.DBPath, "error", err)
		os.Exit(1)
	}
	defer index.Close()

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
		index,
		logger,
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.New(orch, registry, index, store, cfg.Server.MaxUploadBytes, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http serving", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	logger.Info("stopped")
}
