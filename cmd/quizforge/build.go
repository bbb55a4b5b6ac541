package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lamim/quizforge/internal/api"
	"github.com/lamim/quizforge/internal/archive"
	"github.com/lamim/quizforge/internal/catalog"
	"github.com/lamim/quizforge/internal/config"
	"github.com/lamim/quizforge/internal/generator"
	"github.com/lamim/quizforge/internal/metrics"
	"github.com/lamim/quizforge/internal/mirror"
	"github.com/lamim/quizforge/internal/orchestrator"
	"github.com/lamim/quizforge/internal/planner"
	"github.com/lamim/quizforge/internal/retrieval"
	"github.com/lamim/quizforge/internal/session"
	"github.com/lamim/quizforge/internal/store"
	"github.com/lamim/quizforge/internal/worker"
	"github.com/lamim/quizforge/internal/writer"
)

// app holds every long-lived component of one command invocation
type app struct {
	cfg     *config.Config
	secrets *config.Secrets
	run     *writer.RunManager
	logger  *slog.Logger
	logFile *os.File

	metrics *metrics.Collector
	store   store.Store
	mirror  mirror.Mirror
	gen     generator.Generator
	archive *archive.Archive
	tracker *session.Tracker
	orch    *orchestrator.Orchestrator

	closers []func() error
}

func newApp(ctx context.Context, command string, logOpts writer.LogOptions) (_ *app, err error) {
	cfg, secrets, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	run, err := writer.NewRunManager(cfg.Output.Dir, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	logger, logFile, err := writer.SetupLogger(run, logOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	a := &app{cfg: cfg, secrets: secrets, run: run, logger: logger, logFile: logFile}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	logger.Info("QuizForge starting",
		"version", Version,
		"command", command,
		"config", configPath,
		"run_dir", run.GetRunDir())

	if err := run.BackupConfig(configPath); err != nil {
		return nil, fmt.Errorf("failed to backup config: %w", err)
	}

	a.metrics = metrics.NewCollector(logger)

	a.store, err = store.Open(ctx, store.Config{
		Driver:      cfg.Store.Driver,
		Path:        cfg.Store.Path,
		DatabaseURL: secrets.DatabaseURL,
		MaxConns:    cfg.Store.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)
	logger.Info("Item store ready", "driver", cfg.Store.Driver)

	if a.mirror, err = buildMirror(cfg, secrets, logger); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.mirror.Close)

	if a.gen, err = buildGenerator(ctx, cfg, secrets, a.metrics, logger); err != nil {
		return nil, err
	}
	if c, ok := a.gen.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	var retriever retrieval.Retriever = retrieval.None{}
	if cfg.Retrieval.ContentDir != "" {
		retriever = retrieval.NewCached(
			retrieval.NewDirRetriever(cfg.Retrieval.ContentDir, cfg.Retrieval.MaxBytes),
			time.Duration(cfg.Retrieval.CacheTTLMinutes)*time.Minute,
		)
	}

	cat, err := catalog.New(cfg.Catalog.Groups)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	logger.Info("Catalog loaded", "groups", len(cat.All()))

	a.tracker = session.NewTracker(logger)

	w, err := worker.New(worker.Deps{
		Generator: a.gen,
		Store:     a.store,
		Mirror:    a.mirror,
		Retriever: retriever,
		Reporter:  a.tracker,
		Metrics:   a.metrics,
		Logger:    logger,
	}, worker.Options{
		RequestTimeout:   cfg.Generation.RequestTimeout(),
		NearDupThreshold: cfg.Generation.NearDuplicateThreshold,
		DuplicateWindow:  cfg.Generation.DuplicateWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create worker: %w", err)
	}

	a.archive, err = archive.New(cfg.Sessions.ArchiveDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create session archive: %w", err)
	}
	// The archive is flushed before the store and mirrors close
	a.closers = append(a.closers, a.archive.Close)

	a.orch, err = orchestrator.New(orchestrator.Deps{
		Planner: planner.New(planner.Options{
			MaxGroupSize:    cfg.Planner.MaxGroupSize,
			MaxCombinations: cfg.Planner.MaxCombinations,
			Rules:           cfg.Planner.Rules,
		}, logger),
		Catalog: cat,
		Tracker: a.tracker,
		Runner:  w,
		Archive: a.archive,
		Metrics: a.metrics,
		Logger:  logger,
	}, cfg.Generation)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	return a, nil
}

func buildMirror(cfg *config.Config, secrets *config.Secrets, logger *slog.Logger) (mirror.Mirror, error) {
	var sinks mirror.Multi
	if cfg.Mirror.JSONLDir != "" {
		j, err := mirror.NewJSONL(cfg.Mirror.JSONLDir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create JSONL mirror: %w", err)
		}
		sinks = append(sinks, j)
	}
	if cfg.Mirror.NATS {
		n, err := mirror.NewNATS(secrets.NATSURL, time.Duration(cfg.Mirror.TimeoutSeconds)*time.Second, logger)
		if err != nil {
			_ = sinks.Close()
			return nil, fmt.Errorf("failed to create NATS mirror: %w", err)
		}
		sinks = append(sinks, n)
	}
	if len(sinks) == 0 {
		return mirror.Nop{}, nil
	}
	return sinks, nil
}

func buildGenerator(ctx context.Context, cfg *config.Config, secrets *config.Secrets, collector *metrics.Collector, logger *slog.Logger) (generator.Generator, error) {
	prompts := generator.PromptsFromConfig(cfg.PromptTemplates)

	switch cfg.Generator.Provider {
	case "gemini":
		g, err := generator.NewGemini(ctx, secrets.GeminiAPIKey, cfg.Generator, prompts, collector, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Using Gemini generator", "model", cfg.Generator.GeminiModel)
		return g, nil
	default:
		model := cfg.Models[cfg.Generator.Model]
		client := api.NewClient(logger, collector)
		logger.Info("Using OpenAI-compatible generator",
			"model", model.ModelName,
			"base_url", model.BaseURL,
			"rate_limit_per_minute", model.RateLimitPerMinute)
		return generator.NewOpenAI(client, model, secrets.GetAPIKey(model.BaseURL), cfg.Generator, prompts, logger), nil
	}
}

// Close releases components in reverse order of creation
func (a *app) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Error("Failed to close resources", "error", err)
	}
	if a.logFile != nil {
		_ = a.logFile.Sync()
		_ = a.logFile.Close()
	}
}
