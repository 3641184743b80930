package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/isaac-evs/safeway-etl/internal/config"
	"github.com/isaac-evs/safeway-etl/internal/infrastructure/feeds"
	"github.com/isaac-evs/safeway-etl/internal/infrastructure/geocode"
	"github.com/isaac-evs/safeway-etl/internal/infrastructure/llm"
	"github.com/isaac-evs/safeway-etl/internal/infrastructure/storage"
	"github.com/isaac-evs/safeway-etl/internal/logging"
	"github.com/isaac-evs/safeway-etl/internal/usecase"
)

// shutdownGrace bounds how long in-flight worker stages may run after a
// termination signal before they are abandoned.
const shutdownGrace = 5 * time.Second

// Application wires configuration to adapters and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *storage.PostgresStore
	pipeline *usecase.Pipeline
}

// New connects the store, initializes the schema, seeds the feed dedup set
// and assembles the pipeline. Any failure here aborts startup: no useful
// work can proceed without the store.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := storage.Open(ctx, cfg.Database.DSN, baseLogger.With("component", "store"))
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	if err := store.InitSchema(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("initialize store: %w", err)
	}

	fetcher := feeds.NewFetcher(cfg.Feeds, nil, baseLogger.With("component", "feeds"))
	known, err := store.KnownURLs(ctx)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("load known urls: %w", err)
	}
	fetcher.Seed(known)

	pipeline := usecase.NewPipeline(usecase.Deps{
		Source:     fetcher,
		Classifier: llm.NewClient(cfg.Inference, baseLogger.With("component", "classifier")),
		Geocoder:   geocode.NewMapboxGeocoder(cfg.Geocoder, baseLogger.With("component", "geocoder")),
		Store:      store,
		Logger:     baseLogger.With("component", "pipeline"),
	}, usecase.Options{
		Workers:      cfg.Pipeline.Workers,
		QueueSize:    cfg.Pipeline.QueueSize,
		PollInterval: cfg.Feeds.PollingInterval,
	})

	return &Application{cfg: cfg, logger: baseLogger, store: store, pipeline: pipeline}, nil
}

// Run executes the pipeline until it finishes (one-shot) or the context is
// cancelled (continuous). After cancellation, in-flight work gets a bounded
// grace period to drain before being abandoned.
func (a *Application) Run(ctx context.Context, once bool) error {
	errCh := make(chan error, 1)
	go func() {
		if once {
			errCh <- a.pipeline.RunOnce(ctx)
		} else {
			errCh <- a.pipeline.RunContinuous(ctx)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down", "grace", shutdownGrace)
	select {
	case err := <-errCh:
		return err
	case <-time.After(shutdownGrace):
		a.logger.Warn("grace period elapsed, abandoning in-flight work")
		return nil
	}
}

// Close releases external connections. Safe to call after Run returns.
func (a *Application) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("closing store", "error", err)
		}
	}
}
