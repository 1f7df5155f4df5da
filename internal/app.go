// Package internal contains core application functionality
package internal

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge"

	"tidemark/internal/config"
	"tidemark/internal/database"
	"tidemark/internal/events"
	"tidemark/internal/eventstore"
	"tidemark/internal/http"
	"tidemark/internal/jobs"
	"tidemark/internal/syncer"
)

// Application wires the rollup pipeline together: relational store, raw
// event store, syncer, scheduler and the operational HTTP server.
type Application struct {
	Config     *config.Config
	Logger     *slog.Logger
	DBManager  *database.DBManager
	EventStore events.Store
	Syncer     *syncer.Syncer
	Scheduler  *jobs.Scheduler

	server *http.Server
}

type appOptions struct {
	eventStore events.Store
	skipStore  bool
}

// Option customizes application construction.
type Option func(*appOptions)

// WithEventStore injects a raw event store, replacing the default
// ClickHouse connection. Used by tests.
func WithEventStore(store events.Store) Option {
	return func(o *appOptions) {
		o.eventStore = store
	}
}

// WithoutEventStore skips connecting to the raw event store. Commands that
// only touch the relational store (migrate, list) use this; sync operations
// will fail without a store.
func WithoutEventStore() Option {
	return func(o *appOptions) {
		o.skipStore = true
	}
}

// NewApp creates a new application instance with default settings
func NewApp(opts ...Option) (*Application, error) {
	var options appOptions
	for _, opt := range opts {
		opt(&options)
	}

	cfg := config.GetConfig()
	logger := cartridge.NewLogger(cfg, nil)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	store := options.eventStore
	if store == nil && !options.skipStore {
		chStore, err := eventstore.NewClickHouseStore(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize event store: %w", err)
		}
		store = chStore
	}

	app := &Application{
		Config:     cfg,
		Logger:     logger,
		DBManager:  dbManager,
		EventStore: store,
	}

	if store != nil {
		fetchTimeout := time.Duration(cfg.GetFetchTimeout()) * time.Second
		app.Syncer = syncer.NewSyncer(dbManager, store, logger, fetchTimeout)
		app.Scheduler = jobs.NewScheduler(app.Syncer, logger, cfg.SyncCronSpec)
		app.server = http.NewServer(dbManager, app.Syncer, logger)
	}

	return app, nil
}

// StartAsync starts the scheduler and the operational HTTP server without
// blocking the caller.
func (a *Application) StartAsync() error {
	if a.Scheduler == nil {
		return fmt.Errorf("application started without an event store")
	}

	if err := a.Scheduler.Start(); err != nil {
		return err
	}

	go func() {
		if err := a.server.Listen(a.Config.GetPort()); err != nil {
			a.Logger.Error("HTTP server stopped", slog.Any("error", err))
		}
	}()

	a.Logger.Info("Application started", slog.String("port", a.Config.GetPort()))
	return nil
}

// Shutdown stops background jobs, drains the HTTP server and checkpoints
// the database WAL.
func (a *Application) Shutdown(ctx context.Context) error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.Logger.Error("Failed to shut down HTTP server", slog.Any("error", err))
		}
	}

	if closer, ok := a.EventStore.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.Logger.Warn("Failed to close event store connection", slog.Any("error", err))
		}
	}

	if err := a.DBManager.CheckpointWAL("FULL"); err != nil {
		a.Logger.Warn("Failed to checkpoint WAL on shutdown", slog.Any("error", err))
	}

	return nil
}
