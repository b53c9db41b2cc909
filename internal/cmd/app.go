package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/example/deckbot/internal/config"
	"github.com/example/deckbot/internal/database"
	"github.com/example/deckbot/internal/kvstore"
	"github.com/example/deckbot/internal/metrics"
	srs "github.com/example/deckbot/internal/spaced_repetition"
)

// App holds the components every command works with.
// Users, decks and cards always live in the SQL database; Config.Storage
// only chooses where card progress is kept.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	DB    *sqlx.DB
	Users *database.UserRepository
	Decks *database.DeckRepository
	Cards *database.CardRepository

	Store     srs.ProgressStore
	Scheduler *srs.Scheduler
	Due       *srs.DueSetQuery
	Stats     *srs.StatsAggregator

	closers []func() error
}

// Open connects the database, opens the configured progress store and builds the engine
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	levels, err := cfg.SRS.LevelTable()
	if err != nil {
		return nil, fmt.Errorf("invalid level table: %w", err)
	}

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Logger: logger, DB: db, closers: []func() error{db.Close}}

	var store srs.ProgressStore
	switch cfg.Storage {
	case config.StorageSQL, "":
		store = database.NewProgressRepository(db, cfg.SRS.Retry)
	case config.StorageBadger:
		badgerCfg := cfg.Badger
		badgerCfg.Logger = logger.With("component", "badger")
		kv, err := kvstore.Open(badgerCfg, cfg.SRS.Retry)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to open progress store: %w", err)
		}
		app.closers = append(app.closers, kv.Close)
		store = kv
	case config.StorageMemory:
		// In-memory only, progress is lost on exit
		logger.Warn("card progress is kept in memory and will not survive a restart")
		store = srs.NewMemoryStore(cfg.SRS.Retry)
	default:
		app.Close()
		return nil, fmt.Errorf("unknown storage backend %q (choose sql, badger or memory)", cfg.Storage)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.Metrics = metrics.New(reg)
	app.Store = metrics.Instrument(store, app.Metrics)

	engineLogger := srs.WithLogger(logger.With("component", "srs"))
	app.Scheduler = srs.NewScheduler(app.Store, levels, engineLogger)
	app.Due = srs.NewDueSetQuery(app.Store, engineLogger)
	app.Stats = srs.NewStatsAggregator(app.Store, engineLogger)

	app.Users = database.NewUserRepository(db)
	app.Decks = database.NewDeckRepository(db)
	app.Cards = database.NewCardRepository(db)
	return app, nil
}

// Close releases stores in reverse order of opening
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
