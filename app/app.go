// Package app assembles the store, executor, cache, listener, moderation
// layer and sweeper into one lifecycle.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"banward/async"
	"banward/database"
	"banward/handlers"
	"banward/model"
	"banward/tasks"
	"banward/utils"
)

// App owns every long-lived component and their shutdown order.
type App struct {
	cfg *model.Config
	log *zap.SugaredLogger

	backend database.Backend
	exec    *async.Executor

	Store      *database.Manager
	Cache      *utils.PlayerCache
	Listener   *handlers.PlayerListener
	Moderation *handlers.Moderation
	Status     *handlers.StatusReporter
	sweeper    *tasks.Sweeper
}

// New builds the component graph without touching the store. host may be
// nil when no game server is attached.
func New(cfg *model.Config, host handlers.Host, log *zap.SugaredLogger) (*App, error) {
	var backend database.Backend
	switch cfg.Database.Backend {
	case "sqlite":
		backend = database.NewSQLiteBackend(cfg.Database.SQLite.Path, log)
	case "mysql":
		backend = database.NewMySQLBackend(cfg.Database.MySQL, log)
	default:
		return nil, fmt.Errorf("unknown database backend %q", cfg.Database.Backend)
	}

	exec := async.NewExecutor(async.DefaultWorkers(), log)
	store := database.NewManager(backend, exec, log, cfg.Database.OpTimeout)
	cache := utils.NewPlayerCache(host, store)

	return &App{
		cfg:        cfg,
		log:        log,
		backend:    backend,
		exec:       exec,
		Store:      store,
		Cache:      cache,
		Listener:   handlers.NewPlayerListener(store, cache, log, cfg.Checks.LoginTimeout, cfg.Checks.ChatTimeout),
		Moderation: handlers.NewModeration(store, cache, host, log, cfg.Database.OpTimeout),
		Status:     handlers.NewStatusReporter(store, backend, log),
		sweeper:    tasks.NewSweeper(store, cfg.Sweeper.Interval, log),
	}, nil
}

// Start connects the store and launches the sweeper. A store that cannot
// be reached is fatal; there is no degraded mode.
func (a *App) Start() error {
	if err := a.backend.Connect(); err != nil {
		return fmt.Errorf("failed to start punishment store: %w", err)
	}
	a.sweeper.Start()
	a.log.Infow("punishment system started", "backend", a.cfg.Database.Backend)
	return nil
}

// Stop shuts down in dependency order: no new sweeps, drain in-flight
// store work, then close the store.
func (a *App) Stop() {
	a.sweeper.Stop()
	a.exec.Shutdown(async.DefaultGrace)
	if err := a.backend.Close(); err != nil {
		a.log.Errorw("failed to close store", "error", err)
	}
	a.log.Info("punishment system stopped")
}
