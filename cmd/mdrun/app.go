package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/mattjoyce/mdrun/internal/config"
	"github.com/mattjoyce/mdrun/internal/engine"
	"github.com/mattjoyce/mdrun/internal/ledger"
	"github.com/mattjoyce/mdrun/internal/log"
	"github.com/mattjoyce/mdrun/internal/storage"
	"github.com/mattjoyce/mdrun/internal/workspace"
)

// app holds what a command needs after loading configuration. The ledger
// is opened only by commands that touch it.
type app struct {
	cfg        *config.Config
	configPath string
	db         *sql.DB
	ledger     *ledger.Ledger
}

func loadApp(configPath string) (*app, error) {
	if configPath == "" {
		configPath = config.Discover()
	}

	cfg := config.Defaults()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	log.SetupWriter(os.Stderr, cfg.Service.LogLevel, cfg.Service.LogFormat)
	return &app{cfg: cfg, configPath: configPath}, nil
}

func (a *app) openLedger(ctx context.Context) (*ledger.Ledger, error) {
	if a.ledger != nil {
		return a.ledger, nil
	}
	db, err := storage.OpenSQLite(ctx, a.cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", a.cfg.State.Path, err)
	}
	if err := storage.Bootstrap(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap ledger: %w", err)
	}
	a.db = db
	a.ledger = ledger.New(db)
	return a.ledger, nil
}

func (a *app) resolver() *engine.Resolver {
	r := engine.NewResolver()
	r.AmberHome = a.cfg.Engines.AmberHome
	return r
}

func (a *app) workspaces() (workspace.Manager, error) {
	return workspace.NewFSManager(a.cfg.Workspace.BaseDir)
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}
