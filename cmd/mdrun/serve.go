package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mattjoyce/mdrun/internal/api"
	"github.com/mattjoyce/mdrun/internal/lock"
	"github.com/mattjoyce/mdrun/internal/log"
	"github.com/mattjoyce/mdrun/internal/workspace"
)

const sweepInterval = time.Hour

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	listen := fs.String("listen", "", "Listen address (overrides api.listen)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	a, err := loadApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	defer a.Close()

	if !a.cfg.API.Enabled && *listen == "" {
		fmt.Fprintln(os.Stderr, "API is disabled: set api.enabled in the config or pass --listen")
		return 1
	}

	logger := log.WithComponent("main")
	logger.Info("mdrun starting", "version", version, "config", a.configPath)

	lockPath := filepath.Join(filepath.Dir(a.cfg.State.Path), "mdrun.lock")
	pidLock, err := lock.AcquirePIDLock(lockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", lockPath, "error", err)
		return 1
	}
	defer pidLock.Release()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	l, err := a.openLedger(ctx)
	if err != nil {
		logger.Error("failed to open ledger", "path", a.cfg.State.Path, "error", err)
		return 1
	}

	mgr, err := a.workspaces()
	if err != nil {
		logger.Error("failed to initialize workspace manager", "base_dir", a.cfg.Workspace.BaseDir, "error", err)
		return 1
	}
	go sweepWorkspaces(ctx, mgr, a.cfg.Workspace.Retention)

	addr := a.cfg.API.Listen
	if *listen != "" {
		addr = *listen
	}
	server := api.New(api.Config{Listen: addr, APIKey: a.cfg.API.APIKey}, l, a.resolver(), log.WithComponent("api"))

	logger.Info("mdrun serving (press Ctrl+C to stop)", "listen", addr)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("api server failed", "error", err)
		return 1
	}
	logger.Info("mdrun stopped")
	return 0
}

// sweepWorkspaces removes expired workspaces once at startup and then on
// every tick until ctx ends.
func sweepWorkspaces(ctx context.Context, mgr workspace.Manager, retention time.Duration) {
	if retention <= 0 {
		return
	}
	logger := log.WithComponent("workspace")

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		report, err := mgr.Cleanup(ctx, retention)
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Warn("workspace cleanup failed", "error", err)
		case report.DeletedDirs > 0:
			logger.Info("workspace cleanup", "deleted", report.DeletedDirs, "skipped", report.Skipped)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
