// Package md picks the MD engine for a molecular system and launches it.
package md

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mattjoyce/mdrun/internal/engine"
	"github.com/mattjoyce/mdrun/internal/errdefs"
	"github.com/mattjoyce/mdrun/internal/ledger"
	"github.com/mattjoyce/mdrun/internal/log"
	"github.com/mattjoyce/mdrun/internal/molecule"
	"github.com/mattjoyce/mdrun/internal/process"
	"github.com/mattjoyce/mdrun/internal/protocol"
	"github.com/mattjoyce/mdrun/internal/workspace"
)

//go:generate mockgen -destination=mocks/mock_recorder.go -package=mocks github.com/mattjoyce/mdrun/internal/md Recorder

// Recorder persists the lifecycle of dispatched runs.
type Recorder interface {
	RecordRun(ctx context.Context, req ledger.RunRequest) (string, error)
	StartRun(ctx context.Context, id string) error
	CompleteRun(ctx context.Context, id string, exitCode int, runErr error) error
}

// Resolver maps a system to an engine executable.
type Resolver interface {
	Resolve(sys *molecule.System, useGPU any) (engine.Resolution, error)
}

// RunOptions are the per-run settings. The zero value prepares the process
// without starting it; DefaultRunOptions starts it on return.
type RunOptions struct {
	AutoStart bool
	Name      string
	WorkDir   string
	Seed      *int64
}

// DefaultRunOptions returns options that start the process immediately
// under the default process name.
func DefaultRunOptions() RunOptions {
	return RunOptions{AutoStart: true, Name: process.DefaultName}
}

// Dispatcher resolves the engine for a system and constructs its process.
type Dispatcher struct {
	Resolver   Resolver
	Recorder   Recorder          // optional
	Workspaces workspace.Manager // optional
	UseGPU     bool

	logger *slog.Logger
}

// NewDispatcher returns a dispatcher using the environment-backed resolver.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{Resolver: engine.NewResolver()}
}

// Run validates its arguments, finds an engine for sys and returns a process
// handle for it, started when opts.AutoStart is set.
func (d *Dispatcher) Run(ctx context.Context, sys *molecule.System, proto any, opts RunOptions) (process.Process, error) {
	if sys == nil {
		return nil, errdefs.InvalidArgument("system", "must be a molecular system, got nil")
	}
	p, err := protocol.FromValue(proto)
	if err != nil {
		return nil, err
	}
	if err := protocol.Validate(p); err != nil {
		return nil, err
	}

	res, err := d.Resolver.Resolve(sys, d.UseGPU)
	if err != nil {
		return nil, err
	}

	logger := d.log().With("md_package", res.Package, "exe", res.Exe, "protocol", string(p.Kind()))

	var (
		runID string
		proc  process.Process
	)
	popts := process.Options{
		Name:       opts.Name,
		WorkDir:    opts.WorkDir,
		Seed:       opts.Seed,
		Workspaces: d.Workspaces,
	}
	if d.Recorder != nil {
		popts.OnExit = func(runErr error) {
			if runID == "" {
				return
			}
			if err := d.Recorder.CompleteRun(context.WithoutCancel(ctx), runID, proc.ExitCode(), runErr); err != nil {
				logger.Warn("failed to record run completion", "run_id", runID, "error", err)
			}
		}
	}

	proc, err = newProcess(ctx, res, sys, p, popts)
	if err != nil {
		return nil, err
	}

	if d.Recorder != nil {
		runID, err = d.Recorder.RecordRun(ctx, ledger.RunRequest{
			Package:  res.Package,
			Exe:      res.Exe,
			Name:     proc.Name(),
			Protocol: string(p.Kind()),
			WorkDir:  proc.WorkDir(),
			Command:  proc.Command(),
		})
		if err != nil {
			logger.Warn("failed to record run", "error", err)
		} else {
			logger = logger.With("run_id", runID)
			proc = &recorded{Process: proc, onStart: func() {
				if err := d.Recorder.StartRun(context.WithoutCancel(ctx), runID); err != nil {
					logger.Warn("failed to record run start", "error", err)
				}
			}}
		}
	}
	logger.Info("prepared md run", "work_dir", proc.WorkDir())

	if opts.AutoStart {
		if err := proc.Start(); err != nil {
			return nil, fmt.Errorf("start %s: %w", res.Package, err)
		}
	}
	return proc, nil
}

// recorded marks the ledger row running on the first Start.
type recorded struct {
	process.Process
	once    sync.Once
	onStart func()
}

func (r *recorded) Start() error {
	r.once.Do(r.onStart)
	return r.Process.Start()
}

func newProcess(ctx context.Context, res engine.Resolution, sys *molecule.System, p protocol.Protocol, opts process.Options) (process.Process, error) {
	switch res.Package {
	case engine.Amber:
		return process.NewAmber(ctx, sys, p, res.Exe, opts)
	case engine.Gromacs:
		return process.NewGromacs(ctx, sys, p, res.Exe, opts)
	case engine.Namd:
		return process.NewNamd(ctx, sys, p, res.Exe, opts)
	default:
		return nil, fmt.Errorf("no process wrapper for package %q", res.Package)
	}
}

func (d *Dispatcher) log() *slog.Logger {
	if d.logger == nil {
		d.logger = log.WithComponent("md")
	}
	return d.logger
}

// Run dispatches with a fresh environment-backed dispatcher and no ledger.
// Pass DefaultRunOptions() to start the process; RunOptions{} only prepares it.
func Run(ctx context.Context, sys *molecule.System, proto any, opts RunOptions) (process.Process, error) {
	return NewDispatcher().Run(ctx, sys, proto, opts)
}
