// Package process wraps a single out-of-process MD engine invocation.
//
// Each wrapper prepares its working directory (input files, engine
// configuration, a README with the command line) at construction time and
// launches the engine on Start. The engine runs to its own completion: there
// is no cancellation or timeout at this layer.
//
// Output layout inside the working directory:
//   - <name>.out  engine stdout
//   - <name>.err  engine stderr
//   - README.txt  the command(s) that were run
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattjoyce/mdrun/internal/log"
	"github.com/mattjoyce/mdrun/internal/molecule"
	"github.com/mattjoyce/mdrun/internal/protocol"
	"github.com/mattjoyce/mdrun/internal/workspace"
)

// DefaultName is the process name used when none is given.
const DefaultName = "md"

// Process is the capability set shared by all engine wrappers.
type Process interface {
	Package() string
	Exe() string
	Name() string
	WorkDir() string
	// Command returns the command line(s) the process runs, one per line.
	Command() string

	// Start launches the engine. Only the first call has an effect.
	Start() error
	IsStarted() bool
	IsRunning() bool
	IsDone() bool
	// Done is closed when the engine has exited (or failed to launch) and
	// Options.OnExit has returned.
	Done() <-chan struct{}
	// Wait blocks until the engine has exited and returns its error.
	Wait() error
	ExitCode() int
	RunTime() time.Duration

	// Stdout returns the last n lines of engine stdout; n <= 0 returns all.
	Stdout(n int) ([]string, error)
	// Stderr returns the last n lines of engine stderr; n <= 0 returns all.
	Stderr(n int) ([]string, error)
}

// Options configures a process wrapper.
type Options struct {
	Name    string
	WorkDir string // created if missing; empty means an auto-created workspace
	Seed    *int64

	// Workspaces provides auto-created work dirs. Nil falls back to a
	// temporary directory.
	Workspaces workspace.Manager

	// OnExit is called once, after the engine exits or fails to launch and
	// before Done is closed.
	OnExit func(err error)
}

// ErrNotStarted is returned by Wait on a process that was never started.
var ErrNotStarted = errors.New("process not started")

// base implements the lifecycle common to every engine. Engines supply the
// argument lists to run, in order, against the same executable.
type base struct {
	pkg      string
	exe      string
	name     string
	workDir  string
	system   *molecule.System
	protocol protocol.Protocol
	seed     *int64
	steps    [][]string
	onExit   func(err error)
	logger   *slog.Logger

	mu         sync.Mutex
	started    bool
	done       chan struct{}
	err        error
	exitCode   int
	startedAt  time.Time
	finishedAt time.Time
}

func newBase(ctx context.Context, pkg, exe string, sys *molecule.System, proto protocol.Protocol, opts Options) (*base, error) {
	if sys == nil {
		return nil, fmt.Errorf("system is nil")
	}
	if proto == nil {
		return nil, fmt.Errorf("protocol is nil")
	}
	if exe == "" {
		return nil, fmt.Errorf("%s executable path is empty", pkg)
	}

	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = DefaultName
	}
	if strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("process name %q must not contain path separators", name)
	}

	workDir, err := resolveWorkDir(ctx, name, opts)
	if err != nil {
		return nil, err
	}

	return &base{
		pkg:      pkg,
		exe:      exe,
		name:     name,
		workDir:  workDir,
		system:   sys,
		protocol: proto,
		seed:     opts.Seed,
		onExit:   opts.OnExit,
		logger:   log.WithPackage(pkg).With("component", "process", "name", name, "work_dir", workDir),
		done:     make(chan struct{}),
		exitCode: -1,
	}, nil
}

func resolveWorkDir(ctx context.Context, name string, opts Options) (string, error) {
	if opts.WorkDir != "" {
		if err := workspace.Ensure(opts.WorkDir); err != nil {
			return "", err
		}
		return filepath.Abs(opts.WorkDir)
	}
	if opts.Workspaces != nil {
		ws, err := opts.Workspaces.Create(ctx, name)
		if err != nil {
			return "", fmt.Errorf("create workspace: %w", err)
		}
		return ws.Dir, nil
	}
	return workspace.Temp("mdrun-" + name + "-")
}

func (b *base) Package() string { return b.pkg }
func (b *base) Exe() string     { return b.exe }
func (b *base) Name() string    { return b.name }
func (b *base) WorkDir() string { return b.workDir }

func (b *base) Command() string {
	lines := make([]string, len(b.steps))
	for i, args := range b.steps {
		lines[i] = strings.Join(append([]string{b.exe}, args...), " ")
	}
	return strings.Join(lines, "\n")
}

func (b *base) path(ext string) string {
	return filepath.Join(b.workDir, b.name+ext)
}

// writeReadme records the command line alongside the inputs.
func (b *base) writeReadme() error {
	content := fmt.Sprintf("# %s was run with the following command:\n%s\n", b.pkg, b.Command())
	if err := os.WriteFile(filepath.Join(b.workDir, "README.txt"), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write README.txt: %w", err)
	}
	return nil
}

// Start launches the first step synchronously so launch failures are
// returned to the caller; later steps run in the background.
func (b *base) Start() error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return nil
	}
	b.started = true
	b.startedAt = time.Now()
	b.mu.Unlock()

	stdout, stderr, err := b.openOutput()
	if err != nil {
		b.finish(err, -1)
		return err
	}

	b.logger.Info("starting engine", "exe", b.exe, "steps", len(b.steps))

	cmd, err := b.launch(b.steps[0], stdout, stderr)
	if err != nil {
		stdout.Close()
		stderr.Close()
		b.finish(err, -1)
		return err
	}

	go func() {
		defer stdout.Close()
		defer stderr.Close()

		err := b.wait(cmd)
		for _, args := range b.steps[1:] {
			if err != nil {
				break
			}
			next, lerr := b.launch(args, stdout, stderr)
			if lerr != nil {
				err = lerr
				break
			}
			err = b.wait(next)
		}

		code := 0
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else if err != nil {
			code = -1
		}
		b.finish(err, code)
	}()
	return nil
}

func (b *base) openOutput() (*os.File, *os.File, error) {
	stdout, err := os.Create(b.path(".out"))
	if err != nil {
		return nil, nil, fmt.Errorf("create stdout file: %w", err)
	}
	stderr, err := os.Create(b.path(".err"))
	if err != nil {
		stdout.Close()
		return nil, nil, fmt.Errorf("create stderr file: %w", err)
	}
	return stdout, stderr, nil
}

func (b *base) launch(args []string, stdout, stderr io.Writer) (*exec.Cmd, error) {
	cmd := exec.Command(b.exe, args...)
	cmd.Dir = b.workDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	b.logger.Debug("spawning engine step", "args", args)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", b.exe, err)
	}
	return cmd, nil
}

func (b *base) wait(cmd *exec.Cmd) error {
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			b.logger.Warn("engine exited with non-zero status", "exit_code", exitErr.ExitCode())
			return fmt.Errorf("%s exited with status %d: %w", filepath.Base(b.exe), exitErr.ExitCode(), err)
		}
		return fmt.Errorf("wait for %s: %w", b.exe, err)
	}
	return nil
}

func (b *base) finish(err error, code int) {
	b.mu.Lock()
	b.err = err
	b.exitCode = code
	b.finishedAt = time.Now()
	b.mu.Unlock()

	if err != nil {
		b.logger.Error("engine failed", "error", err, "run_time", b.RunTime())
	} else {
		b.logger.Info("engine finished", "run_time", b.RunTime())
	}
	// Waiters must observe whatever onExit records.
	if b.onExit != nil {
		b.onExit(err)
	}
	close(b.done)
}

func (b *base) IsStarted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}

func (b *base) IsRunning() bool {
	return b.IsStarted() && !b.IsDone()
}

func (b *base) IsDone() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

func (b *base) Done() <-chan struct{} { return b.done }

func (b *base) Wait() error {
	if !b.IsStarted() {
		return ErrNotStarted
	}
	<-b.done
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// ExitCode returns the engine's exit status, or -1 while running or if it
// never launched.
func (b *base) ExitCode() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exitCode
}

// RunTime is the elapsed time since Start, frozen once the engine exits.
func (b *base) RunTime() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case !b.started:
		return 0
	case b.finishedAt.IsZero():
		return time.Since(b.startedAt)
	default:
		return b.finishedAt.Sub(b.startedAt)
	}
}

func (b *base) Stdout(n int) ([]string, error) { return tailLines(b.path(".out"), n) }
func (b *base) Stderr(n int) ([]string, error) { return tailLines(b.path(".err"), n) }

func tailLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if n > 0 && len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	return lines, nil
}
