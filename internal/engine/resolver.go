// Package engine maps a molecular system's file format to a supported MD
// package and locates an installed executable for it.
package engine

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/mattjoyce/mdrun/internal/errdefs"
	"github.com/mattjoyce/mdrun/internal/log"
	"github.com/mattjoyce/mdrun/internal/molecule"
)

// Resolution is the outcome of a successful package search.
type Resolution struct {
	Package string
	Exe     string // absolute path
	GPU     bool
}

// Resolver locates MD executables. The function fields default to the OS and
// can be replaced in tests.
type Resolver struct {
	LookupEnv func(key string) (string, bool)
	LookPath  func(file string) (string, error)
	IsFile    func(path string) bool

	// AmberHome is used as the installation root when AMBERHOME is unset.
	AmberHome string

	logger *slog.Logger
}

// NewResolver returns a resolver backed by the process environment and PATH.
func NewResolver() *Resolver {
	return &Resolver{
		LookupEnv: os.LookupEnv,
		LookPath:  exec.LookPath,
		IsFile:    isRegularFile,
		logger:    log.WithComponent("resolver"),
	}
}

// Resolve finds the MD package for sys and the first executable that provides
// it. useGPU must be a bool. It is validated but does not reorder the search:
// the registry already lists GPU builds first.
func (r *Resolver) Resolve(sys *molecule.System, useGPU any) (Resolution, error) {
	if _, ok := useGPU.(bool); !ok {
		return Resolution{}, errdefs.InvalidArgument("use_gpu", "must be of type bool, got %T", useGPU)
	}
	if sys == nil {
		return Resolution{}, errdefs.InvalidArgument("system", "must not be nil")
	}

	format := sys.FileFormat()
	pkg, ok := Formats()[format]
	if !ok {
		return Resolution{}, &errdefs.UnsupportedFormatError{Format: format}
	}

	candidates := Packages()[pkg]
	logger := r.log().With("md_package", pkg, "fileformat", format)

	tried := make([]string, 0, len(candidates))
	for _, c := range candidates {
		tried = append(tried, c.Exe)
		exe, found := r.locate(pkg, c.Exe)
		if !found {
			logger.Debug("candidate not found", "exe", c.Exe)
			continue
		}
		logger.Debug("resolved executable", "exe", exe, "gpu", c.GPU)
		return Resolution{Package: pkg, Exe: exe, GPU: c.GPU}, nil
	}

	return Resolution{}, &errdefs.NoExecutableError{Package: pkg, Candidates: tried}
}

// locate finds a single candidate. AMBER candidates are looked up under the
// installation root when one is set, with no PATH fallback in that case.
func (r *Resolver) locate(pkg, exe string) (string, bool) {
	if pkg == Amber {
		if home, ok := r.amberHome(); ok {
			path := amberExe(home, exe)
			if !r.isFile(path) {
				return "", false
			}
			return absPath(path), true
		}
	}

	lookPath := r.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	path, err := lookPath(exe)
	if err != nil {
		return "", false
	}
	return absPath(path), true
}

// amberExe places exe under <home>/bin. An empty home yields /bin/<exe>,
// never a path relative to the working directory.
func amberExe(home, exe string) string {
	return filepath.Clean(home + string(filepath.Separator) + filepath.Join("bin", exe))
}

func (r *Resolver) amberHome() (string, bool) {
	lookupEnv := r.LookupEnv
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	if home, ok := lookupEnv(AmberHomeEnv); ok {
		return home, true
	}
	if r.AmberHome != "" {
		return r.AmberHome, true
	}
	return "", false
}

func (r *Resolver) isFile(path string) bool {
	if r.IsFile != nil {
		return r.IsFile(path)
	}
	return isRegularFile(path)
}

func (r *Resolver) log() *slog.Logger {
	if r.logger == nil {
		r.logger = log.WithComponent("resolver")
	}
	return r.logger
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
