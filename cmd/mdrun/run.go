package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mattjoyce/mdrun/internal/errdefs"
	"github.com/mattjoyce/mdrun/internal/md"
	"github.com/mattjoyce/mdrun/internal/molecule"
	"github.com/mattjoyce/mdrun/internal/process"
	"github.com/mattjoyce/mdrun/internal/protocol"
)

func runRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	systemPath := fs.String("system", "", "System descriptor (YAML)")
	protoArg := fs.String("protocol", "", "minimisation|equilibration|production, a protocol YAML, or an engine config file")
	name := fs.String("name", process.DefaultName, "Process name used for output files")
	workDir := fs.String("work-dir", "", "Working directory (default: a new workspace)")
	seed := fs.Int64("seed", 0, "Random seed (0 lets the engine choose)")
	gpu := fs.Bool("gpu", false, "Prefer a GPU build")
	prepare := fs.Bool("prepare-only", false, "Write inputs and configuration without launching the engine")
	tail := fs.Int("tail", 20, "Lines of engine stdout to print when the run ends")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *systemPath == "" || *protoArg == "" {
		fmt.Fprintln(os.Stderr, "Usage: mdrun run --system <file> --protocol <name|file> [flags]")
		return 1
	}

	a, err := loadApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	defer a.Close()

	sys, err := molecule.LoadSystem(*systemPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load system: %v\n", err)
		return 1
	}
	proto, err := loadProtocol(*protoArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load protocol: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := &md.Dispatcher{
		Resolver: a.resolver(),
		UseGPU:   *gpu || a.cfg.Engines.UseGPU,
	}
	if *workDir == "" {
		ws, err := a.workspaces()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open workspaces: %v\n", err)
			return 1
		}
		d.Workspaces = ws
	}
	if !*prepare {
		l, err := a.openLedger(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open ledger: %v\n", err)
			return 1
		}
		d.Recorder = l
	}

	opts := md.RunOptions{Name: *name, WorkDir: *workDir}
	if *seed != 0 {
		opts.Seed = seed
	}

	proc, err := d.Run(ctx, sys, proto, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up run: %v\n", err)
		return exitCodeFor(err)
	}

	fmt.Printf("package:  %s\n", proc.Package())
	fmt.Printf("exe:      %s\n", proc.Exe())
	fmt.Printf("work_dir: %s\n", proc.WorkDir())
	fmt.Printf("command:\n%s\n", indent(proc.Command()))
	if *prepare {
		return 0
	}

	if err := proc.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start engine: %v\n", err)
		return 1
	}

	select {
	case <-proc.Done():
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "Interrupted; the engine keeps running in", proc.WorkDir())
		return 130
	}

	runErr := proc.Wait()
	if lines, err := proc.Stdout(*tail); err == nil && len(lines) > 0 {
		fmt.Println(mutedStyle.Render(fmt.Sprintf("--- last %d lines of %s.out ---", len(lines), proc.Name())))
		for _, line := range lines {
			fmt.Println(line)
		}
	}
	fmt.Printf("run time: %s\n", proc.RunTime().Round(time.Millisecond))

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Engine failed (exit %d): %v\n", proc.ExitCode(), runErr)
		if lines, err := proc.Stderr(*tail); err == nil {
			for _, line := range lines {
				fmt.Fprintln(os.Stderr, line)
			}
		}
		return 1
	}
	fmt.Println(okStyle.Render("engine finished"))
	return 0
}

func runResolve(args []string) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	systemPath := fs.String("system", "", "System descriptor (YAML)")
	gpu := fs.Bool("gpu", false, "Prefer a GPU build")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *systemPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: mdrun resolve --system <file> [--gpu] [--json]")
		return 1
	}

	a, err := loadApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	defer a.Close()

	sys, err := molecule.LoadSystem(*systemPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load system: %v\n", err)
		return 1
	}

	res, err := a.resolver().Resolve(sys, *gpu || a.cfg.Engines.UseGPU)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitCodeFor(err)
	}

	if *jsonOut {
		return printJSON(map[string]any{
			"fileformat": sys.FileFormat(),
			"package":    res.Package,
			"exe":        res.Exe,
			"gpu":        res.GPU,
		})
	}
	fmt.Printf("fileformat: %s\n", sys.FileFormat())
	fmt.Printf("package:    %s\n", res.Package)
	fmt.Printf("exe:        %s\n", res.Exe)
	fmt.Printf("gpu:        %t\n", res.GPU)
	return 0
}

// loadProtocol maps the --protocol argument to a value for md.Run. Anything
// that is neither a variant name nor a YAML file is passed through as the
// path of a custom engine configuration.
func loadProtocol(arg string) (any, error) {
	switch protocol.Kind(strings.ToLower(arg)) {
	case protocol.KindMinimisation:
		return protocol.NewMinimisation(), nil
	case protocol.KindEquilibration:
		return protocol.NewEquilibration(), nil
	case protocol.KindProduction:
		return protocol.NewProduction(), nil
	}

	switch strings.ToLower(filepath.Ext(arg)) {
	case ".yaml", ".yml":
		return protocol.Load(arg)
	}
	return arg, nil
}

// exitCodeFor separates caller mistakes (2) from environment problems (3).
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, errdefs.ErrInvalidArgument), errors.Is(err, errdefs.ErrUnsupportedFormat):
		return 2
	case errors.Is(err, errdefs.ErrNoExecutable):
		return 3
	default:
		return 1
	}
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}
