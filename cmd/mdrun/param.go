package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattjoyce/mdrun/internal/config"
	"github.com/mattjoyce/mdrun/internal/molecule"
	"github.com/mattjoyce/mdrun/internal/parameters"
	"github.com/mattjoyce/mdrun/internal/workspace"
)

func runParameterise(args []string) int {
	fs := flag.NewFlagSet("parameterise", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	molPath := fs.String("molecule", "", "Molecule structure file or YAML descriptor")
	protoArg := fs.String("protocol", "", "Configured protocol name or protocol YAML")
	workDir := fs.String("work-dir", "", "Working directory (default: temporary, removed afterwards)")
	outDir := fs.String("out", ".", "Directory for the parameterised molecule")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *molPath == "" || *protoArg == "" {
		fmt.Fprintln(os.Stderr, "Usage: mdrun parameterise --molecule <file> --protocol <name|file> [flags]")
		return 1
	}

	a, err := loadApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	defer a.Close()

	mol, err := loadMolecule(*molPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load molecule: %v\n", err)
		return 1
	}
	proto, err := lookupParamProtocol(a.cfg, *protoArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load protocol: %v\n", err)
		return 1
	}

	opts := parameters.Options{
		WorkDir:    *workDir,
		ArchiveDir: a.cfg.Parameters.ArchiveDir,
	}
	if l, err := a.openLedger(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: job will not be recorded: %v\n", err)
	} else {
		opts.Recorder = l
	}

	job, err := parameters.NewJob(mol, proto, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create job: %v\n", err)
		return exitCodeFor(err)
	}
	defer job.Close()

	fmt.Fprintf(os.Stderr, "parameterising %s with %s (hash %s)\n", mol.Name, proto.Name(), job.HashString())
	result, err := job.Molecule()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Parameterisation error: %v\n", err)
		return 1
	}
	if result == nil {
		return 1
	}

	if err := workspace.Ensure(*outDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		return 1
	}
	path, err := result.WriteFile(*outDir, result.Name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write result: %v\n", err)
		return 1
	}
	fmt.Println(path)
	return 0
}

func loadMolecule(path string) (*molecule.Molecule, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return molecule.LoadMolecule(path)
	}
	return molecule.ReadMolecule("", path)
}

// lookupParamProtocol prefers a name from parameters.protocols and falls
// back to treating the argument as a protocol file.
func lookupParamProtocol(cfg *config.Config, arg string) (parameters.Protocol, error) {
	if path, ok := cfg.Parameters.Protocols[arg]; ok {
		return parameters.LoadExternal(path)
	}
	if _, err := os.Stat(arg); err != nil {
		return nil, fmt.Errorf("unknown protocol %q", arg)
	}
	return parameters.LoadExternal(arg)
}
