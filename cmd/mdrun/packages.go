package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mattjoyce/mdrun/internal/engine"
)

func runPackages(args []string) int {
	fs := flag.NewFlagSet("packages", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output as JSON")
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

	report := a.resolver().Report()
	if *jsonOut {
		return printJSON(report)
	}
	fmt.Println(renderTable([]string{"PACKAGE", "FORMATS", "EXECUTABLE", "GPU", "PATH"}, packageRows(report)))
	return 0
}

// packageRows lays out one row per candidate; the package name and formats
// appear on the first row only.
func packageRows(report []engine.PackageStatus) [][]string {
	var rows [][]string
	for _, p := range report {
		for i, c := range p.Candidates {
			pkg, formats := "", ""
			if i == 0 {
				pkg, formats = p.Package, strings.Join(p.Formats, " ")
			}
			gpu := ""
			if c.GPU {
				gpu = "yes"
			}
			path := mutedStyle.Render("not found")
			if c.Found {
				path = c.Path
				if c.Path == p.Selected {
					path = okStyle.Render(c.Path)
				}
			}
			rows = append(rows, []string{pkg, formats, c.Exe, gpu, path})
		}
	}
	return rows
}
