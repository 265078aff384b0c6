package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mattjoyce/mdrun/internal/ledger"
)

func runRunsNoun(args []string) int {
	if len(args) == 0 || isHelpToken(args[0]) {
		printRunsNounHelp(os.Stdout)
		return 0
	}
	switch args[0] {
	case "list":
		return runRunsList(args[1:])
	case "show":
		return runRunsShow(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown runs action: %s\n", args[0])
		printRunsNounHelp(os.Stderr)
		return 1
	}
}

func runJobsNoun(args []string) int {
	if len(args) == 0 || isHelpToken(args[0]) {
		printJobsNounHelp(os.Stdout)
		return 0
	}
	switch args[0] {
	case "list":
		return runJobsList(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown jobs action: %s\n", args[0])
		printJobsNounHelp(os.Stderr)
		return 1
	}
}

func printRunsNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: mdrun runs <action>")
	fmt.Fprintln(w, "Actions: list [--limit N] [--json], show <id> [--json]")
}

func printJobsNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: mdrun jobs <action>")
	fmt.Fprintln(w, "Actions: list [--limit N] [--json]")
}

func runRunsList(args []string) int {
	fs := flag.NewFlagSet("runs list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	limit := fs.Int("limit", ledger.DefaultListLimit, "Maximum runs to show")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	a, l, code := openLedgerApp(*configPath)
	if code != 0 {
		return code
	}
	defer a.Close()

	runs, err := l.ListRuns(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list runs: %v\n", err)
		return 1
	}
	if *jsonOut {
		if runs == nil {
			runs = []*ledger.Run{}
		}
		return printJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return 0
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			r.Package,
			r.Name,
			r.Protocol,
			statusText(string(r.Status)),
			exitText(r.ExitCode),
			r.CreatedAt.Local().Format(time.DateTime),
		})
	}
	fmt.Println(renderTable([]string{"ID", "PACKAGE", "NAME", "PROTOCOL", "STATUS", "EXIT", "CREATED"}, rows))
	return 0
}

func runRunsShow(args []string) int {
	fs := flag.NewFlagSet("runs show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: mdrun runs show <id> [--json]")
		return 1
	}

	a, l, code := openLedgerApp(*configPath)
	if code != 0 {
		return code
	}
	defer a.Close()

	r, err := l.GetRun(context.Background(), fs.Arg(0))
	if errors.Is(err, ledger.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "Run not found: %s\n", fs.Arg(0))
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read run: %v\n", err)
		return 1
	}
	if *jsonOut {
		return printJSON(r)
	}

	fmt.Printf("id:        %s\n", r.ID)
	fmt.Printf("status:    %s\n", statusText(string(r.Status)))
	fmt.Printf("package:   %s\n", r.Package)
	fmt.Printf("exe:       %s\n", r.Exe)
	fmt.Printf("name:      %s\n", r.Name)
	fmt.Printf("protocol:  %s\n", r.Protocol)
	fmt.Printf("work_dir:  %s\n", r.WorkDir)
	fmt.Printf("exit_code: %s\n", exitText(r.ExitCode))
	fmt.Printf("created:   %s\n", r.CreatedAt.Local().Format(time.RFC3339))
	if r.StartedAt != nil {
		fmt.Printf("started:   %s\n", r.StartedAt.Local().Format(time.RFC3339))
	}
	if r.FinishedAt != nil {
		fmt.Printf("finished:  %s\n", r.FinishedAt.Local().Format(time.RFC3339))
	}
	if r.LastError != nil {
		fmt.Printf("error:     %s\n", failStyle.Render(*r.LastError))
	}
	fmt.Printf("command:\n%s\n", indent(r.Command))
	return 0
}

func runJobsList(args []string) int {
	fs := flag.NewFlagSet("jobs list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	limit := fs.Int("limit", ledger.DefaultListLimit, "Maximum jobs to show")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	a, l, code := openLedgerApp(*configPath)
	if code != 0 {
		return code
	}
	defer a.Close()

	jobs, err := l.ListJobs(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list jobs: %v\n", err)
		return 1
	}
	if *jsonOut {
		if jobs == nil {
			jobs = []*ledger.Job{}
		}
		return printJSON(jobs)
	}
	if len(jobs) == 0 {
		fmt.Println("No parameterisation jobs recorded.")
		return 0
	}

	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		archive := ""
		if j.Archive != nil {
			archive = *j.Archive
		}
		rows = append(rows, []string{
			j.ID,
			j.Hash,
			j.Molecule,
			j.Protocol,
			statusText(string(j.Status)),
			archive,
		})
	}
	fmt.Println(renderTable([]string{"ID", "HASH", "MOLECULE", "PROTOCOL", "STATUS", "ARCHIVE"}, rows))
	return 0
}

func openLedgerApp(configPath string) (*app, *ledger.Ledger, int) {
	a, err := loadApp(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, nil, 1
	}
	l, err := a.openLedger(context.Background())
	if err != nil {
		a.Close()
		fmt.Fprintf(os.Stderr, "Failed to open ledger: %v\n", err)
		return nil, nil, 1
	}
	return a, l, 0
}

func exitText(code *int) string {
	if code == nil {
		return "-"
	}
	return strconv.Itoa(*code)
}
