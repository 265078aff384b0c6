package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"
)

func runWorkspaceNoun(args []string) int {
	if len(args) == 0 || isHelpToken(args[0]) {
		printWorkspaceNounHelp(os.Stdout)
		return 0
	}
	switch args[0] {
	case "list":
		return runWorkspaceList(args[1:])
	case "clean":
		return runWorkspaceClean(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown workspace action: %s\n", args[0])
		printWorkspaceNounHelp(os.Stderr)
		return 1
	}
}

func printWorkspaceNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: mdrun workspace <action>")
	fmt.Fprintln(w, "Actions: list, clean [--older-than DURATION]")
}

func runWorkspaceList(args []string) int {
	fs := flag.NewFlagSet("workspace list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
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

	mgr, err := a.workspaces()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open workspaces: %v\n", err)
		return 1
	}
	list, err := mgr.List(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list workspaces: %v\n", err)
		return 1
	}
	if len(list) == 0 {
		fmt.Println("No workspaces.")
		return 0
	}

	rows := make([][]string, 0, len(list))
	for _, ws := range list {
		rows = append(rows, []string{ws.ID, ws.CreatedAt.Local().Format(time.DateTime), ws.Dir})
	}
	fmt.Println(renderTable([]string{"ID", "CREATED", "DIR"}, rows))
	return 0
}

func runWorkspaceClean(args []string) int {
	fs := flag.NewFlagSet("workspace clean", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	olderThan := fs.Duration("older-than", 0, "Remove workspaces older than this (default: workspace.retention)")
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

	age := *olderThan
	if age == 0 {
		age = a.cfg.Workspace.Retention
	}

	mgr, err := a.workspaces()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open workspaces: %v\n", err)
		return 1
	}
	report, err := mgr.Cleanup(context.Background(), age)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cleanup failed: %v\n", err)
		return 1
	}
	fmt.Printf("removed %d workspace(s) older than %s", report.DeletedDirs, age)
	if report.Skipped > 0 {
		fmt.Printf(", skipped %d unmanaged director(ies)", report.Skipped)
	}
	fmt.Println()
	return 0
}
