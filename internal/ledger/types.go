package ledger

import (
	"errors"
	"time"
)

type Status string

const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is one MD engine invocation.
type Run struct {
	ID         string     `json:"id"`
	Package    string     `json:"package"`
	Exe        string     `json:"exe"`
	Name       string     `json:"name"`
	Protocol   string     `json:"protocol"`
	WorkDir    string     `json:"work_dir"`
	Command    string     `json:"command"`
	Status     Status     `json:"status"`
	ExitCode   *int       `json:"exit_code,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	LastError  *string    `json:"last_error,omitempty"`
}

type RunRequest struct {
	Package  string
	Exe      string
	Name     string
	Protocol string
	WorkDir  string
	Command  string
}

// Job is one background parameterisation.
type Job struct {
	ID         string     `json:"id"`
	Hash       string     `json:"hash"`
	Protocol   string     `json:"protocol"`
	Molecule   string     `json:"molecule"`
	WorkDir    string     `json:"work_dir"`
	Status     Status     `json:"status"`
	Archive    *string    `json:"archive,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type JobRequest struct {
	Hash     string
	Protocol string
	Molecule string
	WorkDir  string
}

var ErrNotFound = errors.New("ledger record not found")
