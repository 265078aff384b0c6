package api

import (
	"github.com/mattjoyce/mdrun/internal/engine"
	"github.com/mattjoyce/mdrun/internal/ledger"
)

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status            string `json:"status"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
	PackagesAvailable int    `json:"packages_available"`
}

// PackageSummary is one entry of GET /packages.
type PackageSummary struct {
	Package    string                   `json:"package"`
	Formats    []string                 `json:"formats"`
	Available  bool                     `json:"available"`
	Selected   string                   `json:"selected,omitempty"`
	Candidates []engine.CandidateStatus `json:"candidates"`
}

type PackageListResponse struct {
	Packages []PackageSummary `json:"packages"`
}

type RunListResponse struct {
	Runs []*ledger.Run `json:"runs"`
}

type JobListResponse struct {
	Jobs []*ledger.Job `json:"jobs"`
}
