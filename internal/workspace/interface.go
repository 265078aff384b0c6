package workspace

import (
	"context"
	"time"
)

// Workspace is an auto-created working directory for one MD engine run.
type Workspace struct {
	ID        string
	Dir       string
	CreatedAt time.Time
}

// CleanupReport summarizes a cleanup run.
type CleanupReport struct {
	DeletedDirs int
	Skipped     int // directories without a workspace marker
}

// Manager governs auto-created run directories under a single base directory.
// Directories supplied by callers are never owned by the manager.
type Manager interface {
	// Create makes a new uniquely named workspace for a run called name.
	Create(ctx context.Context, name string) (Workspace, error)

	// Open resolves an existing workspace by id.
	Open(ctx context.Context, id string) (Workspace, error)

	// List returns all managed workspaces, oldest first.
	List(ctx context.Context) ([]Workspace, error)

	// Cleanup removes managed workspaces created more than olderThan ago.
	Cleanup(ctx context.Context, olderThan time.Duration) (CleanupReport, error)
}
