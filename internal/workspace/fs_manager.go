package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// markerFile identifies directories created by the manager. Cleanup never
// touches directories without it.
const markerFile = ".mdrun-workspace"

// fsWorkspaceManager manages per-run workspace directories on local disk.
type fsWorkspaceManager struct {
	baseDir string
	now     func() time.Time
	newID   func(name string) string
}

var _ Manager = (*fsWorkspaceManager)(nil)

// NewFSManager creates a filesystem-backed workspace manager rooted at baseDir.
func NewFSManager(baseDir string) (*fsWorkspaceManager, error) {
	trimmed := strings.TrimSpace(baseDir)
	if trimmed == "" {
		return nil, fmt.Errorf("workspace base directory is empty")
	}

	return &fsWorkspaceManager{
		baseDir: filepath.Clean(trimmed),
		now:     time.Now,
		newID: func(name string) string {
			return name + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		},
	}, nil
}

// BaseDir returns the manager's root directory.
func (m *fsWorkspaceManager) BaseDir() string { return m.baseDir }

// Create makes <baseDir>/<name>-<random> and stamps it with a marker.
func (m *fsWorkspaceManager) Create(ctx context.Context, name string) (Workspace, error) {
	if err := ctx.Err(); err != nil {
		return Workspace{}, err
	}
	if err := validateID(name); err != nil {
		return Workspace{}, err
	}

	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return Workspace{}, fmt.Errorf("create workspace base directory: %w", err)
	}

	id := m.newID(name)
	dir := filepath.Join(m.baseDir, id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return Workspace{}, fmt.Errorf("create workspace %q: %w", id, err)
	}

	created := m.now().UTC()
	stamp := []byte(created.Format(time.RFC3339Nano) + "\n")
	if err := os.WriteFile(filepath.Join(dir, markerFile), stamp, 0o644); err != nil {
		_ = os.RemoveAll(dir)
		return Workspace{}, fmt.Errorf("write workspace marker: %w", err)
	}

	return Workspace{ID: id, Dir: dir, CreatedAt: created}, nil
}

// Open returns an existing managed workspace.
func (m *fsWorkspaceManager) Open(ctx context.Context, id string) (Workspace, error) {
	if err := ctx.Err(); err != nil {
		return Workspace{}, err
	}
	if err := validateID(id); err != nil {
		return Workspace{}, err
	}

	dir := filepath.Join(m.baseDir, id)
	created, err := readMarker(dir)
	if err != nil {
		return Workspace{}, fmt.Errorf("open workspace %q: %w", id, err)
	}
	return Workspace{ID: id, Dir: dir, CreatedAt: created}, nil
}

// List returns managed workspaces ordered by creation time.
func (m *fsWorkspaceManager) List(ctx context.Context) ([]Workspace, error) {
	entries, err := os.ReadDir(m.baseDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read workspace base directory: %w", err)
	}

	var out []Workspace
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(m.baseDir, entry.Name())
		created, err := readMarker(dir)
		if err != nil {
			continue
		}
		out = append(out, Workspace{ID: entry.Name(), Dir: dir, CreatedAt: created})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Cleanup removes managed workspaces whose marker is older than olderThan.
// Unmarked directories are counted as skipped and left alone.
func (m *fsWorkspaceManager) Cleanup(ctx context.Context, olderThan time.Duration) (CleanupReport, error) {
	if err := ctx.Err(); err != nil {
		return CleanupReport{}, err
	}
	if olderThan <= 0 {
		return CleanupReport{}, fmt.Errorf("olderThan must be positive")
	}

	entries, err := os.ReadDir(m.baseDir)
	if os.IsNotExist(err) {
		return CleanupReport{}, nil
	}
	if err != nil {
		return CleanupReport{}, fmt.Errorf("read workspace base directory: %w", err)
	}

	cutoff := m.now().Add(-olderThan)
	var report CleanupReport
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(m.baseDir, entry.Name())
		created, err := readMarker(dir)
		if err != nil {
			report.Skipped++
			continue
		}
		if created.After(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return report, fmt.Errorf("remove workspace %q: %w", entry.Name(), err)
		}
		report.DeletedDirs++
	}
	return report, nil
}

func readMarker(dir string) (time.Time, error) {
	data, err := os.ReadFile(filepath.Join(dir, markerFile))
	if err != nil {
		return time.Time{}, fmt.Errorf("not a managed workspace: %w", err)
	}
	created, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data)))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid workspace marker: %w", err)
	}
	return created, nil
}

func validateID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return fmt.Errorf("workspace name is empty")
	}
	if trimmed == "." || trimmed == ".." {
		return fmt.Errorf("workspace name %q is invalid", id)
	}
	if strings.ContainsAny(trimmed, `/\`) {
		return fmt.Errorf("workspace name %q must not contain path separators", id)
	}
	if filepath.Clean(trimmed) != trimmed {
		return fmt.Errorf("workspace name %q is invalid", id)
	}
	return nil
}
