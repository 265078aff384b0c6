package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFSWorkspaceManagerCreateAndOpen(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "workspaces")
	mgr, err := NewFSManager(baseDir)
	if err != nil {
		t.Fatalf("NewFSManager() error = %v", err)
	}

	ws, err := mgr.Create(context.Background(), "md")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if filepath.Dir(ws.Dir) != baseDir {
		t.Fatalf("Create() dir = %q, want under %q", ws.Dir, baseDir)
	}
	if !strings.HasPrefix(ws.ID, "md-") {
		t.Fatalf("Create() id = %q, want md- prefix", ws.ID)
	}

	info, err := os.Stat(ws.Dir)
	if err != nil {
		t.Fatalf("Stat(workspace) error = %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("workspace path is not a directory")
	}

	opened, err := mgr.Open(context.Background(), ws.ID)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !opened.CreatedAt.Equal(ws.CreatedAt) || opened.Dir != ws.Dir {
		t.Fatalf("Open() workspace = %+v, want %+v", opened, ws)
	}

	second, err := mgr.Create(context.Background(), "md")
	if err != nil {
		t.Fatalf("Create(second) error = %v", err)
	}
	if second.ID == ws.ID {
		t.Fatalf("Create() returned duplicate id %q", ws.ID)
	}
}

func TestFSWorkspaceManagerRejectsBadNames(t *testing.T) {
	mgr, err := NewFSManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSManager() error = %v", err)
	}
	for _, name := range []string{"", " ", ".", "..", "a/b", `a\b`} {
		if _, err := mgr.Create(context.Background(), name); err == nil {
			t.Errorf("Create(%q) expected error", name)
		}
	}
	if _, err := NewFSManager("  "); err == nil {
		t.Fatalf("NewFSManager(blank) expected error")
	}
}

func TestFSWorkspaceManagerOpenUnmanaged(t *testing.T) {
	baseDir := t.TempDir()
	mgr, err := NewFSManager(baseDir)
	if err != nil {
		t.Fatalf("NewFSManager() error = %v", err)
	}
	if err := os.Mkdir(filepath.Join(baseDir, "user-data"), 0o755); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}
	if _, err := mgr.Open(context.Background(), "user-data"); err == nil {
		t.Fatalf("Open(unmanaged) expected error")
	}
}

func TestFSWorkspaceManagerCleanup(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "workspaces")
	mgr, err := NewFSManager(baseDir)
	if err != nil {
		t.Fatalf("NewFSManager() error = %v", err)
	}

	now := time.Now()
	mgr.now = func() time.Time { return now.Add(-48 * time.Hour) }
	oldWS, err := mgr.Create(context.Background(), "old")
	if err != nil {
		t.Fatalf("Create(old) error = %v", err)
	}
	mgr.now = func() time.Time { return now }
	newWS, err := mgr.Create(context.Background(), "new")
	if err != nil {
		t.Fatalf("Create(new) error = %v", err)
	}

	userDir := filepath.Join(baseDir, "keep-me")
	if err := os.Mkdir(userDir, 0o755); err != nil {
		t.Fatalf("Mkdir(user dir) error = %v", err)
	}

	list, err := mgr.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != oldWS.ID || list[1].ID != newWS.ID {
		t.Fatalf("List() = %+v, want [old new]", list)
	}

	report, err := mgr.Cleanup(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if report.DeletedDirs != 1 || report.Skipped != 1 {
		t.Fatalf("Cleanup() report = %+v, want 1 deleted 1 skipped", report)
	}

	if _, err := os.Stat(oldWS.Dir); !os.IsNotExist(err) {
		t.Fatalf("old workspace should be deleted, err = %v", err)
	}
	if _, err := os.Stat(newWS.Dir); err != nil {
		t.Fatalf("new workspace should still exist, err = %v", err)
	}
	if _, err := os.Stat(userDir); err != nil {
		t.Fatalf("unmanaged directory should still exist, err = %v", err)
	}

	if _, err := mgr.Cleanup(context.Background(), 0); err == nil {
		t.Fatalf("Cleanup(0) expected error")
	}
}
