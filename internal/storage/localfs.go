package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Filesystems on which SQLite locking is unreliable.
var remoteFS = map[string]bool{
	"afpfs":  true,
	"cifs":   true,
	"nfs":    true,
	"smbfs":  true,
	"smb2":   true,
	"webdav": true,
}

// requireLocal rejects a database path that lives on a network mount. The
// check inspects the nearest existing ancestor since the file may not exist yet.
func requireLocal(path string, detect func(string) (string, error)) error {
	dir, err := existingAncestor(path)
	if err != nil {
		return fmt.Errorf("resolve ledger path %q: %w", path, err)
	}

	kind, err := detect(dir)
	if err != nil {
		// Unknown platforms cannot tell; let SQLite try.
		return nil
	}
	if isRemote(kind) {
		return fmt.Errorf("ledger path %q is on network filesystem %q; set state.path to a file on local disk", path, kind)
	}
	return nil
}

func existingAncestor(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for dir := abs; ; {
		_, err := os.Stat(dir)
		switch {
		case err == nil:
			return dir, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no existing parent for %q", abs)
		}
		dir = parent
	}
}

func isRemote(kind string) bool {
	return remoteFS[strings.ToLower(strings.TrimSpace(kind))]
}
