package parameters

import (
	"net/url"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
)

// Interactive reports whether a person is likely watching the output: a
// Jupyter kernel, or a terminal on stdout.
func Interactive() bool {
	if _, ok := os.LookupEnv("JPY_PARENT_PID"); ok {
		return true
	}
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// FileLink is a clickable reference to a local file.
type FileLink struct {
	Path string
}

func NewFileLink(path string) FileLink {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return FileLink{Path: path}
}

// String renders the link as a file:// URL.
func (l FileLink) String() string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(l.Path)}
	return u.String()
}
