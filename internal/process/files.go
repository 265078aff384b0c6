package process

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattjoyce/mdrun/internal/molecule"
)

// copyFile copies src to dst, replacing dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

// stageInput copies the system file tagged with one of tags to dst.
func stageInput(sys *molecule.System, dst string, tags ...string) error {
	for _, tag := range tags {
		if src, ok := sys.FileWithExtension(tag); ok {
			return copyFile(src, dst)
		}
	}
	return fmt.Errorf("system %q has no %v input file", sys.Name, tags)
}

func writeConfig(path string, lines []string) error {
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
