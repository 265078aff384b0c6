// Package errdefs defines the error taxonomy shared by the resolver, the MD
// dispatcher and the parameterisation runner.
package errdefs

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Match with errors.Is.
var (
	// ErrInvalidArgument reports a documented parameter with the wrong type or shape.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnsupportedFormat reports a system file format with no registered MD package.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrNoExecutable reports a known MD package with no resolvable executable.
	ErrNoExecutable = errors.New("no executable found")
)

// InvalidArgument returns an error wrapping ErrInvalidArgument for param.
func InvalidArgument(param, format string, args ...any) error {
	return fmt.Errorf("%w: %q %s", ErrInvalidArgument, param, fmt.Sprintf(format, args...))
}

// UnsupportedFormatError carries the fileformat value that failed lookup.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("cannot find an MD package that supports format: %q", e.Format)
}

func (e *UnsupportedFormatError) Is(target error) bool { return target == ErrUnsupportedFormat }

// NoExecutableError carries the package and the candidates that were tried.
type NoExecutableError struct {
	Package    string
	Candidates []string
}

func (e *NoExecutableError) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("no executable found for package: %q", e.Package)
	}
	return fmt.Sprintf("no executable found for package: %q (tried %s)", e.Package, strings.Join(e.Candidates, ", "))
}

func (e *NoExecutableError) Is(target error) bool { return target == ErrNoExecutable }
