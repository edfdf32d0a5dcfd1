// Package apperr defines the error categories shared by the CLI and the
// pipeline, and how they map to process exit codes.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrUsage marks conflicting or malformed command-line arguments.
	ErrUsage = errors.New("usage error")
	// ErrValidation marks input that parsed but is not acceptable.
	ErrValidation = errors.New("validation error")
	// ErrConfig marks missing or broken configuration.
	ErrConfig = errors.New("configuration error")
	// ErrRuntime marks I/O, network and encoding failures.
	ErrRuntime = errors.New("runtime error")
	// ErrCredentials marks a missing or unusable cloud credential chain.
	ErrCredentials = errors.New("missing credentials")
)

// Exit codes returned by the CLI.
const (
	ExitOK          = 0
	ExitUsage       = 2
	ExitValidation  = 3
	ExitRuntime     = 4
	ExitCredentials = 5
	ExitUnexpected  = 99
)

// Wrap tags err with a category while keeping the original chain intact.
func Wrap(kind error, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// Errorf builds a categorized error from a format string.
func Errorf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// ExitCode maps an error to the CLI exit code.
//
// Configuration errors share exit code 3 with validation errors.
// Uncategorized errors are treated as unexpected.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrUsage):
		return ExitUsage
	case errors.Is(err, ErrCredentials):
		return ExitCredentials
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfig):
		return ExitValidation
	case errors.Is(err, ErrRuntime):
		return ExitRuntime
	default:
		return ExitUnexpected
	}
}
