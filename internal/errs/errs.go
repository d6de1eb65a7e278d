// Package errs defines the error kinds shared across mailsweep commands.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks caller mistakes: unknown actions, empty
	// senders, malformed rule references, bad flags.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStorage marks a failed write of a state file. Reads never produce
	// it; a missing or corrupt file degrades to the empty state.
	ErrStorage = errors.New("storage failure")

	// ErrRemote marks a non-retryable failure from the mail service.
	ErrRemote = errors.New("remote failure")

	// ErrCancelled marks cooperative cancellation observed between
	// suspension points.
	ErrCancelled = errors.New("cancelled")
)

// InvalidArgumentf builds an ErrInvalidArgument with caller context.
func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidArgument)
}

// Storagef builds an ErrStorage wrapping the underlying I/O error.
func Storagef(err error, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %w", fmt.Sprintf(format, args...), ErrStorage, err)
}
