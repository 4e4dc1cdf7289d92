package models

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the core. The API boundary maps these to HTTP
// statuses; consumers use Transient to decide whether a message should be
// redelivered by the broker.
var (
	// ErrValidation marks bad input: empty or hidden names, zero sizes,
	// unsupported types, part numbers out of range.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a missing entity.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks an operation against an entity in the wrong state,
	// e.g. terminating a terminal job or retrying a non-failed task.
	ErrConflict = errors.New("conflict")

	// ErrDuplicate marks a unique-index violation on (bucket, hash). It is
	// always recovered by the winner query and never escapes a worker.
	ErrDuplicate = errors.New("duplicate content")

	// ErrTransient marks failures that should trigger broker redelivery:
	// storage or GX 5xx, network I/O, interrupted work.
	ErrTransient = errors.New("transient failure")
)

// Transientf wraps err as a transient failure so the consumer leaves the
// message for redelivery instead of acking it.
func Transientf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrTransient)
}

// IsTransient reports whether err carries the transient kind.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
