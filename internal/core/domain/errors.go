package domain

import "errors"

// Sentinel error kinds the core distinguishes, per the engine driver and
// registry contracts. Adapters wrap transport-specific errors with these via
// fmt.Errorf("...: %w", err) so callers can use errors.Is.
var (
	// ErrNotFound is returned by engine calls for a container that no longer
	// exists (registry lookups report absence as a nil result instead). It is a valid terminal state for Remove-style
	// operations, never a failure.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyAttached is returned by AttachNetwork when the container is
	// already a member of the requested network (HTTP 403 from the engine).
	// It is a valid terminal state, never a failure.
	ErrAlreadyAttached = errors.New("already attached")

	// ErrConfig marks a fatal configuration error discovered at startup.
	ErrConfig = errors.New("configuration error")
)
