package errors

import (
	"errors"
)

// Sentinel errors for the engine's failure taxonomy.
var (
	// ErrValidation - malformed or miscoercible tool arguments. Recovered
	// locally by coercion or best-effort defaults; never shown to the user.
	ErrValidation = errors.New("validation error")

	// ErrBackend - model, tool, or embedding service failure (timeouts
	// included). Retried per the router's fallback policy; if exhausted,
	// rendered as ordinary assistant text.
	ErrBackend = errors.New("backend error")

	// ErrCapacity - iteration or context-size limit exceeded. Ends the turn
	// with an explanatory assistant message; persisted history stays intact.
	ErrCapacity = errors.New("capacity exceeded")

	// ErrIsolation - cross-thread retrieval leakage. Must never occur; any
	// occurrence is a defect and fails loudly.
	ErrIsolation = errors.New("isolation violation")

	// ErrNotFound - a named resource (tool, thread, backend) does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput - a request that cannot be processed as given.
	ErrInvalidInput = errors.New("invalid input")
)
