package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MapError maps external errors onto the engine taxonomy. Context
// cancellation propagates as-is; deadline expiry is a backend failure like
// any other timeout.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timeout: %w", ErrBackend)
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "not found"), strings.Contains(errStr, "does not exist"):
		return fmt.Errorf("resource not found: %w", ErrNotFound)

	case strings.Contains(errStr, "rate limit"), strings.Contains(errStr, "quota"),
		strings.Contains(errStr, "too many requests"):
		return fmt.Errorf("rate limited: %w", ErrBackend)

	case strings.Contains(errStr, "invalid input"), strings.Contains(errStr, "invalid request"),
		strings.Contains(errStr, "bad request"):
		return fmt.Errorf("invalid request: %w", ErrValidation)

	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return fmt.Errorf("request timeout: %w", ErrBackend)

	case strings.Contains(errStr, "network"), strings.Contains(errStr, "connection"),
		strings.Contains(errStr, "unreachable"):
		return fmt.Errorf("network error: %w", ErrBackend)

	default:
		return fmt.Errorf("backend failure: %w", ErrBackend)
	}
}

// IsBackendRejection classifies provider errors that indicate the request
// itself was rejected (malformed tool schema, unsupported capability)
// rather than a transport failure. These are retried once with tools
// unbound before falling back.
func IsBackendRejection(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "invalid request") ||
		strings.Contains(errStr, "bad request") ||
		strings.Contains(errStr, "unsupported") ||
		strings.Contains(errStr, "tool") && strings.Contains(errStr, "schema") ||
		strings.Contains(errStr, "function calling is not")
}

// Wrap wraps an error with context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// NotFound wraps a message as not found.
func NotFound(message string) error {
	return fmt.Errorf("%s: %w", message, ErrNotFound)
}

// InvalidInput wraps a message as invalid input.
func InvalidInput(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidInput)
}

// Backend wraps a message as a backend failure.
func Backend(message string) error {
	return fmt.Errorf("%s: %w", message, ErrBackend)
}

// Capacity wraps a message as a capacity failure.
func Capacity(message string) error {
	return fmt.Errorf("%s: %w", message, ErrCapacity)
}

// IsCategory checks if an error belongs to a specific category.
func IsCategory(err error, category error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, category)
}

// Category returns the taxonomy name for an error.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrBackend):
		return "BackendError"
	case errors.Is(err, ErrCapacity):
		return "CapacityError"
	case errors.Is(err, ErrIsolation):
		return "IsolationError"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrInvalidInput):
		return "InvalidInput"
	default:
		return "Unknown"
	}
}
