// Package apperr defines the error taxonomy shared by the analysis
// orchestration packages. Callers classify errors with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrIntegrationUnavailable means no analyzer backend can serve the request.
	ErrIntegrationUnavailable = errors.New("integration unavailable")
	// ErrValidation rejects malformed input or configuration.
	ErrValidation = errors.New("validation error")
	// ErrPersistence wraps failures returned by storage gateways.
	ErrPersistence = errors.New("persistence failure")
	// ErrPartialPublish reports event publication failures after a successful write.
	ErrPartialPublish = errors.New("partial publish failure")
	// ErrAlreadyRunning is returned when the same work is already in progress.
	ErrAlreadyRunning = errors.New("already running")
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")
)

// Unavailable builds an ErrIntegrationUnavailable with a user facing message.
func Unavailable(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrIntegrationUnavailable, fmt.Sprintf(format, args...))
}

// Validation builds an ErrValidation with a message.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// AlreadyRunning builds an ErrAlreadyRunning with a message.
func AlreadyRunning(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrAlreadyRunning, fmt.Sprintf(format, args...))
}

// NotFound builds an ErrNotFound for the given entity.
func NotFound(entity string, id interface{}) error {
	return fmt.Errorf("%w: %s '%v'", ErrNotFound, entity, id)
}

// Persistence marks err as a gateway failure. Errors that are already
// classified as not found pass through untouched.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}

// Message returns the part of err meant for an interactive user.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrIntegrationUnavailable):
		return "no analyzer services deployed or reachable: " + err.Error()
	default:
		return err.Error()
	}
}
