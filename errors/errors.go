package errors

import (
	"errors"
	"fmt"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyBank   = fmt.Errorf("no questions have been found")

	ErrValidation    = fmt.Errorf("validation error")
	ErrCapacity      = fmt.Errorf("room is full")
	ErrConflict      = fmt.Errorf("conflict")
	ErrNotFound      = fmt.Errorf("not found")
	ErrAuthorization = fmt.Errorf("not authorized")
	ErrState         = fmt.Errorf("invalid state")
	ErrStaleState    = fmt.Errorf("stale state")

	// ErrStoreUnavailable marks store-level failures (closed database, I/O).
	// They are retryable, but only idempotent writes are retried automatically.
	ErrStoreUnavailable = fmt.Errorf("store unavailable")

	ErrAlreadyAnswering = fmt.Errorf("%w: AlreadyAnswering", ErrConflict)
	ErrInvalidPath      = fmt.Errorf("%w: invalid store path", ErrValidation)
	ErrUnsupportedValue = fmt.Errorf("%w: unsupported store value", ErrValidation)
)

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Join(errs ...error) error {
	return errors.Join(errs...)
}

// IsRetryable reports whether the caller may reissue the operation.
// Losing the buzz race is final: the question is held by someone else.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrStoreUnavailable):
		return true
	case errors.Is(err, ErrAlreadyAnswering):
		return false
	default:
		return errors.Is(err, ErrConflict)
	}
}
