package shared

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Sync error taxonomy. The executor classifies every adapter and
	// repository failure into one of these before deciding retry vs abort.
	ErrAuthFailed   = fmt.Errorf("authentication failed")
	ErrRateLimited  = fmt.Errorf("rate limited")
	ErrTransient    = fmt.Errorf("transient failure")
	ErrNotPermitted = fmt.Errorf("operation not permitted")
	ErrConflict     = fmt.Errorf("conflict")
	ErrNotFound     = fmt.Errorf("not found")
	ErrCancelled    = fmt.Errorf("cancelled")
	ErrStopped      = fmt.Errorf("emergency stop active")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
)

// Retryable reports whether an error is worth retrying with backoff.
// Rate limiting and transient network failures retry; authentication,
// permission, conflict, and cancellation errors never do.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}

// Fatal reports whether an error should abort the whole job rather than
// fail a single change. Auth revocation, the emergency stop, cancellation,
// and rate limiting that survived the retry budget are job-fatal. Fatal is
// only consulted on errors that already passed through the retry policy,
// so a rate-limit error reaching it means the budget is exhausted.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrStopped) ||
		errors.Is(err, ErrCancelled) || errors.Is(err, ErrRateLimited) ||
		errors.Is(err, context.Canceled)
}
