// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors. Every failure surfaced by the tagging core
// wraps exactly one of these so callers can branch with errors.Is.
var (
	// ErrInvalidInput marks requests rejected before any state changed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTenantIsolation marks an attempt to touch data owned by another tenant.
	ErrTenantIsolation = errors.New("tenant isolation violation")
	// ErrNotFound marks a reference absent from the caller's scope.
	ErrNotFound = errors.New("not found")
	// ErrInvalidResource marks an unrecognized resource type.
	ErrInvalidResource = errors.New("invalid resource")
	// ErrConflict marks a write that collides with an existing active record.
	ErrConflict = errors.New("conflict")

	// ErrComputationFailed marks an analytics view whose computation failed.
	ErrComputationFailed = errors.New("computation failed")
	// ErrBatchFailed marks a bulk operation in which every item failed.
	ErrBatchFailed = errors.New("every batch item failed")

	// ErrVersionConflict marks a rule table write that lost a concurrent update.
	ErrVersionConflict = errors.New("rule table version conflict")

	// ErrInvalidConfig marks an unusable logging or application setting.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// InvalidInputf wraps ErrInvalidInput with a formatted reason.
func InvalidInputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// ErrorCode returns a stable machine-readable code for an error.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrTenantIsolation):
		return "tenant_isolation_violation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidResource):
		return "invalid_resource"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrComputationFailed):
		return "computation_failed"
	case errors.Is(err, ErrBatchFailed):
		return "batch_failed"
	case errors.Is(err, ErrVersionConflict):
		return "version_conflict"
	default:
		return "internal"
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrVersionConflict) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
