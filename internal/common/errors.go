// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Identity and ingestion errors.
	ErrInvalidIdentity = errors.New("invalid identity")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrEventNotFound   = errors.New("event not found")
	ErrNotOwner        = errors.New("event belongs to another user")
	ErrRuleNotFound    = errors.New("rule not found")

	// Pipeline errors.
	ErrQueueFull   = errors.New("intake queue full")
	ErrRateLimited = errors.New("rate limit exceeded")

	// Classifier errors. Both are recovered locally with a
	// deterministic fallback, never surfaced to the user.
	ErrClassifierTimeout     = errors.New("classifier timeout")
	ErrClassifierUnavailable = errors.New("classifier unavailable")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

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
