package market

import (
	"errors"
	"fmt"
)

var (
	ErrOrderRejected    = errors.New("order rejected")
	ErrPositionNotFound = errors.New("position not found")
	ErrAccountNotFound  = errors.New("account not found")
	ErrValidation       = errors.New("validation failed")
	ErrEmptyHistory     = errors.New("no bars in history")
)

// ValidationError names the first field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s is required", e.Field)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// RejectedError carries the upstream reason for a refused order.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return ErrOrderRejected.Error()
	}
	return fmt.Sprintf("%s: %s", ErrOrderRejected.Error(), e.Message)
}

func (e *RejectedError) Unwrap() error { return ErrOrderRejected }

// Rejected wraps an upstream failure as an order rejection.
func Rejected(cause error) error {
	if cause == nil {
		return ErrOrderRejected
	}
	return &RejectedError{Message: cause.Error()}
}
