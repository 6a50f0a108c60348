package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is against these to classify a failure.
var (
	ErrValidation           = errors.New("validation failed")
	ErrAvailabilityConflict = errors.New("date range no longer available")
	ErrPaymentProvider      = errors.New("payment provider error")
	ErrPaymentPending       = errors.New("payment not yet resolved")
	ErrInvariantViolation   = errors.New("invariant violation")
	ErrNotFound             = errors.New("not found")
)

// UserError carries a human readable reason next to its kind
type UserError struct {
	Kind   error
	Field  string
	Reason string
	Err    error
}

func (e *UserError) Error() string {
	msg := e.Kind.Error()
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UserError) Is(target error) bool {
	return target == e.Kind
}

func (e *UserError) Unwrap() error {
	return e.Err
}

func NewValidationError(field, reason string) *UserError {
	return &UserError{Kind: ErrValidation, Field: field, Reason: reason}
}

func NewConflictError(reason string) *UserError {
	return &UserError{Kind: ErrAvailabilityConflict, Reason: reason}
}

func NewProviderError(reason string, cause error) *UserError {
	return &UserError{Kind: ErrPaymentProvider, Reason: reason, Err: cause}
}

func NewPendingError(reason string) *UserError {
	return &UserError{Kind: ErrPaymentPending, Reason: reason}
}

func NewNotFoundError(what string, id any) *UserError {
	return &UserError{Kind: ErrNotFound, Reason: fmt.Sprintf("%s %v not found", what, id)}
}

// UserMessage returns the reason to show a customer. Internal errors get a generic text.
func UserMessage(err error) string {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Reason
	}
	return "Something went wrong, please try again later"
}
