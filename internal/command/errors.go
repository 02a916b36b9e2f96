package command

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyPayload  = errors.New("empty payload")
	ErrInvalidFormat = errors.New("invalid format")
	ErrInvalidRange  = errors.New("invalid range")
	ErrMissingTarget = errors.New("missing target")

	ErrNotAuthorized  = errors.New("sender is not a group administrator")
	ErrNoParticipants = errors.New("no participants resolved")
	ErrDelivery       = errors.New("delivery failed")
	ErrRemoval        = errors.New("participant removal failed")
)

// ValidationError reports malformed user input. Reason is one of the
// ErrEmptyPayload, ErrInvalidFormat, ErrInvalidRange, ErrMissingTarget
// sentinels.
type ValidationError struct {
	Kind   Kind
	Reason error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %v: %s", e.Kind, e.Reason, e.Detail)
}

func (e *ValidationError) Unwrap() error { return e.Reason }

func invalid(kind Kind, reason error, detail string) *ValidationError {
	return &ValidationError{Kind: kind, Reason: reason, Detail: detail}
}
