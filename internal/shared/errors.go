package shared

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Domain packages wrap one of these so transports can map them
// without knowing every sentinel.
var (
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("conflict")
	// ErrInvalidTransition indicates a state machine or monetary invariant violation.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrExternalService indicates a collaborator failure. Never fatal to a committed mutation.
	ErrExternalService = errors.New("external service error")
	// ErrUnauthorized indicates missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the caller may not access the resource.
	ErrForbidden = errors.New("forbidden")
)

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError aggregates field errors. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError builds a ValidationError for one field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Is reports ErrValidation as the kind.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Warning is a non-fatal problem reported next to a successful result.
type Warning struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ExternalWarning converts a collaborator failure into a warning.
func ExternalWarning(kind string, err error) Warning {
	if err == nil {
		return Warning{Kind: kind}
	}
	return Warning{Kind: kind, Message: err.Error()}
}

// ErrorKind returns the kind sentinel wrapped by err, or nil.
func ErrorKind(err error) error {
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrInvalidTransition, ErrExternalService, ErrUnauthorized, ErrForbidden} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
