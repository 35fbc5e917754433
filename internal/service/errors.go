package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is matched by every *ValidationError.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound means no active document has the requested ID.
	ErrNotFound = errors.New("document not found")
	// ErrReconciliationRequired means metadata and object store disagree and
	// an operator has to resolve the divergence.
	ErrReconciliationRequired = errors.New("reconciliation required")
	// ErrStorageUnavailable means the backend a record points at is not configured.
	ErrStorageUnavailable = errors.New("storage backend unavailable")
)

// Validation error codes.
const (
	CodeRequired        = "required"
	CodeInvalid         = "invalid"
	CodeTooLarge        = "too_large"
	CodeEmpty           = "empty"
	CodeUnsupportedType = "unsupported_type"
	CodeOutOfRange      = "out_of_range"
)

// ValidationError describes which input field was rejected and why.
type ValidationError struct {
	Field   string
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalid(field, code, message string) error {
	return &ValidationError{Field: field, Code: code, Message: message}
}
