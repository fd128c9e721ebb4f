package shared

import (
	"errors"
	"fmt"
	"strings"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches domain errors by code so wrapped copies still compare equal
func (e *DomainError) Is(target error) bool {
	var de *DomainError
	if !errors.As(target, &de) {
		return false
	}
	return de.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound        = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists   = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput    = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrInvalidArgument = NewDomainError("INVALID_ARGUMENT", "Required argument is missing or empty")
	ErrInvalidState    = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
)

// Null-entity errors raised when a required aggregate or one of its parts is absent
var (
	ErrOrderIsNull         = NewDomainError("ORDER_IS_NULL", "Order must not be null")
	ErrLinesAreNull        = NewDomainError("LINES_ARE_NULL", "Order lines must not be null")
	ErrLineIsNull          = NewDomainError("LINE_IS_NULL", "Order line must not be null")
	ErrCancelRequestIsNull = NewDomainError("CANCEL_REQUEST_IS_NULL", "Cancellation request must not be null")
	ErrConsignmentIsNull   = NewDomainError("CONSIGNMENT_IS_NULL", "Consignment must not be null")
	ErrReturnIsNull        = NewDomainError("RETURN_IS_NULL", "Return must not be null")
)

// ---------------------------------------------------------------------------
// RepositoryError
// ---------------------------------------------------------------------------

// RepositoryError is raised by the persistence layer for any storage failure.
// Service layers propagate it unchanged.
type RepositoryError struct {
	Op     string
	Entity string
	Err    error
}

// Error implements the error interface
func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying storage error
func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// NewRepositoryError creates a new repository error
func NewRepositoryError(op, entity string, err error) *RepositoryError {
	return &RepositoryError{Op: op, Entity: entity, Err: err}
}

// IsRepositoryError reports whether err carries a RepositoryError
func IsRepositoryError(err error) bool {
	var re *RepositoryError
	return errors.As(err, &re)
}

// ---------------------------------------------------------------------------
// ValidationError
// ---------------------------------------------------------------------------

// FieldError describes a single invalid field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is raised when an entity fails validation
type ValidationError struct {
	Entity string       `json:"entity"`
	Fields []FieldError `json:"fields"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("validation failed for %s", e.Entity)
	}
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Entity, strings.Join(msgs, "; "))
}

// IsValidationError reports whether err carries a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// EntityValidator validates domain entities before they are persisted
type EntityValidator interface {
	// ValidateAndThrow returns a *ValidationError when entity is invalid
	ValidateAndThrow(entity any) error
}
