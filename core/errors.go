package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Catalog errors
	ErrCatalogConflict = errors.New("action already registered")
	ErrActionNotFound  = errors.New("action not found")

	// Plan errors
	ErrPlanParse  = errors.New("plan parse failure")
	ErrResolution = errors.New("plan resolution failure")

	// Persistence errors
	ErrIntegrity = errors.New("blob integrity check failed")
	ErrMigration = errors.New("blob migration failed")
	ErrWrongMode = errors.New("wrong persistence mode for this manager")

	// Registry errors
	ErrAlreadyRegistered = errors.New("already registered")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// Operation errors
	ErrTimeout         = errors.New("operation timeout")
	ErrContextCanceled = errors.New("context canceled")
)

// EngineError provides structured error information with context.
// It implements the error interface and supports error wrapping.
type EngineError struct {
	Op      string // Operation that failed (e.g., "catalog.Register")
	Kind    string // Error kind (e.g., "catalog", "blob", "plan")
	ID      string // Optional ID of the entity involved
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *EngineError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError creates a new EngineError
func NewEngineError(op, kind string, err error) *EngineError {
	return &EngineError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// IsProtocolError reports whether an error means the persisted state cannot be
// trusted. Protocol errors abort the turn and must reach the caller unchanged.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrIntegrity) ||
		errors.Is(err, ErrMigration)
}

// IsProgrammerError reports whether an error indicates API misuse rather than
// bad input. These should surface during development, not be retried.
func IsProgrammerError(err error) bool {
	return errors.Is(err, ErrCatalogConflict) ||
		errors.Is(err, ErrWrongMode) ||
		errors.Is(err, ErrAlreadyRegistered)
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}
