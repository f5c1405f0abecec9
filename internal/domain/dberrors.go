package domain

import (
	"errors"
	"fmt"
)

// DatabaseErrorKind is the closed taxonomy every persistence-layer failure is
// mapped into. Upstream layers branch on Kind/Retryable without knowing the
// storage engine.
type DatabaseErrorKind string

const (
	KindConnectionFailed  DatabaseErrorKind = "ConnectionFailed"
	KindConnectionTimeout DatabaseErrorKind = "ConnectionTimeout"
	KindQueryFailed       DatabaseErrorKind = "QueryFailed"
	KindValidationFailed  DatabaseErrorKind = "ValidationFailed"
	KindDuplicateKey      DatabaseErrorKind = "DuplicateKey"
	KindUnknown           DatabaseErrorKind = "Unknown"
)

// DatabaseError is the classified form of a raw persistence failure. It is
// created once per failed store call and propagated to the caller; it is never
// persisted.
type DatabaseError struct {
	Kind      DatabaseErrorKind
	Message   string
	Retryable bool
	Cause     error
}

func (e *DatabaseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *DatabaseError) Unwrap() error {
	return e.Cause
}

// NewDatabaseError creates a classified database error.
func NewDatabaseError(kind DatabaseErrorKind, message string, retryable bool, cause error) *DatabaseError {
	return &DatabaseError{Kind: kind, Message: message, Retryable: retryable, Cause: cause}
}

// IsRetryableError reports whether err carries a retryable DatabaseError.
func IsRetryableError(err error) bool {
	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		return dbErr.Retryable
	}
	return false
}
