package ledgerdb

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Configuration errors
	ErrMissingDSN    = errors.New("database connection string is required")
	ErrInvalidDriver = errors.New("invalid database driver")

	// Connection errors
	ErrDatabaseClosed   = errors.New("database connection is closed")
	ErrConnectionFailed = errors.New("failed to connect to database")

	// Transaction errors
	ErrTransactionClosed = errors.New("transaction is closed")

	// Data errors
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateEvent = errors.New("event already stored")

	// Constraint errors
	ErrUniqueViolation     = errors.New("unique constraint violation")
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")
	ErrCheckViolation      = errors.New("check constraint violation")
)

// ErrorType categorises store errors.
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeConfiguration
	ErrorTypeConnection
	ErrorTypeTransaction
	ErrorTypeData
	ErrorTypeConstraint
	ErrorTypeQuery
	ErrorTypeSchema
)

// StoreError carries the operation, a message, the cause, and whether a
// retry might succeed. The engine's retry controller classifies failures
// through IsRetryable.
type StoreError struct {
	Type      ErrorType
	Operation string
	Message   string
	Cause     error
	Code      string
	Retryable bool
}

func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Operation, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel errors through the error code so callers can use
// errors.Is across the repository boundary.
func (e *StoreError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Type == ErrorTypeData && e.Code == "NOT_FOUND"
	case ErrUniqueViolation:
		return e.Type == ErrorTypeConstraint && e.Code == "UNIQUE_VIOLATION"
	case ErrForeignKeyViolation:
		return e.Type == ErrorTypeConstraint && e.Code == "FOREIGN_KEY_VIOLATION"
	case ErrTransactionClosed:
		return e.Type == ErrorTypeTransaction && e.Code == "TRANSACTION_CLOSED"
	case ErrConnectionFailed:
		return e.Type == ErrorTypeConnection
	}
	return false
}

func (e *StoreError) WithCode(code string) *StoreError {
	e.Code = code
	return e
}

// NewStoreError creates a StoreError, deriving retryability from the type
// and cause.
func NewStoreError(errorType ErrorType, operation, message string, cause error) *StoreError {
	return &StoreError{
		Type:      errorType,
		Operation: operation,
		Message:   message,
		Cause:     cause,
		Retryable: deriveRetryable(errorType, cause),
	}
}

func NewConfigurationError(operation, message string, cause error) *StoreError {
	return NewStoreError(ErrorTypeConfiguration, operation, message, cause)
}

func NewConnectionError(operation, message string, cause error) *StoreError {
	return NewStoreError(ErrorTypeConnection, operation, message, cause)
}

func NewTransactionError(operation, message string, cause error) *StoreError {
	return NewStoreError(ErrorTypeTransaction, operation, message, cause)
}

func NewDataError(operation, message string, cause error) *StoreError {
	return NewStoreError(ErrorTypeData, operation, message, cause)
}

func NewConstraintError(operation, message string, cause error) *StoreError {
	return NewStoreError(ErrorTypeConstraint, operation, message, cause)
}

func NewQueryError(operation, message string, cause error) *StoreError {
	return NewStoreError(ErrorTypeQuery, operation, message, cause)
}

func NewSchemaError(operation, message string, cause error) *StoreError {
	return NewStoreError(ErrorTypeSchema, operation, message, cause)
}

func deriveRetryable(errorType ErrorType, cause error) bool {
	switch errorType {
	case ErrorTypeConnection:
		return true
	case ErrorTypeTransaction, ErrorTypeQuery:
		if cause == nil {
			return false
		}
		msg := strings.ToLower(cause.Error())
		return strings.Contains(msg, "deadlock") ||
			strings.Contains(msg, "serialize") ||
			strings.Contains(msg, "timeout") ||
			strings.Contains(msg, "connection") ||
			strings.Contains(msg, "temporary")
	default:
		return false
	}
}

// IsRetryable reports whether the error is worth retrying. StoreErrors carry
// an explicit flag; anything else is matched against common transient
// failure messages.
func IsRetryable(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Retryable
	}

	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"deadlock",
		"could not serialize",
		"timeout",
		"temporary failure",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether the error is a not-found data error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUniqueViolation reports whether the error is a unique-key violation.
// The engine treats a unique violation on first-credit balance creation as
// transient: a concurrent peer created the row, and a retry will credit it.
func IsUniqueViolation(err error) bool {
	return errors.Is(err, ErrUniqueViolation)
}
