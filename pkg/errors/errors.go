package errors

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	// ConfigError covers malformed or missing topology and wallet files.
	// Fatal to startup, never retried.
	ConfigError ErrorType = "CONFIG_ERROR"
	// ValidationError covers malformed request payloads rejected at the
	// service boundary.
	ValidationError ErrorType = "VALIDATION_ERROR"
	// EnrollmentError means the certificate authority rejected the
	// enrollment credentials. Not auto-retried: enrollment secrets are
	// usually one-time, blind retry risks exhausting them.
	EnrollmentError ErrorType = "ENROLLMENT_ERROR"
	// ConnectionError covers network and TLS failures. Retryable with
	// backoff at the caller's discretion.
	ConnectionError ErrorType = "CONNECTION_ERROR"
	// TimeoutError means the deadline elapsed with no definitive answer.
	// Distinct from a rejection: the operation may still have happened.
	TimeoutError ErrorType = "TIMEOUT_ERROR"
	// EndorsementError means an insufficient organization quorum endorsed
	// the transaction proposal.
	EndorsementError ErrorType = "ENDORSEMENT_ERROR"
	// OrderingError means submission to the ordering service failed or the
	// transaction was invalidated at commit.
	OrderingError ErrorType = "ORDERING_ERROR"
	NotFoundError ErrorType = "NOT_FOUND"
	ConflictError ErrorType = "CONFLICT_ERROR"
	DatabaseError ErrorType = "DATABASE_ERROR"
	InternalError ErrorType = "INTERNAL_ERROR"
)

// AppError is the error shape surfaced across service boundaries.
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"` // Internal error, not exposed in JSON
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewConfigError(msg string, err error, details map[string]interface{}) *AppError {
	return &AppError{Type: ConfigError, Message: msg, Details: details, Err: err}
}

func NewValidationError(msg string, details map[string]interface{}) *AppError {
	return &AppError{Type: ValidationError, Message: msg, Details: details}
}

func NewEnrollmentError(msg string, err error, details map[string]interface{}) *AppError {
	return &AppError{Type: EnrollmentError, Message: msg, Details: details, Err: err}
}

func NewConnectionError(msg string, err error, details map[string]interface{}) *AppError {
	return &AppError{Type: ConnectionError, Message: msg, Details: details, Err: err}
}

func NewTimeoutError(msg string, err error, details map[string]interface{}) *AppError {
	return &AppError{Type: TimeoutError, Message: msg, Details: details, Err: err}
}

func NewEndorsementError(msg string, err error, details map[string]interface{}) *AppError {
	return &AppError{Type: EndorsementError, Message: msg, Details: details, Err: err}
}

func NewOrderingError(msg string, err error, details map[string]interface{}) *AppError {
	return &AppError{Type: OrderingError, Message: msg, Details: details, Err: err}
}

func NewNotFoundError(msg string, details map[string]interface{}) *AppError {
	return &AppError{Type: NotFoundError, Message: msg, Details: details}
}

func NewConflictError(msg string, details map[string]interface{}) *AppError {
	return &AppError{Type: ConflictError, Message: msg, Details: details}
}

func NewDatabaseError(msg string, err error, details map[string]interface{}) *AppError {
	return &AppError{Type: DatabaseError, Message: msg, Details: details, Err: err}
}

func NewInternalError(msg string, err error, details map[string]interface{}) *AppError {
	return &AppError{Type: InternalError, Message: msg, Details: details, Err: err}
}

// IsType reports whether err or any error it wraps is an AppError of the
// given type.
func IsType(err error, target ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == target
	}
	return false
}

// TypeOf returns the AppError type of err, or InternalError when err does
// not carry one.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return InternalError
}
