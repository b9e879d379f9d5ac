// ============================================================================
// backend/internal/shared/errors.go
// Error taxonomy shared by services and the HTTP gateway
// ============================================================================

package shared

import "errors"

// Sentinel errors. Services wrap them in AppError so the gateway can pick a
// status code with errors.Is while still showing a specific message.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("permission denied")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("operation failed")
)

// AppError carries a sentinel plus a caller-facing message
type AppError struct {
	Err     error
	Message string
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

// Unwrap implements errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewValidationError reports malformed input
func NewValidationError(message string) error {
	return &AppError{Err: ErrValidation, Message: message}
}

// NewNotFoundError reports an unknown identifier
func NewNotFoundError(message string) error {
	return &AppError{Err: ErrNotFound, Message: message}
}

// NewUnauthorizedError reports a missing or invalid credential
func NewUnauthorizedError(message string) error {
	return &AppError{Err: ErrUnauthorized, Message: message}
}

// NewForbiddenError reports a role mismatch
func NewForbiddenError(message string) error {
	return &AppError{Err: ErrForbidden, Message: message}
}

// NewConflictError reports a duplicate identity key
func NewConflictError(message string) error {
	return &AppError{Err: ErrConflict, Message: message}
}

// NewInternalError hides storage detail behind the generic failure message.
// The cause is kept for logging only.
func NewInternalError(cause error) error {
	return &internalError{cause: cause}
}

type internalError struct {
	cause error
}

func (e *internalError) Error() string { return ErrInternal.Error() }

func (e *internalError) Is(target error) bool { return target == ErrInternal }

func (e *internalError) Unwrap() error { return e.cause }

// Message returns the caller-facing text of err
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	var internal *internalError
	if errors.As(err, &internal) {
		return internal.Error()
	}
	return err.Error()
}
