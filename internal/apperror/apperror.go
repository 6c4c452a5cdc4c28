// Package apperror defines the application's error taxonomy.
//
// Every error a caller needs to react to wraps one of the sentinel errors
// below, so callers branch with errors.Is and never on message text:
//
//	ErrUnauthenticated  no identity available, nothing was sent to the backend
//	ErrUnprovisioned    the backend relation is missing or access was denied
//	ErrBackend          any other backend-reported failure, message kept verbatim
//	ErrValidation / ErrNotFound / ErrConflict / ErrForbidden
//
// A failed secondary effect (for example the creator's membership row after a
// group insert) is not an error value at all. It is logged and dropped.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnprovisioned   = errors.New("backend not provisioned")
	ErrBackend         = errors.New("backend error")
)

type AppError struct {
	Err     error  // sentinel classifying the failure
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying error, kept for logs
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the cause to errors.Is / errors.As.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthenticated is returned before any remote call when no identity is known.
func Unauthenticated(message string) *AppError {
	if message == "" {
		message = "user not authenticated"
	}
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

// Unprovisioned marks a failure caused by missing backend infrastructure.
// Read paths substitute fallback data when they see it.
func Unprovisioned(cause error) *AppError {
	msg := "backend not provisioned"
	if cause != nil {
		msg = fmt.Sprintf("backend not provisioned: %s", cause.Error())
	}
	return &AppError{
		Err:     ErrUnprovisioned,
		Message: msg,
		Cause:   cause,
	}
}

// Backend wraps a backend-reported failure. The message is shown to the
// user as-is, so it should be the backend's own message.
func Backend(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrBackend,
		Message: message,
		Cause:   cause,
	}
}

// Normalize turns any error into an *AppError. Errors that already carry an
// AppError keep it; anything else becomes a Backend error whose message is
// the error text, or fallback if the text is empty.
func Normalize(err error, fallback string) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	msg := err.Error()
	if msg == "" {
		msg = fallback
	}
	return Backend(msg, err)
}
