package errors

import (
	"errors"
	"fmt"
)

// Re-exported standard library helpers
var (
	New    = errors.New
	Unwrap = errors.Unwrap
	Is     = errors.Is
	As     = errors.As
)

// Error extends error with a stable code
type Error interface {
	error
	Code() string
	Unwrap() error
}

// AppError is the default Error implementation
type AppError struct {
	code    string
	message string
	err     error
}

func (e *AppError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s", e.message, e.err.Error())
	}
	return e.message
}

func (e *AppError) Code() string {
	return e.code
}

// Message returns the caller-facing message without the wrapped cause
func (e *AppError) Message() string {
	return e.message
}

func (e *AppError) Unwrap() error {
	return e.err
}

// NewAppError creates a new application error
func NewAppError(code string, message string, err error) *AppError {
	return &AppError{
		code:    code,
		message: message,
		err:     err,
	}
}

// Unavailable wraps an upstream (gateway or store) failure as a retryable error.
// The message is generic so upstream internals never reach the caller.
func Unavailable(err error) *AppError {
	return NewAppError(ErrUnavailable, "Service temporarily unavailable", err)
}

// Wrap wraps an existing error, keeping the code of an inner AppError
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if As(err, &appErr) {
		return NewAppError(appErr.Code(), message, err)
	}

	return NewAppError(ErrInternal, message, err)
}

// CodeOf returns the code of the outermost AppError in the chain, or ErrInternal
func CodeOf(err error) string {
	var appErr *AppError
	if As(err, &appErr) {
		return appErr.Code()
	}
	return ErrInternal
}
