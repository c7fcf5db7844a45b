// Package errors provides error codes shared by the queue, store and delivery layers.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique error code surfaced to API clients.
type ErrorCode string

const (
	// General errors
	ErrInternal ErrorCode = "INTERNAL_ERROR"
	ErrInvalid  ErrorCode = "INVALID_INPUT"
	ErrNotFound ErrorCode = "NOT_FOUND"

	// Storage errors
	ErrStorage   ErrorCode = "STORAGE_ERROR"
	ErrMigration ErrorCode = "MIGRATION_FAILED"

	// Delivery errors
	ErrDelivery ErrorCode = "DELIVERY_FAILED"

	// Configuration errors
	ErrConfigInvalid ErrorCode = "CONFIG_INVALID"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error

	// StatusCode is the remote HTTP status for delivery errors, 0 otherwise.
	StatusCode int
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Storage wraps a storage-layer I/O failure. Returns nil when err is nil.
func Storage(message string, err error) error {
	if err == nil {
		return nil
	}
	return Wrap(ErrStorage, message, err)
}

// Delivery builds a delivery failure. status is the remote HTTP status, or 0
// when the request never produced a response.
func Delivery(message string, status int, err error) *AppError {
	return &AppError{
		Code:       ErrDelivery,
		Message:    message,
		Err:        err,
		StatusCode: status,
	}
}

// Is checks if an error, or any error it wraps, carries the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost AppError in err's chain, or
// ErrInternal if there is none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// IsStorage reports whether err is a StorageError.
func IsStorage(err error) bool {
	return Is(err, ErrStorage)
}

// IsDelivery reports whether err is a DeliveryError.
func IsDelivery(err error) bool {
	return Is(err, ErrDelivery)
}
