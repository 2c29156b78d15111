// Package errors provides coded application errors for the sync core.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies an error category across package boundaries.
type ErrorCode string

const (
	// General errors
	ErrInternal ErrorCode = "INTERNAL_ERROR"
	ErrInvalid  ErrorCode = "INVALID_INPUT"
	ErrNotFound ErrorCode = "NOT_FOUND"

	// Local persistence errors. These are the only ones that bubble up
	// to the caller of the write path: a mutation that cannot even be
	// cached and queued cannot be guaranteed later.
	ErrStorage   ErrorCode = "STORAGE_ERROR"
	ErrMigration ErrorCode = "MIGRATION_FAILED"

	// Sync errors, recorded on outbox entries rather than thrown.
	ErrSyncFailed   ErrorCode = "SYNC_FAILED"
	ErrSyncTimeout  ErrorCode = "SYNC_TIMEOUT"
	ErrSyncConflict ErrorCode = "SYNC_CONFLICT"

	// Remote row-store errors
	ErrRemote            ErrorCode = "REMOTE_ERROR"
	ErrRemoteUnreachable ErrorCode = "REMOTE_UNREACHABLE"
	ErrRemoteRejected    ErrorCode = "REMOTE_REJECTED"

	// Configuration errors
	ErrConfig ErrorCode = "CONFIG_INVALID"
)

// AppError is an error carrying a stable code and an optional cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
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
	return &AppError{Code: code, Message: message}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Is checks if an error anywhere in the unwrap chain carries the code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
