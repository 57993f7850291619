// Package domain contains domain errors used throughout the application.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	ErrFileNotFound      = errors.New("file not found")
	ErrPathOutsideRoot   = errors.New("path is outside the watched root")
	ErrAmbiguousName     = errors.New("file name matches more than one file")
	ErrInvalidFilename   = errors.New("invalid file name")
	ErrRootNotDirectory  = errors.New("watched root is not a directory")
	ErrWatcherNotRunning = errors.New("watcher is not running")
	ErrHubNotRunning     = errors.New("event hub is not running")
	ErrSubscriberClosed  = errors.New("subscriber is closed")
)

// Error codes for client responses.
const (
	ErrCodeFileNotFound      = "FILE_NOT_FOUND"
	ErrCodePathOutsideRoot   = "PATH_OUTSIDE_ROOT"
	ErrCodeAmbiguousName     = "AMBIGUOUS_NAME"
	ErrCodeInvalidFilename   = "INVALID_FILENAME"
	ErrCodeWatcherNotRunning = "WATCHER_NOT_RUNNING"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// WatchError represents a failure to observe the watched root.
type WatchError struct {
	Op   string // Operation that failed
	Path string // Path being watched
	Err  error  // Underlying error
}

func (e *WatchError) Error() string {
	return fmt.Sprintf("watch %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WatchError) Unwrap() error {
	return e.Err
}

// NewWatchError creates a new WatchError.
func NewWatchError(op, path string, err error) *WatchError {
	return &WatchError{
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
