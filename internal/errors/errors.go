package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"time"
)

// Error types for the translation-memory engine
type ErrorType string

const (
	// Store errors
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeCorrupt    ErrorType = "corrupt_store"

	// File errors
	ErrorTypeFileNotFound ErrorType = "file_not_found"
	ErrorTypePermission   ErrorType = "permission"
	ErrorTypeWrite        ErrorType = "write"

	// Configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// ErrNotFound is returned by shell-level lookups when a key has no entry.
// Engine lookups report absence with an ok flag instead.
var ErrNotFound = errors.New("entry not found")

// ValidationError rejects a malformed key or unit before it reaches the store
type ValidationError struct {
	Type      ErrorType
	Field     string
	Value     string
	Reason    string
	Timestamp time.Time
}

// NewValidationError creates a validation error for the named field
func NewValidationError(field, value, reason string) *ValidationError {
	return &ValidationError{
		Type:      ErrorTypeValidation,
		Field:     field,
		Value:     value,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// CorruptStoreError reports a TM file that could not be parsed
type CorruptStoreError struct {
	Type       ErrorType
	Path       string
	Line       int
	Column     int
	Underlying error
	Timestamp  time.Time
}

// NewCorruptStoreError creates a corrupt store error with a file locator
func NewCorruptStoreError(path string, line, column int, err error) *CorruptStoreError {
	return &CorruptStoreError{
		Type:       ErrorTypeCorrupt,
		Path:       path,
		Line:       line,
		Column:     column,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *CorruptStoreError) Error() string {
	path := e.Path
	if path == "" {
		path = "<stream>"
	}
	if e.Line > 0 {
		return fmt.Sprintf("corrupt TM at %s:%d:%d: %v", path, e.Line, e.Column, e.Underlying)
	}
	return fmt.Sprintf("corrupt TM %s: %v", path, e.Underlying)
}

// Unwrap returns the underlying error
func (e *CorruptStoreError) Unwrap() error {
	return e.Underlying
}

// FileError represents a file-related error
type FileError struct {
	Type       ErrorType
	Path       string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewFileError creates a new file error
func NewFileError(op, path string, err error) *FileError {
	errorType := ErrorTypeWrite
	switch {
	case errors.Is(err, fs.ErrNotExist):
		errorType = ErrorTypeFileNotFound
	case errors.Is(err, fs.ErrPermission):
		errorType = ErrorTypePermission
	}

	return &FileError{
		Type:       errorType,
		Path:       path,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *FileError) Error() string {
	return fmt.Sprintf("file %s failed for %s: %v", e.Operation, e.Path, e.Underlying)
}

// Unwrap returns the underlying error
func (e *FileError) Unwrap() error {
	return e.Underlying
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

// NewConfigError creates a new config error
func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value %s): %v", e.Field, e.Value, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ConfigError) Unwrap() error {
	return e.Underlying
}

// MultiError represents multiple errors
type MultiError struct {
	Errors []error
}

// NewMultiError creates a new multi-error
func NewMultiError(errs []error) *MultiError {
	// Filter out nil errors
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

// ErrOrNil returns nil when no errors were collected
func (e *MultiError) ErrOrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

// Error implements the error interface
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
}

// Unwrap returns all errors
func (e *MultiError) Unwrap() []error {
	return e.Errors
}

// IsValidation reports whether err is or wraps a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsCorrupt reports whether err is or wraps a CorruptStoreError
func IsCorrupt(err error) bool {
	var ce *CorruptStoreError
	return errors.As(err, &ce)
}
