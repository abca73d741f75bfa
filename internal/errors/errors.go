// Package errors provides the error taxonomy for cmdstack.
// Engine conditions are sentinel errors so that they survive wrapping and can be
// mapped back to a command error code. UserError and SystemError carry the
// context the CLI prints.
package errors

import (
	"errors"
	"fmt"
)

// Engine sentinel errors.
var (
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrAborted          = errors.New("aborted")
	ErrFailed           = errors.New("command failed")
	ErrNotSupported     = errors.New("not supported")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrInvalidValue     = errors.New("invalid value")
	ErrNoHistory        = errors.New("no history")
	ErrOutOfRange       = errors.New("index out of range")
)

// Workspace and storage sentinel errors.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrDatabaseClosed    = errors.New("database closed")
	ErrManagerClosed     = errors.New("command manager closed")
	ErrInvalidPath       = errors.New("invalid property path")
	ErrInvalidTime       = errors.New("invalid time expression")
	ErrDiskFull          = errors.New("disk full")
	ErrDatabaseCorrupted = errors.New("database corrupted")
	ErrWorkspaceLocked   = errors.New("workspace locked")
)

// UserError represents an error that the user can fix.
type UserError struct {
	Message    string
	Suggestion string
	Field      string
	Value      string
	Cause      error
}

func (e *UserError) Error() string {
	msg := e.Message
	if e.Field != "" && e.Value != "" {
		msg = fmt.Sprintf("%s: '%s'", e.Message, e.Value)
	}
	return msg
}

func (e *UserError) Unwrap() error {
	return e.Cause
}

// NewUserError creates a new UserError.
func NewUserError(message, suggestion string) *UserError {
	return &UserError{
		Message:    message,
		Suggestion: suggestion,
	}
}

// NewUserErrorWithField creates a new UserError with field context.
func NewUserErrorWithField(field, value, message, suggestion string) *UserError {
	return &UserError{
		Message:    message,
		Field:      field,
		Value:      value,
		Suggestion: suggestion,
	}
}

// WithCause attaches a sentinel or underlying error to the UserError.
func (e *UserError) WithCause(err error) *UserError {
	e.Cause = err
	return e
}

// SystemError represents a failure the user cannot directly fix.
type SystemError struct {
	Message string
	Cause   error
	Op      string
}

func (e *SystemError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s during %s", e.Message, e.Op)
	}
	return e.Message
}

func (e *SystemError) Unwrap() error {
	return e.Cause
}

// NewSystemError creates a new SystemError.
func NewSystemError(message string, cause error) *SystemError {
	return &SystemError{
		Message: message,
		Cause:   cause,
	}
}

// NewSystemErrorWithOp creates a new SystemError with operation context.
func NewSystemErrorWithOp(op, message string, cause error) *SystemError {
	return &SystemError{
		Message: message,
		Cause:   cause,
		Op:      op,
	}
}

// IsUserError checks if an error is a UserError.
func IsUserError(err error) bool {
	var ue *UserError
	return errors.As(err, &ue)
}

// IsSystemError checks if an error is a SystemError.
func IsSystemError(err error) bool {
	var se *SystemError
	return errors.As(err, &se)
}

// AsUserError extracts a UserError from an error chain.
func AsUserError(err error) (*UserError, bool) {
	var ue *UserError
	ok := errors.As(err, &ue)
	return ue, ok
}

// AsSystemError extracts a SystemError from an error chain.
func AsSystemError(err error) (*SystemError, bool) {
	var se *SystemError
	ok := errors.As(err, &se)
	return se, ok
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New returns an error with the given text.
func New(text string) error {
	return errors.New(text)
}

// Join returns an error wrapping the given errors, discarding nils.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted additional context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
