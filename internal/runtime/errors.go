package runtime

import (
	"fmt"
	"strings"
	"syscall"

	"github.com/manav03panchal/cmdstack/internal/errors"
	"github.com/manav03panchal/cmdstack/internal/parser"
)

// Suggestions covers workspace conditions the errors package does not know
// about.
var Suggestions = map[error]string{
	errors.ErrWorkspaceLocked:   "Another cmdstack process is using this workspace. Wait for it to finish or pass --db to use another one.",
	errors.ErrDiskFull:          "Free up disk space and try again. The workspace on disk is unchanged.",
	errors.ErrDatabaseCorrupted: "Export what you can with 'cmdstack history export', then move the workspace directory aside.",
	errors.ErrManagerClosed:     "The command engine was shut down. Run the command again.",
}

// GetSuggestion returns a suggestion for an error, if available.
func GetSuggestion(err error) string {
	if err == nil {
		return ""
	}
	for knownErr, suggestion := range Suggestions {
		if errors.Is(err, knownErr) {
			return suggestion
		}
	}
	return errors.GetSuggestion(err)
}

// FormatError formats an error with optional suggestion. Parse errors carry
// their own examples.
func FormatError(err error) string {
	var pe *parser.ParseError
	if errors.As(err, &pe) {
		return pe.FormatWithExamples()
	}
	msg := err.Error()
	if suggestion := GetSuggestion(err); suggestion != "" {
		msg += "\n" + suggestion
	}
	return msg
}

// DiskFullError represents a disk full condition with additional context.
type DiskFullError struct {
	Op      string // The operation that failed (e.g., "save history")
	Path    string // The path involved, if known
	wrapped error
}

func (e *DiskFullError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("disk full during %s on %s: %v", e.Op, e.Path, e.wrapped)
	}
	return fmt.Sprintf("disk full during %s: %v", e.Op, e.wrapped)
}

func (e *DiskFullError) Unwrap() error {
	return errors.ErrDiskFull
}

// NewDiskFullError creates a new DiskFullError.
func NewDiskFullError(op, path string, err error) *DiskFullError {
	return &DiskFullError{
		Op:      op,
		Path:    path,
		wrapped: err,
	}
}

// diskFullPatterns match badger errors that flatten ENOSPC into text.
var diskFullPatterns = []string{
	"no space left on device",
	"disk full",
	"enospc",
	"not enough space",
	"insufficient disk space",
}

// IsDiskFullError checks if an error indicates a disk full condition.
func IsDiskFullError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errors.ErrDiskFull) {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) && errno == syscall.ENOSPC {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range diskFullPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// WrapDiskFullError wraps an error as a DiskFullError if it indicates disk full.
// Other errors are returned unchanged.
func WrapDiskFullError(err error, op, path string) error {
	if err == nil {
		return nil
	}
	if IsDiskFullError(err) {
		return NewDiskFullError(op, path, err)
	}
	return err
}
