package parser

import (
	"fmt"
	"strings"

	"github.com/manav03panchal/cmdstack/internal/errors"
)

// ParseError describes input that could not be parsed, with examples of
// accepted forms.
type ParseError struct {
	Input      string
	Field      string
	Message    string
	Examples   []string
	Suggestion string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s '%s': %s", e.Field, e.Input, e.Message)
}

func (e *ParseError) Unwrap() error {
	return errors.ErrInvalidValue
}

// FormatWithExamples returns the error message followed by example inputs.
func (e *ParseError) FormatWithExamples() string {
	var sb strings.Builder
	sb.WriteString(e.Error())

	if len(e.Examples) > 0 {
		sb.WriteString("\n\nValid examples:\n")
		for _, ex := range e.Examples {
			sb.WriteString("  - ")
			sb.WriteString(ex)
			sb.WriteString("\n")
		}
	}
	if e.Suggestion != "" {
		sb.WriteString("\n")
		sb.WriteString(e.Suggestion)
	}
	return sb.String()
}

// ToUserError converts the error for CLI display.
func (e *ParseError) ToUserError() *errors.UserError {
	suggestion := e.Suggestion
	if suggestion == "" && len(e.Examples) > 0 {
		suggestion = fmt.Sprintf("Try: %s", strings.Join(e.Examples[:min(3, len(e.Examples))], ", "))
	}
	return errors.NewUserErrorWithField(e.Field, e.Input, e.Message, suggestion).
		WithCause(errors.ErrInvalidValue)
}

// TimeExamples lists accepted time expressions.
var TimeExamples = []string{
	"2 hours ago",
	"yesterday",
	"last week",
	"2026-01-31",
	"monday 9am",
}

// AssignmentExamples lists accepted key=value arguments.
var AssignmentExamples = []string{
	"size=2",
	"color=red",
	"position.x=1.5",
	`tags=["a","b"]`,
	"visible=true",
}

// NewTimeError reports an unparseable time expression.
func NewTimeError(input string) *ParseError {
	return &ParseError{
		Input:      input,
		Field:      "time",
		Message:    "could not parse time",
		Examples:   TimeExamples,
		Suggestion: "Use natural language like '2 hours ago' or a date like '2026-01-31'.",
	}
}

// NewAssignmentError reports an argument that is not key=value.
func NewAssignmentError(input string) *ParseError {
	return &ParseError{
		Input:    input,
		Field:    "argument",
		Message:  "expected key=value",
		Examples: AssignmentExamples,
	}
}
