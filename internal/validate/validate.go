// Package validate provides input validation helpers for the cmdstack CLI and
// the built-in commands.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/manav03panchal/cmdstack/internal/errors"
)

const (
	// MaxObjectIDLength is the maximum length of an object id.
	MaxObjectIDLength = 64
	// MaxPathLength is the maximum length of a property path.
	MaxPathLength = 256
	// MaxPathDepth is the maximum number of segments in a property path.
	MaxPathDepth = 16
	// MaxNameLength is the maximum length of a macro or command name.
	MaxNameLength = 64
	// MaxDescriptionLength is the maximum length of a batch description.
	MaxDescriptionLength = 512
)

// idRegex validates object ids (alphanumeric, dashes, underscores, periods).
var idRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// segmentRegex validates one property path segment.
var segmentRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*$`)

// nameRegex validates macro and command names.
var nameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.-]*$`)

// ObjectID validates an object id.
func ObjectID(id string) error {
	if id == "" {
		return errors.NewUserError("Object id cannot be empty", "Provide an object id").
			WithCause(errors.ErrInvalidArguments)
	}
	if len(id) > MaxObjectIDLength {
		return errors.NewUserErrorWithField("object", id,
			"Object id too long",
			fmt.Sprintf("Object ids must be %d characters or fewer", MaxObjectIDLength)).
			WithCause(errors.ErrInvalidArguments)
	}
	if !idRegex.MatchString(id) {
		return errors.NewUserErrorWithField("object", id,
			"Invalid object id",
			"Object ids start with a letter or number and contain only letters, numbers, dashes, underscores, or periods").
			WithCause(errors.ErrInvalidArguments)
	}
	return nil
}

// PropertyPath validates a dot separated property path.
func PropertyPath(path string) error {
	if path == "" {
		return errors.NewUserError("Property path cannot be empty", "Use a path like 'color' or 'position.x'").
			WithCause(errors.ErrInvalidPath)
	}
	if len(path) > MaxPathLength {
		return errors.NewUserErrorWithField("path", path,
			"Property path too long",
			fmt.Sprintf("Property paths must be %d characters or fewer", MaxPathLength)).
			WithCause(errors.ErrInvalidPath)
	}
	segments := strings.Split(path, ".")
	if len(segments) > MaxPathDepth {
		return errors.NewUserErrorWithField("path", path,
			"Property path too deep",
			fmt.Sprintf("Property paths have at most %d segments", MaxPathDepth)).
			WithCause(errors.ErrInvalidPath)
	}
	for _, s := range segments {
		if !segmentRegex.MatchString(s) {
			return errors.NewUserErrorWithField("path", path,
				"Invalid property path",
				"Segments start with a letter or underscore and contain only letters, numbers, dashes, or underscores").
				WithCause(errors.ErrInvalidPath)
		}
	}
	return nil
}

// Name validates a macro or command name.
func Name(name string) error {
	if name == "" {
		return errors.NewUserError("Name cannot be empty", "Provide a name").
			WithCause(errors.ErrInvalidArguments)
	}
	if len(name) > MaxNameLength {
		return errors.NewUserErrorWithField("name", name,
			"Name too long",
			fmt.Sprintf("Names must be %d characters or fewer", MaxNameLength)).
			WithCause(errors.ErrInvalidArguments)
	}
	if !nameRegex.MatchString(name) {
		return errors.NewUserErrorWithField("name", name,
			"Invalid name",
			"Names start with a letter and contain only letters, numbers, dots, dashes, or underscores").
			WithCause(errors.ErrInvalidArguments)
	}
	return nil
}

// Description validates a batch or macro description.
func Description(desc string) error {
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		return errors.NewUserError(
			"Description too long",
			fmt.Sprintf("Descriptions must be %d characters or fewer", MaxDescriptionLength))
	}
	return nil
}

// NonEmpty validates that a string is not empty.
func NonEmpty(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.NewUserErrorWithField(field, value,
			fmt.Sprintf("%s cannot be empty", field),
			fmt.Sprintf("Provide a value for %s", field))
	}
	return nil
}

// InRange validates that an integer is within a range.
func InRange(field string, value, min, max int) error {
	if value < min || value > max {
		return errors.NewUserErrorWithField(field, fmt.Sprintf("%d", value),
			fmt.Sprintf("%s out of range", field),
			fmt.Sprintf("%s must be between %d and %d", field, min, max)).
			WithCause(errors.ErrOutOfRange)
	}
	return nil
}
