package errors

import "errors"

// Suggestions maps common errors to helpful suggestions.
var Suggestions = map[error]string{
	ErrInvalidArguments: "Check the command id and its arguments. Use 'cmdstack exec --list' to see registered commands.",
	ErrNoHistory:        "There is nothing to undo or redo. Use 'cmdstack history' to see the history.",
	ErrOutOfRange:       "Pick an index shown by 'cmdstack history' (-1 rewinds to the beginning).",
	ErrNotFound:         "Use 'cmdstack objects' to list objects and 'cmdstack macro list' to list macros.",
	ErrAlreadyExists:    "Choose a different name, or leave it empty to generate one.",
	ErrInvalidPath:      "Property paths are dot separated names, for example 'position.x'.",
	ErrInvalidTime:      "Try expressions like '2 hours ago', 'yesterday' or 'last week'.",
	ErrInvalidOperation: "Make sure a batch is open before ending or aborting it.",
	ErrDatabaseClosed:   "The workspace was closed. Run the command again.",
}

// GetSuggestion returns a suggestion for an error, if available.
// It walks the error chain to find matching suggestions.
func GetSuggestion(err error) string {
	if err == nil {
		return ""
	}

	if ue, ok := AsUserError(err); ok && ue.Suggestion != "" {
		return ue.Suggestion
	}

	for knownErr, suggestion := range Suggestions {
		if errors.Is(err, knownErr) {
			return suggestion
		}
	}

	return ""
}
