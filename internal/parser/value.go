package parser

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/manav03panchal/cmdstack/internal/validate"
)

// ParseValue converts a CLI argument into a property value: null, booleans,
// numbers, JSON arrays and objects, and quoted or bare strings.
func ParseValue(s string) any {
	trimmed := strings.TrimSpace(s)
	switch strings.ToLower(trimmed) {
	case "null", "nil":
		return nil
	case "true":
		return true
	case "false":
		return false
	}

	if n, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
		return n
	}

	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, `"`) {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	if len(trimmed) >= 2 && trimmed[0] == '\'' && trimmed[len(trimmed)-1] == '\'' {
		return trimmed[1 : len(trimmed)-1]
	}
	return s
}

// ParseValues converts each argument with ParseValue.
func ParseValues(args []string) []any {
	values := make([]any, 0, len(args))
	for _, a := range args {
		values = append(values, ParseValue(a))
	}
	return values
}

// ParseAssignments converts key=value arguments into a property map. Dotted
// keys build nested maps.
func ParseAssignments(args []string) (map[string]any, error) {
	props := make(map[string]any)
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, NewAssignmentError(arg)
		}
		if err := validate.PropertyPath(key); err != nil {
			return nil, err
		}
		if err := assign(props, strings.Split(key, "."), ParseValue(raw)); err != nil {
			return nil, NewAssignmentError(arg)
		}
	}
	return props, nil
}

func assign(m map[string]any, path []string, value any) error {
	for _, seg := range path[:len(path)-1] {
		next, ok := m[seg]
		if !ok {
			child := make(map[string]any)
			m[seg] = child
			m = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return NewAssignmentError(seg)
		}
		m = child
	}
	m[path[len(path)-1]] = value
	return nil
}
