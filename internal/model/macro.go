package model

import (
	"fmt"
	"time"

	"github.com/manav03panchal/cmdstack/internal/command"
)

// Macro is a persisted macro definition.
type Macro struct {
	Key       string              `json:"key"`
	Position  int                 `json:"position"`
	Macro     command.StoredMacro `json:"macro"`
	CreatedAt time.Time           `json:"created_at"`
}

// SetKey sets the database key for this macro.
func (m *Macro) SetKey(key string) {
	m.Key = key
}

// GetKey returns the database key for this macro.
func (m *Macro) GetKey() string {
	return m.Key
}

// GenerateMacroKey generates a database key for a macro name.
func GenerateMacroKey(name string) string {
	return fmt.Sprintf("%s:%s", PrefixMacro, name)
}

// NewMacro wraps a stored macro for persistence.
func NewMacro(stored command.StoredMacro, position int) *Macro {
	return &Macro{
		Key:       GenerateMacroKey(stored.Name),
		Position:  position,
		Macro:     stored,
		CreatedAt: time.Now(),
	}
}
