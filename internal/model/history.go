package model

import (
	"time"

	"github.com/manav03panchal/cmdstack/internal/command"
)

// History is the persisted undo history of a workspace.
type History struct {
	Key      string           `json:"key"`
	Snapshot command.Snapshot `json:"snapshot"`
	SavedAt  time.Time        `json:"saved_at"`
}

// SetKey sets the database key for the history.
func (h *History) SetKey(key string) {
	h.Key = key
}

// GetKey returns the database key for the history.
func (h *History) GetKey() string {
	return h.Key
}

// NewHistory wraps a snapshot for persistence.
func NewHistory(snap command.Snapshot) *History {
	return &History{
		Key:      KeyHistory,
		Snapshot: snap,
		SavedAt:  time.Now(),
	}
}

// Len returns the number of top-level entries.
func (h *History) Len() int {
	return len(h.Snapshot.Entries)
}
