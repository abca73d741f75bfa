package storage

import (
	"github.com/manav03panchal/cmdstack/internal/model"
)

// HistoryRepo stores the undo history snapshot.
type HistoryRepo struct {
	db *DB
}

// NewHistoryRepo creates a new history repository.
func NewHistoryRepo(db *DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

// Get retrieves the saved history. It returns nil when none was saved.
func (r *HistoryRepo) Get() (*model.History, error) {
	h := &model.History{}
	if err := r.db.Get(model.KeyHistory, h); err != nil {
		if IsErrKeyNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return h, nil
}

// Save stores the history.
func (r *HistoryRepo) Save(h *model.History) error {
	h.Key = model.KeyHistory
	return r.db.Set(h)
}

// Clear removes the saved history.
func (r *HistoryRepo) Clear() error {
	return r.db.Delete(model.KeyHistory)
}
