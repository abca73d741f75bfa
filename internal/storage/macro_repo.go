package storage

import (
	"sort"

	"github.com/manav03panchal/cmdstack/internal/model"
)

// MacroRepo provides operations for Macro records.
type MacroRepo struct {
	db *DB
}

// NewMacroRepo creates a new macro repository.
func NewMacroRepo(db *DB) *MacroRepo {
	return &MacroRepo{db: db}
}

// Get retrieves a macro by name.
func (r *MacroRepo) Get(name string) (*model.Macro, error) {
	m := &model.Macro{}
	if err := r.db.Get(model.GenerateMacroKey(name), m); err != nil {
		return nil, err
	}
	return m, nil
}

// List retrieves all macros in creation order.
func (r *MacroRepo) List() ([]*model.Macro, error) {
	macros, err := GetAllByPrefix(r.db, model.PrefixMacro+":", func() *model.Macro {
		return &model.Macro{}
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(macros, func(i, j int) bool {
		return macros[i].Position < macros[j].Position
	})
	return macros, nil
}

// ReplaceAll makes the stored macros exactly macros.
func (r *MacroRepo) ReplaceAll(macros []*model.Macro) error {
	models := make([]model.Model, 0, len(macros))
	for _, m := range macros {
		m.Key = model.GenerateMacroKey(m.Macro.Name)
		models = append(models, m)
	}
	return r.db.ReplacePrefix(model.PrefixMacro+":", models)
}

// Delete removes a macro by name.
func (r *MacroRepo) Delete(name string) error {
	return r.db.Delete(model.GenerateMacroKey(name))
}
