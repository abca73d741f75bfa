package storage

import (
	"github.com/manav03panchal/cmdstack/internal/model"
)

// ObjectRepo provides operations for Object records.
type ObjectRepo struct {
	db *DB
}

// NewObjectRepo creates a new object repository.
func NewObjectRepo(db *DB) *ObjectRepo {
	return &ObjectRepo{db: db}
}

// Save creates or updates an object.
func (r *ObjectRepo) Save(obj *model.Object) error {
	obj.Key = model.GenerateObjectKey(obj.ID)
	return r.db.Set(obj)
}

// Get retrieves an object by id.
func (r *ObjectRepo) Get(id string) (*model.Object, error) {
	obj := &model.Object{}
	if err := r.db.Get(model.GenerateObjectKey(id), obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// Delete removes an object by id.
func (r *ObjectRepo) Delete(id string) error {
	return r.db.Delete(model.GenerateObjectKey(id))
}

// List retrieves all objects ordered by id.
func (r *ObjectRepo) List() ([]*model.Object, error) {
	return GetAllByPrefix(r.db, model.PrefixObject+":", func() *model.Object {
		return &model.Object{}
	})
}

// ReplaceAll makes the stored objects exactly objs.
func (r *ObjectRepo) ReplaceAll(objs []*model.Object) error {
	models := make([]model.Model, 0, len(objs))
	for _, obj := range objs {
		obj.Key = model.GenerateObjectKey(obj.ID)
		models = append(models, obj)
	}
	return r.db.ReplacePrefix(model.PrefixObject+":", models)
}

// Exists checks if an object exists by id.
func (r *ObjectRepo) Exists(id string) (bool, error) {
	return r.db.Exists(model.GenerateObjectKey(id))
}
