package storage

import (
	"encoding/json"
	stderrors "errors"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/manav03panchal/cmdstack/internal/errors"
	"github.com/manav03panchal/cmdstack/internal/model"
)

var (
	// ErrKeyNotFound is returned when a key is not found in the database.
	ErrKeyNotFound = errors.Wrap(errors.ErrNotFound, "key not found")
)

// IsErrKeyNotFound returns true if the error is a key not found error.
func IsErrKeyNotFound(err error) bool {
	return stderrors.Is(err, ErrKeyNotFound) || stderrors.Is(err, badger.ErrKeyNotFound)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, badger.ErrKeyNotFound):
		return ErrKeyNotFound
	case stderrors.Is(err, badger.ErrDBClosed):
		return errors.ErrDatabaseClosed
	}
	return err
}

// Get retrieves a value by key and unmarshals it into v.
func (d *DB) Get(key string, v model.Model) error {
	return translate(d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, v); err != nil {
				return err
			}
			v.SetKey(key)
			return nil
		})
	}))
}

// Set stores a model in the database.
func (d *DB) Set(v model.Model) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return translate(d.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(v.GetKey()), data)
	}))
}

// Delete removes a key from the database.
func (d *DB) Delete(key string) error {
	return translate(d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	}))
}

// Exists checks if a key exists in the database.
func (d *DB) Exists(key string) (bool, error) {
	var exists bool
	err := d.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	return exists, translate(err)
}

// ListByPrefix retrieves all keys with the given prefix.
func (d *DB) ListByPrefix(prefix string) ([]string, error) {
	var keys []string
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, translate(err)
}

// ReplacePrefix makes the records under prefix exactly models, in a single
// transaction: keys under prefix not present in models are deleted.
func (d *DB) ReplacePrefix(prefix string, models []model.Model) error {
	encoded := make(map[string][]byte, len(models))
	for _, m := range models {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		encoded[m.GetKey()] = data
	}

	stale, err := d.ListByPrefix(prefix)
	if err != nil {
		return err
	}

	return translate(d.db.Update(func(txn *badger.Txn) error {
		for _, key := range stale {
			if _, keep := encoded[key]; keep {
				continue
			}
			if err := txn.Delete([]byte(key)); err != nil {
				return err
			}
		}
		for key, data := range encoded {
			if err := txn.Set([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	}))
}

// GetAllByPrefix retrieves all values with the given prefix.
func GetAllByPrefix[T model.Model](d *DB, prefix string, newFunc func() T) ([]T, error) {
	var results []T
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 100
		it := txn.NewIterator(opts)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				v := newFunc()
				if err := json.Unmarshal(val, v); err != nil {
					return err
				}
				v.SetKey(string(item.KeyCopy(nil)))
				results = append(results, v)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return results, translate(err)
}
