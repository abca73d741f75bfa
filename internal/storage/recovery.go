package storage

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/manav03panchal/cmdstack/internal/errors"
	"github.com/manav03panchal/cmdstack/internal/logging"
)

// RecoveryStatus represents the result of a database health check.
type RecoveryStatus struct {
	Healthy    bool      `json:"healthy"`
	Corrupted  bool      `json:"corrupted"`
	LastCheck  time.Time `json:"last_check"`
	ErrorCount int       `json:"error_count"`
	Errors     []string  `json:"errors,omitempty"`
	Keys       int       `json:"keys"`
}

// maxCheckedKeys bounds the integrity scan.
const maxCheckedKeys = 1000

// CheckDatabaseIntegrity reads a sample of values to detect corruption.
func CheckDatabaseIntegrity(db *DB) *RecoveryStatus {
	status := &RecoveryStatus{
		LastCheck: time.Now(),
		Healthy:   true,
	}

	if db == nil || db.db == nil {
		status.Healthy = false
		status.Corrupted = true
		status.Errors = append(status.Errors, "database not initialized")
		return status
	}

	err := db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 10
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid() && status.Keys < maxCheckedKeys; it.Next() {
			item := it.Item()
			if err := item.Value(func(val []byte) error { return nil }); err != nil {
				status.Errors = append(status.Errors, fmt.Sprintf("corrupted value at key: %s", item.Key()))
				status.ErrorCount++
			}
			status.Keys++
		}
		return nil
	})
	if err != nil {
		status.Errors = append(status.Errors, fmt.Sprintf("iteration error: %v", err))
		status.ErrorCount++
	}

	if status.ErrorCount > 0 {
		status.Healthy = false
		status.Corrupted = true
		logging.Warn("database integrity check failed",
			logging.KeyCount, status.ErrorCount,
			logging.KeyPath, db.path)
	}
	return status
}

// corruptionPatterns are fragments of badger errors that indicate damaged files.
var corruptionPatterns = []string{
	"checksum mismatch",
	"corrupt",
	"unexpected eof",
	"bad magic",
	"truncated",
}

// IsDatabaseCorrupted checks if the given error indicates database corruption.
func IsDatabaseCorrupted(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, errors.ErrDatabaseCorrupted) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range corruptionPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
