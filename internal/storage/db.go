// Package storage provides the badger-backed workspace store for cmdstack:
// objects, the undo history snapshot and macros.
package storage

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	badger "github.com/dgraph-io/badger/v4"

	"github.com/manav03panchal/cmdstack/internal/errors"
	"github.com/manav03panchal/cmdstack/internal/logging"
)

const (
	// AppName is the application name used for data directories.
	AppName = "cmdstack"
)

// DB wraps a Badger database connection.
type DB struct {
	db   *badger.DB
	path string
	lock *FileLock
}

// Options configures the database connection.
type Options struct {
	// Path is the database directory path. Empty string uses in-memory mode.
	Path string
	// InMemory forces in-memory mode regardless of Path.
	InMemory bool
}

// DefaultPath returns the default database path following XDG spec.
func DefaultPath() string {
	return filepath.Join(xdg.DataHome, AppName, "db")
}

// Open opens or creates a database at the given path. On-disk databases are
// guarded by a lock file so that only one process uses a workspace at a time.
func Open(opts Options) (*DB, error) {
	var badgerOpts badger.Options
	var lock *FileLock

	if opts.InMemory || opts.Path == "" {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := EnsureDirectory(opts.Path); err != nil {
			return nil, err
		}
		lock = NewFileLock(opts.Path)
		if err := lock.Acquire(); err != nil {
			return nil, NewLockError(err)
		}
		badgerOpts = badger.DefaultOptions(opts.Path)
	}

	badgerOpts = badgerOpts.
		WithLogger(newBadgerLogger()).
		WithLoggingLevel(badger.ERROR)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		if lock != nil {
			_ = lock.Release()
		}
		if IsDatabaseCorrupted(err) {
			return nil, errors.NewSystemErrorWithOp("open", "database is corrupted", errors.ErrDatabaseCorrupted)
		}
		return nil, errors.NewSystemErrorWithOp("open", err.Error(), err)
	}

	return &DB{db: db, path: opts.Path, lock: lock}, nil
}

// Close closes the database connection and releases the workspace lock.
func (d *DB) Close() error {
	err := d.db.Close()
	if d.lock != nil {
		if lerr := d.lock.Release(); lerr != nil && err == nil {
			err = lerr
		}
		d.lock = nil
	}
	return err
}

// Path returns the database directory, empty for in-memory databases.
func (d *DB) Path() string {
	return d.path
}

// Badger returns the underlying Badger database for advanced operations.
func (d *DB) Badger() *badger.DB {
	return d.db
}

// badgerLogger forwards badger's own logging to the storage logger.
type badgerLogger struct {
	logger *slog.Logger
}

func newBadgerLogger() *badgerLogger {
	return &badgerLogger{logger: logging.Component("badger")}
}

func trimmed(format string, args []interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(trimmed(format, args))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(trimmed(format, args))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(trimmed(format, args))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(trimmed(format, args))
}
