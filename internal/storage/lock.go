package storage

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/manav03panchal/cmdstack/internal/errors"
)

const (
	// LockFileName is the name of the lock file in the data directory.
	LockFileName = "cmdstack.lock"
)

var (
	// ErrLockAcquireFailed is returned when the lock cannot be acquired.
	ErrLockAcquireFailed = stderrors.New("failed to acquire workspace lock")
	// ErrLockAlreadyHeld is returned when another process holds the lock.
	ErrLockAlreadyHeld = fmt.Errorf("%w by another process", errors.ErrWorkspaceLocked)
)

// FileLock is a lock file holding the owner's PID.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock creates a new file lock in the specified directory.
func NewFileLock(dir string) *FileLock {
	return &FileLock{
		path: filepath.Join(dir, LockFileName),
	}
}

// Acquire takes the lock, failing with ErrLockAlreadyHeld when another live
// process holds it. Locks left behind by dead processes are removed first.
func (l *FileLock) Acquire() error {
	if err := l.cleanStaleLock(); err != nil {
		return err
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLockAcquireFailed, err)
	}

	if err := flockAcquire(file); err != nil {
		file.Close()
		if stderrors.Is(err, ErrLockAlreadyHeld) {
			if pid := l.readPID(); pid > 0 {
				return fmt.Errorf("%w: PID %d", ErrLockAlreadyHeld, pid)
			}
		}
		return err
	}

	if err := writePID(file); err != nil {
		_ = flockRelease(file)
		file.Close()
		return fmt.Errorf("%w: %v", ErrLockAcquireFailed, err)
	}

	l.file = file
	return nil
}

func writePID(file *os.File) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.Seek(0, 0); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(file, "%d", os.Getpid()); err != nil {
		return err
	}
	return file.Sync()
}

// Release releases the lock. It is safe to call more than once.
func (l *FileLock) Release() error {
	if l.file == nil {
		return nil
	}

	if err := flockRelease(l.file); err != nil {
		l.file.Close()
		l.file = nil
		return err
	}
	if err := l.file.Close(); err != nil {
		l.file = nil
		return err
	}
	l.file = nil

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// cleanStaleLock removes a lock file whose owner is no longer running.
func (l *FileLock) cleanStaleLock() error {
	pid := l.readPID()
	if pid <= 0 || pid == os.Getpid() || isProcessRunning(pid) {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clean stale lock: %v", err)
	}
	return nil
}

// readPID returns 0 if the file doesn't exist or doesn't contain a valid PID.
func (l *FileLock) readPID() int {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// LockError provides a user-friendly error message for lock failures.
type LockError struct {
	Err error
	PID int
}

func (e *LockError) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("cannot open workspace: another cmdstack process (PID %d) is using it", e.PID)
	}
	return fmt.Sprintf("cannot open workspace: %v", e.Err)
}

func (e *LockError) Unwrap() error {
	return e.Err
}

// NewLockError wraps a lock failure, extracting the holder's PID if known.
func NewLockError(err error) *LockError {
	lockErr := &LockError{Err: err}
	if stderrors.Is(err, ErrLockAlreadyHeld) {
		if _, after, ok := strings.Cut(err.Error(), "PID "); ok {
			if pid, perr := strconv.Atoi(strings.TrimSpace(after)); perr == nil {
				lockErr.PID = pid
			}
		}
	}
	return lockErr
}
