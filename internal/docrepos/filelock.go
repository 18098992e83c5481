package docrepos

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// LockFilename is the sync lock filename inside the data directory.
const LockFilename = "sync.lock"

// FileLock guards the data directory against concurrent writers from
// other processes, using flock(2). The kernel drops the lock when the
// holding process exits, so a crash never leaves it stuck.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock creates a lock at the given path. Nothing is acquired
// until TryLock.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// TryLock attempts to take the exclusive lock without blocking. It
// returns false when another process holds it; an error only signals
// an unexpected failure, not contention.
func (l *FileLock) TryLock() (bool, error) {
	if l.file == nil {
		if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
			return false, fmt.Errorf("failed to create lock directory: %w", err)
		}
		file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
		if err != nil {
			return false, fmt.Errorf("failed to open lock file: %w", err)
		}
		l.file = file
	}

	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = l.file.Close()
		l.file = nil
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return false, nil
		}
		return false, fmt.Errorf("flock failed: %w", err)
	}
	return true, nil
}

// Unlock releases the lock. Calling it without holding the lock is a
// no-op.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}

	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if err != nil {
		return fmt.Errorf("flock unlock failed: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("close failed: %w", closeErr)
	}
	return nil
}

// IsLocked reports whether this instance holds the lock.
func (l *FileLock) IsLocked() bool {
	return l.file != nil
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}
