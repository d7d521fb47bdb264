package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	crerrors "github.com/Aman-CERP/corpusrag/internal/errors"
)

// DirLock is a cross-process exclusive lock guarding an index directory.
// The lock file is the sibling <dir>.lock so it survives the directory
// being swapped out.
type DirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// LockPath returns the lock file path for an index directory.
func LockPath(dir string) string {
	return filepath.Clean(dir) + ".lock"
}

// AcquireDirLock takes the lock for dir without blocking. When another
// process (or another DirLock in this process) holds it, the error is
// ERR_202_INDEX_LOCKED.
func AcquireDirLock(dir string) (*DirLock, error) {
	path := LockPath(dir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	l := &DirLock{path: path, flock: flock.New(path)}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return nil, crerrors.New(crerrors.ErrCodeIndexLocked, "index directory is locked by another run", nil).
			WithDetail("lock", path).
			WithSuggestion("Wait for the running build to finish")
	}
	l.locked = true
	return l, nil
}

// Release unlocks. Safe to call more than once.
func (l *DirLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the path to the lock file.
func (l *DirLock) Path() string {
	return l.path
}
