// Package lockfile serializes runs of one profile across processes.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	goerrors "github.com/kbukum/cmdkit/errors"
)

// Lock is an exclusive advisory lock on a file.
type Lock struct {
	flock *flock.Flock
	path  string
}

// Acquire takes the lock without blocking. A lock held by another run
// yields a LOCKED error.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, goerrors.Internal(fmt.Errorf("failed to create lock directory for %s: %w", path, err))
	}

	fl := flock.New(path)
	acquired, err := fl.TryLock()
	if err != nil {
		return nil, goerrors.Internal(fmt.Errorf("failed to try lock on %s: %w", path, err))
	}
	if !acquired {
		return nil, goerrors.Locked(path)
	}
	return &Lock{flock: fl, path: path}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release unlocks the file. The file itself is left in place.
func (l *Lock) Release() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}
