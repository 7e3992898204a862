package lockfile

import (
	"path/filepath"
	"testing"

	goerrors "github.com/kbukum/cmdkit/errors"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "run.lock")

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if l.Path() != path {
		t.Errorf("expected path %q, got %q", path, l.Path())
	}

	if _, err := Acquire(path); goerrors.CodeOf(err) != goerrors.ErrCodeLocked {
		t.Fatalf("expected LOCKED while held, got %v", err)
	}

	if err := l.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	again, err := Acquire(path)
	if err != nil {
		t.Fatalf("expected the lock to be free after release, got %v", err)
	}
	_ = again.Release()
}
