package runlock_test

import (
	"errors"
	"path/filepath"
	"testing"

	"newsagent/internal/runlock"
)

func TestAcquireIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "newsagent.lock")

	first, err := runlock.Acquire(path)
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}

	if _, err := runlock.Acquire(path); !errors.Is(err, runlock.ErrHeld) {
		t.Fatalf("expected ErrHeld, got %v", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("second Release failed: %v", err)
	}

	second, err := runlock.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	defer second.Release()
	if second.Path() != path {
		t.Fatalf("Path = %q, want %q", second.Path(), path)
	}
}
