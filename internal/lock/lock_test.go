package lock

import (
	"errors"
	"os"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// Lock file should contain our PID.
	data, err := os.ReadFile(l.path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("lock file is empty")
	}

	if err := l.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}

	// Lock file should be removed.
	if _, err := os.Stat(l.path); !os.IsNotExist(err) {
		t.Error("lock file still exists after release")
	}
}

func TestReacquireAfterRelease(t *testing.T) {
	dir := t.TempDir()

	l1, err := Acquire(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := l1.Release(); err != nil {
		t.Fatal(err)
	}

	l2, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	defer func() { _ = l2.Release() }()
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Errorf("Release() on nil = %v, want nil", err)
	}
}

func TestLockHeldErrorMessage(t *testing.T) {
	e := &LockHeldError{PID: 42, Path: "/tmp/LOCK"}
	var target *LockHeldError
	if !errors.As(error(e), &target) {
		t.Error("errors.As failed for LockHeldError")
	}
	if e.Error() == "" {
		t.Error("empty error message")
	}
}
