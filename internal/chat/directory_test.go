package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"
)

type fakeLister struct {
	mu    sync.Mutex
	calls int
	fails int
	users []User
}

func (f *fakeLister) ListUsers(context.Context) ([]User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fails {
		return nil, fmt.Errorf("transient failure %d", f.calls)
	}
	return f.users, nil
}

func TestDirectoryLoad(t *testing.T) {
	l := &fakeLister{users: []User{{ID: "1", Username: "alice"}}}
	d := NewDirectory(l, zap.NewNop())
	d.SetBackoff(instantBackoff())

	if err := d.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := len(d.Users()); got != 1 {
		t.Errorf("directory has %d users, want 1", got)
	}
	if d.FetchState().Phase != FetchLoaded {
		t.Errorf("phase = %q, want loaded", d.FetchState().Phase)
	}
}

func TestDirectoryLoadRetriesThenFails(t *testing.T) {
	l := &fakeLister{fails: 100}
	d := NewDirectory(l, zap.NewNop())
	d.SetBackoff(instantBackoff())

	if err := d.Load(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
	if l.calls != 4 {
		t.Errorf("list calls = %d, want 4 (initial + 3 retries)", l.calls)
	}
	if d.FetchState().Phase != FetchFailed {
		t.Errorf("phase = %q, want failed", d.FetchState().Phase)
	}

	// Manual reload starts over at attempt 0.
	l.mu.Lock()
	l.fails = 0
	l.mu.Unlock()
	if err := d.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if l.calls != 5 {
		t.Errorf("list calls = %d, want 5 (single fresh attempt)", l.calls)
	}
}
