package chat

import (
	"context"
	"sync"

	"github.com/ASDFGHan123/unichat/internal/backoff"
	"go.uber.org/zap"
)

// UserLister fetches the "available users" directory, which lives outside
// the conversation store.
type UserLister interface {
	ListUsers(ctx context.Context) ([]User, error)
}

// Directory caches the available-users list used for starting new
// conversations and for user search. Loads share the same retry schedule as
// every other list fetch.
type Directory struct {
	mu     sync.RWMutex
	lister UserLister
	logger *zap.Logger
	policy backoff.Policy

	users []User
	fetch FetchState
}

// NewDirectory creates an empty user directory.
func NewDirectory(lister UserLister, logger *zap.Logger) *Directory {
	return &Directory{
		lister: lister,
		logger: logger,
		policy: backoff.Default(),
	}
}

// SetBackoff overrides the retry schedule (test seam).
func (d *Directory) SetBackoff(p backoff.Policy) {
	d.mu.Lock()
	d.policy = p
	d.mu.Unlock()
}

// Load fetches the user list, retrying with backoff. A manual re-Load after
// failure starts over at attempt 0.
func (d *Directory) Load(ctx context.Context) error {
	d.mu.Lock()
	if d.fetch.Phase == FetchLoading || d.fetch.Phase == FetchRetrying {
		d.mu.Unlock()
		return nil
	}
	d.fetch = FetchState{Phase: FetchLoading}
	policy := d.policy
	d.mu.Unlock()

	policy.OnRetry = func(n int, err error) {
		d.logger.Warn("user list fetch retrying", zap.Int("retry", n), zap.Error(err))
		d.mu.Lock()
		d.fetch = FetchState{Phase: FetchRetrying, Retry: n, Err: err}
		d.mu.Unlock()
	}

	var users []User
	err := policy.Do(ctx, func(ctx context.Context) error {
		var ferr error
		users, ferr = d.lister.ListUsers(ctx)
		return ferr
	})

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.fetch = FetchState{Phase: FetchFailed, Retry: policy.MaxRetries, Err: err}
		return err
	}
	d.users = users
	d.fetch = FetchState{Phase: FetchLoaded}
	return nil
}

// Users returns a snapshot of the directory.
func (d *Directory) Users() []User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]User(nil), d.users...)
}

// Search filters the directory by username.
func (d *Directory) Search(query string) []User {
	return SearchUsers(d.Users(), query)
}

// FetchState returns the directory load state.
func (d *Directory) FetchState() FetchState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.fetch
}
