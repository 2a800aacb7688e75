package backoff

import (
	"context"
	"errors"
	"time"
)

// Defaults used by every list-type fetch in the client.
const (
	DefaultMaxRetries = 3
	DefaultBase       = time.Second
)

// ErrExhausted is returned by Poll when the attempt budget runs out before
// the operation reports completion.
var ErrExhausted = errors.New("backoff: attempts exhausted")

// Policy describes an exponential retry schedule: the initial attempt plus
// up to MaxRetries automatic retries, waiting Base*2^n after failed attempt n.
// This is not a circuit breaker; there is no cooldown state.
type Policy struct {
	MaxRetries int
	Base       time.Duration

	// OnRetry is called before each automatic retry with the 1-based retry
	// number, so the UI can show "Retry (n/3)".
	OnRetry func(retry int, err error)

	// Sleep is a test seam; nil means a context-aware timer wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default returns the schedule used across the client: 3 retries at 1s, 2s, 4s.
func Default() Policy {
	return Policy{MaxRetries: DefaultMaxRetries, Base: DefaultBase}
}

// Do runs fn, retrying per the policy. It returns nil on the first success,
// the ctx error if cancelled while waiting, or the last attempt's error once
// retries are exhausted. An error wrapped with Permanent stops immediately.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	base := p.Base
	if base <= 0 {
		base = DefaultBase
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt >= maxRetries {
			return err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err)
		}
		if serr := sleep(ctx, base<<attempt); serr != nil {
			return serr
		}
	}
}

// Poll runs fn every interval until it reports done, fails hard, or attempts
// run out. Unlike Do, the interval is fixed; this is the bounded-timeout
// variant used for backup job status.
func Poll(ctx context.Context, attempts int, interval time.Duration, fn func(ctx context.Context) (done bool, err error)) error {
	sleep := sleepCtx
	for i := 0; i < attempts; i++ {
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if i == attempts-1 {
			break
		}
		if serr := sleep(ctx, interval); serr != nil {
			return serr
		}
	}
	return ErrExhausted
}

// Permanent marks err as non-retryable; Do returns it without waiting.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
