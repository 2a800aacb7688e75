package backoff

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fakeSleep records requested delays without actually sleeping.
func fakeSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	var delays []time.Duration
	p := Policy{MaxRetries: 3, Base: time.Second, Sleep: fakeSleep(&delays)}

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if len(delays) != 0 {
		t.Errorf("slept %d times, want 0", len(delays))
	}
}

func TestDoRetryCeiling(t *testing.T) {
	var delays []time.Duration
	p := Policy{MaxRetries: 3, Base: time.Second, Sleep: fakeSleep(&delays)}

	calls := 0
	wantErr := fmt.Errorf("boom")
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Do() error = %v, want boom", err)
	}
	// Initial attempt + exactly 3 automatic retries.
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
}

func TestDoBackoffSchedule(t *testing.T) {
	var delays []time.Duration
	p := Policy{MaxRetries: 3, Base: time.Second, Sleep: fakeSleep(&delays)}

	_ = p.Do(context.Background(), func(context.Context) error {
		return fmt.Errorf("always fails")
	})

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("got %d delays, want %d", len(delays), len(want))
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestDoSurfacesRetryCount(t *testing.T) {
	var delays []time.Duration
	var retries []int
	p := Policy{
		MaxRetries: 3,
		Base:       time.Second,
		Sleep:      fakeSleep(&delays),
		OnRetry:    func(n int, _ error) { retries = append(retries, n) },
	}

	_ = p.Do(context.Background(), func(context.Context) error {
		return fmt.Errorf("fail")
	})

	if len(retries) != 3 || retries[0] != 1 || retries[2] != 3 {
		t.Errorf("retries = %v, want [1 2 3]", retries)
	}
}

func TestDoPermanentStopsImmediately(t *testing.T) {
	var delays []time.Duration
	p := Policy{MaxRetries: 3, Base: time.Second, Sleep: fakeSleep(&delays)}

	authErr := errors.New("unauthorized")
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(authErr)
	})
	if !errors.Is(err, authErr) {
		t.Errorf("Do() error = %v, want unauthorized", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (permanent error must not retry)", calls)
	}
}

func TestDoCancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{
		MaxRetries: 3,
		Base:       time.Second,
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}

	err := p.Do(ctx, func(context.Context) error {
		return fmt.Errorf("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
}

func TestPollBound(t *testing.T) {
	calls := 0
	err := Poll(context.Background(), 30, time.Millisecond, func(context.Context) (bool, error) {
		calls++
		return false, nil
	})
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("Poll() error = %v, want ErrExhausted", err)
	}
	if calls != 30 {
		t.Errorf("calls = %d, want exactly 30", calls)
	}
}

func TestPollStopsOnDone(t *testing.T) {
	calls := 0
	err := Poll(context.Background(), 30, time.Millisecond, func(context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}
