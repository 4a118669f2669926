package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

// recordingSleep captures backoff delays without actually waiting.
type recordingSleep struct {
	delays []time.Duration
}

func (s *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func TestRun_SucceedsFirstAttempt(t *testing.T) {
	sleep := &recordingSleep{}
	e := New(Policy{MaxAttempts: 3, BaseDelay: time.Second}).WithSleep(sleep.sleep)

	calls := 0
	err := e.Run(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if len(sleep.delays) != 0 {
		t.Errorf("expected no backoff, got %v", sleep.delays)
	}
}

func TestRun_ThirdAttemptSucceeds(t *testing.T) {
	sleep := &recordingSleep{}
	e := New(Policy{MaxAttempts: 3, BaseDelay: time.Second}).WithSleep(sleep.sleep)

	calls := 0
	err := e.Run(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}

	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(sleep.delays) != len(want) {
		t.Fatalf("expected delays %v, got %v", want, sleep.delays)
	}
	for i := range want {
		if sleep.delays[i] != want[i] {
			t.Errorf("delay %d: expected %s, got %s", i, want[i], sleep.delays[i])
		}
	}
}

func TestRun_ExhaustionReturnsLastError(t *testing.T) {
	sleep := &recordingSleep{}
	e := New(Policy{MaxAttempts: 3, BaseDelay: time.Second}).WithSleep(sleep.sleep)

	calls := 0
	lastErr := errors.New("attempt 3 failed")
	err := e.Run(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 3 {
			return lastErr
		}
		return errors.New("earlier failure")
	})
	if !errors.Is(err, lastErr) {
		t.Fatalf("expected last error to propagate, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRun_BackoffDoubles(t *testing.T) {
	sleep := &recordingSleep{}
	e := New(Policy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond}).WithSleep(sleep.sleep)

	e.Run(context.Background(), func(ctx context.Context) error {
		return errors.New("always fails")
	})

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}
	if len(sleep.delays) != len(want) {
		t.Fatalf("expected %d delays, got %d", len(want), len(sleep.delays))
	}
	for i := range want {
		if sleep.delays[i] != want[i] {
			t.Errorf("delay %d: expected %s, got %s", i, want[i], sleep.delays[i])
		}
	}
}

func TestRun_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := New(Policy{MaxAttempts: 3, BaseDelay: time.Second}).
		WithSleep(func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		})

	calls := 0
	err := e.Run(ctx, func(ctx context.Context) error {
		calls++
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected no further attempts after cancellation, got %d calls", calls)
	}
}

func TestRun_RealSleepTiming(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}

	e := New(Policy{MaxAttempts: 3, BaseDelay: 20 * time.Millisecond})

	start := time.Now()
	e.Run(context.Background(), func(ctx context.Context) error {
		return errors.New("always fails")
	})
	elapsed := time.Since(start)

	// Waits of 20ms + 40ms = 60ms, with generous slack for CI.
	if elapsed < 60*time.Millisecond {
		t.Errorf("expected at least 60ms of backoff, got %s", elapsed)
	}
	if elapsed > 300*time.Millisecond {
		t.Errorf("backoff took unexpectedly long: %s", elapsed)
	}
}
