// Package retry runs an operation with bounded exponential backoff.
// The wait happens synchronously within the caller's lifetime; the sleep
// is injectable so retry timing is testable without real delays.
package retry

import (
	"context"
	"log"
	"time"
)

// Policy bounds a retried operation.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy returns the production defaults: 3 attempts, 1s base delay
// (waits of 1s and 2s between attempts).
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second}
}

// SleepFunc waits for d or until ctx is cancelled.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Executor invokes operations under a Policy.
type Executor struct {
	policy Policy
	sleep  SleepFunc
}

func New(policy Policy) *Executor {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Executor{policy: policy, sleep: sleepWithContext}
}

// WithSleep overrides the backoff sleep. Only for tests.
func (e *Executor) WithSleep(sleep SleepFunc) *Executor {
	e.sleep = sleep
	return e
}

// Run invokes fn up to MaxAttempts times. Before retry n it waits
// BaseDelay * 2^(n-2), so attempt 2 follows a 1x wait and attempt 3 a 2x
// wait. After the budget is exhausted the last error is returned.
// Context cancellation during backoff aborts with ctx.Err().
func (e *Executor) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := e.policy.BaseDelay << (attempt - 2)
			log.Printf("retry: attempt=%d backoff=%s err=%v", attempt, delay, lastErr)
			if err := e.sleep(ctx, delay); err != nil {
				return err
			}
		}

		if err := fn(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return lastErr
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
