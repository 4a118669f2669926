// Package ratelimit provides per-client admission control for the webhook
// ingress. A client key has a fixed budget of points per rolling window;
// exhausting the budget blocks the key outright for a cooldown period.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Policy holds the admission parameters for every client key.
type Policy struct {
	Points        int           // budget per window
	Window        time.Duration // rolling window length
	BlockDuration time.Duration // cooldown after exhaustion
}

// DefaultPolicy returns the production defaults: 100 points per
// 60-second window, 15-minute block on exhaustion.
func DefaultPolicy() Policy {
	return Policy{
		Points:        100,
		Window:        60 * time.Second,
		BlockDuration: 15 * time.Minute,
	}
}

// Decision is the outcome of a single consumption attempt.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration // positive when rejected
}

// Limiter admits or rejects requests per client key.
// Implementations must be safe for concurrent use.
type Limiter interface {
	Consume(ctx context.Context, key string) (Decision, error)
}

type bucket struct {
	remaining     int
	windowResetAt time.Time
	blockedUntil  time.Time
}

// MemoryLimiter keeps bucket state in a mutex-guarded map.
// Suitable for a single ingress replica; use RedisLimiter when budgets
// must be shared across replicas.
type MemoryLimiter struct {
	mu      sync.Mutex
	policy  Policy
	buckets map[string]*bucket
	clock   func() time.Time
}

func NewMemoryLimiter(policy Policy) *MemoryLimiter {
	return &MemoryLimiter{
		policy:  policy,
		buckets: make(map[string]*bucket),
		clock:   time.Now,
	}
}

// WithClock overrides the time source. Only for tests.
func (l *MemoryLimiter) WithClock(clock func() time.Time) *MemoryLimiter {
	l.clock = clock
	return l
}

// Consume spends one point for key. The decrement and any transition to
// the blocked state happen atomically under the limiter's lock.
func (l *MemoryLimiter) Consume(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{
			remaining:     l.policy.Points,
			windowResetAt: now.Add(l.policy.Window),
		}
		l.buckets[key] = b
	}

	if !b.blockedUntil.IsZero() {
		if now.Before(b.blockedUntil) {
			return Decision{RetryAfter: b.blockedUntil.Sub(now)}, nil
		}
		// Block elapsed; the key starts over with a fresh window.
		b.blockedUntil = time.Time{}
		b.remaining = l.policy.Points
		b.windowResetAt = now.Add(l.policy.Window)
	}

	if !now.Before(b.windowResetAt) {
		b.remaining = l.policy.Points
		b.windowResetAt = now.Add(l.policy.Window)
	}

	if b.remaining <= 0 {
		b.blockedUntil = now.Add(l.policy.BlockDuration)
		return Decision{RetryAfter: l.policy.BlockDuration}, nil
	}

	b.remaining--
	return Decision{Allowed: true, Remaining: b.remaining}, nil
}
