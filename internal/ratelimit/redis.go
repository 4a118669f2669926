package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter implements the same fixed-window policy as MemoryLimiter
// with bucket state in Redis, so multiple ingress replicas share budgets.
//
// Per key it maintains a counter with the window as its TTL and a separate
// block marker with the block duration as its TTL. INCR is atomic, so the
// point decrement cannot lose updates across replicas.
type RedisLimiter struct {
	client *redis.Client
	policy Policy
}

func NewRedisLimiter(client *redis.Client, policy Policy) *RedisLimiter {
	return &RedisLimiter{client: client, policy: policy}
}

func (l *RedisLimiter) Consume(ctx context.Context, key string) (Decision, error) {
	blockKey := "ratelimit:block:" + key
	countKey := "ratelimit:count:" + key

	// Blocked keys are rejected without touching the point balance.
	ttl, err := l.client.PTTL(ctx, blockKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: block check: %w", err)
	}
	if ttl > 0 {
		return Decision{RetryAfter: ttl}, nil
	}

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, countKey)
	pipe.ExpireNX(ctx, countKey, l.policy.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("ratelimit: consume: %w", err)
	}

	count := incr.Val()
	if count > int64(l.policy.Points) {
		if err := l.client.Set(ctx, blockKey, 1, l.policy.BlockDuration).Err(); err != nil {
			return Decision{}, fmt.Errorf("ratelimit: set block: %w", err)
		}
		// The counter is left to expire with its window; the block marker
		// outlives it and keeps rejecting until the cooldown passes.
		return Decision{RetryAfter: l.policy.BlockDuration}, nil
	}

	return Decision{Allowed: true, Remaining: l.policy.Points - int(count)}, nil
}
