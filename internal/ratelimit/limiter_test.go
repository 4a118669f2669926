package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func testPolicy() Policy {
	return Policy{
		Points:        100,
		Window:        60 * time.Second,
		BlockDuration: 900 * time.Second,
	}
}

func TestConsume_FullBudgetAdmitted(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(testPolicy()).WithClock(func() time.Time { return clock })

	for i := 1; i <= 100; i++ {
		d, err := l.Consume(context.Background(), "1.2.3.4")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d: expected allowed", i)
		}
		if d.Remaining != 100-i {
			t.Fatalf("request %d: expected remaining %d, got %d", i, 100-i, d.Remaining)
		}
	}
}

func TestConsume_ExhaustionBlocks(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(testPolicy()).WithClock(func() time.Time { return clock })

	for i := 0; i < 100; i++ {
		l.Consume(context.Background(), "1.2.3.4")
	}

	d, err := l.Consume(context.Background(), "1.2.3.4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Fatal("101st request: expected rejection")
	}
	if d.RetryAfter != 900*time.Second {
		t.Fatalf("expected retry-after 900s, got %s", d.RetryAfter)
	}
}

func TestConsume_BlockOutlivesWindowReset(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(testPolicy()).WithClock(func() time.Time { return now })

	for i := 0; i < 101; i++ {
		l.Consume(context.Background(), "1.2.3.4")
	}

	// Well past the 60s window, still inside the 900s block.
	now = now.Add(5 * time.Minute)

	d, err := l.Consume(context.Background(), "1.2.3.4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected rejection during block even after window reset")
	}
	if d.RetryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %s", d.RetryAfter)
	}
}

func TestConsume_BlockElapsedResetsBudget(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(testPolicy()).WithClock(func() time.Time { return now })

	for i := 0; i < 101; i++ {
		l.Consume(context.Background(), "1.2.3.4")
	}

	now = now.Add(901 * time.Second)

	d, err := l.Consume(context.Background(), "1.2.3.4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Fatal("expected admission after block elapsed")
	}
	if d.Remaining != 99 {
		t.Fatalf("expected fresh budget with remaining 99, got %d", d.Remaining)
	}
}

func TestConsume_WindowReset(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(testPolicy()).WithClock(func() time.Time { return now })

	for i := 0; i < 50; i++ {
		l.Consume(context.Background(), "1.2.3.4")
	}

	now = now.Add(61 * time.Second)

	d, _ := l.Consume(context.Background(), "1.2.3.4")
	if !d.Allowed {
		t.Fatal("expected admission in new window")
	}
	if d.Remaining != 99 {
		t.Fatalf("expected remaining 99 after window reset, got %d", d.Remaining)
	}
}

func TestConsume_KeysAreIndependent(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(testPolicy()).WithClock(func() time.Time { return clock })

	for i := 0; i < 101; i++ {
		l.Consume(context.Background(), "1.2.3.4")
	}

	d, _ := l.Consume(context.Background(), "5.6.7.8")
	if !d.Allowed {
		t.Fatal("expected second key to be unaffected by first key's block")
	}
}

func TestConsume_ConcurrentNoLostUpdates(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(testPolicy()).WithClock(func() time.Time { return clock })

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Consume(context.Background(), "1.2.3.4")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 100 {
		t.Fatalf("expected exactly 100 admissions under concurrency, got %d", allowed)
	}
}
