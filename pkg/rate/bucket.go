package rate

import (
	"context"
	"sync"
	"time"
)

// TokenBucket meters byte throughput. An internal clock resets the
// available count to capacity every interval; Get draws from the
// count and suspends while it is empty. Unused grants can be handed
// back with Return so partial reads do not overcount.
type TokenBucket struct {
	mu       sync.Mutex
	capacity int64
	current  int64
	refilled chan struct{}

	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewTokenBucket creates a bucket holding capacity tokens per interval
// and starts its refill clock. Capacity below 1 is raised to 1.
func NewTokenBucket(capacity int64, interval time.Duration) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	b := &TokenBucket{
		capacity: capacity,
		current:  capacity,
		refilled: make(chan struct{}),
		interval: interval,
		stopCh:   make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *TokenBucket) run() {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.mu.Lock()
			b.current = b.capacity
			// Wake everyone suspended on the previous interval.
			close(b.refilled)
			b.refilled = make(chan struct{})
			b.mu.Unlock()
		case <-b.stopCh:
			return
		}
	}
}

// Get obtains up to n tokens, returning how many were granted:
// min(n, available, capacity). An empty bucket suspends the caller
// until the next clock tick. A stopped bucket grants requests in full.
func (b *TokenBucket) Get(ctx context.Context, n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}

	for {
		select {
		case <-b.stopCh:
			return n, nil
		default:
		}

		b.mu.Lock()
		if b.current > 0 {
			take := min(n, b.current, b.capacity)
			b.current -= take
			b.mu.Unlock()
			return take, nil
		}
		refilled := b.refilled
		b.mu.Unlock()

		select {
		case <-refilled:
		case <-b.stopCh:
			return n, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Return hands back k unused tokens, clamped to capacity. Non-positive
// k is a no-op. Waiters are not woken early; they resume on the next
// tick as usual.
func (b *TokenBucket) Return(k int64) {
	if k <= 0 {
		return
	}
	b.mu.Lock()
	b.current = min(b.current+k, b.capacity)
	b.mu.Unlock()
}

// SetCapacity resizes the bucket, retaining min(available, newCapacity)
// of the current count. Capacity below 1 is raised to 1.
func (b *TokenBucket) SetCapacity(capacity int64) {
	if capacity < 1 {
		capacity = 1
	}
	b.mu.Lock()
	b.capacity = capacity
	b.current = min(b.current, capacity)
	b.mu.Unlock()
}

// Capacity returns the configured per-interval capacity.
func (b *TokenBucket) Capacity() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}

// Available returns the tokens remaining in the current interval.
func (b *TokenBucket) Available() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Stop halts the refill clock. Pending and future Gets are granted in
// full so shutdown is never throttled.
func (b *TokenBucket) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
}
