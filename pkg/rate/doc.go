/*
Package rate provides the token bucket that meters upload throughput.

A TokenBucket refills to its full capacity on a fixed clock rather than
dripping continuously: every interval the available count snaps back to
capacity, and readers draw what they need from the current interval's
allowance. A caller that used fewer bytes than it was granted returns
the difference, keeping the accounting honest for short reads.

This shape matches how transfer governors behave in practice: a copy
loop asks for a chunk-sized grant before each read, sleeps through the
empty tail of an interval, and the effective rate converges on
capacity/interval.

# Usage

Creating a governor of 500 KiB/s with a 100ms clock:

	bucket := rate.NewTokenBucket(500*1024/10, 100*time.Millisecond)
	defer bucket.Stop()

A rate-limited copy loop:

	for {
		grant, err := bucket.Get(ctx, int64(len(buf)))
		if err != nil {
			return err
		}
		n, err := src.Read(buf[:grant])
		bucket.Return(grant - int64(n))
		...
	}

Live resizing on config reload:

	bucket.SetCapacity(newLimit)

# Semantics

  - Get grants min(n, available, capacity) and suspends only when the
    bucket is empty; partial grants do not block.
  - Suspended callers resume on the next tick, not on Return.
  - SetCapacity retains min(available, newCapacity), so shrinking the
    bucket mid-interval cannot mint tokens.
  - A stopped bucket grants everything; shutdown is never throttled.

# Integration Points

This package integrates with:

  - pkg/transfers: the global upload governor
  - pkg/daemon: capacity updates on config reload
*/
package rate
