/*
Package transfers executes uploads end to end: from a peer's enqueue
request to the last governed byte.

# Architecture

	    peer library (enqueue request)
	            │
	            ▼
	     HandleEnqueue ── resolve ──► shares.Index
	            │
	            ▼ enqueue
	     scheduler.Queue ── release (ready channel)
	            │
	            ▼ one goroutine per upload
	        deliver
	            │
	    ┌───────┴────────┐
	    ▼                ▼
	 local file     relay.GetFileStream
	    └───────┬────────┘
	            ▼
	    governedReader ── rate.TokenBucket
	            │
	            ▼
	     soul.Client.Upload

# Admission and delivery

HandleEnqueue runs on the peer client's read loop, so it only
resolves, enqueues, and spawns. A repeat request for a (user, file)
pair already queued is acknowledged without a second delivery. The
delivery goroutine blocks on the scheduler's readiness channel; the
scheduler decides order and timing, the executor only obeys.

Sources are re-resolved at release time. Files on the local host are
opened from disk; files on a relay agent first answer a length probe
and then arrive as a live stream brokered by the controller. In both
cases the slot is released through Complete exactly once, whatever
the outcome, and the relay stream rendezvous is always closed with
the upload's final error so the agent's POST settles.

# Throttling

Every source is wrapped in a governedReader drawing grants from the
shared token bucket before each read. Short reads return the unused
part of the grant. The bucket is global, so concurrent uploads share
the configured limit rather than multiplying it.

# Integration Points

  - pkg/soul: HandleEnqueue is the EnqueueRequested handler; delivery
    pushes through Client.Upload.
  - pkg/scheduler: Enqueue / AwaitStart / Complete drive the slot
    lifecycle.
  - pkg/relay: GetFileInfo, GetFileStream and TryCloseFileStream for
    agent-hosted files.
  - pkg/rate: the shared upload bucket; pkg/daemon resizes it on
    reload.
*/
package transfers
