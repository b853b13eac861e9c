/*
Package scheduler decides which queued upload starts next.

Peers enqueue download requests far faster than a home connection can
serve them, so every upload waits in a queue until a slot frees. This
package owns that queue: per-user upload lists, slot-accounting
groups, and the selection pass that releases exactly one upload at a
time. It never touches the network or the disk — releasing an upload
just closes a readiness channel that the transfer executor is waiting
on.

# Architecture

	           Enqueue / AwaitStart / Complete
	                        │
	       ┌────────────────▼─────────────────┐
	       │             Queue                │
	       │                                  │
	       │  users: username → [uploads]     │
	       │  groups: ordered slot buckets    │
	       │                                  │
	       │  Process():                      │
	       │    1. walk groups by priority    │
	       │    2. skip full / empty groups   │
	       │    3. pick best head by strategy │
	       │    4. mark released, count slot  │
	       │    5. close readiness channel    │
	       └────────────────┬─────────────────┘
	                        │
	                 transfer executor
	            (was blocked on AwaitStart)

One mutex guards the user lists and the group table. Process selects
under that mutex and signals after dropping it, so a continuation that
immediately re-enters the queue never deadlocks.

# Groups

Groups are slot buckets with a priority, a capacity, and a strategy.
Three always exist:

	privileged   priority 0, full global budget, FIFO
	default      configured; where unclassified users land
	leechers     configured; users sharing too little

plus any user-defined groups from configuration, ordered after the
built-ins by name. Lower priority numbers release first: as long as a
higher-priority group has a free slot and a waiting candidate, no
lower-priority group releases anything. Capacity is clamped to the
global slot count, and total running uploads never exceed it either.

Which group a user belongs to is asked of the GroupResolver at release
time, not enqueue time. A user who turns privileged, or gets
classified as a leecher, while queued is scheduled under the group
they are in when a slot actually frees.

# Strategies

Within a group, each queued user contributes one candidate: the first
of their uploads not yet released. The strategy orders the candidates:

  - FirstInFirstOut releases the oldest enqueue first, regardless of
    who else is waiting. One user queueing an album ahead of everyone
    gets the whole album served first.
  - RoundRobin rotates across users. Each candidate carries a turn
    timestamp, initialised at enqueue; releasing a user's upload bumps
    their next candidate's turn to now, sending them to the back of
    the rotation. A user queueing fifty files shares the slot fairly
    with a user queueing one.

Ties break on (username, enqueue time, filename), so selection is
deterministic under equal timestamps.

# Lifecycle of an upload

	Enqueue ──────► queued ──Process──► released ──Complete──► gone
	                  │                    │
	             AwaitStart ◄──────── channel closed

Enqueue is idempotent per (user, filename): repeats report
AlreadyQueued instead of duplicating. Complete removes the upload and
decrements the used-slot count of the group it was released under —
the assigned group, which can differ from the user's current group.
Completing an upload that never got released simply removes it from
the queue. Failed transfers call Complete like successful ones; the
queue does not re-enqueue on its own.

# Reconfiguration

When group options change, the table is rebuilt. Groups that keep
their name keep their used-slot counts, so running uploads stay
accounted. Running uploads whose group vanished are re-bucketed to
default for accounting only — nothing is cancelled, and default may
transiently sit above its capacity until they drain. Queued uploads
are unaffected; they are simply selected under the new table.

# Usage

	queue := scheduler.New(userService, opts.Groups, opts.Global.Upload.Slots)
	queue.Start()
	defer queue.Stop()

	if result, err := queue.Enqueue("alice", filename); err == nil && result == scheduler.Enqueued {
		queue.Drain()
	}

	ready, err := queue.AwaitStart("alice", filename)
	if err != nil {
		return err
	}
	select {
	case <-ready:
		// slot granted: move bytes, then release the slot
		defer queue.Complete("alice", filename)
	case <-ctx.Done():
		queue.Complete("alice", filename)
		return ctx.Err()
	}

# Integration Points

  - pkg/transfers: enqueues on peer request, blocks on AwaitStart,
    completes in every exit path.
  - pkg/users: the GroupResolver implementation.
  - pkg/searches: HasFreeNonLeecherSlot and Snapshot feed search
    response metadata.
  - pkg/api: Groups and List back the queue inspection endpoints.
  - pkg/daemon: applies option changes via Reconfigure.

# Thread Safety

All methods are safe for concurrent use. The periodic loop started by
Start only calls Drain; it exists so releases unlocked by
reclassification or reconfiguration happen without an explicit poke.
*/
package scheduler
