/*
Package state provides an observable snapshot store.

A Store holds one immutable snapshot of a value type. Readers get the
current snapshot with Current; writers replace it atomically with Set,
passing a pure function of the previous snapshot. Every replacement is
broadcast to subscribers as a (previous, current) pair, so watchers can
diff exactly what changed without polling.

# Usage

Creating and reading:

	store := state.NewStore(types.State{Version: version})
	snap := store.Current()

Mutating:

	store.Set(func(cur types.State) types.State {
		cur.PendingRestart = true
		return cur
	})

Watching:

	sub := store.Subscribe()
	defer store.Unsubscribe(sub)
	for change := range sub {
		if change.Previous.Server.State != change.Current.Server.State {
			// react to the transition
		}
	}

# Semantics

  - Set serialises mutations under a single lock; the mutate function
    sees the latest snapshot and must not call back into the store.
  - Subscriber channels are buffered; a subscriber that falls behind
    misses intermediate changes rather than blocking writers. The
    current snapshot is always available via Current.
  - Unsubscribe closes the channel; ranging subscribers terminate.

# Integration Points

This package integrates with:

  - pkg/daemon: owns the Store[types.State] for the whole process
  - pkg/watchdog, pkg/shares, pkg/relay, pkg/scheduler: publish their
    sections of the snapshot
  - pkg/api: serves the snapshot at GET /application
*/
package state
