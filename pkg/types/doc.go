/*
Package types defines the core data structures used throughout the daemon.

This package contains the fundamental types that represent the file-sharing
domain model, including uploads and queue groups, shared files and
directories, searches and their responses, relay agent registrations, and
the application state snapshot. These types are used by all other packages
for queue management, search resolution, relay coordination, and API
responses.

# Architecture

The types package is the foundation of the daemon's data model. It defines:

  - Upload queue entries and their lifecycle states
  - Upload groups with slots, priorities, and queue strategies
  - Shared files, directories, and share roots
  - Search records, states, and peer responses
  - Relay modes and agent registrations
  - The observable application state snapshot

All types are designed to be:
  - Serializable (JSON for storage and the HTTP API)
  - Behavior-light (logic lives in the owning packages)
  - Validated (typed string constants for enums)

# Core Types

Upload Queue:
  - Upload: One queued or running upload to a remote user
  - UploadState: Queued, ready, started
  - UploadGroup: Slot-accounting bucket with priority and strategy
  - QueueStrategy: FirstInFirstOut or RoundRobin

Shares:
  - Share: A shared directory root (alias + local path)
  - File: One indexed file with audio attributes
  - Directory: A browsable listing of one shared directory

Searches:
  - Search: Persisted record of an outgoing search
  - SearchState: Requested, InProgress, and the Completed variants
  - SearchResponse: One peer's answer to a search

Relay:
  - RelayMode: None, controller, or agent
  - AgentRegistration: An authenticated agent on the controller

Application State:
  - State: Snapshot served at GET /application
  - ServerState, SharesState, RelayState, QueueState: its sections

# State Machine

Uploads follow a three-stage lifecycle:

	Queued → Ready → Started

  - Queued: enqueued, waiting for a slot
  - Ready: released by the scheduler, a slot is held
  - Started: the transfer executor is moving bytes

Searches move from Requested through InProgress to exactly one of the
Completed variants:

	Requested → InProgress → Completed, TimedOut
	                       → Completed, ResponseLimitReached
	                       → Completed, FileLimitReached
	                       → Completed, Errored
	                       → Completed, Cancelled

Completed states are terminal; SearchState.Terminal reports whether a
state is one of them.

# Usage

Creating an upload:

	upload := &types.Upload{
		ID:         uuid.New().String(),
		Username:   "alice",
		Filename:   "@@music/Album/01.flac",
		EnqueuedAt: time.Now(),
	}

Checking group capacity:

	group := &types.UploadGroup{
		Name:     types.GroupDefault,
		Priority: 500,
		Slots:    10,
		Strategy: types.StrategyRoundRobin,
	}
	if group.HasFreeSlot() {
		// release another upload
	}

# Design Patterns

Enumeration Pattern:

	All enums use typed string constants:
	  type UploadState string
	  const (
	      UploadQueued  UploadState = "queued"
	      UploadStarted UploadState = "started"
	  )

Optional Fields:

	Lifecycle timestamps use pointers; nil means the stage has not
	been reached (ReadyAt, StartedAt, EndedAt, ConnectedAt).

# Integration Points

This package integrates with:

  - pkg/scheduler: Orders and releases Upload records
  - pkg/shares: Indexes File and Directory records
  - pkg/searches: Persists Search and SearchResponse records
  - pkg/relay: Tracks AgentRegistration entries
  - pkg/state: Publishes the State snapshot
  - pkg/api: Serializes all of the above to clients

# Thread Safety

All types in this package are plain data:
  - Read-safe: Can be read concurrently from multiple goroutines
  - Write-unsafe: Mutations must be synchronized by the owning package

The scheduler, share index, and search service each guard their own
instances; the state store hands out copies, never shared pointers.
*/
package types
