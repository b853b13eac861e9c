/*
Package searches holds both halves of search handling: answering other
people's queries and running our own.

# Architecture

	             remote peer                      operator / API
	                  │                                  │
	                  ▼                                  ▼
	   ┌─────────── Resolver ───────────┐   ┌──────── Lifecycle ────────┐
	   │ blacklist gate                 │   │ Create / Cancel / Find /  │
	   │ min-query-length gate          │   │ List / Delete             │
	   │ index search (bounded)         │   │   │                       │
	   │ browse / directory listings    │   │   ▼ one goroutine per     │
	   └───────────┬────────────────────┘   │ client.Search ── sink ──┐ │
	               │                        │   counters persisted    │ │
	               ▼                        │   per event             │ │
	         shares.Index                   │   responses in memory ◄─┘ │
	                                        └───────────┬──────────────┘
	                                                    ▼
	                                           Store (bbolt, searches.db)

# Resolver

The resolver runs on the peer client's read loop, so it never blocks
and never does unbounded work. Gates fire in order: blacklisted
username, then query shorter than the configured minimum, and only
then the share index. An empty result set produces no response at all;
peers must not see a zero-file answer. Responses advertise whether the
scheduler has a free non-leecher slot and how long the queue is, so
remote clients can rank us honestly.

# Lifecycle

Create inserts a Requested record, takes a token from the client, and
starts a goroutine that owns the search until a terminal state. The
record's counters (responses, files, locked files) are persisted on
every response event; the response list itself is held in memory and
written exactly once, at the terminal transition. List and Find read
whatever is persisted, so an in-progress search shows live counters
and no responses.

Terminal states are the Completed variants of types.SearchState. A
cancelled context maps to Completed, Cancelled; client errors without
a terminal state map to Completed, Errored.

Searches outlive the HTTP request that created them. Cancel works only
while the search runs; afterwards it reports a conflict. Stop cancels
everything and waits for the final writes, so shutdown never loses a
terminal transition.

# Retention

Store.Prune deletes terminal searches that ended before a cutoff. The
daemon calls it on a ticker with cutoff = now - searches.retention.

# Integration Points

  - pkg/soul: Handlers route SearchRequested / BrowseRequested /
    DirectoryRequested to the resolver; the lifecycle drives
    Client.Search.
  - pkg/shares: the resolver consults the index and converts paths to
    wire form.
  - pkg/scheduler: free-slot and queue-length advertisement.
  - pkg/api: /searches CRUD maps onto the lifecycle.
  - pkg/daemon: wires options reloads and the retention ticker.
*/
package searches
