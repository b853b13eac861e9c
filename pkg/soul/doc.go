/*
Package soul is the boundary to the Soulseek peer-protocol library.

The daemon never frames wire messages itself. Everything it needs from
the peer network goes through the Client interface, and everything the
network tells it arrives as typed events through an Adapter. The
concrete protocol implementation is injected at composition time; this
package owns only the vocabulary of that boundary.

# Architecture

	┌───────────────────── PEER BOUNDARY ──────────────────────┐
	│                                                           │
	│   daemon components        Client (interface)            │
	│   ─────────────────        ──────────────────            │
	│   watchdog    ──Connect/Disconnect──►                    │
	│   searches    ──Search────────────►   concrete peer      │
	│   transfers   ──Upload────────────►   implementation     │
	│   users       ──Stats─────────────►                      │
	│   reload      ──Apply(patch)──────►                      │
	│                                                           │
	│              ◄──Handlers (search/browse/enqueue)──        │
	│                                                           │
	│   Client publishes Events ──► Adapter ──► subscribers    │
	│   (connected, disconnected, privileged users,            │
	│    download completed, diagnostics)                       │
	└───────────────────────────────────────────────────────────┘

# Events

Event-handler chains become channel fan-out: a client implementation
publishes each normalised event once, and the Adapter distributes it
to every subscriber with per-subscriber buffering. A slow subscriber
drops events rather than stalling the client's read loop.

# Handlers

Remote peers drive four callbacks: an incoming search to answer, a
browse of our shares, a single-directory listing, and a request to
enqueue an upload. Handlers are installed before Connect and run on
the client's read loop, so they must stay fast; the daemon's resolver
answers from an in-memory index and the enqueue handler only queues.

# OfflineClient

Builds without a peer-protocol implementation use OfflineClient, whose
Connect fails with errors.ErrUnsupported. The watchdog recognises that
as permanent and parks instead of retrying, so a daemon without peer
support still serves shares to relay agents and answers its HTTP API.

# Integration Points

This package integrates with:

  - pkg/watchdog: Connect/Disconnect lifecycle, DisconnectedEvent
  - pkg/searches: Search, NextToken
  - pkg/transfers: Upload
  - pkg/users: Stats, PrivilegedUsersEvent
  - pkg/relay: DownloadCompletedEvent fan-out to agents
  - pkg/daemon: constructs the Adapter, installs Handlers
*/
package soul
