/*
Package relay lets one well-connected controller advertise and serve
the shares of many agents. Agents dial the controller's websocket hub,
authenticate with a shared secret, and push their share repositories;
when a remote peer downloads an agent's file, the controller pulls the
bytes from that agent over HTTP in real time.

# Architecture

	        controller                                agent
	   ┌──────────────────────┐              ┌─────────────────────┐
	   │ HandleHub ◄──────────┼── websocket ─┼─► Run / session     │
	   │   challenge → login  │              │   answer challenge  │
	   │   agent registry     │              │   upload shares     │
	   │                      │              │                     │
	   │ HandleShareUpload ◄──┼── multipart ─┼── repo dump + roots │
	   │   validate → install │              │                     │
	   │                      │              │                     │
	   │ GetFileStream ───────┼── invoke ───►│ resolve, open file  │
	   │   waiter rendezvous  │              │                     │
	   │ HandleFileUpload ◄───┼── multipart ─┼── streaming body    │
	   │   body = the stream  │              │                     │
	   │                      │              │                     │
	   │ NotifyDownload… ─────┼── invoke ───►│ fetchDownload       │
	   │ HandleDownload ◄─────┼──── GET ─────┼── save locally      │
	   └──────────────────────┘              └─────────────────────┘

# Hub protocol

Frames are JSON envelopes over one gorilla/websocket connection per
agent: {seq, kind, method, payload}. Kind "invoke" with seq 0 is
fire-and-forget; a positive seq demands a "result" frame carrying the
same seq. Only the agent issues calls (Login, BeginShareUpload,
ReturnFileInfo); the controller replies on the agent's read loop and
pushes everything else one-way. Replies rendezvous through the shared
waiter keyed on the sequence number.

# Authentication

Every proof in the protocol is an AES-GCM credential: the shared
secret and agent name derive a key via PBKDF2, and the credential is
the sealed token. The controller issues a short-lived challenge token
per connection and consumes it on the first login attempt, pass or
fail. HTTP endpoints repeat the scheme with their own tokens: a
one-shot grant for share uploads, the stream id for file uploads, and
the notify id for download fetches, which stays valid for its whole
TTL so agent retries succeed.

# File streams

GetFileStream bridges a local consumer to a remote agent's disk. The
controller caches a capability token, registers a waiter for the
stream, and invokes RequestFileUpload. The agent opens the file and
POSTs it; HandleFileUpload validates the capability, hands its still
open request body to the waiting consumer, and then blocks on a second
waiter until TryCloseFileStream reports how consumption ended. An
agent that cannot serve the file sends NotifyFileUploadFailed, which
throws the first waiter and fails the consumer immediately rather
than letting it time out.

# Share repositories

After each successful login the agent dumps its local repository file
and POSTs it with the share roots. The controller writes the body next
to the final path, validates it, evicts any previous repository for
that agent, and installs the new one in the share index. Losing the
hub connection removes the agent's host from the index.

# Integration Points

  - pkg/shares: agent repositories install into the Index; the agent
    resolves requested wire paths against its local shares.
  - pkg/waiter, pkg/tokens, pkg/security: rendezvous, capability
    tokens, and credential material.
  - pkg/transfers: the upload executor consumes GetFileStream when a
    requested file lives on an agent.
  - pkg/api: mounts HandleHub, HandleShareUpload, HandleFileUpload,
    and HandleDownload; the daemon runs Agent.Run in agent mode.
*/
package relay
