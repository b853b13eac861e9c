/*
Package waiter provides keyed one-shot rendezvous between goroutines.

A Waiter maps a Key to at most one pending Future. One side registers
with Wait and blocks on the Future; another side, often on a different
transport entirely, resolves it with Complete or Throw. The pattern
stitches request/response flows across boundaries that have no shared
channel: a relay agent's HTTP POST resolving a controller-side stream
request, a hub login reply resolving the agent's pending call.

# Architecture

	┌──────────────────────── WAITER ────────────────────────┐
	│                                                         │
	│   Wait(key, timeout) ──► registry[key] = Future         │
	│                              │                          │
	│                              │  (other goroutine,       │
	│                              │   other transport)       │
	│   Complete(key, value) ──────┤                          │
	│   Throw(key, err) ───────────┤                          │
	│   timeout elapses ───────────┘                          │
	│                              │                          │
	│                              ▼                          │
	│   Future.Await(ctx) ◄── resolves exactly once           │
	└─────────────────────────────────────────────────────────┘

# Semantics

  - At most one wait per key; a second concurrent Wait returns a
    conflict error.
  - Resolution removes the registration before the waiter resumes, so
    a continuation may re-register the same key immediately.
  - A timeout fails the future with a timeout error kind and removes
    the registration.
  - Await with a cancelled context abandons the registration; a late
    Complete then reports false.

# Usage

Waiting for an agent's answer:

	key := waiter.NewKey("file-stream", id)
	future, err := w.Wait(key, 10*time.Second)
	if err != nil {
		return nil, err
	}
	stream, err := waiter.Await[io.ReadCloser](ctx, future)

Resolving from the HTTP handler that receives the bytes:

	w.Complete(waiter.NewKey("file-stream", id), stream)

# Integration Points

This package integrates with:

  - pkg/relay: file-stream, file-info, share-upload rendezvous
  - pkg/scheduler: upload readiness signalling
  - pkg/searches: outgoing search completion
*/
package waiter
