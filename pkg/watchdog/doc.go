/*
Package watchdog supervises the server connection.

The Soulseek server drops sessions for many reasons: network blips,
server restarts, duplicate logins, bans. The watchdog owns the policy
of what happens next. Components that need the server simply use the
client; the watchdog keeps the client connected, or deliberately
parked, and nothing else has to care which.

# States

	            Start()
	  Stopped ──────────► Connecting ──connect ok──► Connected
	     ▲                    │  ▲                       │
	     │   fatal cause,     │  │ unexpected            │
	     │   no credentials,  │  │ disconnect            │
	     │   Stop()           │  └───────────────────────┘
	     └────────────────────┘

Start is idempotent. While Connecting, Restart short-circuits the
current backoff delay so an impatient operator does not wait out five
minutes after fixing their firewall. Stop parks; with abortReconnect
it also drops the live session with an intentional cause, and later
disconnect events will not revive the loop until the next Start.

# Reconnect policy

Disconnect causes fall in three classes:

  - Deliberate (shutting down, intentional): the process asked for
    this; park quietly.
  - Fatal (login rejected, kicked from server): retrying would loop
    forever against an authoritative no; park and log at error level.
  - Everything else: reconnect.

Reconnect delays follow 0, 1s, 3s, 7s, 15s, 31s, ... doubling-ish and
capped at five minutes, each with a uniform jitter in [0, delay/4] so
a server restart does not get a synchronised stampede of clients. The
attempt counter resets on success. Connection parameters are read
fresh on every attempt, so live configuration changes (address,
credentials) apply to the next try without restarting the loop.

Two conditions park instead of retrying: missing credentials (warned,
not an error; the operator has not configured a login yet) and a
client that reports connecting as unsupported.

# Usage

	w := watchdog.New(client, func() soul.ConnectionParams {
		return paramsFrom(options.Load())
	}, func(state types.ServerConnectionState, attempts int) {
		// fold into the observable state snapshot
	})

	w.Start()

	// from the client event loop:
	w.HandleDisconnect(event.Cause, event.Err)

	// operator actions:
	w.Restart()   // skip the current backoff delay
	w.Stop(true)  // disconnect and stay down

# Integration Points

  - pkg/soul: supplies the client and the disconnect causes.
  - pkg/daemon: routes DisconnectedEvent to HandleDisconnect, wires
    the notify callback into the state store, and maps PUT /server and
    DELETE /server to Start/Restart and Stop.
*/
package watchdog
