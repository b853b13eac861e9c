/*
Package daemon assembles and runs the whole process.

Every other package does one job; this one owns the object graph, the
process lifecycle, and the two cross-cutting flows that no single
component can host: routing peer client events and applying
configuration changes while running.

# Architecture

	                      ┌─────────────┐
	   config watcher ───►│             │───► scheduler / users /
	   (fsnotify)         │   Daemon    │     resolver / lifecycle /
	                      │             │     index / bucket (reconfig)
	   soul.Adapter ─────►│  event pump │
	   (client events)    │  reload     │───► soul.Client.Apply (patch)
	                      │  retention  │
	   HTTP API ─────────►│  lifecycle  │───► watchdog (connect policy)
	   (Application)      └─────────────┘

New opens the persistent stores (search database, local share
repository), builds every component, and wires the peer client's
handlers to the resolver and the transfer executor. Start launches the
run loops on one errgroup; Stop tears everything down in dependency
order. The relay role is fixed at construction: a controller gets the
hub routes and the agent-stream plumbing, an agent gets the session
and share-push loops, and mode changes require a restart.

# Event routing

The peer client publishes tagged events into a soul.Adapter; the
daemon holds one subscription and fans the events to their owners:
disconnects to the watchdog, the privileged user list to the user
service, completed downloads to the relay controller's notification
fan-out, diagnostics to the log. The pump does no work of its own so
the client's read loop is never held up for long.

# Reload plane

A watcher pulse means the config file may have changed. Reconcile
loads and validates the candidate — a file that does not parse or
validate is rejected whole and the previous options stay in effect —
then diffs it against the live tree leaf by leaf. Each difference is
logged with old and new values (secret-bearing leaves redacted);
restart-flagged differences raise the pending-restart flag rather
than applying. Live changes rebuild the scheduler groups with their
used-slot counts, retune the search and share limits, resize the
upload bucket, and fold soulseek.* changes into a connection patch
for the client, which reports whether a reconnect is still pending.
Share root or filter changes trigger a rescan. Reconciliations are
serialised behind one mutex and counted by outcome.

# Process lifecycle

The daemon implements api.Application, so the HTTP API drives it:
state snapshots, options access, connect and disconnect, shutdown and
restart. Shutdown and restart do not stop anything in place — they
close the Done channel with an exit code and let the entrypoint run
the ordered Stop. ExitRestart (3) tells a supervisor to relaunch the
process; an HTTP listener failure exits with ExitFailure (1).

# Integration Points

  - cmd/slskd: builds the Config, selects on Done and signals, calls
    Stop, and exits with ExitState's code.
  - pkg/api: drives the Application surface.
  - pkg/soul: the client handed in at construction and the event
    adapter the pump subscribes to.
  - every component package: constructed here, reconfigured here.
*/
package daemon
