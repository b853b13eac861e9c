/*
Package users classifies remote users into upload scheduler groups.

Every upload slot decision starts with the question "which group does
this user belong to right now?". This package owns that answer. It is
deliberately passive: it holds classification state and answers
lookups, while other components (the daemon's event loop, the transfer
executor) push updates into it.

# Architecture

	┌──────────────────────────────────────────────────────┐
	│                    users.Service                     │
	│                                                      │
	│  ┌────────────┐  ┌──────────────┐  ┌──────────────┐  │
	│  │ privileged │  │  membership  │  │    stats     │  │
	│  │    set     │  │ (user→group) │  │ (user→files, │  │
	│  │            │  │              │  │  dirs, speed)│  │
	│  └─────▲──────┘  └──────▲───────┘  └──────▲───────┘  │
	│        │                │                 │          │
	└────────┼────────────────┼─────────────────┼──────────┘
	         │                │                 │
	  server event      group options      client.Stats
	  (privileged      (reload plane)     (fetched when a
	   user list)                          user first asks
	                                       for something)

The three inputs arrive on different schedules. The privileged list is
pushed by the server after login and whenever it changes. Membership
tables are rebuilt whenever the operator changes group configuration.
Statistics are pulled lazily, once per user, the first time that user
interacts with us.

# Classification

GroupFor resolves a username with strict precedence:

 1. Privileged: the server says so. Wins over everything.
 2. User-defined: the username appears in a configured group's member
    list. Groups are applied in (priority, name) order, so a user
    named in two groups deterministically lands in the
    higher-priority one.
 3. Leecher: cached statistics exist and fall below the configured
    file or directory thresholds.
 4. Default: everything else, including users whose statistics have
    not been fetched yet. Unknown users are given the benefit of the
    doubt rather than punished for a cache miss.

The scheduler calls GroupFor at slot release time, not at enqueue
time. A user who gets privileges, or whose statistics arrive, while
their upload is queued is scheduled under their new group.

# Usage

Construction and reconfiguration:

	svc := users.NewService(client, opts.Groups)

	// on options reload:
	svc.Reconfigure(newOpts.Groups)

Feeding events:

	// when the server pushes its privileged list:
	svc.SetPrivileged(event.Usernames)

	// when a user first enqueues a download or searches us:
	go func() {
		if err := svc.Watch(ctx, username); err != nil {
			// classification falls back to default until retried
		}
	}()

Lookups:

	group := svc.GroupFor(username)
	stats, ok := svc.Stats(username)

# Integration Points

  - pkg/scheduler: calls GroupFor when selecting the next upload to
    release.
  - pkg/daemon: forwards PrivilegedUsersEvent to SetPrivileged and
    group option changes to Reconfigure.
  - pkg/transfers: calls Watch when a peer enqueues a file, so the
    statistics are usually cached before the slot decision happens.
  - pkg/soul: supplies the Stats call and the privileged user events.

# Thread Safety

All methods are safe for concurrent use. Lookups take a read lock;
updates swap whole tables under the write lock, so readers never see a
partially rebuilt membership map.
*/
package users
