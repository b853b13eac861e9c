/*
Package config owns the options tree: loading, validation, diffing,
and change detection.

The daemon is configured by one YAML file plus environment overrides.
At startup the file is loaded over compiled defaults; at runtime a
filesystem watcher notices edits and the daemon reconciles the running
components against the new snapshot. What makes that reconciliation
safe is the differ: every field's yaml tag doubles as a stable path,
and struct tags classify each leaf as live-applicable, restart-only,
or soulseek-scoped.

# Architecture

	┌──────────────────── CONFIG PLANE ─────────────────────┐
	│                                                        │
	│  defaults ──► YAML file ──► environment ──► Validate   │
	│                   │                                    │
	│                   │ fsnotify (parent directory)        │
	│                   ▼                                    │
	│               Watcher ──► pulse ──► daemon reload      │
	│                                        │               │
	│                 Diff(old, new) ────────┘               │
	│                   │                                    │
	│                   ├── requires-restart → pendingRestart│
	│                   ├── soulseek.* → ConnectionPatch     │
	│                   └── everything else → applied live   │
	└────────────────────────────────────────────────────────┘

# Precedence

defaults < YAML file < environment. The variable for a leaf is SLSKD_
plus the uppercased yaml path with dots as underscores:

	soulseek.listenPort   SLSKD_SOULSEEK_LISTENPORT
	global.upload.slots   SLSKD_GLOBAL_UPLOAD_SLOTS

Map-valued subtrees (user-defined groups, relay agents) have no
environment form.

# Tags

  - yaml:"name": the key in the file and the segment in diff paths.
  - restart:"true": the field and its whole subtree only take effect
    on process restart. The reload plane sets pendingRestart instead
    of applying them.
  - Leaves whose name contains "password" or "secret" are sensitive;
    DiffEntry redacts them in formatted output.

# Diffing

Diff walks two snapshots in lockstep and emits one entry per changed
leaf with its path, both values, and flags. Slices compare as whole
leaves. Map keys are unioned, so adding or removing a user group emits
entries against the zero value. Equal snapshots emit nothing, which is
what makes the noisy watcher harmless: the second pulse for one edit
diffs to an empty list and the reload is a no-op.

SoulseekPatch folds the soulseek-scoped entries into a
types.ConnectionPatch holding pointers into the new snapshot; the peer
client applies it and reports whether a reconnect is needed.

# Usage

Startup:

	opts, err := config.Load(path)

Watching:

	w, err := config.NewWatcher(path)
	for range w.Events() {
		next, err := config.Load(path)
		...
		entries := config.Diff(current, next)
	}

Validating an edited document without applying it:

	_, err := config.Parse(body)

# Integration Points

This package integrates with:

  - pkg/daemon: load at boot, reload plane, options endpoints
  - pkg/scheduler: group table construction from GroupsOptions
  - pkg/shares: share roots and scan filters
  - pkg/searches: resolver and lifecycle bounds
  - pkg/relay: mode, agent secrets, controller endpoint
*/
package config
