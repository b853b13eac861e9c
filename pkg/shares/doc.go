/*
Package shares indexes shared files and answers who-has-what questions
for every other component.

A share is a directory an operator chose to publish. This package
scans those directories, stores what it finds in per-host repository
files, and exposes one searchable index spanning the local host and
every connected relay agent. Search responses, browse listings, and
upload path resolution all come from here.

# Architecture

	                      ┌───────────────────────┐
	                      │        Index          │
	                      │  (host → repository)  │
	                      └──────────┬────────────┘
	                                 │
	        ┌────────────────────────┼────────────────────────┐
	        │                        │                        │
	┌───────▼───────┐       ┌────────▼────────┐      ┌────────▼────────┐
	│    "local"    │       │   "attic"       │      │   "garage"      │
	│   local.db    │       │ agent-attic.db  │      │ agent-garage.db │
	│ (scanner-fed) │       │ (agent upload)  │      │ (agent upload)  │
	└───────▲───────┘       └─────────────────┘      └─────────────────┘
	        │
	   ┌────┴─────┐
	   │ Scanner  │  godirwalk over share roots,
	   └──────────┘  exclusion filters, batch upserts

Each repository is a bbolt file with three buckets:

  - files: virtual path → JSON record (peer-visible File + the real
    path on the owning host)
  - dirs:  virtual directory → JSON list of its file keys
  - meta:  marker, share roots, last scan time

The local repository is rebuilt in place by the scanner. Remote
repositories arrive whole: an agent scans its own disks, dumps its
repository file, and uploads it; the controller validates the file
(TryValidate) and swaps it into the index. Replacing a binding is
atomic from the readers' point of view.

# Virtual Paths

Real filesystem layout is never shown to peers. Every indexed file
gets a virtual path rooted at its share's alias:

	/mnt/tank/music/Artist/Album/01.flac
	        └─ share "music" ─┘
	→ @@music/Artist/Album/01.flac          (local form)
	→ @@music\Artist\Album\01.flac          (wire form)

The wire form uses backslashes, so inbound filenames pass through
FromWire and outbound responses through ToWire. Resolve walks the
virtual path back to (host, real path); for a remote host the real
path only means something to the agent that produced it, which is
exactly who the controller forwards it to.

# Searching

Search applies the term half of the filter grammar: whitespace-split
tokens, each a case-insensitive substring the full path must contain,
"-token" for exclusions, colon-modifiers ignored. Queries shorter than
the configured minimum return nothing, as do queries with no positive
term. Hosts are visited in name order and repositories iterate in key
order, so a fixed host set always produces the same result list. The
result set is capped; the cap doubles as the per-response file bound.

The full grammar (Filter.Match, Filter.Apply) adds numeric thresholds
(minbr, minbd, minfs, minlen, minfif) and format flags (iscbr, isvbr,
islossless, islossy). It post-filters responses to our own searches so
operator filters behave identically on both sides of the protocol.

# Scanning

Scan is single-writer: a second concurrent call fails with the scan
conflict kind instead of queueing. The scanner pre-counts directories
so progress is reported as a fraction, then walks each root with
godirwalk, skipping excluded paths and unreadable entries, batching
records 500 to a transaction. Scan state (idle, scanning, faulted) and
progress surface in the daemon's observable state.

# Usage

	repo, err := shares.OpenRepository(filepath.Join(dataDir, "shares", shares.LocalRepositoryName))
	if err != nil {
		return err
	}

	index := shares.NewIndex(shares.Limits{MinQueryChars: 3, MaxResults: 250})
	index.AddOrUpdateHost(types.LocalHostName, nil, repo)

	if _, err := index.Scan(ctx, opts.Shares.Directories, opts.Shares.Filters); err != nil {
		return err
	}

	files := index.Search("artist album -live")
	host, realPath, err := index.Resolve(`@@music\Artist\Album\01.flac`)

# Integration Points

  - pkg/searches: the resolver answers peer queries from Search and
    serves Browse and Directory callbacks.
  - pkg/transfers: Resolve decides whether an upload streams from the
    local disk or is fetched from an agent.
  - pkg/relay: the controller installs validated agent uploads with
    AddOrUpdateHost and drops them on disconnect; the agent side dumps
    the local repository with WriteTo.
  - pkg/daemon: runs startup and reload scans, folds Snapshot into the
    observable state, and watches Changed for refresh pulses.

# Concurrency

Index methods are safe for concurrent use. Host bindings swap under a
write lock; queries copy the host list and then run lock-free against
bbolt's MVCC read transactions. A scan writes through the same
repository handle readers use, so mid-scan searches see a partially
filled index rather than blocking.
*/
package shares
