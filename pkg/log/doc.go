/*
Package log provides structured logging for the daemon using zerolog.

The log package wraps the zerolog library to provide JSON-structured
logging with component-specific loggers, configurable log levels, and an
in-memory ring buffer so the HTTP API can serve recent log history. All
logs include timestamps and support filtering by severity level.

# Architecture

The logging system is a single global logger with an optional tap:

	┌───────────────────── LOGGING SYSTEM ─────────────────────┐
	│                                                           │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │ JSON stream                         │
	│          ┌──────────┴──────────┐                          │
	│          ▼                     ▼                          │
	│  ┌───────────────┐    ┌────────────────────┐             │
	│  │  Ring Buffer   │    │  Output Writer     │             │
	│  │  - last N      │    │  - raw JSON, or    │             │
	│  │  - GET /logs   │    │  - console format  │             │
	│  └───────────────┘    └────────────────────┘             │
	└───────────────────────────────────────────────────────────┘

The buffer taps the JSON stream before console formatting, so captured
entries keep their structured fields regardless of the output format.

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Ring Buffer:
  - Fixed-capacity ring of decoded entries
  - Implements io.Writer; failed decodes are dropped
  - Recent(n) returns the newest n entries, oldest first
  - Backs the GET /logs endpoint

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithUsername: Add remote username context
  - WithAgent: Add relay agent context
  - WithSearchID: Add search id context

# Usage

Initializing the logger:

	buf := log.NewBuffer(512)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
		Buffer:     buf,
	})

Simple logging:

	log.Info("daemon starting")
	log.Warn("distributed network disabled")
	log.Errorf("failed to connect to server", err)

Structured logging:

	log.Logger.Info().
		Str("username", "alice").
		Int("queued", 3).
		Msg("upload enqueued")

Component loggers:

	schedLog := log.WithComponent("scheduler")
	schedLog.Debug().Str("filename", f).Msg("releasing upload")

Serving recent history:

	entries := buf.Recent(250)

# Integration Points

This package integrates with:

  - pkg/daemon: Initializes the logger and buffer at startup
  - pkg/api: Serves buffer contents at GET /logs
  - every other package: component loggers

# Security

The config layer redacts secret-bearing values before they reach any
log call; this package never sees raw passwords or relay secrets. Use
typed fields (.Str, .Int) for peer-supplied data so crafted usernames
cannot forge log lines.
*/
package log
