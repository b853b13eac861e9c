/*
Package metrics defines and exposes the Prometheus instrumentation.

Every collector lives in this package as an exported package variable,
registered against the default registry at init. Callers update the
metrics inline from their hot paths; nothing here needs construction or
teardown except the Sampler.

# Architecture

	┌───────────────────── METRICS ─────────────────────┐
	│                                                     │
	│  package vars (counters, gauges, histograms)        │
	│        ▲                    ▲                        │
	│        │ inline updates     │ periodic Set()        │
	│        │                    │                        │
	│  scheduler, searches,   ┌───┴─────────┐             │
	│  transfers, relay,      │   Sampler   │ 15s ticker  │
	│  watchdog, api, daemon  │ queue/share │             │
	│                         │ /relay poll │             │
	│                         └─────────────┘             │
	│        │                                             │
	│        ▼                                             │
	│  Handler() ── promhttp ── GET /metrics               │
	└─────────────────────────────────────────────────────┘

Counters and histograms are updated at the point where the event
happens: the queue increments UploadsEnqueued when it accepts a
transfer, the resolver counts queries by outcome, the API middleware
observes request durations. Gauges that mirror the size of a live
structure (queue length, share counts, agent count) are refreshed by
the Sampler instead, which polls narrow read-only views every fifteen
seconds so the owning components stay free of metrics plumbing.

# Catalog

Uploads:

	slskd_uploads_enqueued_total            counter
	slskd_uploads_released_total{group}     counter
	slskd_uploads_completed_total{outcome}  counter  outcome: succeeded|failed|cancelled
	slskd_uploaded_bytes_total              counter
	slskd_upload_queue_length               gauge
	slskd_uploads_started                   gauge
	slskd_group_used_slots{group}           gauge
	slskd_group_slot_capacity{group}        gauge

Searches:

	slskd_searches_completed_total{state}        counter
	slskd_search_responses_received_total        counter
	slskd_search_duration_seconds                histogram
	slskd_resolver_queries_total{outcome}        counter  outcome: answered|empty|rejected

Shares:

	slskd_share_files                 gauge
	slskd_share_directories           gauge
	slskd_share_hosts                 gauge
	slskd_share_scan_duration_seconds histogram

Relay:

	slskd_relay_agents                 gauge
	slskd_relay_streamed_bytes_total   counter
	slskd_relay_stream_failures_total  counter

Server and configuration:

	slskd_server_connected               gauge
	slskd_server_connect_attempts_total  counter
	slskd_config_reloads_total{outcome}  counter  outcome: applied|noop|failed

API:

	slskd_api_requests_total{method, status}    counter
	slskd_api_request_duration_seconds{method}  histogram

# Usage

	metrics.UploadsEnqueued.Inc()
	metrics.UploadsCompleted.WithLabelValues("succeeded").Inc()

	timer := metrics.NewTimer()
	scan()
	timer.ObserveDuration(metrics.ScanDuration)

	sampler := metrics.NewSampler(queue, index, controller)
	sampler.Start()
	defer sampler.Stop()

	mux.Handle("GET /metrics", metrics.Handler())

# Integration Points

  - pkg/scheduler, pkg/searches, pkg/transfers, pkg/relay,
    pkg/watchdog, pkg/daemon: inline counter and histogram updates.
  - pkg/api: request middleware feeds APIRequestsTotal and
    APIRequestDuration, and mounts Handler at /metrics.
  - pkg/daemon: owns the Sampler lifecycle.
*/
package metrics
