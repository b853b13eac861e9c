/*
Package api implements the HTTP control plane of the daemon.

The api package is the single external surface of the process. Every
management operation, the relay transport, the log buffer, and the
Prometheus metrics are served from one listener, so an operator (or the
relay agent of another instance) only ever needs one address.

# Architecture

The server routes requests to the daemon control surface and to the
subsystems it fronts directly:

	┌──────────────────────── CLIENT ─────────────────────────────┐
	│   operator tooling, relay agents, metrics scrapers          │
	└───────────────────────────┬──────────────────────────────────┘
	                            │ HTTP (web.port)
	                            │
	┌───────────────────────────▼──────────────────────────────────┐
	│                    HTTP API (pkg/api)                        │
	│  - method/path routing (net/http ServeMux)                   │
	│  - error kind → status mapping                               │
	│  - request metrics and logging                               │
	└───────┬───────────────┬───────────────┬──────────────────────┘
	        │               │               │
	┌───────▼──────┐ ┌──────▼───────┐ ┌─────▼─────────────────────┐
	│ Application  │ │  Searches    │ │  Relay controller         │
	│ (pkg/daemon) │ │ (lifecycle)  │ │  hub + multipart streams  │
	└──────────────┘ └──────────────┘ └───────────────────────────┘

# Routes

Application lifecycle:
  - GET /application: observable state snapshot
  - PUT /application: restart the process (supervisor relaunches)
  - DELETE /application: shut the process down
  - POST /application/gc: hint the runtime to collect garbage

Options:
  - GET /options: live option tree
  - GET /options/startup: options the process booted with
  - GET /options/yaml: configuration file as it sits on disk
  - PUT /options/yaml: replace the configuration file (validated first)
  - POST /options/yaml/validate: validate a candidate document

Server connection:
  - PUT /server: arm the connection supervisor
  - DELETE /server: disconnect deliberately, disarming reconnection

Searches:
  - GET /searches: all search records, newest first
  - POST /searches: start a search ({id, searchText, scope})
  - GET /searches/{id}?includeResponses=: one record
  - PUT /searches/{id}: cancel
  - DELETE /searches/{id}: cancel if running, then remove

Relay transport (registered only when the controller runs):
  - GET /network/hub: agent websocket hub
  - POST /network/shares/{token}: agent share database upload
  - POST /network/files/{id}: agent end of a brokered file stream
  - GET /network/downloads/{id}: agent fetch of a completed download

Diagnostics:
  - GET /logs?count=: recent log entries from the ring buffer
  - GET /metrics: Prometheus text format

# Error Mapping

Handlers return JSON `{"error": "..."}` bodies with the status derived
from the error kind: not found 404, unauthorized 401, conflict and
concurrent scan 409, validation failures 400, timeouts 504, anything
else 500.

# Usage

	server := api.NewServer(api.Config{
		App:      daemon,
		Searches: lifecycle,
		Relay:    controller, // nil outside controller mode
		Logs:     buffer,
		URLBase:  opts.Web.URLBase,
	})

	go server.Start(fmt.Sprintf(":%d", opts.Web.Port))
	defer server.Stop()

Start blocks; Stop drains in-flight requests. The relay routes hold
connections open for as long as a transfer runs, so the server sets no
write or body deadlines.
*/
package api
