package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/slskd/slskgo/pkg/config"
	"github.com/slskd/slskgo/pkg/log"
	"github.com/slskd/slskgo/pkg/metrics"
	"github.com/slskd/slskgo/pkg/relay"
	"github.com/slskd/slskgo/pkg/searches"
	"github.com/slskd/slskgo/pkg/types"
)

// Application is the daemon control surface the server drives. The
// daemon implements it; tests substitute a fake.
type Application interface {
	// State returns the observable daemon snapshot.
	State() types.State

	// Options returns the live option tree; StartupOptions returns the
	// tree the process booted with.
	Options() config.Options
	StartupOptions() config.Options

	// OptionsYAML reads the configuration file as it sits on disk.
	OptionsYAML() (string, error)

	// SetOptionsYAML validates text and writes it to the configuration
	// file. The reload plane picks the change up from there.
	SetOptionsYAML(text string) error

	// Connect arms the server connection supervisor. Disconnect drops
	// the session deliberately and disarms reconnection.
	Connect() error
	Disconnect() error

	// Shutdown and Restart end the process. Restart additionally
	// signals the supervisor wrapper to relaunch it.
	Shutdown()
	Restart()
}

// Config wires a Server to its collaborators. Relay may be nil when no
// relay controller runs in this process; its routes then 404.
type Config struct {
	App      Application
	Searches *searches.Lifecycle
	Relay    *relay.Controller
	Logs     *log.Buffer
	URLBase  string
}

// Server is the HTTP control plane: application state and lifecycle,
// options, the server connection, searches, the relay transport, logs
// and metrics.
type Server struct {
	app      Application
	searches *searches.Lifecycle
	logs     *log.Buffer
	logger   zerolog.Logger
	handler  http.Handler
	server   *http.Server
}

// NewServer creates a Server and registers its routes.
func NewServer(cfg Config) *Server {
	s := &Server{
		app:      cfg.App,
		searches: cfg.Searches,
		logs:     cfg.Logs,
		logger:   log.WithComponent("api"),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /application", s.handleGetApplication)
	mux.HandleFunc("PUT /application", s.handleRestart)
	mux.HandleFunc("DELETE /application", s.handleShutdown)
	mux.HandleFunc("POST /application/gc", s.handleGC)

	mux.HandleFunc("GET /options", s.handleGetOptions)
	mux.HandleFunc("GET /options/startup", s.handleGetStartupOptions)
	mux.HandleFunc("GET /options/yaml", s.handleGetOptionsYAML)
	mux.HandleFunc("PUT /options/yaml", s.handlePutOptionsYAML)
	mux.HandleFunc("POST /options/yaml/validate", s.handleValidateOptionsYAML)

	mux.HandleFunc("PUT /server", s.handleConnect)
	mux.HandleFunc("DELETE /server", s.handleDisconnect)

	mux.HandleFunc("GET /searches", s.handleListSearches)
	mux.HandleFunc("POST /searches", s.handleCreateSearch)
	mux.HandleFunc("GET /searches/{id}", s.handleGetSearch)
	mux.HandleFunc("PUT /searches/{id}", s.handleCancelSearch)
	mux.HandleFunc("DELETE /searches/{id}", s.handleDeleteSearch)

	mux.HandleFunc("GET /logs", s.handleGetLogs)
	mux.Handle("GET /metrics", metrics.Handler())

	if cfg.Relay != nil {
		mux.HandleFunc("GET /network/hub", cfg.Relay.HandleHub)
		mux.HandleFunc("POST /network/shares/{token}", cfg.Relay.HandleShareUpload)
		mux.HandleFunc("POST /network/files/{id}", cfg.Relay.HandleFileUpload)
		mux.HandleFunc("GET /network/downloads/{id}", cfg.Relay.HandleDownload)
	}

	s.handler = s.instrument(mux)
	if base := strings.Trim(cfg.URLBase, "/"); base != "" {
		outer := http.NewServeMux()
		outer.Handle("/"+base+"/", http.StripPrefix("/"+base, s.handler))
		s.handler = outer
	}

	return s
}

// Handler returns the routing handler, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves HTTP on addr and blocks until Stop or a listener
// failure. Only the header read is bounded: the relay transport holds
// file uploads and the hub websocket open indefinitely, so body and
// write deadlines stay unset.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("http api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the listener down, letting in-flight requests finish.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
