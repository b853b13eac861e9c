package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/slskd/slskgo/pkg/api"
	"github.com/slskd/slskgo/pkg/config"
	"github.com/slskd/slskgo/pkg/errdefs"
	"github.com/slskd/slskgo/pkg/log"
	"github.com/slskd/slskgo/pkg/metrics"
	"github.com/slskd/slskgo/pkg/rate"
	"github.com/slskd/slskgo/pkg/relay"
	"github.com/slskd/slskgo/pkg/scheduler"
	"github.com/slskd/slskgo/pkg/searches"
	"github.com/slskd/slskgo/pkg/shares"
	"github.com/slskd/slskgo/pkg/soul"
	"github.com/slskd/slskgo/pkg/state"
	"github.com/slskd/slskgo/pkg/tokens"
	"github.com/slskd/slskgo/pkg/transfers"
	"github.com/slskd/slskgo/pkg/types"
	"github.com/slskd/slskgo/pkg/users"
	"github.com/slskd/slskgo/pkg/waiter"
	"github.com/slskd/slskgo/pkg/watchdog"
)

// Exit codes reported through ExitState. A supervisor that sees
// ExitRestart should relaunch the process.
const (
	ExitNormal  = 0
	ExitFailure = 1
	ExitRestart = 3
)

const (
	// bucketInterval is the refill period of the global upload bucket.
	// Short enough that a resumed reader never bursts visibly.
	bucketInterval = 100 * time.Millisecond

	// retentionSweepInterval is how often expired searches are pruned.
	retentionSweepInterval = time.Minute

	// statsFetchTimeout bounds the background stats lookup kicked off
	// for first-time requesters.
	statsFetchTimeout = 10 * time.Second
)

// Config assembles a Daemon. Client and Events default to the offline
// client and a fresh adapter when nil, which keeps every component
// wired in builds without a peer-protocol library.
type Config struct {
	// ConfigPath is the YAML file the reload plane watches. It does not
	// have to exist.
	ConfigPath string

	// DataDir holds everything the daemon persists: the search
	// database, share repositories, and (by default) the download
	// directories.
	DataDir string

	// ListenAddr overrides the web.port-derived HTTP listen address
	// when non-empty.
	ListenAddr string

	Version string
	Options config.Options

	Client soul.Client
	Events *soul.Adapter
	Logs   *log.Buffer
}

// Daemon is the composition root: it owns every component, routes peer
// client events between them, applies configuration changes, and
// implements the control surface the HTTP API drives.
type Daemon struct {
	configPath   string
	dataDir      string
	downloadsDir string
	listenAddr   string

	startup config.Options
	optsMu  sync.RWMutex
	opts    config.Options

	states *state.Store[types.State]

	client  soul.Client
	adapter *soul.Adapter
	events  soul.Subscriber

	index      *shares.Index
	store      *searches.Store
	lifecycle  *searches.Lifecycle
	resolver   *searches.Resolver
	users      *users.Service
	queue      *scheduler.Queue
	bucket     *rate.TokenBucket
	executor   *transfers.Executor
	watchdog   *watchdog.Watchdog
	controller *relay.Controller
	agent      *relay.Agent
	cache      *tokens.Cache
	sampler    *metrics.Sampler
	server     *api.Server
	watcher    *config.Watcher

	// reloadMu serialises reconciliations; the reload plane has exactly
	// one writer.
	reloadMu sync.Mutex

	cancel context.CancelFunc
	group  *errgroup.Group

	done     chan struct{}
	exitOnce sync.Once
	exitMu   sync.Mutex
	exitCode int
	exitErr  error

	stopOnce sync.Once
	logger   zerolog.Logger
}

// New builds a Daemon from validated options. Nothing starts running
// until Start; New only opens the persistent stores and wires the
// components together.
func New(cfg Config) (*Daemon, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	sharesDir := filepath.Join(cfg.DataDir, "shares")
	if err := os.MkdirAll(sharesDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create shares directory: %w", err)
	}

	opts := cfg.Options
	downloads := resolveDir(cfg.DataDir, opts.Directories.Downloads)
	incomplete := resolveDir(cfg.DataDir, opts.Directories.Incomplete)
	for _, dir := range []string{downloads, incomplete} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	client := cfg.Client
	if client == nil {
		client = soul.NewOfflineClient()
	}
	adapter := cfg.Events
	if adapter == nil {
		adapter = soul.NewAdapter()
	}

	d := &Daemon{
		configPath:   cfg.ConfigPath,
		dataDir:      cfg.DataDir,
		downloadsDir: downloads,
		listenAddr:   cfg.ListenAddr,
		startup:      opts,
		opts:         opts,
		client:       client,
		adapter:      adapter,
		done:         make(chan struct{}),
		logger:       log.WithComponent("daemon"),
	}

	d.states = state.NewStore(types.State{
		Version: cfg.Version,
		Server:  types.ServerState{State: types.ServerStopped},
		Relay:   types.RelayState{Mode: opts.Relay.Mode},
	})

	watcher, err := config.NewWatcher(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to watch config file: %w", err)
	}
	d.watcher = watcher

	repo, err := shares.OpenRepository(filepath.Join(sharesDir, shares.LocalRepositoryName))
	if err != nil {
		watcher.Stop()
		return nil, fmt.Errorf("failed to open local share repository: %w", err)
	}
	d.index = shares.NewIndex(shares.Limits{
		MinQueryChars: opts.Searches.MinQueryChars,
		MaxResults:    opts.Searches.MaxFilesPerResponse,
	})

	// Re-attach the previous scan's roots so the index answers
	// searches before the startup scan finishes.
	roots, err := repo.Shares()
	if err != nil {
		roots = nil
	}
	d.index.AddOrUpdateHost(types.LocalHostName, roots, repo)

	store, err := searches.OpenStore(filepath.Join(cfg.DataDir, "searches.db"))
	if err != nil {
		watcher.Stop()
		d.index.Close()
		return nil, fmt.Errorf("failed to open search store: %w", err)
	}
	d.store = store

	d.users = users.NewService(client, opts.Groups)
	d.queue = scheduler.New(d.users, opts.Groups, opts.Global.Upload.Slots)
	d.bucket = rate.NewTokenBucket(bucketCapacity(opts.Global.Upload.SpeedLimit), bucketInterval)
	d.resolver = searches.NewResolver(d.index, d.queue, opts.Searches,
		func() string { return d.Options().Soulseek.Username },
		func() int { return d.Options().Global.Upload.SpeedLimit })
	d.lifecycle = searches.NewLifecycle(client, store, opts.Searches)

	waits := waiter.New()
	var streams transfers.AgentStreams
	switch opts.Relay.Mode {
	case types.RelayModeController:
		cache, err := tokens.NewCache()
		if err != nil {
			watcher.Stop()
			d.index.Close()
			store.Close()
			return nil, fmt.Errorf("failed to create token cache: %w", err)
		}
		d.cache = cache
		d.controller = relay.NewController(d.index, cache, waits, sharesDir,
			func() config.RelayOptions { return d.Options().Relay })
		streams = d.controller
	case types.RelayModeAgent:
		d.agent = relay.NewAgent(d.index, waits, d.Options)
	}

	d.executor = transfers.NewExecutor(d.queue, d.index, client, streams, d.bucket)
	client.SetHandlers(soul.Handlers{
		SearchRequested:    d.resolver.ResolveSearch,
		BrowseRequested:    d.resolver.ResolveBrowse,
		DirectoryRequested: d.resolver.ResolveDirectory,
		EnqueueRequested:   d.handleEnqueue,
	})

	d.watchdog = watchdog.New(client, d.connectionParams, func(st types.ServerConnectionState, attempts int) {
		if st == types.ServerConnected {
			metrics.ServerConnected.Set(1)
		} else {
			metrics.ServerConnected.Set(0)
		}
		d.states.Set(func(s types.State) types.State {
			s.Server.State = st
			s.Server.Attempts = attempts
			if st != types.ServerConnected {
				s.Server.ConnectedAt = nil
			}
			return s
		})
	})

	var relaySource metrics.RelaySource
	if d.controller != nil {
		relaySource = d.controller
	}
	d.sampler = metrics.NewSampler(d.queue, d.index, relaySource)

	d.server = api.NewServer(api.Config{
		App:      d,
		Searches: d.lifecycle,
		Relay:    d.controller,
		Logs:     cfg.Logs,
		URLBase:  opts.Web.URLBase,
	})

	return d, nil
}

// Start launches every component and background loop. It returns
// immediately; failures that end the process surface through Done.
func (d *Daemon) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	g, ctx := errgroup.WithContext(ctx)
	d.group = g

	d.adapter.Start()
	d.events = d.adapter.Subscribe()

	d.queue.Start()
	d.sampler.Start()

	g.Go(func() error { return d.pumpEvents(ctx) })
	g.Go(func() error { return d.reconcileLoop(ctx) })
	g.Go(func() error { return d.retentionLoop(ctx) })

	if d.agent != nil {
		g.Go(func() error { return d.agent.Run(ctx) })
		g.Go(func() error { return d.pushSharesLoop(ctx) })
	}

	if len(d.Options().Shares.Directories) > 0 {
		g.Go(func() error {
			d.rescan(ctx)
			return nil
		})
	}

	addr := d.listenAddr
	if addr == "" {
		addr = fmt.Sprintf(":%d", d.Options().Web.Port)
	}
	g.Go(func() error {
		if err := d.server.Start(addr); err != nil {
			d.requestExit(ExitFailure, fmt.Errorf("http api failed: %w", err))
			return err
		}
		return nil
	})

	d.watchdog.Start()

	d.logger.Info().
		Str("dataDir", d.dataDir).
		Str("addr", addr).
		Str("relayMode", string(d.Options().Relay.Mode)).
		Msg("daemon started")
}

// Stop shuts everything down in dependency order: stop accepting work,
// drain the components, then close the stores. Safe to call more than
// once and without a prior Start.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		d.logger.Info().Msg("daemon stopping")

		if err := d.watcher.Stop(); err != nil {
			d.logger.Warn().Err(err).Msg("failed to stop config watcher")
		}
		if err := d.server.Stop(); err != nil {
			d.logger.Warn().Err(err).Msg("failed to stop http api")
		}

		d.watchdog.Stop(true)
		d.lifecycle.Stop()
		d.executor.Stop()
		d.queue.Stop()
		d.sampler.Stop()
		if d.controller != nil {
			d.controller.Stop()
		}

		if d.cancel != nil {
			d.cancel()
			_ = d.group.Wait()
		}

		if d.events != nil {
			d.adapter.Unsubscribe(d.events)
		}
		d.adapter.Stop()
		d.bucket.Stop()

		if d.cache != nil {
			if err := d.cache.Close(); err != nil {
				d.logger.Warn().Err(err).Msg("failed to close token cache")
			}
		}
		if err := d.index.Close(); err != nil {
			d.logger.Warn().Err(err).Msg("failed to close share index")
		}
		if err := d.store.Close(); err != nil {
			d.logger.Warn().Err(err).Msg("failed to close search store")
		}

		d.logger.Info().Msg("daemon stopped")
	})
}

// Done closes when the daemon wants the process to end: a shutdown or
// restart request over the API, or a fatal component failure.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// ExitState reports the requested exit code and, for ExitFailure, the
// error that caused it. Meaningful once Done is closed; before that it
// reports a normal exit.
func (d *Daemon) ExitState() (int, error) {
	d.exitMu.Lock()
	defer d.exitMu.Unlock()
	return d.exitCode, d.exitErr
}

func (d *Daemon) requestExit(code int, err error) {
	d.exitOnce.Do(func() {
		d.exitMu.Lock()
		d.exitCode = code
		d.exitErr = err
		d.exitMu.Unlock()
		close(d.done)
	})
}

// State assembles the observable snapshot: the stored flags and server
// link plus fresh component summaries.
func (d *Daemon) State() types.State {
	opts := d.Options()

	st := d.states.Current()
	st.Server.Address = opts.Soulseek.Address
	if st.Server.Username == "" {
		st.Server.Username = opts.Soulseek.Username
	}
	st.Shares = d.index.Snapshot()
	st.Uploads = d.queue.Snapshot()
	st.Relay.Mode = opts.Relay.Mode
	if d.controller != nil {
		registrations := d.controller.Agents()
		names := make([]string, len(registrations))
		for i, r := range registrations {
			names[i] = r.Name
		}
		st.Relay.Agents = names
	}
	return st
}

// Options returns the live option tree.
func (d *Daemon) Options() config.Options {
	d.optsMu.RLock()
	defer d.optsMu.RUnlock()
	return d.opts
}

// StartupOptions returns the tree the process booted with.
func (d *Daemon) StartupOptions() config.Options {
	return d.startup
}

// OptionsYAML reads the configuration file as it sits on disk. A
// missing file reads as empty: the daemon is running on defaults and
// environment alone.
func (d *Daemon) OptionsYAML() (string, error) {
	data, err := os.ReadFile(d.configPath)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read config file: %w", err)
	}
	return string(data), nil
}

// SetOptionsYAML validates text and replaces the configuration file
// atomically. The running options do not change here; the reload plane
// picks the new file up from the watcher.
func (d *Daemon) SetOptionsYAML(text string) error {
	if _, err := config.Parse([]byte(text)); err != nil {
		return err
	}

	tmp := d.configPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to stage config file: %w", err)
	}
	if err := os.Rename(tmp, d.configPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

// Connect arms the connection supervisor. While a backoff delay is
// pending it is short-circuited instead.
func (d *Daemon) Connect() error {
	if st, _ := d.watchdog.State(); st == types.ServerConnected {
		return errdefs.Conflictf("already connected to the server")
	}
	d.watchdog.Restart()
	d.watchdog.Start()
	return nil
}

// Disconnect drops the server session deliberately and disarms
// reconnection until the next Connect.
func (d *Daemon) Disconnect() error {
	st, _ := d.watchdog.State()
	if st == types.ServerStopped && !d.client.Connected() {
		return errdefs.Conflictf("the server connection is not active")
	}
	d.watchdog.Stop(true)
	return nil
}

// Shutdown requests a normal process exit.
func (d *Daemon) Shutdown() {
	d.logger.Info().Msg("shutdown requested")
	d.requestExit(ExitNormal, nil)
}

// Restart requests a process exit with the restart code so the
// supervisor relaunches us.
func (d *Daemon) Restart() {
	d.logger.Info().Msg("restart requested")
	d.requestExit(ExitRestart, nil)
}

// handleEnqueue is the EnqueueRequested handler. It kicks off a stats
// fetch for first-time requesters so leecher classification has data
// by release time, then hands off to the executor.
func (d *Daemon) handleEnqueue(username, filename string) error {
	if _, ok := d.users.Stats(username); !ok {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), statsFetchTimeout)
			defer cancel()
			if err := d.users.Watch(ctx, username); err != nil {
				d.logger.Debug().Err(err).Str("username", username).Msg("stats fetch failed")
			}
		}()
	}
	return d.executor.HandleEnqueue(username, filename)
}

// pumpEvents routes peer client events to the interested components.
func (d *Daemon) pumpEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-d.events:
			if !ok {
				return nil
			}
			d.handleEvent(ev)
		}
	}
}

func (d *Daemon) handleEvent(ev soul.Event) {
	switch ev := ev.(type) {
	case soul.ConnectedEvent:
		now := time.Now()
		d.states.Set(func(s types.State) types.State {
			s.Server.Username = ev.Username
			s.Server.ConnectedAt = &now
			return s
		})

	case soul.DisconnectedEvent:
		d.states.Set(func(s types.State) types.State {
			s.Server.ConnectedAt = nil
			return s
		})
		d.watchdog.HandleDisconnect(ev.Cause, ev.Err)

	case soul.PrivilegedUsersEvent:
		d.users.SetPrivileged(ev.Usernames)
		d.queue.Drain()

	case soul.DownloadCompletedEvent:
		d.offerDownload(ev)

	case soul.DiagnosticEvent:
		d.logDiagnostic(ev)
	}
}

// offerDownload fans a completed local download out to relay agents
// that mirror downloads.
func (d *Daemon) offerDownload(ev soul.DownloadCompletedEvent) {
	if d.controller == nil {
		return
	}
	rel, err := filepath.Rel(d.downloadsDir, ev.LocalPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(ev.LocalPath)
	}
	id := d.controller.NotifyDownloadCompleted(rel, ev.LocalPath)
	d.logger.Debug().Str("filename", ev.Filename).Str("id", id).Msg("download offered to agents")
}

func (d *Daemon) logDiagnostic(ev soul.DiagnosticEvent) {
	logger := log.WithComponent("soul")
	switch ev.Level {
	case "debug":
		logger.Debug().Msg(ev.Message)
	case "warn":
		logger.Warn().Msg(ev.Message)
	case "error":
		logger.Error().Msg(ev.Message)
	default:
		logger.Info().Msg(ev.Message)
	}
}

// retentionLoop prunes terminal searches past their retention window.
func (d *Daemon) retentionLoop(ctx context.Context) error {
	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.pruneSearches()
		}
	}
}

func (d *Daemon) pruneSearches() {
	retention := time.Duration(d.Options().Searches.RetentionMinutes) * time.Minute
	cutoff := time.Now().Add(-retention)

	pruned, err := d.store.Prune(cutoff)
	if err != nil {
		d.logger.Warn().Err(err).Msg("failed to prune expired searches")
		return
	}
	if pruned > 0 {
		d.logger.Info().Int("count", pruned).Msg("pruned expired searches")
	}
}

// pushSharesLoop re-uploads shares to the controller whenever the
// local index changes. Login pushes once on its own; this covers
// rescans during a live session.
func (d *Daemon) pushSharesLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.index.Changed():
			if err := d.agent.UploadShares(ctx); err != nil {
				d.logger.Debug().Err(err).Msg("share refresh not pushed to controller")
			}
		}
	}
}

// rescan re-indexes the configured share roots. Concurrent calls are
// rejected by the index; the loser logs and moves on.
func (d *Daemon) rescan(ctx context.Context) {
	opts := d.Options()
	if len(opts.Shares.Directories) == 0 {
		return
	}

	result, err := d.index.Scan(ctx, opts.Shares.Directories, opts.Shares.Filters)
	switch {
	case err == nil:
		d.logger.Info().
			Int("files", result.Files).
			Int("directories", result.Directories).
			Dur("elapsed", result.Elapsed).
			Msg("share scan finished")
	case errdefs.IsScanInProgress(err):
		d.logger.Debug().Msg("share scan already in progress")
	default:
		d.logger.Error().Err(err).Msg("share scan failed")
	}
}

// connectionParams builds connect parameters from the live options.
// The watchdog reads them fresh on every attempt.
func (d *Daemon) connectionParams() soul.ConnectionParams {
	o := d.Options()
	return soul.ConnectionParams{
		Address:     o.Soulseek.Address,
		Username:    o.Soulseek.Username,
		Password:    o.Soulseek.Password,
		Description: o.Soulseek.Description,
		ListenPort:  o.Soulseek.ListenPort,
		Timeout:     time.Duration(o.Soulseek.Connection.Timeout) * time.Millisecond,
		BufferSize:  o.Soulseek.Connection.Buffer,
	}
}

// bucketCapacity converts an upload speed limit in KiB/s to tokens per
// refill interval.
func bucketCapacity(speedLimitKiB int) int64 {
	perSecond := int64(speedLimitKiB) * 1024
	return perSecond / int64(time.Second/bucketInterval)
}

// resolveDir anchors relative directory options at the data directory.
func resolveDir(dataDir, dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(dataDir, dir)
}
