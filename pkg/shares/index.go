package shares

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/slskd/slskgo/pkg/errdefs"
	"github.com/slskd/slskgo/pkg/log"
	"github.com/slskd/slskgo/pkg/types"
)

// Host is one entry in the index: a name, the share roots it declared,
// and the repository holding its content.
type Host struct {
	Name   string
	Shares []types.Share
	Repo   *Repository
}

// Limits bounds query handling. Queries below MinQueryChars return
// nothing; result sets are capped at MaxResults.
type Limits struct {
	MinQueryChars int
	MaxResults    int
}

// Index is the searchable union of every host's shares. The local host
// is backed by the scanner; remote hosts are installed by the relay
// controller from validated agent uploads and removed on disconnect.
type Index struct {
	scanner *Scanner
	logger  zerolog.Logger
	changed chan struct{}

	mu     sync.RWMutex
	hosts  map[string]*Host
	limits Limits

	scanMu       sync.Mutex
	scanState    types.ScanState
	scanProgress float64
}

// NewIndex creates an empty index.
func NewIndex(limits Limits) *Index {
	return &Index{
		scanner:   NewScanner(),
		logger:    log.WithComponent("shares"),
		changed:   make(chan struct{}, 1),
		hosts:     make(map[string]*Host),
		limits:    limits,
		scanState: types.ScanIdle,
	}
}

// Changed pulses after any host binding or scan completes. The channel
// holds one coalesced pulse; consumers drain it and rebuild whatever
// view they keep.
func (x *Index) Changed() <-chan struct{} {
	return x.changed
}

func (x *Index) notify() {
	select {
	case x.changed <- struct{}{}:
	default:
	}
}

// SetLimits applies new query bounds.
func (x *Index) SetLimits(limits Limits) {
	x.mu.Lock()
	x.limits = limits
	x.mu.Unlock()
}

// AddOrUpdateHost binds name to (shares, repo), replacing any previous
// binding atomically. A replaced repository is closed and its backing
// file removed.
func (x *Index) AddOrUpdateHost(name string, shares []types.Share, repo *Repository) {
	x.mu.Lock()
	previous := x.hosts[name]
	x.hosts[name] = &Host{Name: name, Shares: shares, Repo: repo}
	x.mu.Unlock()

	if previous != nil && previous.Repo != repo {
		if err := previous.Repo.Delete(); err != nil {
			x.logger.Warn().Err(err).Str("host", name).Msg("failed to discard replaced repository")
		}
	}

	x.logger.Info().Str("host", name).Int("shares", len(shares)).Msg("host refreshed")
	x.notify()
}

// RemoveHost drops a host binding. Remote repositories are deleted;
// the local repository survives for the next scan.
func (x *Index) RemoveHost(name string) {
	x.mu.Lock()
	host := x.hosts[name]
	delete(x.hosts, name)
	x.mu.Unlock()

	if host == nil {
		return
	}
	if name != types.LocalHostName {
		if err := host.Repo.Delete(); err != nil {
			x.logger.Warn().Err(err).Str("host", name).Msg("failed to discard repository")
		}
	}

	x.logger.Info().Str("host", name).Msg("host removed")
	x.notify()
}

// Hosts returns the bound host names in sorted order.
func (x *Index) Hosts() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.hostNamesLocked()
}

func (x *Index) hostNamesLocked() []string {
	names := make([]string, 0, len(x.hosts))
	for name := range x.hosts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Repository returns the repository bound to a host.
func (x *Index) Repository(name string) (*Repository, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	host, ok := x.hosts[name]
	if !ok {
		return nil, errdefs.NotFoundf("host %q is not bound", name)
	}
	return host.Repo, nil
}

// Scan re-indexes the local host from the configured directives. At
// most one scan runs at a time; a concurrent call fails with the scan
// conflict kind. Progress and state are observable via Snapshot.
func (x *Index) Scan(ctx context.Context, directives []string, patterns []string) (ScanResult, error) {
	shares, err := ParseDirectives(directives)
	if err != nil {
		return ScanResult{}, err
	}
	filters, err := CompileFilters(patterns)
	if err != nil {
		return ScanResult{}, err
	}
	repo, err := x.Repository(types.LocalHostName)
	if err != nil {
		return ScanResult{}, err
	}

	x.scanMu.Lock()
	if x.scanState == types.ScanInProgress {
		x.scanMu.Unlock()
		return ScanResult{}, fmt.Errorf("share scan rejected: %w", errdefs.ErrScanInProgress)
	}
	x.scanState = types.ScanInProgress
	x.scanProgress = 0
	x.scanMu.Unlock()

	result, err := x.scanner.Scan(ctx, repo, shares, filters, func(p float64) {
		x.scanMu.Lock()
		x.scanProgress = p
		x.scanMu.Unlock()
	})

	x.scanMu.Lock()
	if err != nil {
		x.scanState = types.ScanFaulted
	} else {
		x.scanState = types.ScanIdle
		x.scanProgress = 1
	}
	x.scanMu.Unlock()

	if err != nil {
		return ScanResult{}, err
	}

	x.mu.Lock()
	if host, ok := x.hosts[types.LocalHostName]; ok {
		host.Shares = shares
	}
	x.mu.Unlock()

	x.notify()
	return result, nil
}

// Search returns files matching the query's terms across all hosts.
// Results are deterministic for a fixed host set: hosts are visited in
// name order and repositories iterate in key order. Paths use the
// local separator; callers converting for the wire use ToWire.
func (x *Index) Search(query string) []types.File {
	x.mu.RLock()
	limits := x.limits
	hosts := make([]*Host, 0, len(x.hosts))
	for _, name := range x.hostNamesLocked() {
		hosts = append(hosts, x.hosts[name])
	}
	x.mu.RUnlock()

	if len(strings.TrimSpace(query)) < limits.MinQueryChars {
		return nil
	}
	filter := ParseFilter(query)
	if len(filter.Includes) == 0 {
		return nil
	}

	var results []types.File
	for _, host := range hosts {
		err := host.Repo.ForEachFile(func(record Record) error {
			if !filter.MatchTerms(record.File.Path) {
				return nil
			}
			results = append(results, record.File)
			if limits.MaxResults > 0 && len(results) >= limits.MaxResults {
				return io.EOF
			}
			return nil
		})
		if err != nil {
			x.logger.Warn().Err(err).Str("host", host.Name).Msg("search aborted on host")
		}
		if limits.MaxResults > 0 && len(results) >= limits.MaxResults {
			break
		}
	}
	return results
}

// Resolve maps a filename (wire or local form) to the owning host and
// the path on that host's filesystem. Hosts are tried in name order,
// so resolution is deterministic even if aliases collide.
func (x *Index) Resolve(filename string) (host string, localPath string, err error) {
	virtual := FromWire(filename)

	x.mu.RLock()
	hosts := make([]*Host, 0, len(x.hosts))
	for _, name := range x.hostNamesLocked() {
		hosts = append(hosts, x.hosts[name])
	}
	x.mu.RUnlock()

	for _, h := range hosts {
		record, err := h.Repo.Find(virtual)
		if err == nil {
			return h.Name, record.LocalPath, nil
		}
		if !errdefs.IsNotFound(err) {
			return "", "", err
		}
	}
	return "", "", errdefs.NotFoundf("no host shares %q", virtual)
}

// Browse returns every directory listing across all hosts, host name
// order first, directory order within.
func (x *Index) Browse() ([]types.Directory, error) {
	x.mu.RLock()
	hosts := make([]*Host, 0, len(x.hosts))
	for _, name := range x.hostNamesLocked() {
		hosts = append(hosts, x.hosts[name])
	}
	x.mu.RUnlock()

	var listings []types.Directory
	for _, host := range hosts {
		dirs, err := host.Repo.Browse()
		if err != nil {
			return nil, fmt.Errorf("failed to browse host %s: %w", host.Name, err)
		}
		listings = append(listings, dirs...)
	}
	return listings, nil
}

// Directory returns the listing for one virtual directory, trying
// hosts in name order.
func (x *Index) Directory(dir string) (types.Directory, error) {
	virtual := FromWire(dir)

	x.mu.RLock()
	hosts := make([]*Host, 0, len(x.hosts))
	for _, name := range x.hostNamesLocked() {
		hosts = append(hosts, x.hosts[name])
	}
	x.mu.RUnlock()

	for _, host := range hosts {
		listing, err := host.Repo.Directory(virtual)
		if err == nil {
			return listing, nil
		}
		if !errdefs.IsNotFound(err) {
			return types.Directory{}, err
		}
	}
	return types.Directory{}, errdefs.NotFoundf("no host shares directory %q", virtual)
}

// Snapshot summarises the index for the daemon's observable state.
func (x *Index) Snapshot() types.SharesState {
	x.scanMu.Lock()
	state := x.scanState
	progress := x.scanProgress
	x.scanMu.Unlock()

	x.mu.RLock()
	names := x.hostNamesLocked()
	hosts := make([]*Host, 0, len(names))
	for _, name := range names {
		hosts = append(hosts, x.hosts[name])
	}
	x.mu.RUnlock()

	snapshot := types.SharesState{
		ScanState:    state,
		ScanProgress: progress,
		Hosts:        names,
	}
	for _, host := range hosts {
		files, dirs, err := host.Repo.Counts()
		if err != nil {
			continue
		}
		snapshot.Files += files
		snapshot.Directories += dirs
	}
	return snapshot
}

// Close closes every repository. Remote repository files are kept;
// their owners re-upload on reconnect.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	var firstErr error
	for _, host := range x.hosts {
		if err := host.Repo.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	x.hosts = make(map[string]*Host)
	return firstErr
}
