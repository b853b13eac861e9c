package searches

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/slskd/slskgo/pkg/config"
	"github.com/slskd/slskgo/pkg/log"
	"github.com/slskd/slskgo/pkg/metrics"
	"github.com/slskd/slskgo/pkg/scheduler"
	"github.com/slskd/slskgo/pkg/shares"
	"github.com/slskd/slskgo/pkg/types"
)

// Resolver answers remote peer requests against the share index. It
// runs on the peer client's read loop, so every method is synchronous
// and bounded: blacklist and query-length gates fire before the index
// is consulted, and responses carry at most MaxFilesPerResponse files.
type Resolver struct {
	index  *shares.Index
	queue  *scheduler.Queue
	logger zerolog.Logger

	// username and uploadSpeed read live values owned elsewhere; both
	// must be cheap and non-blocking.
	username    func() string
	uploadSpeed func() int

	mu   sync.RWMutex
	opts config.SearchesOptions
}

// NewResolver creates a resolver over the given index and queue.
func NewResolver(index *shares.Index, queue *scheduler.Queue, opts config.SearchesOptions, username func() string, uploadSpeed func() int) *Resolver {
	return &Resolver{
		index:       index,
		queue:       queue,
		logger:      log.WithComponent("searches"),
		username:    username,
		uploadSpeed: uploadSpeed,
		opts:        opts,
	}
}

// Reconfigure applies new search options.
func (r *Resolver) Reconfigure(opts config.SearchesOptions) {
	r.mu.Lock()
	r.opts = opts
	r.mu.Unlock()
}

func (r *Resolver) options() config.SearchesOptions {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.opts
}

// ResolveSearch answers one incoming search. A nil return means no
// response is sent; peers never see a zero-file response.
func (r *Resolver) ResolveSearch(username string, token int, query string) *types.SearchResponse {
	opts := r.options()

	if blacklisted(username, opts.BotBlacklist) {
		metrics.ResolverQueries.WithLabelValues("rejected").Inc()
		return nil
	}
	if len(strings.TrimSpace(query)) < opts.MinQueryChars {
		metrics.ResolverQueries.WithLabelValues("rejected").Inc()
		return nil
	}

	files := r.index.Search(query)
	if len(files) == 0 {
		metrics.ResolverQueries.WithLabelValues("empty").Inc()
		return nil
	}
	if opts.MaxFilesPerResponse > 0 && len(files) > opts.MaxFilesPerResponse {
		files = files[:opts.MaxFilesPerResponse]
	}

	wire := make([]types.File, len(files))
	for i, f := range files {
		f.Path = shares.ToWire(f.Path)
		wire[i] = f
	}

	freeSlot := r.queue.HasFreeNonLeecherSlot()
	queued := r.queue.Snapshot().Queued

	metrics.ResolverQueries.WithLabelValues("answered").Inc()
	r.logger.Debug().
		Str("username", username).
		Int("token", token).
		Str("query", query).
		Int("files", len(wire)).
		Msg("answered remote search")

	return &types.SearchResponse{
		Username:          r.username(),
		Token:             token,
		HasFreeUploadSlot: freeSlot,
		UploadSpeed:       r.uploadSpeed(),
		QueueLength:       queued,
		FileCount:         len(wire),
		Files:             wire,
	}
}

// ResolveBrowse answers a browse of our shares with every directory
// listing, paths in wire form.
func (r *Resolver) ResolveBrowse(username string) ([]types.Directory, error) {
	listings, err := r.index.Browse()
	if err != nil {
		return nil, err
	}

	for i := range listings {
		listings[i] = toWireDirectory(listings[i])
	}

	r.logger.Debug().
		Str("username", username).
		Int("directories", len(listings)).
		Msg("answered browse")
	return listings, nil
}

// ResolveDirectory answers a single-directory listing, paths in wire
// form.
func (r *Resolver) ResolveDirectory(username, directory string) (types.Directory, error) {
	listing, err := r.index.Directory(directory)
	if err != nil {
		return types.Directory{}, err
	}

	r.logger.Debug().
		Str("username", username).
		Str("directory", directory).
		Int("files", len(listing.Files)).
		Msg("answered directory listing")
	return toWireDirectory(listing), nil
}

func toWireDirectory(d types.Directory) types.Directory {
	d.Path = shares.ToWire(d.Path)
	files := make([]types.File, len(d.Files))
	for i, f := range d.Files {
		f.Path = shares.ToWire(f.Path)
		files[i] = f
	}
	d.Files = files
	return d
}

func blacklisted(username string, blacklist []string) bool {
	for _, entry := range blacklist {
		if strings.EqualFold(entry, username) {
			return true
		}
	}
	return false
}
