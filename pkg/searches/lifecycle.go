package searches

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/slskd/slskgo/pkg/config"
	"github.com/slskd/slskgo/pkg/errdefs"
	"github.com/slskd/slskgo/pkg/log"
	"github.com/slskd/slskgo/pkg/metrics"
	"github.com/slskd/slskgo/pkg/soul"
	"github.com/slskd/slskgo/pkg/types"
)

// Lifecycle runs outgoing searches. Each Create starts a goroutine
// that drives the peer client, folds responses into the record, and
// persists counters as they change. The response list is written in
// exactly one final store update at the terminal transition.
type Lifecycle struct {
	client soul.Client
	store  *Store
	logger zerolog.Logger

	mu      sync.Mutex
	opts    config.SearchesOptions
	running map[string]*running
	wg      sync.WaitGroup
}

// running tracks one in-flight search: its cancel hook and a channel
// closed after the terminal write, so Delete can wait out the final
// persist instead of racing it.
type running struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLifecycle creates a lifecycle over the given client and store.
func NewLifecycle(client soul.Client, store *Store, opts config.SearchesOptions) *Lifecycle {
	return &Lifecycle{
		client:  client,
		store:   store,
		logger:  log.WithComponent("searches"),
		opts:    opts,
		running: make(map[string]*running),
	}
}

// Reconfigure applies new search options to subsequent searches.
// Searches already running keep the bounds they started with.
func (l *Lifecycle) Reconfigure(opts config.SearchesOptions) {
	l.mu.Lock()
	l.opts = opts
	l.mu.Unlock()
}

func (l *Lifecycle) options() config.SearchesOptions {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opts
}

// Create registers and starts a search, returning its initial record.
// An empty id is assigned a fresh UUID. The search runs until the
// client reports a terminal condition or Cancel is called; its
// lifetime is not tied to the caller's request.
func (l *Lifecycle) Create(id, searchText string, scope soul.Scope) (types.Search, error) {
	if strings.TrimSpace(searchText) == "" {
		return types.Search{}, errdefs.Validationf("search text is required")
	}
	if id == "" {
		id = uuid.NewString()
	}
	if scope.Type == "" {
		scope = soul.NetworkScope()
	}

	if _, err := l.store.Get(id, false); err == nil {
		return types.Search{}, errdefs.Conflictf("search %s already exists", id)
	} else if !errdefs.IsNotFound(err) {
		return types.Search{}, err
	}

	search := types.Search{
		ID:         id,
		SearchText: searchText,
		Token:      l.client.NextToken(),
		State:      types.SearchRequested,
		StartedAt:  time.Now().UTC(),
	}
	if err := l.store.Put(search); err != nil {
		return types.Search{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &running{cancel: cancel, done: make(chan struct{})}
	l.mu.Lock()
	l.running[id] = r
	l.mu.Unlock()

	l.wg.Add(1)
	go l.run(ctx, r, search, scope)

	l.logger.Info().
		Str("searchId", id).
		Str("query", searchText).
		Int("token", search.Token).
		Msg("search started")
	return search, nil
}

// Cancel stops an in-progress search; it lands in Completed, Cancelled.
func (l *Lifecycle) Cancel(id string) error {
	l.mu.Lock()
	r, ok := l.running[id]
	l.mu.Unlock()

	if !ok {
		if _, err := l.store.Get(id, false); err != nil {
			return err
		}
		return errdefs.Conflictf("search %s is not in progress", id)
	}
	r.cancel()
	return nil
}

// Find returns one search record.
func (l *Lifecycle) Find(id string, includeResponses bool) (types.Search, error) {
	return l.store.Get(id, includeResponses)
}

// List returns all search records without responses, newest first.
func (l *Lifecycle) List() ([]types.Search, error) {
	return l.store.List()
}

// Delete removes a search record. A running search is cancelled and
// its terminal write waited out first, so deletion sticks.
func (l *Lifecycle) Delete(id string) error {
	l.mu.Lock()
	r, ok := l.running[id]
	l.mu.Unlock()
	if ok {
		r.cancel()
		<-r.done
	}
	return l.store.Delete(id)
}

// Stop cancels every running search and waits for their final writes.
func (l *Lifecycle) Stop() {
	l.mu.Lock()
	for _, r := range l.running {
		r.cancel()
	}
	l.mu.Unlock()
	l.wg.Wait()
}

func (l *Lifecycle) run(ctx context.Context, r *running, search types.Search, scope soul.Scope) {
	defer l.wg.Done()
	defer close(r.done)
	defer r.cancel()
	defer func() {
		l.mu.Lock()
		delete(l.running, search.ID)
		l.mu.Unlock()
	}()

	opts := l.options()
	timer := metrics.NewTimer()

	req := soul.SearchRequest{
		Token:                  search.Token,
		Query:                  search.SearchText,
		Scope:                  scope,
		ResponseLimit:          opts.ResponseLimit,
		FileLimit:              opts.FileLimit,
		Timeout:                time.Duration(opts.TimeoutSeconds) * time.Second,
		FilterResponses:        opts.FilterResponses,
		MinimumPeerUploadSpeed: opts.MinimumPeerUploadSpeed,
	}

	// The record and the response list are guarded by mu: the sink
	// runs on the client's read loop while this goroutine owns the
	// terminal write.
	var mu sync.Mutex
	var responses []types.SearchResponse

	search.State = types.SearchInProgress
	l.persist(search)

	sink := func(resp types.SearchResponse) {
		if opts.FilterResponses && !acceptResponse(resp, opts) {
			return
		}
		metrics.SearchResponsesReceived.Inc()

		mu.Lock()
		responses = append(responses, resp)
		search.ResponseCount++
		search.FileCount += len(resp.Files)
		search.LockedFileCount += resp.LockedFileCount
		l.persist(search)
		mu.Unlock()
	}

	state, err := l.client.Search(ctx, req, sink)
	if !state.Terminal() {
		if ctx.Err() != nil {
			state = types.SearchCompletedCancelled
		} else {
			state = types.SearchCompletedErrored
		}
	}
	endedAt := time.Now().UTC()

	mu.Lock()
	search.State = state
	search.EndedAt = &endedAt
	search.Responses = responses
	l.persist(search)
	mu.Unlock()

	timer.ObserveDuration(metrics.SearchDuration)
	metrics.SearchesCompleted.WithLabelValues(string(state)).Inc()

	event := l.logger.Info()
	if err != nil && state == types.SearchCompletedErrored {
		event = l.logger.Error().Err(err)
	}
	event.
		Str("searchId", search.ID).
		Str("state", string(state)).
		Int("responses", search.ResponseCount).
		Int("files", search.FileCount).
		Dur("took", timer.Duration()).
		Msg("search ended")
}

func (l *Lifecycle) persist(search types.Search) {
	if err := l.store.Put(search); err != nil {
		l.logger.Error().Err(err).Str("searchId", search.ID).Msg("failed to persist search")
	}
}

// acceptResponse applies the response gates. Peer speeds arrive in
// bytes per second; the configured minimum is KiB/s.
func acceptResponse(resp types.SearchResponse, opts config.SearchesOptions) bool {
	if len(resp.Files) == 0 && len(resp.LockedFiles) == 0 {
		return false
	}
	if opts.MinimumPeerUploadSpeed > 0 && resp.UploadSpeed < opts.MinimumPeerUploadSpeed*1024 {
		return false
	}
	if opts.MaximumPeerQueueLength > 0 && resp.QueueLength > opts.MaximumPeerQueueLength {
		return false
	}
	return true
}
