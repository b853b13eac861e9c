package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/slskd/slskgo/pkg/config"
	"github.com/slskd/slskgo/pkg/errdefs"
	"github.com/slskd/slskgo/pkg/log"
	"github.com/slskd/slskgo/pkg/metrics"
	"github.com/slskd/slskgo/pkg/types"
)

// GroupResolver maps a username to its upload group. Lookups happen at
// release time, not enqueue time, so reclassification while queued
// takes effect.
type GroupResolver interface {
	GroupFor(username string) string
}

// EnqueueResult distinguishes a fresh enqueue from an idempotent
// repeat.
type EnqueueResult string

const (
	Enqueued      EnqueueResult = "enqueued"
	AlreadyQueued EnqueueResult = "already-queued"
)

// upload is the scheduler's private record of one queued upload. The
// ready channel is closed exactly once, at release, after the queue
// mutex is dropped.
type upload struct {
	id         string
	username   string
	filename   string
	enqueuedAt time.Time

	// turnAt orders round-robin rotation: initialised to the enqueue
	// time and bumped on the user's next candidate whenever one of
	// their uploads is released.
	turnAt time.Time

	releasedAt *time.Time
	group      string
	ready      chan struct{}
}

type group struct {
	name     string
	priority int
	rank     int
	slots    int
	used     int
	strategy types.QueueStrategy
}

// Queue decides which enqueued upload is released next, subject to
// per-group slot budgets and strategies. It performs no I/O; releasing
// an upload closes its readiness channel and the transfer executor
// does the rest.
type Queue struct {
	resolver GroupResolver
	logger   zerolog.Logger

	mu          sync.Mutex
	users       map[string][]*upload
	groups      []*group
	byName      map[string]*group
	globalSlots int
	startedNum  int

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a Queue with the given group configuration.
func New(resolver GroupResolver, opts config.GroupsOptions, globalSlots int) *Queue {
	groups, byName := buildGroups(opts, globalSlots)
	return &Queue{
		resolver:    resolver,
		logger:      log.WithComponent("scheduler"),
		users:       make(map[string][]*upload),
		groups:      groups,
		byName:      byName,
		globalSlots: globalSlots,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the periodic release loop. Event-driven callers also
// invoke Drain directly; the ticker covers releases unlocked by
// reclassification or reconfiguration.
func (q *Queue) Start() {
	go q.run()
}

// Stop halts the periodic loop. Queued uploads stay queued.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() { close(q.stopCh) })
}

func (q *Queue) run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			q.Drain()
		case <-q.stopCh:
			return
		}
	}
}

// Enqueue appends an upload to the user's list. A (user, filename)
// pair that is already queued or running is not duplicated.
func (q *Queue) Enqueue(username, filename string) (EnqueueResult, error) {
	if username == "" || filename == "" {
		return "", errdefs.Validationf("username and filename are required")
	}

	q.mu.Lock()
	for _, u := range q.users[username] {
		if u.filename == filename {
			q.mu.Unlock()
			return AlreadyQueued, nil
		}
	}

	now := time.Now()
	u := &upload{
		id:         uuid.New().String(),
		username:   username,
		filename:   filename,
		enqueuedAt: now,
		turnAt:     now,
		ready:      make(chan struct{}),
	}
	q.users[username] = append(q.users[username], u)
	queued := q.queuedLocked()
	q.mu.Unlock()

	q.logger.Debug().
		Str("username", username).
		Str("filename", filename).
		Int("queued", queued).
		Msg("upload enqueued")
	return Enqueued, nil
}

// AwaitStart returns the upload's readiness channel, which is closed
// when the scheduler releases it. It fails if no such upload is
// queued.
func (q *Queue) AwaitStart(username, filename string) (<-chan struct{}, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, u := range q.users[username] {
		if u.filename == filename {
			return u.ready, nil
		}
	}
	return nil, errdefs.NotFoundf("no queued upload of %q for %s", filename, username)
}

// Complete removes the upload and releases the slot of its assigned
// group. Completing a never-released upload removes it from the queue
// without touching any slot count.
func (q *Queue) Complete(username, filename string) error {
	q.mu.Lock()

	list, ok := q.users[username]
	if !ok {
		q.mu.Unlock()
		return errdefs.NotFoundf("user %s has no queued uploads", username)
	}

	idx := -1
	for i, u := range list {
		if u.filename == filename {
			idx = i
			break
		}
	}
	if idx < 0 {
		q.mu.Unlock()
		return errdefs.NotFoundf("no queued upload of %q for %s", filename, username)
	}

	u := list[idx]
	list = append(list[:idx], list[idx+1:]...)
	if len(list) == 0 {
		delete(q.users, username)
	} else {
		q.users[username] = list
	}

	if u.releasedAt != nil {
		q.startedNum--
		if g, ok := q.byName[u.group]; ok {
			g.used--
		}
	}
	q.mu.Unlock()

	q.logger.Debug().
		Str("username", username).
		Str("filename", filename).
		Str("group", u.group).
		Msg("upload completed")
	return nil
}

// Process selects at most one upload to release and returns a snapshot
// of it, or nil when nothing can be released. Selection runs under the
// queue mutex; the readiness signal fires after it is dropped.
func (q *Queue) Process() *types.Upload {
	q.mu.Lock()

	u, g := q.selectLocked()
	if u == nil {
		q.mu.Unlock()
		return nil
	}

	now := time.Now()
	u.releasedAt = &now
	u.group = g.name
	g.used++
	q.startedNum++

	// Rotate: the user's next candidate moves to the back of the
	// round-robin order.
	for _, next := range q.users[u.username] {
		if next.releasedAt == nil {
			next.turnAt = time.Now()
			break
		}
	}

	snapshot := q.snapshotLocked(u)
	q.mu.Unlock()

	close(u.ready)

	metrics.UploadsReleased.WithLabelValues(snapshot.Group).Inc()
	q.logger.Info().
		Str("username", snapshot.Username).
		Str("filename", snapshot.Filename).
		Str("group", snapshot.Group).
		Msg("upload released")
	return snapshot
}

// Drain releases until no further upload qualifies, returning how many
// were released.
func (q *Queue) Drain() int {
	n := 0
	for q.Process() != nil {
		n++
	}
	return n
}

// selectLocked walks groups in priority order and picks the best
// candidate of the first group with both a free slot and a candidate.
func (q *Queue) selectLocked() (*upload, *group) {
	if q.startedNum >= q.globalSlots {
		return nil, nil
	}

	assigned := q.assignmentsLocked()
	for _, g := range q.groups {
		if g.used >= g.slots {
			continue
		}
		if candidate := q.candidateLocked(g, assigned); candidate != nil {
			return candidate, g
		}
	}
	return nil, nil
}

// assignmentsLocked resolves every queued user's group once per pass.
// Users resolving to a group that no longer exists fall back to
// default rather than starving.
func (q *Queue) assignmentsLocked() map[string]*group {
	assigned := make(map[string]*group, len(q.users))
	for username := range q.users {
		g, ok := q.byName[q.resolver.GroupFor(username)]
		if !ok {
			g = q.byName[types.GroupDefault]
		}
		assigned[username] = g
	}
	return assigned
}

// candidateLocked picks the group's best candidate: each user
// contributes the first unreleased upload in their list; the strategy
// orders those heads.
func (q *Queue) candidateLocked(g *group, assigned map[string]*group) *upload {
	var best *upload
	for username, list := range q.users {
		if assigned[username] != g {
			continue
		}
		var head *upload
		for _, u := range list {
			if u.releasedAt == nil {
				head = u
				break
			}
		}
		if head == nil {
			continue
		}
		if best == nil || better(head, best, g.strategy) {
			best = head
		}
	}
	return best
}

// better reports whether a should be released before b. The strategy
// supplies the primary key; ties fall through (user, enqueued-at,
// filename) in that order.
func better(a, b *upload, strategy types.QueueStrategy) bool {
	var ka, kb time.Time
	if strategy == types.StrategyFIFO {
		ka, kb = a.enqueuedAt, b.enqueuedAt
	} else {
		ka, kb = a.turnAt, b.turnAt
	}
	if !ka.Equal(kb) {
		return ka.Before(kb)
	}
	if a.username != b.username {
		return a.username < b.username
	}
	if !a.enqueuedAt.Equal(b.enqueuedAt) {
		return a.enqueuedAt.Before(b.enqueuedAt)
	}
	return a.filename < b.filename
}

// Reconfigure rebuilds the group table from new options. Groups that
// keep their name keep their used-slot count; running uploads of
// vanished groups are re-bucketed to default for accounting and run to
// completion untouched.
func (q *Queue) Reconfigure(opts config.GroupsOptions, globalSlots int) {
	groups, byName := buildGroups(opts, globalSlots)

	q.mu.Lock()
	for name, g := range byName {
		if prev, ok := q.byName[name]; ok {
			g.used = prev.used
		}
	}
	for _, list := range q.users {
		for _, u := range list {
			if u.releasedAt == nil || u.group == "" {
				continue
			}
			if _, ok := byName[u.group]; !ok {
				byName[types.GroupDefault].used++
				u.group = types.GroupDefault
			}
		}
	}
	q.groups = groups
	q.byName = byName
	q.globalSlots = globalSlots
	q.mu.Unlock()

	q.logger.Info().Int("groups", len(groups)).Int("globalSlots", globalSlots).Msg("groups reconfigured")
}

// HasFreeNonLeecherSlot reports whether any group other than leechers
// could release an upload right now. Search responses advertise it.
func (q *Queue) HasFreeNonLeecherSlot() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.startedNum >= q.globalSlots {
		return false
	}
	for _, g := range q.groups {
		if g.name == types.GroupLeechers {
			continue
		}
		if g.used < g.slots {
			return true
		}
	}
	return false
}

// Groups returns the live group table in release-priority order.
func (q *Queue) Groups() []types.UploadGroup {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]types.UploadGroup, 0, len(q.groups))
	for _, g := range q.groups {
		out = append(out, types.UploadGroup{
			Name:      g.name,
			Priority:  g.priority,
			Slots:     g.slots,
			UsedSlots: g.used,
			Strategy:  g.strategy,
		})
	}
	return out
}

// List returns a snapshot of every queued and running upload, ordered
// by enqueue time.
func (q *Queue) List() []types.Upload {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []types.Upload
	for _, list := range q.users {
		for _, u := range list {
			out = append(out, *q.snapshotLocked(u))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
		}
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		return out[i].Filename < out[j].Filename
	})
	return out
}

// Snapshot summarises the queue for the observable state.
func (q *Queue) Snapshot() types.QueueState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return types.QueueState{Queued: q.queuedLocked(), Started: q.startedNum}
}

func (q *Queue) queuedLocked() int {
	n := 0
	for _, list := range q.users {
		for _, u := range list {
			if u.releasedAt == nil {
				n++
			}
		}
	}
	return n
}

func (q *Queue) snapshotLocked(u *upload) *types.Upload {
	snapshot := &types.Upload{
		ID:         u.id,
		Username:   u.username,
		Filename:   u.filename,
		EnqueuedAt: u.enqueuedAt,
		Group:      u.group,
	}
	if u.releasedAt != nil {
		at := *u.releasedAt
		snapshot.ReadyAt = &at
	}
	return snapshot
}

// buildGroups constructs the ordered group table. The built-ins always
// exist: privileged ahead of everything with the full global budget,
// then default and leechers as configured. User-defined groups follow
// in name order. Capacity is clamped to the global slot count.
func buildGroups(opts config.GroupsOptions, globalSlots int) ([]*group, map[string]*group) {
	clamp := func(slots int) int {
		if slots < 0 {
			return 0
		}
		if slots > globalSlots {
			return globalSlots
		}
		return slots
	}
	strategyOrDefault := func(s types.QueueStrategy) types.QueueStrategy {
		if s == "" {
			return types.StrategyRoundRobin
		}
		return s
	}

	groups := []*group{
		{name: types.GroupPrivileged, priority: 0, rank: 0, slots: globalSlots, strategy: types.StrategyFIFO},
		{name: types.GroupDefault, priority: opts.Default.Priority, rank: 1, slots: clamp(opts.Default.Slots), strategy: strategyOrDefault(opts.Default.Strategy)},
		{name: types.GroupLeechers, priority: opts.Leechers.Priority, rank: 2, slots: clamp(opts.Leechers.Slots), strategy: strategyOrDefault(opts.Leechers.Strategy)},
	}

	names := make([]string, 0, len(opts.UserDefined))
	for name := range opts.UserDefined {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		cfg := opts.UserDefined[name]
		groups = append(groups, &group{
			name:     name,
			priority: cfg.Priority,
			rank:     3 + i,
			slots:    clamp(cfg.Slots),
			strategy: strategyOrDefault(cfg.Strategy),
		})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].priority != groups[j].priority {
			return groups[i].priority < groups[j].priority
		}
		return groups[i].rank < groups[j].rank
	})

	byName := make(map[string]*group, len(groups))
	for _, g := range groups {
		byName[g.name] = g
	}
	return groups, byName
}
