package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slskd/slskgo/pkg/config"
	"github.com/slskd/slskgo/pkg/errdefs"
	"github.com/slskd/slskgo/pkg/types"
)

// stubResolver maps usernames to groups, defaulting to the default
// group.
type stubResolver map[string]string

func (r stubResolver) GroupFor(username string) string {
	if g, ok := r[username]; ok {
		return g
	}
	return types.GroupDefault
}

func fifoGroups(slots int) config.GroupsOptions {
	return config.GroupsOptions{
		Default:  config.GroupOptions{Priority: 1, Slots: slots, Strategy: types.StrategyFIFO},
		Leechers: config.LeecherGroupOptions{Priority: 99, Slots: 1, Strategy: types.StrategyFIFO},
	}
}

func roundRobinGroups(slots int) config.GroupsOptions {
	return config.GroupsOptions{
		Default:  config.GroupOptions{Priority: 1, Slots: slots, Strategy: types.StrategyRoundRobin},
		Leechers: config.LeecherGroupOptions{Priority: 99, Slots: 1, Strategy: types.StrategyRoundRobin},
	}
}

func mustEnqueue(t *testing.T, q *Queue, username, filename string) {
	t.Helper()
	result, err := q.Enqueue(username, filename)
	require.NoError(t, err)
	require.Equal(t, Enqueued, result)
	time.Sleep(time.Millisecond)
}

func released(t *testing.T, q *Queue) *types.Upload {
	t.Helper()
	u := q.Process()
	require.NotNil(t, u)
	return u
}

func TestPriorityBeatsEnqueueOrder(t *testing.T) {
	q := New(stubResolver{"alice": types.GroupPrivileged}, fifoGroups(1), 1)

	mustEnqueue(t, q, "alice", "a.mp3")
	mustEnqueue(t, q, "bob", "b.mp3")

	first := released(t, q)
	assert.Equal(t, "alice", first.Username)
	assert.Equal(t, types.GroupPrivileged, first.Group)

	// Global budget of one: nothing else starts until alice finishes.
	require.Nil(t, q.Process())

	require.NoError(t, q.Complete("alice", "a.mp3"))
	second := released(t, q)
	assert.Equal(t, "bob", second.Username)
	assert.Equal(t, types.GroupDefault, second.Group)
}

func TestRoundRobinRotatesAcrossUsers(t *testing.T) {
	q := New(stubResolver{}, roundRobinGroups(1), 1)

	mustEnqueue(t, q, "u1", "f1")
	mustEnqueue(t, q, "u1", "f2")
	mustEnqueue(t, q, "u2", "f3")

	order := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		u := released(t, q)
		order = append(order, u.Filename)
		require.NoError(t, q.Complete(u.Username, u.Filename))
	}
	assert.Equal(t, []string{"f1", "f3", "f2"}, order)
}

func TestFIFOServesEnqueueOrderAcrossUsers(t *testing.T) {
	q := New(stubResolver{}, fifoGroups(3), 3)

	mustEnqueue(t, q, "u1", "f1")
	mustEnqueue(t, q, "u2", "f2")
	mustEnqueue(t, q, "u1", "f3")

	order := []string{released(t, q).Filename, released(t, q).Filename, released(t, q).Filename}
	assert.Equal(t, []string{"f1", "f2", "f3"}, order)
	assert.Nil(t, q.Process())
}

func TestEnqueueIsIdempotent(t *testing.T) {
	q := New(stubResolver{}, fifoGroups(1), 1)

	result, err := q.Enqueue("alice", "a.mp3")
	require.NoError(t, err)
	assert.Equal(t, Enqueued, result)

	result, err = q.Enqueue("alice", "a.mp3")
	require.NoError(t, err)
	assert.Equal(t, AlreadyQueued, result)

	// Still idempotent once running.
	released(t, q)
	result, err = q.Enqueue("alice", "a.mp3")
	require.NoError(t, err)
	assert.Equal(t, AlreadyQueued, result)
}

func TestAwaitStart(t *testing.T) {
	q := New(stubResolver{}, fifoGroups(1), 1)

	_, err := q.AwaitStart("alice", "a.mp3")
	assert.True(t, errdefs.IsNotFound(err))

	mustEnqueue(t, q, "alice", "a.mp3")
	ready, err := q.AwaitStart("alice", "a.mp3")
	require.NoError(t, err)

	select {
	case <-ready:
		t.Fatal("upload should not be ready before release")
	default:
	}

	released(t, q)

	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("readiness signal did not fire")
	}

	// Awaiting an already released upload resolves immediately.
	again, err := q.AwaitStart("alice", "a.mp3")
	require.NoError(t, err)
	select {
	case <-again:
	case <-time.After(time.Second):
		t.Fatal("released upload should read as ready")
	}
}

func TestCompleteUnknown(t *testing.T) {
	q := New(stubResolver{}, fifoGroups(1), 1)

	err := q.Complete("ghost", "f")
	assert.True(t, errdefs.IsNotFound(err))

	mustEnqueue(t, q, "alice", "a.mp3")
	err = q.Complete("alice", "other.mp3")
	assert.True(t, errdefs.IsNotFound(err))
}

func TestCompleteQueuedUploadTouchesNoSlot(t *testing.T) {
	q := New(stubResolver{}, fifoGroups(1), 1)
	mustEnqueue(t, q, "alice", "a.mp3")

	require.NoError(t, q.Complete("alice", "a.mp3"))

	for _, g := range q.Groups() {
		assert.Zero(t, g.UsedSlots, g.Name)
	}
	assert.Equal(t, types.QueueState{}, q.Snapshot())
}

func TestSlotAccounting(t *testing.T) {
	q := New(stubResolver{}, fifoGroups(2), 10)

	mustEnqueue(t, q, "u1", "f1")
	mustEnqueue(t, q, "u2", "f2")
	mustEnqueue(t, q, "u3", "f3")

	assert.Equal(t, 2, q.Drain())
	assert.Equal(t, types.QueueState{Queued: 1, Started: 2}, q.Snapshot())

	groups := q.Groups()
	for _, g := range groups {
		if g.Name == types.GroupDefault {
			assert.Equal(t, 2, g.UsedSlots)
		}
	}

	require.NoError(t, q.Complete("u1", "f1"))
	assert.Equal(t, 1, q.Drain())
	assert.Equal(t, types.QueueState{Queued: 0, Started: 2}, q.Snapshot())
}

func TestGlobalSlotCapAcrossGroups(t *testing.T) {
	resolver := stubResolver{"alice": types.GroupPrivileged}
	q := New(resolver, fifoGroups(5), 2)

	mustEnqueue(t, q, "alice", "a.mp3")
	mustEnqueue(t, q, "bob", "b.mp3")
	mustEnqueue(t, q, "carol", "c.mp3")

	assert.Equal(t, 2, q.Drain())
	assert.Equal(t, 2, q.Snapshot().Started)
}

func TestReconfigurePreservesUsedSlotsByName(t *testing.T) {
	q := New(stubResolver{}, fifoGroups(2), 10)
	mustEnqueue(t, q, "u1", "f1")
	released(t, q)

	q.Reconfigure(fifoGroups(5), 10)

	for _, g := range q.Groups() {
		if g.Name == types.GroupDefault {
			assert.Equal(t, 1, g.UsedSlots)
			assert.Equal(t, 5, g.Slots)
		}
	}

	require.NoError(t, q.Complete("u1", "f1"))
	for _, g := range q.Groups() {
		if g.Name == types.GroupDefault {
			assert.Zero(t, g.UsedSlots)
		}
	}
}

func TestReconfigureRebucketsVanishedGroup(t *testing.T) {
	opts := fifoGroups(2)
	opts.UserDefined = map[string]config.UserGroupOptions{
		"vip": {Priority: 0, Slots: 2, Strategy: types.StrategyFIFO, Members: []string{"alice"}},
	}
	q := New(stubResolver{"alice": "vip"}, opts, 10)

	mustEnqueue(t, q, "alice", "a.mp3")
	u := released(t, q)
	require.Equal(t, "vip", u.Group)

	// vip disappears; the running upload is accounted under default.
	q.Reconfigure(fifoGroups(2), 10)

	for _, g := range q.Groups() {
		if g.Name == types.GroupDefault {
			assert.Equal(t, 1, g.UsedSlots)
		}
	}

	require.NoError(t, q.Complete("alice", "a.mp3"))
	for _, g := range q.Groups() {
		assert.Zero(t, g.UsedSlots, g.Name)
	}
}

func TestUserDefinedGroupOrdering(t *testing.T) {
	opts := fifoGroups(1)
	opts.UserDefined = map[string]config.UserGroupOptions{
		"zeta":  {Priority: 1, Slots: 1, Strategy: types.StrategyFIFO},
		"alpha": {Priority: 1, Slots: 1, Strategy: types.StrategyFIFO},
	}
	q := New(stubResolver{}, opts, 10)

	var names []string
	for _, g := range q.Groups() {
		names = append(names, g.Name)
	}
	// Equal priority: built-ins before user-defined, user-defined by name.
	assert.Equal(t, []string{types.GroupPrivileged, types.GroupDefault, "alpha", "zeta", types.GroupLeechers}, names)
}

func TestHasFreeNonLeecherSlot(t *testing.T) {
	q := New(stubResolver{}, fifoGroups(1), 1)
	assert.True(t, q.HasFreeNonLeecherSlot())

	mustEnqueue(t, q, "u1", "f1")
	released(t, q)
	assert.False(t, q.HasFreeNonLeecherSlot())

	require.NoError(t, q.Complete("u1", "f1"))
	assert.True(t, q.HasFreeNonLeecherSlot())
}

func TestListSnapshotsUploads(t *testing.T) {
	q := New(stubResolver{}, fifoGroups(1), 1)
	mustEnqueue(t, q, "u1", "f1")
	mustEnqueue(t, q, "u2", "f2")
	released(t, q)

	list := q.List()
	require.Len(t, list, 2)
	assert.Equal(t, "f1", list[0].Filename)
	assert.Equal(t, types.UploadReady, list[0].State())
	assert.Equal(t, types.UploadQueued, list[1].State())
}
