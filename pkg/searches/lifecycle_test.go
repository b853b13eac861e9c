package searches

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slskd/slskgo/pkg/config"
	"github.com/slskd/slskgo/pkg/errdefs"
	"github.com/slskd/slskgo/pkg/soul"
	"github.com/slskd/slskgo/pkg/types"
)

// fakeSearchClient scripts Client.Search: it feeds the canned
// responses to the sink, then either returns the canned terminal state
// or holds until the context is cancelled.
type fakeSearchClient struct {
	*soul.OfflineClient
	responses []types.SearchResponse
	state     types.SearchState
	err       error
	hold      bool
}

func (c *fakeSearchClient) Search(ctx context.Context, req soul.SearchRequest, sink func(types.SearchResponse)) (types.SearchState, error) {
	for _, r := range c.responses {
		sink(r)
	}
	if c.hold {
		<-ctx.Done()
		return types.SearchCompletedCancelled, ctx.Err()
	}
	return c.state, c.err
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "searches.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestLifecycle(t *testing.T, client soul.Client) (*Lifecycle, *Store) {
	t.Helper()
	store := newTestStore(t)
	lifecycle := NewLifecycle(client, store, config.SearchesOptions{TimeoutSeconds: 5})
	t.Cleanup(lifecycle.Stop)
	return lifecycle, store
}

func peerResponse(username string, files int) types.SearchResponse {
	resp := types.SearchResponse{Username: username, UploadSpeed: 1 << 20}
	for i := 0; i < files; i++ {
		resp.Files = append(resp.Files, types.File{Path: "a", Size: 1})
	}
	resp.FileCount = files
	return resp
}

func awaitState(t *testing.T, store *Store, id string, want types.SearchState) types.Search {
	t.Helper()
	var search types.Search
	require.Eventually(t, func() bool {
		var err error
		search, err = store.Get(id, true)
		return err == nil && search.State == want
	}, time.Second, 5*time.Millisecond)
	return search
}

func TestCreateRunsToTerminalState(t *testing.T) {
	client := &fakeSearchClient{
		OfflineClient: soul.NewOfflineClient(),
		responses: []types.SearchResponse{
			peerResponse("alice", 2),
			peerResponse("bob", 3),
		},
		state: types.SearchCompletedResponseLimitReached,
	}
	lifecycle, store := newTestLifecycle(t, client)

	created, err := lifecycle.Create("s1", "brown bird flac", soul.Scope{})
	require.NoError(t, err)
	assert.Equal(t, types.SearchRequested, created.State)
	assert.NotZero(t, created.Token)

	search := awaitState(t, store, "s1", types.SearchCompletedResponseLimitReached)
	assert.Equal(t, 2, search.ResponseCount)
	assert.Equal(t, 5, search.FileCount)
	require.NotNil(t, search.EndedAt)
	require.Len(t, search.Responses, 2)
	assert.Equal(t, "alice", search.Responses[0].Username)
}

func TestCreateRequiresSearchText(t *testing.T) {
	lifecycle, _ := newTestLifecycle(t, &fakeSearchClient{OfflineClient: soul.NewOfflineClient()})

	_, err := lifecycle.Create("s1", "   ", soul.Scope{})
	assert.True(t, errdefs.IsValidation(err))
}

func TestCreateAssignsID(t *testing.T) {
	client := &fakeSearchClient{
		OfflineClient: soul.NewOfflineClient(),
		state:         types.SearchCompletedTimedOut,
	}
	lifecycle, store := newTestLifecycle(t, client)

	created, err := lifecycle.Create("", "anything at all", soul.Scope{})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	awaitState(t, store, created.ID, types.SearchCompletedTimedOut)
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	client := &fakeSearchClient{
		OfflineClient: soul.NewOfflineClient(),
		state:         types.SearchCompletedTimedOut,
	}
	lifecycle, _ := newTestLifecycle(t, client)

	_, err := lifecycle.Create("dup", "first query", soul.Scope{})
	require.NoError(t, err)

	_, err = lifecycle.Create("dup", "second query", soul.Scope{})
	assert.True(t, errdefs.IsConflict(err))
}

func TestResponsesPersistOnlyAtTerminal(t *testing.T) {
	client := &fakeSearchClient{
		OfflineClient: soul.NewOfflineClient(),
		responses: []types.SearchResponse{
			peerResponse("alice", 1),
			peerResponse("bob", 1),
		},
		hold: true,
	}
	lifecycle, store := newTestLifecycle(t, client)

	_, err := lifecycle.Create("s1", "hold this open", soul.Scope{})
	require.NoError(t, err)

	// Counters advance while running; the response list stays unset.
	require.Eventually(t, func() bool {
		search, err := store.Get("s1", true)
		return err == nil && search.ResponseCount == 2
	}, time.Second, 5*time.Millisecond)

	search, err := store.Get("s1", true)
	require.NoError(t, err)
	assert.Equal(t, types.SearchInProgress, search.State)
	assert.Empty(t, search.Responses)

	require.NoError(t, lifecycle.Cancel("s1"))

	search = awaitState(t, store, "s1", types.SearchCompletedCancelled)
	assert.Len(t, search.Responses, 2)
}

func TestCancelNotRunning(t *testing.T) {
	client := &fakeSearchClient{
		OfflineClient: soul.NewOfflineClient(),
		state:         types.SearchCompletedTimedOut,
	}
	lifecycle, store := newTestLifecycle(t, client)

	_, err := lifecycle.Create("s1", "quick search", soul.Scope{})
	require.NoError(t, err)
	awaitState(t, store, "s1", types.SearchCompletedTimedOut)

	err = lifecycle.Cancel("s1")
	assert.True(t, errdefs.IsConflict(err))

	err = lifecycle.Cancel("missing")
	assert.True(t, errdefs.IsNotFound(err))
}

func TestDeleteCancelsRunningSearch(t *testing.T) {
	client := &fakeSearchClient{
		OfflineClient: soul.NewOfflineClient(),
		hold:          true,
	}
	lifecycle, store := newTestLifecycle(t, client)

	_, err := lifecycle.Create("s1", "hold this open", soul.Scope{})
	require.NoError(t, err)

	require.NoError(t, lifecycle.Delete("s1"))

	// Deletion waits out the terminal write, so nothing resurrects.
	_, err = store.Get("s1", false)
	assert.True(t, errdefs.IsNotFound(err))

	list, err := lifecycle.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFilterResponsesDropsSlowPeers(t *testing.T) {
	slow := peerResponse("slowpoke", 1)
	slow.UploadSpeed = 10 * 1024
	fast := peerResponse("speedy", 1)
	fast.UploadSpeed = 500 * 1024

	client := &fakeSearchClient{
		OfflineClient: soul.NewOfflineClient(),
		responses:     []types.SearchResponse{slow, fast},
		state:         types.SearchCompletedTimedOut,
	}
	store := newTestStore(t)
	lifecycle := NewLifecycle(client, store, config.SearchesOptions{
		TimeoutSeconds:         5,
		FilterResponses:        true,
		MinimumPeerUploadSpeed: 100,
	})
	t.Cleanup(lifecycle.Stop)

	_, err := lifecycle.Create("s1", "need it fast", soul.Scope{})
	require.NoError(t, err)

	search := awaitState(t, store, "s1", types.SearchCompletedTimedOut)
	require.Len(t, search.Responses, 1)
	assert.Equal(t, "speedy", search.Responses[0].Username)
}

func TestFilterResponsesDropsLongQueues(t *testing.T) {
	swamped := peerResponse("swamped", 1)
	swamped.QueueLength = 5000
	idle := peerResponse("idle", 1)
	idle.QueueLength = 2

	client := &fakeSearchClient{
		OfflineClient: soul.NewOfflineClient(),
		responses:     []types.SearchResponse{swamped, idle},
		state:         types.SearchCompletedTimedOut,
	}
	store := newTestStore(t)
	lifecycle := NewLifecycle(client, store, config.SearchesOptions{
		TimeoutSeconds:         5,
		FilterResponses:        true,
		MaximumPeerQueueLength: 100,
	})
	t.Cleanup(lifecycle.Stop)

	_, err := lifecycle.Create("s1", "shortest line wins", soul.Scope{})
	require.NoError(t, err)

	search := awaitState(t, store, "s1", types.SearchCompletedTimedOut)
	require.Len(t, search.Responses, 1)
	assert.Equal(t, "idle", search.Responses[0].Username)
}

func TestListStripsResponses(t *testing.T) {
	client := &fakeSearchClient{
		OfflineClient: soul.NewOfflineClient(),
		responses:     []types.SearchResponse{peerResponse("alice", 1)},
		state:         types.SearchCompletedResponseLimitReached,
	}
	lifecycle, store := newTestLifecycle(t, client)

	_, err := lifecycle.Create("s1", "stripped in lists", soul.Scope{})
	require.NoError(t, err)
	awaitState(t, store, "s1", types.SearchCompletedResponseLimitReached)

	list, err := lifecycle.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Responses)

	found, err := lifecycle.Find("s1", false)
	require.NoError(t, err)
	assert.Empty(t, found.Responses)

	found, err = lifecycle.Find("s1", true)
	require.NoError(t, err)
	assert.NotEmpty(t, found.Responses)
}
