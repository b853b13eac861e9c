package transfers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slskd/slskgo/pkg/config"
	"github.com/slskd/slskgo/pkg/errdefs"
	"github.com/slskd/slskgo/pkg/rate"
	"github.com/slskd/slskgo/pkg/relay"
	"github.com/slskd/slskgo/pkg/scheduler"
	"github.com/slskd/slskgo/pkg/shares"
	"github.com/slskd/slskgo/pkg/soul"
	"github.com/slskd/slskgo/pkg/types"
)

var trackBytes = []byte("local file bytes 0123456789")

const localWirePath = `@@music\Album\01 - intro.mp3`

type capturedUpload struct {
	username string
	filename string
	size     int64
	data     []byte
}

// fakeSoulClient records uploads pushed through it.
type fakeSoulClient struct {
	*soul.OfflineClient
	mu      sync.Mutex
	uploads []capturedUpload
	fail    error
}

func (c *fakeSoulClient) Upload(ctx context.Context, username, filename string, size int64, source io.Reader) error {
	data, err := io.ReadAll(source)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.uploads = append(c.uploads, capturedUpload{username, filename, size, data})
	c.mu.Unlock()
	return c.fail
}

func (c *fakeSoulClient) Uploads() []capturedUpload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]capturedUpload(nil), c.uploads...)
}

type closedStream struct {
	id  string
	err error
}

// fakeAgentStreams serves in-memory files keyed by wire path.
type fakeAgentStreams struct {
	mu     sync.Mutex
	files  map[string][]byte
	closed []closedStream
}

func (f *fakeAgentStreams) GetFileInfo(ctx context.Context, agent, filename string, timeout time.Duration) (relay.FileInfo, error) {
	data, ok := f.files[filename]
	if !ok {
		return relay.FileInfo{}, nil
	}
	return relay.FileInfo{Exists: true, Length: int64(len(data))}, nil
}

func (f *fakeAgentStreams) GetFileStream(ctx context.Context, agent, filename string, startOffset int64, id string, timeout time.Duration) (io.ReadCloser, error) {
	data, ok := f.files[filename]
	if !ok {
		return nil, errdefs.RemoteAgentf("agent %s: no such file", agent)
	}
	return io.NopCloser(bytes.NewReader(data[startOffset:])), nil
}

func (f *fakeAgentStreams) TryCloseFileStream(agent, id string, streamErr error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, closedStream{id: id, err: streamErr})
	return true
}

func (f *fakeAgentStreams) Closed() []closedStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]closedStream(nil), f.closed...)
}

type allDefault struct{}

func (allDefault) GroupFor(string) string { return types.GroupDefault }

// newTestIndex scans one local share; withAgent adds an agent host
// sharing @@ext/tune.mp3.
func newTestIndex(t *testing.T, withAgent bool, agentBytes []byte) *shares.Index {
	t.Helper()

	root := t.TempDir()
	path := filepath.Join(root, "Album", "01 - intro.mp3")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, trackBytes, 0644))

	index := shares.NewIndex(shares.Limits{MinQueryChars: 3, MaxResults: 500})
	repo, err := shares.OpenRepository(filepath.Join(t.TempDir(), shares.LocalRepositoryName))
	require.NoError(t, err)
	index.AddOrUpdateHost(types.LocalHostName, nil, repo)
	t.Cleanup(func() { index.Close() })

	_, err = index.Scan(context.Background(), []string{"music:" + root}, nil)
	require.NoError(t, err)

	if withAgent {
		remote, err := shares.OpenRepository(filepath.Join(t.TempDir(), "agent-attic.db"))
		require.NoError(t, err)
		require.NoError(t, remote.PutFiles([]shares.Record{{
			File:      types.File{Path: "@@ext/tune.mp3", Size: int64(len(agentBytes)), Extension: "mp3"},
			LocalPath: "/remote/tune.mp3",
		}}))
		index.AddOrUpdateHost("attic", []types.Share{{Alias: "ext"}}, remote)
	}

	return index
}

func newTestExecutor(t *testing.T, index *shares.Index, client soul.Client, agents AgentStreams) (*Executor, *scheduler.Queue) {
	t.Helper()

	opts := config.GroupsOptions{
		Default:  config.GroupOptions{Priority: 1, Slots: 2, Strategy: types.StrategyFIFO},
		Leechers: config.LeecherGroupOptions{Priority: 99, Slots: 1, Strategy: types.StrategyFIFO},
	}
	queue := scheduler.New(allDefault{}, opts, 2)

	bucket := rate.NewTokenBucket(1<<20, 10*time.Millisecond)
	t.Cleanup(bucket.Stop)

	executor := NewExecutor(queue, index, client, agents, bucket)
	t.Cleanup(executor.Stop)
	return executor, queue
}

func awaitIdleQueue(t *testing.T, queue *scheduler.Queue) {
	t.Helper()
	require.Eventually(t, func() bool {
		s := queue.Snapshot()
		return s.Queued == 0 && s.Started == 0
	}, 5*time.Second, 10*time.Millisecond, "queue never drained")
}

func TestHandleEnqueueDeliversLocalFile(t *testing.T) {
	client := &fakeSoulClient{OfflineClient: soul.NewOfflineClient()}
	executor, queue := newTestExecutor(t, newTestIndex(t, false, nil), client, nil)

	require.NoError(t, executor.HandleEnqueue("peer", localWirePath))
	assert.Equal(t, 1, queue.Snapshot().Queued)

	require.NotNil(t, queue.Process())
	awaitIdleQueue(t, queue)

	uploads := client.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "peer", uploads[0].username)
	assert.Equal(t, localWirePath, uploads[0].filename)
	assert.Equal(t, int64(len(trackBytes)), uploads[0].size)
	assert.Equal(t, trackBytes, uploads[0].data)
}

func TestHandleEnqueueRejectsUnknownFile(t *testing.T) {
	client := &fakeSoulClient{OfflineClient: soul.NewOfflineClient()}
	executor, queue := newTestExecutor(t, newTestIndex(t, false, nil), client, nil)

	err := executor.HandleEnqueue("peer", `@@music\Album\99 - missing.mp3`)
	require.Error(t, err)
	assert.True(t, errdefs.IsNotFound(err))
	assert.Equal(t, 0, queue.Snapshot().Queued)
}

func TestHandleEnqueueIdempotent(t *testing.T) {
	client := &fakeSoulClient{OfflineClient: soul.NewOfflineClient()}
	executor, queue := newTestExecutor(t, newTestIndex(t, false, nil), client, nil)

	require.NoError(t, executor.HandleEnqueue("peer", localWirePath))
	require.NoError(t, executor.HandleEnqueue("peer", localWirePath))
	assert.Equal(t, 1, queue.Snapshot().Queued)

	require.NotNil(t, queue.Process())
	awaitIdleQueue(t, queue)
	assert.Len(t, client.Uploads(), 1)
}

func TestDeliversAgentFile(t *testing.T) {
	agentBytes := []byte("bytes that live on the agent")
	client := &fakeSoulClient{OfflineClient: soul.NewOfflineClient()}
	agents := &fakeAgentStreams{files: map[string][]byte{`@@ext\tune.mp3`: agentBytes}}
	executor, queue := newTestExecutor(t, newTestIndex(t, true, agentBytes), client, agents)

	require.NoError(t, executor.HandleEnqueue("peer", `@@ext\tune.mp3`))
	require.NotNil(t, queue.Process())
	awaitIdleQueue(t, queue)

	uploads := client.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, int64(len(agentBytes)), uploads[0].size)
	assert.Equal(t, agentBytes, uploads[0].data)

	closed := agents.Closed()
	require.Len(t, closed, 1)
	assert.NoError(t, closed[0].err)
}

func TestAgentFileGoneFailsUpload(t *testing.T) {
	client := &fakeSoulClient{OfflineClient: soul.NewOfflineClient()}
	// The index still lists the file, but the agent no longer has it.
	agents := &fakeAgentStreams{files: map[string][]byte{}}
	executor, queue := newTestExecutor(t, newTestIndex(t, true, []byte("stale")), client, agents)

	require.NoError(t, executor.HandleEnqueue("peer", `@@ext\tune.mp3`))
	require.NotNil(t, queue.Process())
	awaitIdleQueue(t, queue)

	assert.Empty(t, client.Uploads())
	assert.Empty(t, agents.Closed())
}

func TestEnqueueAgentFileWithoutController(t *testing.T) {
	client := &fakeSoulClient{OfflineClient: soul.NewOfflineClient()}
	executor, queue := newTestExecutor(t, newTestIndex(t, true, []byte("remote")), client, nil)

	err := executor.HandleEnqueue("peer", `@@ext\tune.mp3`)
	require.Error(t, err)
	assert.True(t, errdefs.IsNotFound(err))
	assert.Equal(t, 0, queue.Snapshot().Queued)
}

func TestUploadErrorReleasesSlot(t *testing.T) {
	client := &fakeSoulClient{OfflineClient: soul.NewOfflineClient(), fail: errors.New("peer went away")}
	executor, queue := newTestExecutor(t, newTestIndex(t, false, nil), client, nil)

	require.NoError(t, executor.HandleEnqueue("peer", localWirePath))
	require.NotNil(t, queue.Process())

	awaitIdleQueue(t, queue)
	assert.Len(t, client.Uploads(), 1)
}

func TestStopCancelsQueuedDelivery(t *testing.T) {
	client := &fakeSoulClient{OfflineClient: soul.NewOfflineClient()}
	executor, queue := newTestExecutor(t, newTestIndex(t, false, nil), client, nil)

	require.NoError(t, executor.HandleEnqueue("peer", localWirePath))

	// Never released: Stop must unblock the delivery and drop the
	// queue entry.
	executor.Stop()

	s := queue.Snapshot()
	assert.Equal(t, 0, s.Queued)
	assert.Equal(t, 0, s.Started)
	assert.Empty(t, client.Uploads())
}

func TestThrottledDeliveryCompletes(t *testing.T) {
	client := &fakeSoulClient{OfflineClient: soul.NewOfflineClient()}
	index := newTestIndex(t, false, nil)

	opts := config.GroupsOptions{
		Default:  config.GroupOptions{Priority: 1, Slots: 1, Strategy: types.StrategyFIFO},
		Leechers: config.LeecherGroupOptions{Priority: 99, Slots: 1, Strategy: types.StrategyFIFO},
	}
	queue := scheduler.New(allDefault{}, opts, 1)

	// Four bytes per tick forces many grant cycles for one file.
	bucket := rate.NewTokenBucket(4, 5*time.Millisecond)
	t.Cleanup(bucket.Stop)

	executor := NewExecutor(queue, index, client, nil, bucket)
	t.Cleanup(executor.Stop)

	require.NoError(t, executor.HandleEnqueue("peer", localWirePath))
	require.NotNil(t, queue.Process())
	awaitIdleQueue(t, queue)

	uploads := client.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, trackBytes, uploads[0].data)
}
