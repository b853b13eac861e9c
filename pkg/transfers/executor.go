package transfers

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/slskd/slskgo/pkg/errdefs"
	"github.com/slskd/slskgo/pkg/log"
	"github.com/slskd/slskgo/pkg/metrics"
	"github.com/slskd/slskgo/pkg/rate"
	"github.com/slskd/slskgo/pkg/relay"
	"github.com/slskd/slskgo/pkg/scheduler"
	"github.com/slskd/slskgo/pkg/shares"
	"github.com/slskd/slskgo/pkg/soul"
	"github.com/slskd/slskgo/pkg/types"
)

const (
	// streamReadyTimeout bounds how long an agent gets to connect its
	// upload stream before the transfer fails.
	streamReadyTimeout = 30 * time.Second
	infoTimeout        = 10 * time.Second

	// maxReadChunk bounds one governed read so throttling stays
	// responsive at low limits.
	maxReadChunk = 32 * 1024
)

// AgentStreams is the relay controller surface the executor uses for
// files that live on agents. Nil when this process runs without a
// controller.
type AgentStreams interface {
	GetFileStream(ctx context.Context, agent, filename string, startOffset int64, id string, timeout time.Duration) (io.ReadCloser, error)
	GetFileInfo(ctx context.Context, agent, filename string, timeout time.Duration) (relay.FileInfo, error)
	TryCloseFileStream(agent, id string, streamErr error) bool
}

// Executor turns accepted enqueue requests into finished uploads. One
// goroutine per upload waits for the scheduler's release, opens the
// source, and pushes bytes to the peer through the shared rate bucket.
type Executor struct {
	queue  *scheduler.Queue
	index  *shares.Index
	client soul.Client
	agents AgentStreams
	bucket *rate.TokenBucket
	logger zerolog.Logger

	mu      sync.Mutex
	stopped bool
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewExecutor creates an executor. agents may be nil; requests for
// agent-hosted files are then rejected at admission.
func NewExecutor(queue *scheduler.Queue, index *shares.Index, client soul.Client, agents AgentStreams, bucket *rate.TokenBucket) *Executor {
	return &Executor{
		queue:   queue,
		index:   index,
		client:  client,
		agents:  agents,
		bucket:  bucket,
		logger:  log.WithComponent("transfers"),
		cancels: make(map[string]context.CancelFunc),
	}
}

// HandleEnqueue admits a peer's download request. It is the
// soul.Handlers.EnqueueRequested callback and runs on the client's
// read loop: resolve, enqueue, spawn a delivery, return.
func (e *Executor) HandleEnqueue(username, filename string) error {
	host, _, err := e.index.Resolve(filename)
	if err != nil {
		return err
	}
	if host != types.LocalHostName && e.agents == nil {
		return errdefs.NotFoundf("%q is not available from this node", filename)
	}

	result, err := e.queue.Enqueue(username, filename)
	if err != nil {
		return err
	}
	if result == scheduler.AlreadyQueued {
		return nil
	}
	metrics.UploadsEnqueued.Inc()

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		e.queue.Complete(username, filename)
		return errdefs.Conflictf("shutting down")
	}
	ctx, cancel := context.WithCancel(context.Background())
	key := username + "\x00" + filename
	e.cancels[key] = cancel
	e.wg.Add(1)
	e.mu.Unlock()

	go e.deliver(ctx, key, username, filename)
	return nil
}

// Stop cancels every pending and in-flight upload and waits for their
// slots to be released.
func (e *Executor) Stop() {
	e.mu.Lock()
	e.stopped = true
	cancels := make([]context.CancelFunc, 0, len(e.cancels))
	for _, cancel := range e.cancels {
		cancels = append(cancels, cancel)
	}
	e.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	e.wg.Wait()
}

func (e *Executor) deliver(ctx context.Context, key, username, filename string) {
	defer func() {
		e.mu.Lock()
		if cancel, ok := e.cancels[key]; ok {
			delete(e.cancels, key)
			cancel()
		}
		e.mu.Unlock()
		e.wg.Done()
	}()

	ready, err := e.queue.AwaitStart(username, filename)
	if err != nil {
		e.logger.Warn().Err(err).Str("username", username).Str("filename", filename).Msg("upload vanished before start")
		return
	}

	select {
	case <-ctx.Done():
		e.finish(username, filename, "cancelled")
		return
	case <-ready:
	}

	err = e.push(ctx, username, filename)
	switch {
	case err == nil:
		e.finish(username, filename, "succeeded")
		e.logger.Info().Str("username", username).Str("filename", filename).Msg("upload finished")
	case ctx.Err() != nil:
		e.finish(username, filename, "cancelled")
	default:
		e.finish(username, filename, "failed")
		e.logger.Warn().Err(err).Str("username", username).Str("filename", filename).Msg("upload failed")
	}
}

// finish releases the slot and records the outcome. It runs in every
// delivery path, exactly once.
func (e *Executor) finish(username, filename, outcome string) {
	if err := e.queue.Complete(username, filename); err != nil {
		e.logger.Warn().Err(err).Str("username", username).Str("filename", filename).Msg("failed to release upload slot")
	}
	metrics.UploadsCompleted.WithLabelValues(outcome).Inc()
}

// push re-resolves the filename and copies the bytes to the peer. The
// share layout may have changed between enqueue and release, so the
// admission-time resolution is not trusted here.
func (e *Executor) push(ctx context.Context, username, filename string) error {
	host, localPath, err := e.index.Resolve(filename)
	if err != nil {
		return err
	}

	if host == types.LocalHostName {
		f, err := os.Open(localPath)
		if err != nil {
			return err
		}
		defer f.Close()
		st, err := f.Stat()
		if err != nil {
			return err
		}
		return e.client.Upload(ctx, username, filename, st.Size(), e.governed(ctx, f))
	}

	if e.agents == nil {
		return errdefs.NotFoundf("%q is not available from this node", filename)
	}

	info, err := e.agents.GetFileInfo(ctx, host, filename, infoTimeout)
	if err != nil {
		return err
	}
	if !info.Exists {
		return errdefs.NotFoundf("agent %s no longer shares %q", host, filename)
	}

	id := uuid.NewString()
	stream, err := e.agents.GetFileStream(ctx, host, filename, 0, id, streamReadyTimeout)
	if err != nil {
		return err
	}

	uploadErr := e.client.Upload(ctx, username, filename, info.Length, e.governed(ctx, stream))
	e.agents.TryCloseFileStream(host, id, uploadErr)
	stream.Close()
	return uploadErr
}

func (e *Executor) governed(ctx context.Context, src io.Reader) io.Reader {
	return &governedReader{ctx: ctx, src: src, bucket: e.bucket}
}

// governedReader throttles reads through the shared token bucket and
// counts delivered bytes. Grants unused by a short read are returned
// so the next interval is not undersold.
type governedReader struct {
	ctx    context.Context
	src    io.Reader
	bucket *rate.TokenBucket
}

func (g *governedReader) Read(p []byte) (int, error) {
	if len(p) > maxReadChunk {
		p = p[:maxReadChunk]
	}

	granted, err := g.bucket.Get(g.ctx, int64(len(p)))
	if err != nil {
		return 0, err
	}

	n, err := g.src.Read(p[:granted])
	if int64(n) < granted {
		g.bucket.Return(granted - int64(n))
	}
	if n > 0 {
		metrics.UploadedBytes.Add(float64(n))
	}
	return n, err
}
