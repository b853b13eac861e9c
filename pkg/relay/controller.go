package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/slskd/slskgo/pkg/config"
	"github.com/slskd/slskgo/pkg/errdefs"
	"github.com/slskd/slskgo/pkg/log"
	"github.com/slskd/slskgo/pkg/metrics"
	"github.com/slskd/slskgo/pkg/security"
	"github.com/slskd/slskgo/pkg/shares"
	"github.com/slskd/slskgo/pkg/tokens"
	"github.com/slskd/slskgo/pkg/types"
	"github.com/slskd/slskgo/pkg/waiter"
)

const (
	authTokenTTL        = 10 * time.Second
	shareUploadTokenTTL = 5 * time.Minute
	downloadNotifyTTL   = 10 * time.Minute

	// fieldLimit bounds the non-file multipart fields.
	fieldLimit = 1 << 20
)

// FileInfo is an agent's answer to a file-info probe.
type FileInfo struct {
	Exists bool
	Length int64
}

// Controller is the hub server side of the relay. It authenticates
// agents over the websocket hub, installs their uploaded share
// repositories into the index, and brokers file streams between the
// transfer executor and agent HTTP uploads.
type Controller struct {
	index  *shares.Index
	cache  *tokens.Cache
	waits  *waiter.Waiter
	logger zerolog.Logger

	// sharesDir receives uploaded agent repositories.
	sharesDir string
	opts      func() config.RelayOptions

	upgrader websocket.Upgrader

	mu     sync.Mutex
	agents map[string]*agentSession
}

type agentSession struct {
	registration types.AgentRegistration
	conn         *hubConn
}

// NewController creates a controller. opts is read live so agents can
// be added or rotated without a restart.
func NewController(index *shares.Index, cache *tokens.Cache, waits *waiter.Waiter, sharesDir string, opts func() config.RelayOptions) *Controller {
	return &Controller{
		index:     index,
		cache:     cache,
		waits:     waits,
		logger:    log.WithComponent("relay"),
		sharesDir: sharesDir,
		opts:      opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		agents: make(map[string]*agentSession),
	}
}

// Agents returns the authenticated registrations in name order.
func (c *Controller) Agents() []types.AgentRegistration {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]types.AgentRegistration, 0, len(c.agents))
	for _, s := range c.agents {
		out = append(out, s.registration)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stop drops every agent connection.
func (c *Controller) Stop() {
	c.mu.Lock()
	sessions := make([]*agentSession, 0, len(c.agents))
	for _, s := range c.agents {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	for _, s := range sessions {
		s.conn.close()
	}
}

// HandleHub accepts one agent hub connection: upgrade, challenge,
// then serve invokes until the socket drops.
func (c *Controller) HandleHub(w http.ResponseWriter, r *http.Request) {
	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("hub upgrade failed")
		return
	}
	conn := newHubConn(ws)

	connID := uuid.NewString()
	token, err := security.GenerateToken()
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to generate challenge token")
		conn.close()
		return
	}
	if err := c.cache.Set(tokens.Key("auth", connID), token, authTokenTTL); err != nil {
		c.logger.Error().Err(err).Msg("failed to cache challenge token")
		conn.close()
		return
	}
	if err := conn.invoke(methodChallenge, challengePayload{Token: token}); err != nil {
		c.logger.Warn().Err(err).Msg("failed to push challenge")
		conn.close()
		return
	}

	c.logger.Debug().Str("connectionId", connID).Str("remote", r.RemoteAddr).Msg("agent connection challenged")
	c.serveAgent(connID, conn)
}

func (c *Controller) serveAgent(connID string, conn *hubConn) {
	agent := ""
	defer func() {
		conn.close()
		if agent != "" {
			c.unregister(agent, conn)
		}
	}()

	for {
		e, err := conn.read()
		if err != nil {
			return
		}
		if e.Kind != kindInvoke {
			c.logger.Warn().Str("kind", e.Kind).Msg("unexpected hub frame from agent")
			continue
		}

		switch e.Method {
		case methodLogin:
			var p loginPayload
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				conn.replyError(e.Seq, e.Method, errdefs.Validationf("malformed login"))
				return
			}
			if err := c.login(connID, p); err != nil {
				c.logger.Warn().Err(err).Str("agent", p.Agent).Msg("agent login rejected")
				conn.replyError(e.Seq, e.Method, err)
				return
			}
			agent = p.Agent
			c.register(connID, agent, conn)
			conn.reply(e.Seq, e.Method, struct{}{})

		case methodBeginShareUpload:
			if agent == "" {
				conn.replyError(e.Seq, e.Method, errdefs.Unauthorizedf("not logged in"))
				return
			}
			grant := uuid.NewString()
			if err := c.cache.Set(tokens.Key("share-upload", agent), grant, shareUploadTokenTTL); err != nil {
				conn.replyError(e.Seq, e.Method, err)
				continue
			}
			conn.reply(e.Seq, e.Method, shareUploadGrant{Token: grant})

		case methodReturnFileInfo:
			if agent == "" {
				conn.replyError(e.Seq, e.Method, errdefs.Unauthorizedf("not logged in"))
				return
			}
			var p fileInfoResponse
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				conn.replyError(e.Seq, e.Method, errdefs.Validationf("malformed file info"))
				continue
			}
			if !c.waits.Complete(waiter.NewKey("file-info", agent, p.ID), FileInfo{Exists: p.Exists, Length: p.Length}) {
				conn.replyError(e.Seq, e.Method, errdefs.NotFoundf("no pending file info probe %s", p.ID))
				continue
			}
			conn.reply(e.Seq, e.Method, struct{}{})

		case methodNotifyFileUploadFailed:
			if agent == "" {
				return
			}
			var p uploadFailedNotice
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				continue
			}
			metrics.RelayStreamFailures.Inc()
			if !c.waits.Throw(waiter.NewKey("file-stream", agent, p.ID), errdefs.RemoteAgentf("agent %s: %s", agent, p.Error)) {
				c.logger.Warn().Str("agent", agent).Str("id", p.ID).Msg("upload failure notice without a pending stream")
			}

		default:
			c.logger.Warn().Str("method", e.Method).Msg("unknown hub method from agent")
		}
	}
}

// login validates the agent's answer to the challenge. The auth token
// is consumed on evaluation, pass or fail.
func (c *Controller) login(connID string, p loginPayload) error {
	token, err := c.cache.Take(tokens.Key("auth", connID))
	if err != nil {
		return errdefs.Unauthorizedf("challenge expired")
	}

	agentOpts, known := c.opts().Agents[p.Agent]
	if !known {
		return errdefs.Unauthorizedf("login rejected")
	}
	if !security.VerifyCredential(agentOpts.Secret, p.Agent, token, p.Credential) {
		return errdefs.Unauthorizedf("login rejected")
	}
	return nil
}

func (c *Controller) register(connID, agent string, conn *hubConn) {
	c.mu.Lock()
	previous := c.agents[agent]
	c.agents[agent] = &agentSession{
		registration: types.AgentRegistration{
			Name:            agent,
			ConnectionID:    connID,
			AuthenticatedAt: time.Now().UTC(),
		},
		conn: conn,
	}
	c.mu.Unlock()

	if previous != nil {
		previous.conn.close()
	}
	c.logger.Info().Str("agent", agent).Str("connectionId", connID).Msg("agent authenticated")
}

// unregister drops the session only if conn still owns it; the slow
// teardown of a replaced connection must not evict its successor.
func (c *Controller) unregister(agent string, conn *hubConn) {
	c.mu.Lock()
	s, ok := c.agents[agent]
	if !ok || s.conn != conn {
		c.mu.Unlock()
		return
	}
	delete(c.agents, agent)
	c.mu.Unlock()

	c.index.RemoveHost(agent)
	c.logger.Info().Str("agent", agent).Msg("agent disconnected")
}

func (c *Controller) session(agent string) *agentSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agents[agent]
}

// GetFileStream asks agent for filename's bytes and returns the live
// upload stream. The id correlates the hub request, the capability
// token, and the agent's HTTP POST; timeout bounds the whole
// rendezvous.
func (c *Controller) GetFileStream(ctx context.Context, agent, filename string, startOffset int64, id string, timeout time.Duration) (io.ReadCloser, error) {
	s := c.session(agent)
	if s == nil {
		return nil, errdefs.NotFoundf("agent %s is not connected", agent)
	}

	tokenKey := tokens.Key("file-stream", agent, id)
	if err := c.cache.Set(tokenKey, filename, timeout); err != nil {
		return nil, err
	}

	key := waiter.NewKey("file-stream", agent, id)
	future, err := c.waits.Wait(key, timeout)
	if err != nil {
		c.cache.Remove(tokenKey)
		return nil, err
	}

	req := fileUploadRequest{Filename: filename, StartOffset: startOffset, ID: id}
	if err := s.conn.invoke(methodRequestFileUpload, req); err != nil {
		c.waits.Throw(key, err)
		c.cache.Remove(tokenKey)
		return nil, fmt.Errorf("failed to request file upload from %s: %w", agent, err)
	}

	stream, err := waiter.Await[io.ReadCloser](ctx, future)
	if err != nil {
		c.cache.Remove(tokenKey)
		return nil, err
	}
	return stream, nil
}

// TryCloseFileStream ends the rendezvous for (agent, id): a nil
// streamErr releases the agent's POST normally, anything else fails
// it. It reports whether a handler was still holding the stream open.
func (c *Controller) TryCloseFileStream(agent, id string, streamErr error) bool {
	key := waiter.NewKey("file-stream-response", agent, id)
	if streamErr != nil {
		metrics.RelayStreamFailures.Inc()
		return c.waits.Throw(key, streamErr)
	}
	return c.waits.Complete(key, struct{}{})
}

// GetFileInfo probes agent for filename over the hub.
func (c *Controller) GetFileInfo(ctx context.Context, agent, filename string, timeout time.Duration) (FileInfo, error) {
	s := c.session(agent)
	if s == nil {
		return FileInfo{}, errdefs.NotFoundf("agent %s is not connected", agent)
	}

	id := uuid.NewString()
	future, err := c.waits.Wait(waiter.NewKey("file-info", agent, id), timeout)
	if err != nil {
		return FileInfo{}, err
	}

	if err := s.conn.invoke(methodRequestFileInfo, fileInfoRequest{Filename: filename, ID: id}); err != nil {
		c.waits.Throw(waiter.NewKey("file-info", agent, id), err)
		return FileInfo{}, fmt.Errorf("failed to request file info from %s: %w", agent, err)
	}

	return waiter.Await[FileInfo](ctx, future)
}

// NotifyDownloadCompleted offers a finished local download to every
// connected agent and returns the notify id. relativePath is what
// agents save the file as; localPath is where the bytes live here.
// Agents fetch within the notify token's window, and retries within
// it stay valid.
func (c *Controller) NotifyDownloadCompleted(relativePath, localPath string) string {
	id := uuid.NewString()
	if err := c.cache.Set(tokens.Key("download-notify", id), localPath, downloadNotifyTTL); err != nil {
		c.logger.Error().Err(err).Msg("failed to cache download notify token")
		return ""
	}

	c.mu.Lock()
	sessions := make([]*agentSession, 0, len(c.agents))
	for _, s := range c.agents {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	notice := downloadCompletedNotice{Path: relativePath, ID: id}
	for _, s := range sessions {
		if err := s.conn.invoke(methodNotifyDownloadCompleted, notice); err != nil {
			c.logger.Warn().Err(err).Str("agent", s.registration.Name).Msg("failed to push download notice")
		}
	}
	c.logger.Info().Str("path", relativePath).Int("agents", len(sessions)).Msg("download completion offered to agents")
	return id
}

// HandleShareUpload ingests an agent's repository: multipart fields
// agent, credential, shares, then the database file. The grant token
// in the URL is one-shot.
func (c *Controller) HandleShareUpload(w http.ResponseWriter, r *http.Request) {
	urlToken := r.PathValue("token")

	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "multipart body required", http.StatusBadRequest)
		return
	}

	fields, dbPart, err := readUploadParts(mr, "database")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	agent, credential := fields["agent"], fields["credential"]

	var shareList []types.Share
	if err := json.Unmarshal([]byte(fields["shares"]), &shareList); err != nil {
		http.Error(w, "malformed shares", http.StatusBadRequest)
		return
	}

	grant, err := c.cache.Take(tokens.Key("share-upload", agent))
	if err != nil || grant != urlToken {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	agentOpts, known := c.opts().Agents[agent]
	if !known || !security.VerifyCredential(agentOpts.Secret, agent, grant, credential) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if c.session(agent) == nil {
		http.Error(w, "agent is not connected", http.StatusUnauthorized)
		return
	}

	if err := c.installRepository(agent, shareList, dbPart); err != nil {
		c.logger.Error().Err(err).Str("agent", agent).Msg("share upload rejected")
		if errdefs.IsShareValidation(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "failed to install repository", http.StatusInternalServerError)
		return
	}

	c.mu.Lock()
	if s, ok := c.agents[agent]; ok {
		s.registration.Shares = shareList
	}
	c.mu.Unlock()

	w.WriteHeader(http.StatusCreated)
}

func (c *Controller) installRepository(agent string, shareList []types.Share, dbPart io.Reader) error {
	if err := os.MkdirAll(c.sharesDir, 0755); err != nil {
		return err
	}

	finalPath := filepath.Join(c.sharesDir, shares.AgentRepositoryName(agent))
	tmpPath := finalPath + ".upload"

	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, dbPart); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := shares.TryValidate(tmpPath); err != nil {
		os.Remove(tmpPath)
		return err
	}

	// Displace any previous repository before the rename; RemoveHost
	// deletes its backing file at the same final path.
	c.index.RemoveHost(agent)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return err
	}

	repo, err := shares.OpenRepository(finalPath)
	if err != nil {
		return err
	}
	c.index.AddOrUpdateHost(agent, shareList, repo)

	files, dirs, err := repo.Counts()
	if err == nil {
		c.logger.Info().Str("agent", agent).Int("files", files).Int("directories", dirs).Msg("agent repository installed")
	}
	return nil
}

// HandleFileUpload receives the agent's end of a brokered file stream.
// The still-open request body becomes the reader handed to whoever
// called GetFileStream; the response is not written until that reader
// is released through TryCloseFileStream.
func (c *Controller) HandleFileUpload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "multipart body required", http.StatusBadRequest)
		return
	}

	fields, filePart, err := readUploadParts(mr, "file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	agent, credential := fields["agent"], fields["credential"]

	filename, err := c.cache.Take(tokens.Key("file-stream", agent, id))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	agentOpts, known := c.opts().Agents[agent]
	if !known || !security.VerifyCredential(agentOpts.Secret, agent, id, credential) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	responseKey := waiter.NewKey("file-stream-response", agent, id)
	future, err := c.waits.WaitIndefinitely(responseKey)
	if err != nil {
		http.Error(w, "upload already in progress", http.StatusConflict)
		return
	}

	stream := &meteredStream{rc: filePart}
	if !c.waits.Complete(waiter.NewKey("file-stream", agent, id), io.ReadCloser(stream)) {
		// The requester timed out or gave up; unwind our own wait.
		c.waits.Throw(responseKey, errdefs.ErrTimeout)
		http.Error(w, "no pending request for this upload", http.StatusNotFound)
		return
	}

	c.logger.Debug().Str("agent", agent).Str("id", id).Str("filename", filename).Msg("file stream connected")

	if _, err := future.Await(r.Context()); err != nil {
		c.logger.Warn().Err(err).Str("agent", agent).Str("id", id).Msg("file stream ended with error")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleDownload serves a completed download to an agent. The notify
// token is validated but not consumed, so retries within its window
// succeed.
func (c *Controller) HandleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	agent := r.Header.Get("X-Relay-Agent")
	credential := r.Header.Get("X-Relay-Credential")

	localPath, err := c.cache.Get(tokens.Key("download-notify", id))
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	agentOpts, known := c.opts().Agents[agent]
	if !known || !security.VerifyCredential(agentOpts.Secret, agent, id, credential) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	http.ServeFile(w, r, localPath)
}

// readUploadParts walks multipart parts collecting text fields until
// the part named filePart arrives, which is returned still unread.
func readUploadParts(mr *multipart.Reader, filePart string) (map[string]string, io.ReadCloser, error) {
	fields := make(map[string]string)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, nil, fmt.Errorf("missing %s part", filePart)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("malformed multipart body: %w", err)
		}

		if part.FormName() == filePart {
			return fields, part, nil
		}

		value, err := io.ReadAll(io.LimitReader(part, fieldLimit))
		part.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("malformed multipart field %s: %w", part.FormName(), err)
		}
		fields[part.FormName()] = string(value)
	}
}

// meteredStream counts proxied bytes as they are consumed.
type meteredStream struct {
	rc io.ReadCloser
}

func (m *meteredStream) Read(p []byte) (int, error) {
	n, err := m.rc.Read(p)
	if n > 0 {
		metrics.RelayStreamedBytes.Add(float64(n))
	}
	return n, err
}

func (m *meteredStream) Close() error {
	return m.rc.Close()
}
