package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/slskd/slskgo/pkg/config"
	"github.com/slskd/slskgo/pkg/errdefs"
	"github.com/slskd/slskgo/pkg/log"
	"github.com/slskd/slskgo/pkg/security"
	"github.com/slskd/slskgo/pkg/shares"
	"github.com/slskd/slskgo/pkg/types"
	"github.com/slskd/slskgo/pkg/waiter"
)

const (
	callTimeout        = 10 * time.Second
	shareUploadTimeout = 30 * time.Second

	// maxConcurrentHandlers bounds controller invokes served at once;
	// beyond it, upload requests are refused rather than queued.
	maxConcurrentHandlers = 8
)

var reconnectDelays = [...]time.Duration{0, time.Second, 3 * time.Second, 10 * time.Second, 30 * time.Second}

// Agent is the hub client side of the relay. It keeps a session with
// the controller, answers its challenge, pushes the local share
// repository after login, and serves file streams out of local shares
// on demand.
type Agent struct {
	index  *shares.Index
	waits  *waiter.Waiter
	logger zerolog.Logger
	opts   func() config.Options
	httpc  *http.Client

	mu   sync.Mutex
	conn *hubConn
}

// NewAgent creates an agent. opts is read live so credential material
// follows configuration changes.
func NewAgent(index *shares.Index, waits *waiter.Waiter, opts func() config.Options) *Agent {
	return &Agent{
		index:  index,
		waits:  waits,
		logger: log.WithComponent("relay"),
		opts:   opts,
		// No client timeout: file streams legitimately run for as long
		// as the remote peer keeps downloading.
		httpc: &http.Client{},
	}
}

// Run maintains the controller session until ctx ends. Failed
// attempts climb the reconnect ladder; a session that reached login
// resets it.
func (a *Agent) Run(ctx context.Context) error {
	failures := 0
	for {
		if delay := reconnectDelays[min(failures, len(reconnectDelays)-1)]; delay > 0 {
			a.logger.Info().Dur("delay", delay).Msg("waiting to reconnect to controller")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		loggedIn, err := a.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			a.logger.Warn().Err(err).Msg("controller session ended")
		}
		if loggedIn {
			failures = 0
		} else {
			failures++
		}
	}
}

// UploadShares pushes the local repository over the current session.
// The daemon calls this when shares change while connected; login
// triggers it on its own.
func (a *Agent) UploadShares(ctx context.Context) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return errdefs.Conflictf("not connected to a controller")
	}
	return a.uploadShares(ctx, conn)
}

func (a *Agent) session(ctx context.Context) (bool, error) {
	wsURL, err := hubURL(a.opts().Relay.Controller.URL)
	if err != nil {
		return false, err
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to dial controller: %w", err)
	}
	conn := newHubConn(ws)

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.close()
		case <-done:
		}
	}()
	defer func() {
		conn.close()
		a.mu.Lock()
		if a.conn == conn {
			a.conn = nil
		}
		a.mu.Unlock()
	}()

	a.logger.Info().Str("url", wsURL).Msg("connected to relay controller")
	return a.serve(ctx, conn)
}

func (a *Agent) serve(ctx context.Context, conn *hubConn) (bool, error) {
	var loggedIn atomic.Bool

	handlers := &errgroup.Group{}
	handlers.SetLimit(maxConcurrentHandlers)
	defer handlers.Wait()

	for {
		e, err := conn.read()
		if err != nil {
			if ctx.Err() != nil {
				return loggedIn.Load(), nil
			}
			return loggedIn.Load(), err
		}

		switch e.Kind {
		case kindResult:
			if !handleResult(a.waits, e) {
				a.logger.Warn().Int64("seq", e.Seq).Str("method", e.Method).Msg("hub result without a pending call")
			}
		case kindInvoke:
			a.dispatch(ctx, handlers, conn, e, &loggedIn)
		default:
			a.logger.Warn().Str("kind", e.Kind).Msg("unexpected hub frame from controller")
		}
	}
}

// dispatch runs one controller invoke on the handler pool. Reads stay
// on the session loop; anything that blocks runs here.
func (a *Agent) dispatch(ctx context.Context, handlers *errgroup.Group, conn *hubConn, e Envelope, loggedIn *atomic.Bool) {
	started := handlers.TryGo(func() error {
		switch e.Method {
		case methodChallenge:
			var p challengePayload
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				a.logger.Warn().Err(err).Msg("malformed challenge")
				return nil
			}
			if err := a.login(ctx, conn, p.Token); err != nil {
				a.logger.Error().Err(err).Msg("controller login failed")
				conn.close()
				return nil
			}
			loggedIn.Store(true)
			if err := a.uploadShares(ctx, conn); err != nil {
				a.logger.Error().Err(err).Msg("failed to upload shares to controller")
			}

		case methodRequestFileUpload:
			var p fileUploadRequest
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				a.logger.Warn().Err(err).Msg("malformed file upload request")
				return nil
			}
			if err := a.streamFile(ctx, p); err != nil {
				a.logger.Warn().Err(err).Str("filename", p.Filename).Msg("file upload to controller failed")
				conn.invoke(methodNotifyFileUploadFailed, uploadFailedNotice{ID: p.ID, Error: err.Error()})
			}

		case methodRequestFileInfo:
			var p fileInfoRequest
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				a.logger.Warn().Err(err).Msg("malformed file info request")
				return nil
			}
			a.answerFileInfo(ctx, conn, p)

		case methodNotifyDownloadCompleted:
			var p downloadCompletedNotice
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				a.logger.Warn().Err(err).Msg("malformed download notice")
				return nil
			}
			if err := a.fetchDownload(ctx, p); err != nil {
				a.logger.Warn().Err(err).Str("path", p.Path).Msg("failed to fetch completed download")
			}

		default:
			a.logger.Warn().Str("method", e.Method).Msg("unknown hub method from controller")
		}
		return nil
	})

	if !started {
		a.logger.Warn().Str("method", e.Method).Msg("hub invoke dropped: handler pool saturated")
		if e.Method == methodRequestFileUpload {
			var p fileUploadRequest
			if json.Unmarshal(e.Payload, &p) == nil {
				conn.invoke(methodNotifyFileUploadFailed, uploadFailedNotice{ID: p.ID, Error: "agent is busy"})
			}
		}
	}
}

func (a *Agent) login(ctx context.Context, conn *hubConn, challenge string) error {
	o := a.opts()
	credential, err := security.ComputeCredential(o.Relay.Controller.Secret, o.InstanceName, challenge)
	if err != nil {
		return err
	}
	if _, err := conn.call(ctx, a.waits, methodLogin, loginPayload{Agent: o.InstanceName, Credential: credential}, callTimeout); err != nil {
		return err
	}
	a.logger.Info().Str("agent", o.InstanceName).Msg("logged in to relay controller")
	return nil
}

func (a *Agent) uploadShares(ctx context.Context, conn *hubConn) error {
	repo, err := a.index.Repository(types.LocalHostName)
	if err != nil {
		return fmt.Errorf("local repository is not available: %w", err)
	}
	shareList, err := repo.Shares()
	if err != nil {
		return fmt.Errorf("failed to read local share roots: %w", err)
	}
	sharesJSON, err := json.Marshal(shareList)
	if err != nil {
		return err
	}

	raw, err := conn.call(ctx, a.waits, methodBeginShareUpload, struct{}{}, shareUploadTimeout)
	if err != nil {
		return fmt.Errorf("failed to obtain share upload grant: %w", err)
	}
	var grant shareUploadGrant
	if err := json.Unmarshal(raw, &grant); err != nil {
		return fmt.Errorf("malformed share upload grant: %w", err)
	}

	o := a.opts()
	credential, err := security.ComputeCredential(o.Relay.Controller.Secret, o.InstanceName, grant.Token)
	if err != nil {
		return err
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := func() error {
			if err := mw.WriteField("agent", o.InstanceName); err != nil {
				return err
			}
			if err := mw.WriteField("credential", credential); err != nil {
				return err
			}
			if err := mw.WriteField("shares", string(sharesJSON)); err != nil {
				return err
			}
			part, err := mw.CreateFormFile("database", "shares.db")
			if err != nil {
				return err
			}
			if _, err := repo.WriteTo(part); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint("/network/shares/"+grant.Token), pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := a.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("share upload failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("share upload rejected: %s: %s", resp.Status, readErrorBody(resp.Body))
	}

	files, dirs, _ := repo.Counts()
	a.logger.Info().Int("files", files).Int("directories", dirs).Msg("shares uploaded to controller")
	return nil
}

// streamFile serves one controller upload request: resolve the wire
// path to a local file and POST its bytes from the requested offset.
func (a *Agent) streamFile(ctx context.Context, req fileUploadRequest) error {
	host, localPath, err := a.index.Resolve(req.Filename)
	if err != nil {
		return err
	}
	if host != types.LocalHostName {
		return fmt.Errorf("%s does not resolve to a local file", req.Filename)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if req.StartOffset > 0 {
		if _, err := f.Seek(req.StartOffset, io.SeekStart); err != nil {
			return err
		}
	}

	o := a.opts()
	credential, err := security.ComputeCredential(o.Relay.Controller.Secret, o.InstanceName, req.ID)
	if err != nil {
		return err
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := func() error {
			if err := mw.WriteField("agent", o.InstanceName); err != nil {
				return err
			}
			if err := mw.WriteField("credential", credential); err != nil {
				return err
			}
			part, err := mw.CreateFormFile("file", filepath.Base(localPath))
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, f); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint("/network/files/"+req.ID), pr)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	a.logger.Info().Str("filename", req.Filename).Int64("startOffset", req.StartOffset).Msg("streaming file to controller")

	resp, err := a.httpc.Do(httpReq)
	if err != nil {
		return fmt.Errorf("file stream failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("file stream rejected: %s: %s", resp.Status, readErrorBody(resp.Body))
	}
	return nil
}

func (a *Agent) answerFileInfo(ctx context.Context, conn *hubConn, req fileInfoRequest) {
	info := fileInfoResponse{ID: req.ID}
	if host, localPath, err := a.index.Resolve(req.Filename); err == nil && host == types.LocalHostName {
		if st, err := os.Stat(localPath); err == nil && st.Mode().IsRegular() {
			info.Exists = true
			info.Length = st.Size()
		}
	}
	if _, err := conn.call(ctx, a.waits, methodReturnFileInfo, info, callTimeout); err != nil {
		a.logger.Warn().Err(err).Str("id", req.ID).Msg("controller declined file info response")
	}
}

// fetchDownload mirrors a completed controller download into the
// local downloads directory, when enabled.
func (a *Agent) fetchDownload(ctx context.Context, notice downloadCompletedNotice) error {
	o := a.opts()
	if !o.Relay.Controller.Downloads {
		return nil
	}

	rel := filepath.FromSlash(notice.Path)
	if rel == "" || !filepath.IsLocal(rel) {
		return fmt.Errorf("refusing download path %q", notice.Path)
	}

	credential, err := security.ComputeCredential(o.Relay.Controller.Secret, o.InstanceName, notice.ID)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint("/network/downloads/"+notice.ID), nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Relay-Agent", o.InstanceName)
	req.Header.Set("X-Relay-Credential", credential)

	resp, err := a.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download fetch rejected: %s", resp.Status)
	}

	dest := filepath.Join(o.Directories.Downloads, rel)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return err
	}

	a.logger.Info().Str("path", dest).Int64("bytes", n).Msg("fetched completed download from controller")
	return nil
}

// endpoint joins an API path onto the configured controller base URL.
func (a *Agent) endpoint(path string) string {
	return strings.TrimRight(a.opts().Relay.Controller.URL, "/") + path
}

// hubURL rewrites the controller's http(s) base into its ws(s) hub
// endpoint.
func hubURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid controller url %q: %w", base, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid controller url %q: unsupported scheme", base)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/network/hub"
	return u.String(), nil
}

func readErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}
