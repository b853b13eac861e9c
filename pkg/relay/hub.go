package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/slskd/slskgo/pkg/waiter"
)

// Hub methods. The controller invokes Challenge, RequestFileUpload,
// RequestFileInfo and NotifyFileDownloadCompleted; the agent calls
// Login, BeginShareUpload and ReturnFileInfo (awaiting results) and
// fires NotifyFileUploadFailed one-way.
const (
	methodChallenge               = "Challenge"
	methodLogin                   = "Login"
	methodBeginShareUpload        = "BeginShareUpload"
	methodRequestFileUpload       = "RequestFileUpload"
	methodRequestFileInfo         = "RequestFileInfo"
	methodReturnFileInfo          = "ReturnFileInfo"
	methodNotifyFileUploadFailed  = "NotifyFileUploadFailed"
	methodNotifyDownloadCompleted = "NotifyFileDownloadCompleted"
)

const (
	kindInvoke = "invoke"
	kindResult = "result"
)

// Envelope is one hub frame. Invokes with a non-zero Seq expect a
// result frame carrying the same Seq; Seq zero means fire-and-forget.
type Envelope struct {
	Seq     int64           `json:"seq,omitempty"`
	Kind    string          `json:"kind"`
	Method  string          `json:"method,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type challengePayload struct {
	Token string `json:"token"`
}

type loginPayload struct {
	Agent      string `json:"agent"`
	Credential string `json:"credential"`
}

type shareUploadGrant struct {
	Token string `json:"token"`
}

type fileUploadRequest struct {
	Filename    string `json:"filename"`
	StartOffset int64  `json:"startOffset"`
	ID          string `json:"id"`
}

type fileInfoRequest struct {
	Filename string `json:"filename"`
	ID       string `json:"id"`
}

type fileInfoResponse struct {
	ID     string `json:"id"`
	Exists bool   `json:"exists"`
	Length int64  `json:"length"`
}

type uploadFailedNotice struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

type downloadCompletedNotice struct {
	Path string `json:"path"`
	ID   string `json:"id"`
}

// hubConn wraps one websocket with serialised writes. Reads stay
// single-consumer: each side owns exactly one read loop.
type hubConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	seq     atomic.Int64
	closed  atomic.Bool
}

func newHubConn(ws *websocket.Conn) *hubConn {
	return &hubConn{ws: ws}
}

func (c *hubConn) send(e Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(e)
}

func (c *hubConn) read() (Envelope, error) {
	var e Envelope
	err := c.ws.ReadJSON(&e)
	return e, err
}

func (c *hubConn) close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.ws.Close()
}

// invoke sends a fire-and-forget frame.
func (c *hubConn) invoke(method string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", method, err)
	}
	return c.send(Envelope{Kind: kindInvoke, Method: method, Payload: data})
}

// call sends an invoke that expects a result and awaits it through w.
// The caller's read loop routes the matching result via handleResult.
func (c *hubConn) call(ctx context.Context, w *waiter.Waiter, method string, payload any, timeout time.Duration) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", method, err)
	}

	seq := c.seq.Add(1)
	key := replyKey(seq)
	future, err := w.Wait(key, timeout)
	if err != nil {
		return nil, err
	}

	if err := c.send(Envelope{Seq: seq, Kind: kindInvoke, Method: method, Payload: data}); err != nil {
		w.Throw(key, err) // release the registration
		return nil, err
	}

	return waiter.Await[json.RawMessage](ctx, future)
}

// reply answers a call with a payload.
func (c *hubConn) reply(seq int64, method string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s result: %w", method, err)
	}
	return c.send(Envelope{Seq: seq, Kind: kindResult, Method: method, Payload: data})
}

// replyError answers a call with an error.
func (c *hubConn) replyError(seq int64, method string, err error) error {
	return c.send(Envelope{Seq: seq, Kind: kindResult, Method: method, Error: err.Error()})
}

// handleResult routes an incoming result frame to the pending call.
func handleResult(w *waiter.Waiter, e Envelope) bool {
	key := replyKey(e.Seq)
	if e.Error != "" {
		return w.Throw(key, errors.New(e.Error))
	}
	return w.Complete(key, e.Payload)
}

func replyKey(seq int64) waiter.Key {
	return waiter.NewKey("hub-reply", strconv.FormatInt(seq, 10))
}
