package watchdog

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/slskd/slskgo/pkg/log"
	"github.com/slskd/slskgo/pkg/metrics"
	"github.com/slskd/slskgo/pkg/soul"
	"github.com/slskd/slskgo/pkg/types"
)

// maxDelay caps the reconnect backoff.
const maxDelay = 300 * time.Second

// Watchdog supervises the server connection: it connects on Start,
// reconnects with backoff after unexpected disconnects, and parks on
// fatal or deliberate causes.
type Watchdog struct {
	client soul.Client
	params func() soul.ConnectionParams
	notify func(state types.ServerConnectionState, attempts int)
	logger zerolog.Logger
	rnd    *rand.Rand

	mu         sync.Mutex
	state      types.ServerConnectionState
	attempts   int
	reconnect  bool
	skip       chan struct{}
	loopCancel context.CancelFunc
}

// New creates a Watchdog over client. params is read fresh on every
// attempt so live option changes apply to the next connect. notify, if
// non-nil, observes every state transition; it runs under the
// watchdog's lock and must not call back into it.
func New(client soul.Client, params func() soul.ConnectionParams, notify func(types.ServerConnectionState, int)) *Watchdog {
	return &Watchdog{
		client: client,
		params: params,
		notify: notify,
		logger: log.WithComponent("watchdog"),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		state:  types.ServerStopped,
		skip:   make(chan struct{}, 1),
	}
}

// Start begins connecting. It is idempotent: calling it while a
// connect loop runs or a session is live does nothing.
func (w *Watchdog) Start() {
	w.mu.Lock()
	if w.state != types.ServerStopped {
		w.mu.Unlock()
		return
	}
	w.reconnect = true
	ctx := w.beginLoopLocked()
	w.mu.Unlock()

	go w.connectLoop(ctx)
}

// Restart short-circuits the backoff delay of an in-flight connect
// loop. Outside the Connecting state it does nothing.
func (w *Watchdog) Restart() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != types.ServerConnecting {
		return
	}
	select {
	case w.skip <- struct{}{}:
	default:
	}
}

// Stop parks the watchdog. With abortReconnect the live session is
// dropped with an intentional cause and later disconnects will not
// trigger reconnection until Start is called again.
func (w *Watchdog) Stop(abortReconnect bool) {
	w.mu.Lock()
	if abortReconnect {
		w.reconnect = false
	}
	if w.loopCancel != nil {
		w.loopCancel()
		w.loopCancel = nil
	}
	w.setStateLocked(types.ServerStopped)
	w.mu.Unlock()

	if abortReconnect && w.client.Connected() {
		if err := w.client.Disconnect(soul.DisconnectIntentional); err != nil {
			w.logger.Warn().Err(err).Msg("failed to disconnect")
		}
	}
}

// HandleDisconnect reacts to a disconnect event from the client.
// Deliberate causes park quietly, fatal causes park loudly, anything
// else re-enters the connect loop if reconnection is armed.
func (w *Watchdog) HandleDisconnect(cause soul.DisconnectCause, err error) {
	w.mu.Lock()

	switch {
	case cause.Fatal():
		w.setStateLocked(types.ServerStopped)
		w.mu.Unlock()
		w.logger.Error().Str("cause", string(cause)).Err(err).Msg("disconnected with a fatal cause; not reconnecting")
		return

	case cause.Deliberate():
		w.setStateLocked(types.ServerStopped)
		w.mu.Unlock()
		w.logger.Info().Str("cause", string(cause)).Msg("disconnected deliberately")
		return
	}

	if !w.reconnect || w.state == types.ServerConnecting {
		w.mu.Unlock()
		return
	}

	ctx := w.beginLoopLocked()
	w.mu.Unlock()

	w.logger.Warn().Str("cause", string(cause)).Err(err).Msg("disconnected unexpectedly; reconnecting")
	go w.connectLoop(ctx)
}

// State returns the current state and the attempt counter.
func (w *Watchdog) State() (types.ServerConnectionState, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state, w.attempts
}

// beginLoopLocked arms a fresh connect loop and returns its context.
func (w *Watchdog) beginLoopLocked() context.Context {
	if w.loopCancel != nil {
		w.loopCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.loopCancel = cancel
	w.attempts = 0
	w.setStateLocked(types.ServerConnecting)
	return ctx
}

func (w *Watchdog) setStateLocked(state types.ServerConnectionState) {
	if w.state == state {
		return
	}
	w.state = state
	if w.notify != nil {
		w.notify(state, w.attempts)
	}
}

// connectLoop attempts to connect until success, a parking condition,
// or cancellation. Delays follow the (0, 1s, 3s, 7s, ...) series
// capped at five minutes, with jitter in [0, delay/4].
func (w *Watchdog) connectLoop(ctx context.Context) {
	for {
		w.mu.Lock()
		w.attempts++
		attempt := w.attempts
		w.mu.Unlock()

		delay := Delay(attempt)
		delay += w.jitter(delay)

		if delay > 0 {
			w.logger.Info().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("waiting before reconnecting")

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-w.skip:
				timer.Stop()
				w.logger.Info().Msg("backoff short-circuited")
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}

		params := w.params()
		if params.Username == "" || params.Password == "" {
			w.park("no credentials configured; connect when soulseek.username and soulseek.password are set")
			return
		}

		metrics.ServerConnectAttempts.Inc()
		err := w.client.Connect(ctx, params)
		if err == nil {
			w.mu.Lock()
			w.attempts = 0
			w.setStateLocked(types.ServerConnected)
			w.loopCancel = nil
			w.mu.Unlock()
			w.logger.Info().Str("username", params.Username).Msg("connected")
			return
		}

		if errors.Is(err, errors.ErrUnsupported) {
			w.mu.Lock()
			w.setStateLocked(types.ServerStopped)
			w.loopCancel = nil
			w.mu.Unlock()
			w.logger.Error().Err(err).Msg("client cannot connect; parking")
			return
		}
		if ctx.Err() != nil {
			return
		}

		w.logger.Warn().Err(err).Int("attempt", attempt).Msg("connect failed")
	}
}

// park stops the loop without treating the condition as an error.
func (w *Watchdog) park(reason string) {
	w.mu.Lock()
	w.setStateLocked(types.ServerStopped)
	w.loopCancel = nil
	w.mu.Unlock()
	w.logger.Warn().Msg(reason)
}

// jitter returns a uniform random duration in [0, d/4].
func (w *Watchdog) jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return time.Duration(w.rnd.Int63n(int64(d/4) + 1))
}

// Delay returns the backoff delay for a 1-based attempt number: the
// series 0, 1s, 3s, 7s, 15s, 31s, ... capped at five minutes.
func Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 10 {
		return maxDelay
	}
	delay := time.Duration((int64(1)<<(attempt-1))-1) * time.Second
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}
