package waiter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/slskd/slskgo/pkg/errdefs"
)

// Key identifies one pending rendezvous. Build keys from their parts
// with NewKey so unrelated flows cannot collide.
type Key string

// NewKey joins the given parts into a Key.
func NewKey(parts ...string) Key {
	return Key(strings.Join(parts, ":"))
}

func (k Key) String() string {
	return string(k)
}

type outcome struct {
	value any
	err   error
}

// Future is the receiving half of one registered wait. It resolves
// exactly once: with a value, an error, or a timeout.
type Future struct {
	key   Key
	w     *Waiter
	ch    chan outcome
	timer *time.Timer
}

// Await blocks until the future resolves or ctx is done. Cancellation
// abandons the registration so the key becomes reusable.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case oc := <-f.ch:
		return oc.value, oc.err
	case <-ctx.Done():
		f.w.abandon(f.key, f)
		return nil, fmt.Errorf("wait for %s abandoned: %w", f.key, errdefs.ErrCancelled)
	}
}

// Await resolves the future and asserts its value to T.
func Await[T any](ctx context.Context, f *Future) (T, error) {
	var zero T
	v, err := f.Await(ctx)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("wait for %s resolved with %T, want %T", f.key, v, zero)
	}
	return t, nil
}

// Waiter is a registry of keyed one-shot rendezvous. One side registers
// interest in a key and blocks on the returned Future; the other side
// resolves it with Complete or Throw. At most one wait may be pending
// per key.
type Waiter struct {
	mu      sync.Mutex
	pending map[Key]*Future
}

// New creates an empty registry.
func New() *Waiter {
	return &Waiter{pending: make(map[Key]*Future)}
}

// Wait registers a pending rendezvous for key. If timeout is positive
// the future fails with a timeout error when it elapses unresolved. A
// key that is already waiting returns a conflict error.
func (w *Waiter) Wait(key Key, timeout time.Duration) (*Future, error) {
	f, err := w.register(key)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		f.timer = time.AfterFunc(timeout, func() {
			w.resolve(key, f, outcome{err: fmt.Errorf("wait for %s expired: %w", key, errdefs.ErrTimeout)})
		})
	}
	return f, nil
}

// WaitIndefinitely registers a pending rendezvous with no timeout.
func (w *Waiter) WaitIndefinitely(key Key) (*Future, error) {
	return w.Wait(key, 0)
}

// Complete resolves the pending wait for key with value. It reports
// whether anything was waiting. The registration is removed before the
// waiter resumes, so a continuation may immediately re-wait on the
// same key.
func (w *Waiter) Complete(key Key, value any) bool {
	w.mu.Lock()
	f, ok := w.pending[key]
	if !ok {
		w.mu.Unlock()
		return false
	}
	delete(w.pending, key)
	w.mu.Unlock()

	f.stopTimer()
	f.ch <- outcome{value: value}
	return true
}

// Throw resolves the pending wait for key with err. It reports whether
// anything was waiting.
func (w *Waiter) Throw(key Key, err error) bool {
	w.mu.Lock()
	f, ok := w.pending[key]
	if !ok {
		w.mu.Unlock()
		return false
	}
	delete(w.pending, key)
	w.mu.Unlock()

	f.stopTimer()
	f.ch <- outcome{err: err}
	return true
}

// IsWaitingFor reports whether a wait is pending for key.
func (w *Waiter) IsWaitingFor(key Key) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.pending[key]
	return ok
}

// Pending reports how many waits are currently registered.
func (w *Waiter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *Waiter) register(key Key) (*Future, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.pending[key]; ok {
		return nil, errdefs.Conflictf("already waiting for %s", key)
	}
	f := &Future{
		key: key,
		w:   w,
		ch:  make(chan outcome, 1),
	}
	w.pending[key] = f
	return f, nil
}

// resolve delivers oc to f only if f still holds the registration.
// Late timers and abandoned futures fall through harmlessly.
func (w *Waiter) resolve(key Key, f *Future, oc outcome) {
	w.mu.Lock()
	cur, ok := w.pending[key]
	if !ok || cur != f {
		w.mu.Unlock()
		return
	}
	delete(w.pending, key)
	w.mu.Unlock()

	f.ch <- oc
}

func (w *Waiter) abandon(key Key, f *Future) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cur, ok := w.pending[key]; ok && cur == f {
		delete(w.pending, key)
	}
}

func (f *Future) stopTimer() {
	if f.timer != nil {
		f.timer.Stop()
	}
}
