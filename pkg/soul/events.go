package soul

import "sync"

// Event is a normalised peer-client event. Implementations publish
// them into an Adapter; daemon components subscribe to the fan-out.
type Event interface {
	event()
}

// ConnectedEvent fires when the server session is established.
type ConnectedEvent struct {
	Username string
}

// DisconnectedEvent fires when the server session drops.
type DisconnectedEvent struct {
	Cause DisconnectCause
	Err   error
}

// PrivilegedUsersEvent carries the server-pushed privileged user list.
type PrivilegedUsersEvent struct {
	Usernames []string
}

// DownloadCompletedEvent fires when a local download finishes.
type DownloadCompletedEvent struct {
	Username  string
	Filename  string
	LocalPath string
}

// DiagnosticEvent carries a free-form client diagnostic.
type DiagnosticEvent struct {
	Level   string
	Message string
}

func (ConnectedEvent) event()       {}
func (DisconnectedEvent) event()    {}
func (PrivilegedUsersEvent) event() {}
func (DownloadCompletedEvent) event() {}
func (DiagnosticEvent) event()      {}

// Subscriber is a channel that receives events
type Subscriber chan Event

// Adapter fans peer-client events out to daemon components. Clients
// publish into it; the watchdog, relay controller, and user service
// each take their own subscription.
type Adapter struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan Event
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewAdapter creates a new event adapter
func NewAdapter() *Adapter {
	return &Adapter{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the adapter's event distribution loop
func (a *Adapter) Start() {
	go a.run()
}

// Stop stops the adapter
func (a *Adapter) Stop() {
	a.stopOnce.Do(func() {
		close(a.stopCh)
	})
}

// Subscribe creates a new subscription and returns a channel
func (a *Adapter) Subscribe() Subscriber {
	a.mu.Lock()
	defer a.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	a.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (a *Adapter) Unsubscribe(sub Subscriber) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers
func (a *Adapter) Publish(event Event) {
	select {
	case a.eventCh <- event:
	case <-a.stopCh:
	}
}

func (a *Adapter) run() {
	for {
		select {
		case event := <-a.eventCh:
			a.broadcast(event)
		case <-a.stopCh:
			return
		}
	}
}

func (a *Adapter) broadcast(event Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for sub := range a.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (a *Adapter) SubscriberCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.subscribers)
}
