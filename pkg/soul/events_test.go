package soul

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapterDeliversToAllSubscribers(t *testing.T) {
	a := NewAdapter()
	a.Start()
	defer a.Stop()

	first := a.Subscribe()
	second := a.Subscribe()
	require.Equal(t, 2, a.SubscriberCount())

	a.Publish(ConnectedEvent{Username: "alice"})

	for _, sub := range []Subscriber{first, second} {
		select {
		case ev := <-sub:
			connected, ok := ev.(ConnectedEvent)
			require.True(t, ok)
			assert.Equal(t, "alice", connected.Username)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestAdapterEventVariants(t *testing.T) {
	a := NewAdapter()
	a.Start()
	defer a.Stop()

	sub := a.Subscribe()
	defer a.Unsubscribe(sub)

	a.Publish(DisconnectedEvent{Cause: DisconnectKicked, Err: errors.New("kicked")})

	select {
	case ev := <-sub:
		disconnected, ok := ev.(DisconnectedEvent)
		require.True(t, ok)
		assert.Equal(t, DisconnectKicked, disconnected.Cause)
		assert.True(t, disconnected.Cause.Fatal())
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	a := NewAdapter()
	a.Start()
	defer a.Stop()

	sub := a.Subscribe()
	a.Unsubscribe(sub)

	_, open := <-sub
	assert.False(t, open)
	assert.Equal(t, 0, a.SubscriberCount())
}

func TestPublishAfterStopDoesNotBlock(t *testing.T) {
	a := NewAdapter()
	a.Start()
	a.Stop()

	done := make(chan struct{})
	go func() {
		a.Publish(DiagnosticEvent{Level: "info", Message: "late"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked after Stop")
	}
}

func TestDisconnectCauseClassification(t *testing.T) {
	assert.True(t, DisconnectLoginRejected.Fatal())
	assert.True(t, DisconnectKicked.Fatal())
	assert.False(t, DisconnectUnknown.Fatal())

	assert.True(t, DisconnectShutdown.Deliberate())
	assert.True(t, DisconnectIntentional.Deliberate())
	assert.False(t, DisconnectUnknown.Deliberate())
	assert.False(t, DisconnectLoginRejected.Deliberate())
}
