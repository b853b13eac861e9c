package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Connected bool
	Attempts  int
}

func TestCurrentReturnsInitial(t *testing.T) {
	store := NewStore(snapshot{Attempts: 3})

	assert.Equal(t, snapshot{Attempts: 3}, store.Current())
}

func TestSetAppliesMutationAndReturnsNew(t *testing.T) {
	store := NewStore(snapshot{})

	got := store.Set(func(cur snapshot) snapshot {
		cur.Connected = true
		cur.Attempts++
		return cur
	})

	assert.Equal(t, snapshot{Connected: true, Attempts: 1}, got)
	assert.Equal(t, got, store.Current())
}

func TestSubscriberReceivesPreviousAndCurrent(t *testing.T) {
	store := NewStore(snapshot{Attempts: 1})
	sub := store.Subscribe()
	defer store.Unsubscribe(sub)

	store.Set(func(cur snapshot) snapshot {
		cur.Attempts = 2
		return cur
	})

	select {
	case change := <-sub:
		assert.Equal(t, 1, change.Previous.Attempts)
		assert.Equal(t, 2, change.Current.Attempts)
	case <-time.After(time.Second):
		t.Fatal("no change received")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	store := NewStore(snapshot{})
	sub := store.Subscribe()
	require.Equal(t, 1, store.SubscriberCount())

	store.Unsubscribe(sub)

	_, open := <-sub
	assert.False(t, open)
	assert.Equal(t, 0, store.SubscriberCount())
}

func TestConcurrentSetsSerialize(t *testing.T) {
	store := NewStore(snapshot{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Set(func(cur snapshot) snapshot {
				cur.Attempts++
				return cur
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, store.Current().Attempts)
}

func TestSlowSubscriberDoesNotBlockSet(t *testing.T) {
	store := NewStore(snapshot{})
	sub := store.Subscribe()
	defer store.Unsubscribe(sub)

	// Overflow the subscriber buffer without draining it.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			store.Set(func(cur snapshot) snapshot {
				cur.Attempts++
				return cur
			})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Set blocked on a slow subscriber")
	}
	assert.Equal(t, 100, store.Current().Attempts)
}
