package rate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetGrantsUpToAvailable(t *testing.T) {
	b := NewTokenBucket(10, time.Hour)
	defer b.Stop()

	got, err := b.Get(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got)
	assert.Equal(t, int64(6), b.Available())

	// Request exceeding the remainder is clamped, not blocked.
	got, err = b.Get(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(6), got)
	assert.Equal(t, int64(0), b.Available())
}

func TestGetNonPositiveIsNoop(t *testing.T) {
	b := NewTokenBucket(10, time.Hour)
	defer b.Stop()

	got, err := b.Get(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
	assert.Equal(t, int64(10), b.Available())
}

func TestEmptyBucketSuspendsUntilTick(t *testing.T) {
	b := NewTokenBucket(5, 50*time.Millisecond)
	defer b.Stop()

	_, err := b.Get(context.Background(), 5)
	require.NoError(t, err)

	start := time.Now()
	got, err := b.Get(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, int64(3), got)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestReturnClampsToCapacity(t *testing.T) {
	b := NewTokenBucket(10, time.Hour)
	defer b.Stop()

	_, err := b.Get(context.Background(), 4)
	require.NoError(t, err)

	b.Return(2)
	assert.Equal(t, int64(8), b.Available())

	b.Return(1000)
	assert.Equal(t, int64(10), b.Available())

	b.Return(-5)
	b.Return(0)
	assert.Equal(t, int64(10), b.Available())
}

func TestSetCapacityRetainsMin(t *testing.T) {
	b := NewTokenBucket(10, time.Hour)
	defer b.Stop()

	b.SetCapacity(4)
	assert.Equal(t, int64(4), b.Capacity())
	assert.Equal(t, int64(4), b.Available())

	// Growing does not mint tokens mid-interval.
	b.SetCapacity(20)
	assert.Equal(t, int64(20), b.Capacity())
	assert.Equal(t, int64(4), b.Available())
}

func TestGetHonoursContextWhileSuspended(t *testing.T) {
	b := NewTokenBucket(1, time.Hour)
	defer b.Stop()

	_, err := b.Get(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = b.Get(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStoppedBucketGrantsInFull(t *testing.T) {
	b := NewTokenBucket(1, time.Hour)

	_, err := b.Get(context.Background(), 1)
	require.NoError(t, err)

	b.Stop()

	got, err := b.Get(context.Background(), 99)
	require.NoError(t, err)
	assert.Equal(t, int64(99), got)
}

func TestCapacityFloor(t *testing.T) {
	b := NewTokenBucket(0, time.Hour)
	defer b.Stop()

	assert.Equal(t, int64(1), b.Capacity())

	b.SetCapacity(-3)
	assert.Equal(t, int64(1), b.Capacity())
}
