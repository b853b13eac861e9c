package log

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferCapturesInitializedLogger(t *testing.T) {
	buf := NewBuffer(16)
	Init(Config{
		Level:      DebugLevel,
		JSONOutput: true,
		Output:     os.Stdout,
		Buffer:     buf,
	})

	logger := WithComponent("scheduler")
	logger.Info().Msg("upload released")

	entries := buf.Recent(0)
	require.Len(t, entries, 1)
	assert.Equal(t, "info", entries[0].Level)
	assert.Equal(t, "scheduler", entries[0].Component)
	assert.Equal(t, "upload released", entries[0].Message)
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestBufferWrapsAtCapacity(t *testing.T) {
	buf := NewBuffer(4)

	for i := 0; i < 10; i++ {
		line := fmt.Sprintf(`{"level":"info","time":"2026-08-24T10:00:0%dZ","message":"entry %d"}`, i%10, i)
		_, err := buf.Write([]byte(line))
		require.NoError(t, err)
	}

	entries := buf.Recent(0)
	require.Len(t, entries, 4)
	assert.Equal(t, "entry 6", entries[0].Message)
	assert.Equal(t, "entry 9", entries[3].Message)
	assert.Equal(t, 4, buf.Len())
}

func TestBufferRecentLimitsCount(t *testing.T) {
	buf := NewBuffer(8)

	for i := 0; i < 5; i++ {
		line := fmt.Sprintf(`{"level":"debug","message":"m%d"}`, i)
		_, err := buf.Write([]byte(line))
		require.NoError(t, err)
	}

	entries := buf.Recent(2)
	require.Len(t, entries, 2)
	assert.Equal(t, "m3", entries[0].Message)
	assert.Equal(t, "m4", entries[1].Message)
}

func TestBufferDropsMalformedLines(t *testing.T) {
	buf := NewBuffer(8)

	n, err := buf.Write([]byte("not json at all"))
	require.NoError(t, err)
	assert.Equal(t, len("not json at all"), n)
	assert.Equal(t, 0, buf.Len())
}
