package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimer(t *testing.T) {
	timer := NewTimer()

	require.NotNil(t, timer)
	assert.False(t, timer.start.IsZero())
	assert.LessOrEqual(t, time.Since(timer.start), time.Second)
}

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()

	time.Sleep(50 * time.Millisecond)

	assert.GreaterOrEqual(t, timer.Duration(), 50*time.Millisecond)
}

func TestTimerDurationIncreases(t *testing.T) {
	timer := NewTimer()

	time.Sleep(20 * time.Millisecond)
	first := timer.Duration()

	time.Sleep(20 * time.Millisecond)
	second := timer.Duration()

	assert.Greater(t, second, first)
}

func TestTimerObserveDuration(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration histogram",
		Buckets: prometheus.DefBuckets,
	})

	timer := NewTimer()
	time.Sleep(20 * time.Millisecond)

	timer.ObserveDuration(histogram)

	assert.Greater(t, timer.Duration(), time.Duration(0))
}

func TestTimerObserveDurationVec(t *testing.T) {
	vec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_duration_vec_seconds",
			Help:    "Test duration histogram vec",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	timer := NewTimer()
	time.Sleep(20 * time.Millisecond)

	timer.ObserveDurationVec(vec, "scan")

	assert.Greater(t, timer.Duration(), time.Duration(0))
}
