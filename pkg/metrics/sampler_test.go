package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/slskd/slskgo/pkg/types"
)

type fakeQueue struct {
	state  types.QueueState
	groups []types.UploadGroup
}

func (f *fakeQueue) Snapshot() types.QueueState  { return f.state }
func (f *fakeQueue) Groups() []types.UploadGroup { return f.groups }

type fakeShares struct {
	state types.SharesState
}

func (f *fakeShares) Snapshot() types.SharesState { return f.state }

type fakeRelay struct {
	agents []types.AgentRegistration
}

func (f *fakeRelay) Agents() []types.AgentRegistration { return f.agents }

func TestSamplerCollect(t *testing.T) {
	queue := &fakeQueue{
		state: types.QueueState{Queued: 7, Started: 2},
		groups: []types.UploadGroup{
			{Name: "privileged", Slots: 10, UsedSlots: 1},
			{Name: "default", Slots: 5, UsedSlots: 3},
		},
	}
	shares := &fakeShares{
		state: types.SharesState{
			Hosts:       []string{"local", "basement"},
			Directories: 40,
			Files:       1200,
		},
	}
	relay := &fakeRelay{
		agents: []types.AgentRegistration{{Name: "basement"}},
	}

	sampler := NewSampler(queue, shares, relay)
	sampler.collect()

	assert.Equal(t, 7.0, testutil.ToFloat64(QueueLength))
	assert.Equal(t, 2.0, testutil.ToFloat64(UploadsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(GroupUsedSlots.WithLabelValues("privileged")))
	assert.Equal(t, 5.0, testutil.ToFloat64(GroupSlotCapacity.WithLabelValues("default")))
	assert.Equal(t, 1200.0, testutil.ToFloat64(ShareFiles))
	assert.Equal(t, 40.0, testutil.ToFloat64(ShareDirectories))
	assert.Equal(t, 2.0, testutil.ToFloat64(ShareHosts))
	assert.Equal(t, 1.0, testutil.ToFloat64(RelayAgents))
}

func TestSamplerNilSources(t *testing.T) {
	sampler := NewSampler(nil, nil, nil)

	// Must not panic when subsystems are absent.
	sampler.collect()
}

func TestSamplerStartStop(t *testing.T) {
	queue := &fakeQueue{state: types.QueueState{Queued: 1}}

	sampler := NewSampler(queue, nil, nil)
	sampler.Start()
	sampler.Stop()

	assert.Equal(t, 1.0, testutil.ToFloat64(QueueLength))
}
