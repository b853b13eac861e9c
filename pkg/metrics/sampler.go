package metrics

import (
	"time"

	"github.com/slskd/slskgo/pkg/types"
)

// QueueSource exposes upload queue statistics.
type QueueSource interface {
	Snapshot() types.QueueState
	Groups() []types.UploadGroup
}

// ShareSource exposes share index statistics.
type ShareSource interface {
	Snapshot() types.SharesState
}

// RelaySource exposes relay controller statistics.
type RelaySource interface {
	Agents() []types.AgentRegistration
}

// Sampler periodically refreshes gauge metrics from live components.
// Sources may be nil when the corresponding subsystem is not running.
type Sampler struct {
	queue  QueueSource
	shares ShareSource
	relay  RelaySource
	stopCh chan struct{}
}

// NewSampler creates a new gauge sampler
func NewSampler(queue QueueSource, shares ShareSource, relay RelaySource) *Sampler {
	return &Sampler{
		queue:  queue,
		shares: shares,
		relay:  relay,
		stopCh: make(chan struct{}),
	}
}

// Start begins sampling gauges
func (s *Sampler) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		s.collect()

		for {
			select {
			case <-ticker.C:
				s.collect()
			case <-s.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the sampler
func (s *Sampler) Stop() {
	close(s.stopCh)
}

func (s *Sampler) collect() {
	s.collectQueue()
	s.collectShares()
	s.collectRelay()
}

func (s *Sampler) collectQueue() {
	if s.queue == nil {
		return
	}

	snapshot := s.queue.Snapshot()
	QueueLength.Set(float64(snapshot.Queued))
	UploadsStarted.Set(float64(snapshot.Started))

	for _, group := range s.queue.Groups() {
		GroupUsedSlots.WithLabelValues(group.Name).Set(float64(group.UsedSlots))
		GroupSlotCapacity.WithLabelValues(group.Name).Set(float64(group.Slots))
	}
}

func (s *Sampler) collectShares() {
	if s.shares == nil {
		return
	}

	snapshot := s.shares.Snapshot()
	ShareFiles.Set(float64(snapshot.Files))
	ShareDirectories.Set(float64(snapshot.Directories))
	ShareHosts.Set(float64(len(snapshot.Hosts)))
}

func (s *Sampler) collectRelay() {
	if s.relay == nil {
		return
	}

	RelayAgents.Set(float64(len(s.relay.Agents())))
}
