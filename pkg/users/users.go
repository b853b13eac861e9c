package users

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/slskd/slskgo/pkg/config"
	"github.com/slskd/slskgo/pkg/log"
	"github.com/slskd/slskgo/pkg/soul"
	"github.com/slskd/slskgo/pkg/types"
)

// Service classifies remote users into scheduler groups. It combines
// three inputs: the privileged list pushed by the server, explicit
// member lists from user-defined groups, and share statistics fetched
// per user for the leecher heuristic.
type Service struct {
	client soul.Client
	logger zerolog.Logger

	mu         sync.RWMutex
	thresholds config.ThresholdOptions
	membership map[string]string
	privileged map[string]struct{}
	stats      map[string]soul.UserStats
}

// NewService creates a Service from the current group options. client
// is used to fetch per-user statistics on demand.
func NewService(client soul.Client, opts config.GroupsOptions) *Service {
	return &Service{
		client:     client,
		logger:     log.WithComponent("users"),
		thresholds: opts.Leechers.Thresholds,
		membership: buildMembership(opts),
		privileged: make(map[string]struct{}),
		stats:      make(map[string]soul.UserStats),
	}
}

// Reconfigure rebuilds the membership table and thresholds from new
// group options. Privileged users and cached statistics survive.
func (s *Service) Reconfigure(opts config.GroupsOptions) {
	membership := buildMembership(opts)

	s.mu.Lock()
	s.thresholds = opts.Leechers.Thresholds
	s.membership = membership
	s.mu.Unlock()

	s.logger.Debug().
		Int("members", len(membership)).
		Msg("rebuilt group membership")
}

// SetPrivileged replaces the privileged set. The server pushes the
// full list on login and whenever it changes.
func (s *Service) SetPrivileged(usernames []string) {
	privileged := make(map[string]struct{}, len(usernames))
	for _, username := range usernames {
		privileged[username] = struct{}{}
	}

	s.mu.Lock()
	s.privileged = privileged
	s.mu.Unlock()

	s.logger.Debug().
		Int("count", len(privileged)).
		Msg("updated privileged users")
}

// IsPrivileged reports whether the server lists username as privileged.
func (s *Service) IsPrivileged(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.privileged[username]
	return ok
}

// Watch fetches the server's statistics for username and caches them
// for classification. Call it when a user first interacts with us; a
// user with no cached statistics is never classified as a leecher.
func (s *Service) Watch(ctx context.Context, username string) error {
	stats, err := s.client.Stats(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to fetch stats for %s: %w", username, err)
	}

	s.mu.Lock()
	s.stats[username] = stats
	s.mu.Unlock()

	logger := log.WithUsername(username)
	logger.Debug().
		Int("files", stats.Files).
		Int("directories", stats.Directories).
		Msg("cached user statistics")

	return nil
}

// Stats returns the cached statistics for username, if any.
func (s *Service) Stats(username string) (soul.UserStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats, ok := s.stats[username]
	return stats, ok
}

// GroupFor resolves username to a scheduler group name. Precedence:
// privileged, then user-defined membership, then the leecher
// heuristic, then default. The scheduler calls this at release time so
// reclassification between enqueue and release takes effect.
func (s *Service) GroupFor(username string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.privileged[username]; ok {
		return types.GroupPrivileged
	}
	if group, ok := s.membership[username]; ok {
		return group
	}
	if stats, ok := s.stats[username]; ok {
		if stats.Files < s.thresholds.Files || stats.Directories < s.thresholds.Directories {
			return types.GroupLeechers
		}
	}
	return types.GroupDefault
}

// buildMembership flattens user-defined member lists into a lookup
// table. Groups are applied in (priority, name) order and the first
// group claiming a user wins, so a user named in two groups lands in
// the higher-priority one deterministically.
func buildMembership(opts config.GroupsOptions) map[string]string {
	names := make([]string, 0, len(opts.UserDefined))
	for name := range opts.UserDefined {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a := opts.UserDefined[names[i]]
		b := opts.UserDefined[names[j]]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return names[i] < names[j]
	})

	membership := make(map[string]string)
	for _, name := range names {
		for _, member := range opts.UserDefined[name].Members {
			if _, claimed := membership[member]; !claimed {
				membership[member] = name
			}
		}
	}
	return membership
}
