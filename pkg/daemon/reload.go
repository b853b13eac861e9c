package daemon

import (
	"context"
	"strings"

	"github.com/slskd/slskgo/pkg/config"
	"github.com/slskd/slskgo/pkg/metrics"
	"github.com/slskd/slskgo/pkg/shares"
	"github.com/slskd/slskgo/pkg/types"
)

// Reconciliation outcomes for the config reload counter.
const (
	reloadApplied   = "applied"
	reloadRejected  = "rejected"
	reloadUnchanged = "unchanged"
)

// reconcileLoop applies configuration changes as the watcher reports
// them.
func (d *Daemon) reconcileLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-d.watcher.Events():
			if !ok {
				return nil
			}
			d.reconcile()
		}
	}
}

// reconcile loads the configuration file and folds what changed into
// the running components. Invalid candidates are rejected whole: the
// previous options stay in effect. One reconciliation runs at a time.
func (d *Daemon) reconcile() {
	d.reloadMu.Lock()
	defer d.reloadMu.Unlock()

	next, err := config.Load(d.configPath)
	if err != nil {
		metrics.ConfigReloads.WithLabelValues(reloadRejected).Inc()
		d.logger.Warn().Err(err).Msg("config change rejected; keeping previous options")
		return
	}

	current := d.Options()
	entries := config.Diff(current, next)
	if len(entries) == 0 {
		metrics.ConfigReloads.WithLabelValues(reloadUnchanged).Inc()
		d.logger.Debug().Msg("config file changed without effective differences")
		return
	}

	pendingRestart := false
	for _, e := range entries {
		d.logger.Info().
			Str("path", e.Path).
			Str("old", e.OldString()).
			Str("new", e.NewString()).
			Bool("requiresRestart", e.RequiresRestart).
			Msg("option changed")
		if e.RequiresRestart {
			pendingRestart = true
		}
	}

	// Swap the live tree first: components that pull options through
	// closures see the new values from here on.
	d.optsMu.Lock()
	d.opts = next
	d.optsMu.Unlock()

	d.queue.Reconfigure(next.Groups, next.Global.Upload.Slots)
	d.users.Reconfigure(next.Groups)
	d.resolver.Reconfigure(next.Searches)
	d.lifecycle.Reconfigure(next.Searches)
	d.index.SetLimits(shares.Limits{
		MinQueryChars: next.Searches.MinQueryChars,
		MaxResults:    next.Searches.MaxFilesPerResponse,
	})
	d.bucket.SetCapacity(bucketCapacity(next.Global.Upload.SpeedLimit))

	pendingReconnect := false
	if patch := config.SoulseekPatch(entries, next); !patch.Empty() {
		reconnect, err := d.client.Apply(patch)
		if err != nil {
			d.logger.Warn().Err(err).Msg("failed to apply server connection changes")
		}
		pendingReconnect = reconnect
	}

	if sharesChanged(entries) {
		go d.rescan(context.Background())
	}

	d.states.Set(func(s types.State) types.State {
		s.PendingRestart = s.PendingRestart || pendingRestart
		s.PendingReconnect = s.PendingReconnect || pendingReconnect
		return s
	})

	metrics.ConfigReloads.WithLabelValues(reloadApplied).Inc()
	d.logger.Info().
		Int("changes", len(entries)).
		Bool("pendingRestart", pendingRestart).
		Bool("pendingReconnect", pendingReconnect).
		Msg("configuration reconciled")
}

// sharesChanged reports whether any share root or filter changed, in
// which case a rescan is kicked off.
func sharesChanged(entries []config.DiffEntry) bool {
	for _, e := range entries {
		if strings.HasPrefix(e.Path, "shares.") {
			return true
		}
	}
	return false
}
