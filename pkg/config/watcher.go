package config

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/slskd/slskgo/pkg/log"
)

// Watcher reports changes to the config file. It watches the parent
// directory rather than the file itself so editors that save via
// rename-and-replace keep triggering. Notifications are coalesced into
// a single-slot channel; consumers reload the file on each pulse, and
// duplicate pulses for one edit diff to nothing.
type Watcher struct {
	path   string
	fsw    *fsnotify.Watcher
	events chan struct{}
	stopCh chan struct{}
}

// NewWatcher starts watching the config file at path.
func NewWatcher(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &Watcher{
		path:   abs,
		fsw:    fsw,
		events: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Events pulses whenever the config file may have changed.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Stop halts the watcher and releases the filesystem handle.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	if err := w.fsw.Close(); err != nil {
		return fmt.Errorf("failed to close config watcher: %w", err)
	}
	return nil
}

func (w *Watcher) run() {
	logger := log.WithComponent("config")

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug().Str("op", ev.Op.String()).Msg("config file changed")
			select {
			case w.events <- struct{}{}:
			default:
				// A reload is already pending.
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn().Err(err).Msg("config watcher error")
		case <-w.stopCh:
			return
		}
	}
}
