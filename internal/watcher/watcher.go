// Package watcher reloads the serving snapshot when a new build is published
// by another process, e.g. an out-of-process rebuild command.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/vector"
)

const defaultDebounce = 400 * time.Millisecond

// SnapshotWatcher watches the index root and swaps the registry when the
// current-build link is retargeted. Publishes are a symlink rename, so a
// single debounced reload per publish is enough.
type SnapshotWatcher struct {
	indexRoot string
	registry  *vector.Registry
	debounce  time.Duration
	logger    *zap.Logger

	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	timer    *time.Timer
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// Option configures a SnapshotWatcher.
type Option func(*SnapshotWatcher)

// WithDebounce overrides the reload debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(w *SnapshotWatcher) { w.debounce = d }
}

// New creates a watcher reloading snapshots from indexRoot into registry.
func New(indexRoot string, registry *vector.Registry, logger *zap.Logger, opts ...Option) *SnapshotWatcher {
	w := &SnapshotWatcher{
		indexRoot: indexRoot,
		registry:  registry,
		debounce:  defaultDebounce,
		logger:    logger,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
func (w *SnapshotWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	if err := os.MkdirAll(w.indexRoot, 0755); err != nil {
		w.mu.Unlock()
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := watcher.Add(w.indexRoot); err != nil {
		_ = watcher.Close()
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	w.mu.Unlock()

	w.logger.Debug("snapshot watcher started", zap.String("index_root", w.indexRoot))
	go w.run(ctx, watcher.Events, watcher.Errors)
	return nil
}

// run receives the channels directly so it never touches w.watcher, which
// Stop clears under the lock. Close drains and closes both channels, so a
// concurrent Stop just ends the loop via the !ok branches.
func (w *SnapshotWatcher) run(ctx context.Context, events chan fsnotify.Event, errs chan error) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-errs:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("snapshot watcher error", zap.Error(err))
			}
		}
	}
}

func (w *SnapshotWatcher) handleEvent(ev fsnotify.Event) {
	// A publish is a rename of current.tmp over current; depending on the
	// platform this surfaces as Create or Rename on the link name.
	if filepath.Base(ev.Name) != vector.CurrentLinkName {
		return
	}
	if ev.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Write) == 0 {
		return
	}
	w.logger.Debug("snapshot watcher event", zap.String("op", ev.Op.String()))
	w.scheduleReload()
}

func (w *SnapshotWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *SnapshotWatcher) reload() {
	snap, err := vector.LoadCurrent(w.indexRoot)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			w.logger.Debug("snapshot watcher: no published build")
		} else {
			w.logger.Warn("snapshot watcher: reload failed", zap.Error(err))
		}
		return
	}
	if current := w.registry.Current(); current != nil && current.Manifest.BuildID == snap.Manifest.BuildID {
		return
	}
	w.registry.Swap(snap)
	w.logger.Info("snapshot reloaded from external publish",
		zap.String("build_id", snap.Manifest.BuildID),
		zap.Int("size", snap.Index.Size()),
	)
}

// Stop stops the watcher and releases resources.
func (w *SnapshotWatcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
