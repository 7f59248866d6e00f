package loader

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/frederic-klein/stickler/internal/index"
	"github.com/frederic-klein/stickler/internal/logging"
)

// reloadDelay coalesces bursts of file events into one rebuild.
const reloadDelay = 100 * time.Millisecond

// Watcher is a Source that keeps one index in memory and rebuilds it when
// the spec directories change. Rebuilt indexes are swapped in atomically.
type Watcher struct {
	loader  *Loader
	dirs    []string
	logger  *slog.Logger
	current atomic.Pointer[index.Index]

	reloadMu sync.Mutex
	fsw      *fsnotify.Watcher
	done     chan struct{}

	// Owned by loop once it starts.
	specDirs map[string]bool
	watched  map[string]bool
}

// NewWatcher loads dirs once and starts watching them. The parent of
// each dir is watched too, so a spec directory that is created, removed
// or replaced after start is picked up.
func NewWatcher(ctx context.Context, l *Loader, dirs []string, logger *slog.Logger) (*Watcher, error) {
	w := &Watcher{
		loader:   l,
		logger:   logging.Default(logger).With("component", "watcher"),
		done:     make(chan struct{}),
		specDirs: make(map[string]bool),
		watched:  make(map[string]bool),
	}
	for _, dir := range dirs {
		dir = filepath.Clean(dir)
		w.dirs = append(w.dirs, dir)
		w.specDirs[dir] = true
	}

	if err := w.Reload(ctx); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	w.fsw = fsw

	w.watch()
	for _, dir := range w.dirs {
		if !w.watched[dir] {
			w.logger.Warn("spec directory not watched yet", "dir", dir)
		}
	}

	go w.loop()
	return w, nil
}

// watch adds every spec directory and its parent that is not watched yet.
// Paths that do not exist are retried on the next rebuild.
func (w *Watcher) watch() {
	for _, dir := range w.dirs {
		for _, path := range []string{filepath.Dir(dir), dir} {
			if w.watched[path] {
				continue
			}
			if err := w.fsw.Add(path); err != nil {
				w.logger.Debug("cannot watch path", "path", path, "error", err)
				continue
			}
			w.watched[path] = true
		}
	}
}

// forget drops the watch on a path that was removed or renamed away.
func (w *Watcher) forget(path string) {
	if !w.watched[path] {
		return
	}
	delete(w.watched, path)
	// The kernel may already have dropped the watch.
	_ = w.fsw.Remove(path)
}

// relevant reports whether an event on path can change the index. Events
// for siblings of a spec directory inside a watched parent are ignored.
func (w *Watcher) relevant(path string) bool {
	return w.specDirs[path] || w.specDirs[filepath.Dir(path)] || w.watched[path]
}

// Snapshot returns the current index.
func (w *Watcher) Snapshot(context.Context) (*index.Index, error) {
	return w.current.Load(), nil
}

// Reload rebuilds the index and swaps it in.
func (w *Watcher) Reload(ctx context.Context) error {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	idx, err := w.loader.Load(ctx, w.dirs)
	if err != nil {
		return fmt.Errorf("reloading index: %w", err)
	}
	w.current.Store(idx)
	return nil
}

func (w *Watcher) loop() {
	defer close(w.done)

	timer := time.NewTimer(reloadDelay)
	timer.Stop()

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				timer.Stop()
				return
			}
			if !w.relevant(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				w.forget(ev.Name)
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				timer.Reset(reloadDelay)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				timer.Stop()
				return
			}
			w.logger.Warn("watch error", "error", err)
		case <-timer.C:
			w.watch()
			if err := w.Reload(context.Background()); err != nil {
				w.logger.Error("index rebuild failed", "error", err)
				continue
			}
			w.logger.Info("index rebuilt", "specs", w.current.Load().Len())
		}
	}
}

// Close stops watching. The last index stays available.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}
