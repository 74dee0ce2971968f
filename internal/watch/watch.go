// Package watch reprocesses scripts when they change on disk or on a cron
// schedule.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/leapstack-labs/leaplineage/internal/source"
)

// DefaultDebounce is how long a burst of events is collected before the
// change handler runs.
const DefaultDebounce = 100 * time.Millisecond

// ChangeFunc receives the scripts written or created during one debounce window.
type ChangeFunc func(ctx context.Context, paths []string)

// Watcher watches a directory tree for script changes.
type Watcher struct {
	root     string
	onChange ChangeFunc
	debounce time.Duration
	logger   *slog.Logger
	ready    chan struct{}

	mu      sync.Mutex
	pending map[string]bool
	timer   *time.Timer

	// inflight counts armed timers and running change handlers.
	inflight sync.WaitGroup
}

// New creates a watcher for root. onChange runs on its own goroutine, never
// concurrently with itself.
func New(root string, onChange ChangeFunc, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		root:     root,
		onChange: onChange,
		debounce: DefaultDebounce,
		logger:   logger,
		ready:    make(chan struct{}),
		pending:  make(map[string]bool),
	}
}

// Ready is closed once every directory is being watched.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches until ctx is cancelled. It returns only after any change
// handler already started has finished.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	defer func() {
		w.stopTimer()
		w.inflight.Wait()
	}()

	if err := w.watchDir(watcher, w.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}
	close(w.ready)
	w.logger.Info("watching for changes", "dir", w.root)

	var running sync.Mutex
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				// New directories need their own watch.
				if err := w.watchDir(watcher, event.Name); err == nil {
					continue
				}
			}
			if !source.IsScript(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name, &running)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// watchDir adds dir and its subdirectories. Hidden directories are skipped.
// It fails when dir is not a directory.
func (w *Watcher) watchDir(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			if path == dir {
				return fmt.Errorf("%s is not a directory", dir)
			}
			return nil
		}
		if path != dir && len(d.Name()) > 0 && d.Name()[0] == '.' {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

func (w *Watcher) schedule(ctx context.Context, path string, running *sync.Mutex) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[path] = true
	if w.timer != nil && w.timer.Stop() {
		w.inflight.Done()
	}
	w.inflight.Add(1)
	w.timer = time.AfterFunc(w.debounce, func() {
		defer w.inflight.Done()
		paths := w.drain()
		if len(paths) == 0 || ctx.Err() != nil {
			return
		}
		running.Lock()
		defer running.Unlock()
		w.logger.Info("change detected", "scripts", len(paths))
		w.onChange(ctx, paths)
	})
}

func (w *Watcher) drain() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	w.pending = make(map[string]bool)
	return paths
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil && w.timer.Stop() {
		w.inflight.Done()
	}
	w.timer = nil
}
