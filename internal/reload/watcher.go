// Package reload picks up hand edits of the persisted state files while
// the relay runs.
package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 200 * time.Millisecond

// Reloadable is a store backed by a single file.
type Reloadable interface {
	Path() string
	// Reload re-reads the file. Implementations skip it while a change
	// of their own is still unpersisted.
	Reload()
}

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// Debounce coalesces bursts of events for the same file. Defaults to
	// 200ms.
	Debounce time.Duration

	// OnReload, when set, is called after each reload with the file path.
	OnReload func(path string)

	Logger *slog.Logger
}

// Watcher reloads stores when their files change on disk.
type Watcher struct {
	cfg     WatcherConfig
	targets map[string]Reloadable
	dirs    []string
	logger  *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher for targets. Nothing is watched until Start.
func NewWatcher(cfg WatcherConfig, targets ...Reloadable) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	w := &Watcher{
		cfg:     cfg,
		targets: make(map[string]Reloadable, len(targets)),
		logger:  cfg.Logger,
	}
	seen := make(map[string]bool)
	for _, t := range targets {
		path := filepath.Clean(t.Path())
		w.targets[path] = t
		if dir := filepath.Dir(path); !seen[dir] {
			seen[dir] = true
			w.dirs = append(w.dirs, dir)
		}
	}
	return w
}

// Start watches the directories holding the target files. Directories,
// not files, are watched: atomic saves replace the file's inode.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("reload: create watcher: %w", err)
	}
	for _, dir := range w.dirs {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			_ = fw.Close()
			return fmt.Errorf("reload: create directory %s: %w", dir, err)
		}
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return fmt.Errorf("reload: watch %s: %w", dir, err)
		}
	}

	w.mu.Lock()
	w.watcher = fw
	w.mu.Unlock()
	w.logger.Info("reload: watching state files", "dirs", w.dirs, "files", len(w.targets))
	return nil
}

// Run dispatches reloads until ctx is done or Stop is called.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	fw := w.watcher
	w.mu.Unlock()
	if fw == nil {
		return errors.New("reload: watcher not started")
	}

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.cfg.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			path := filepath.Clean(ev.Name)
			if _, ok := w.targets[path]; !ok {
				continue
			}
			pending[path] = struct{}{}
			timer.Reset(w.cfg.Debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("reload: watch error", "error", err)

		case <-timer.C:
			for path := range pending {
				w.reload(path)
				delete(pending, path)
			}
		}
	}
}

func (w *Watcher) reload(path string) {
	w.targets[path].Reload()
	w.logger.Debug("reload: state file reloaded", "path", path)
	if w.cfg.OnReload != nil {
		w.cfg.OnReload(path)
	}
}

// Stop closes the underlying watcher, ending Run. Safe to call twice.
func (w *Watcher) Stop(context.Context) error {
	w.mu.Lock()
	fw := w.watcher
	w.watcher = nil
	w.mu.Unlock()
	if fw == nil {
		return nil
	}
	return fw.Close()
}
