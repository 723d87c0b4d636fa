// Package settings watches the grants file and triggers an explicit reload
// of the host's granted capabilities when it changes.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reloader re-reads granted capabilities. *host.WasmHost implements it.
type Reloader interface {
	ReloadGrantedCapabilities(ctx context.Context) error
}

// watcherConfig holds configuration for a GrantsWatcher.
type watcherConfig struct {
	logger   *slog.Logger
	debounce time.Duration
}

func defaultWatcherConfig() watcherConfig {
	return watcherConfig{
		logger:   slog.Default(),
		debounce: 200 * time.Millisecond,
	}
}

// WatcherOption configures a GrantsWatcher.
type WatcherOption func(*watcherConfig)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) WatcherOption {
	return func(c *watcherConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDebounce coalesces bursts of file events into one reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(c *watcherConfig) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// GrantsWatcher reloads granted capabilities after the grants file changes.
// The parent directory is watched, so atomic replacements are seen.
type GrantsWatcher struct {
	path     string
	reloader Reloader
	config   watcherConfig
}

// NewGrantsWatcher creates a watcher for path.
func NewGrantsWatcher(path string, reloader Reloader, opts ...WatcherOption) *GrantsWatcher {
	cfg := defaultWatcherConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &GrantsWatcher{path: filepath.Clean(path), reloader: reloader, config: cfg}
}

// Run blocks until ctx is done. It returns nil on cancellation.
func (w *GrantsWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("settings: create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("settings: create %s: %w", dir, err)
	}
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("settings: watch %s: %w", dir, err)
	}
	w.config.logger.DebugContext(ctx, "settings: watching grants file", "path", w.path)

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) {
				continue
			}
			timer.Reset(w.config.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.config.logger.WarnContext(ctx, "settings: watcher error", "path", w.path, "error", err)
		case <-timer.C:
			if err := w.reloader.ReloadGrantedCapabilities(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.config.logger.ErrorContext(ctx, "settings: reload granted capabilities failed", "path", w.path, "error", err)
			}
		}
	}
}
