// Package watcher reloads scripts when their sources change on disk.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last change before reloading.
const DefaultDebounce = 500 * time.Millisecond

// ReloadFunc is called once per burst of changes.
type ReloadFunc func(ctx context.Context) error

type watcherConfig struct {
	logger     *slog.Logger
	debounce   time.Duration
	extensions []string
}

func defaultWatcherConfig() watcherConfig {
	return watcherConfig{
		logger:     slog.Default(),
		debounce:   DefaultDebounce,
		extensions: []string{".js", ".wasm"},
	}
}

// Option configures a Watcher.
type Option func(*watcherConfig)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *watcherConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDebounce sets the quiet period.
func WithDebounce(d time.Duration) Option {
	return func(c *watcherConfig) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithExtensions sets the file extensions that trigger a reload.
func WithExtensions(exts ...string) Option {
	return func(c *watcherConfig) {
		c.extensions = append([]string(nil), exts...)
	}
}

// Watcher watches a scripts directory tree.
type Watcher struct {
	config watcherConfig
	root   string
	reload ReloadFunc

	mu      sync.Mutex
	reloads int
}

// New creates a Watcher over root.
func New(root string, reload ReloadFunc, opts ...Option) *Watcher {
	cfg := defaultWatcherConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Watcher{config: cfg, root: root, reload: reload}
}

// Reloads reports how many reloads have run.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Run watches until ctx is done. A pending reload is dropped on return.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := w.addTree(fsw, w.root); err != nil {
		return fmt.Errorf("failed to watch scripts directory: %w", err)
	}
	w.config.logger.InfoContext(ctx, "watching scripts for changes", "dir", w.root)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) && isDir(event.Name) {
				if err := w.addTree(fsw, event.Name); err != nil {
					w.config.logger.WarnContext(ctx, "failed to watch new directory", "dir", event.Name, "error", err)
				}
				continue
			}
			if !w.relevant(event) {
				continue
			}
			w.config.logger.DebugContext(ctx, "script source changed", "file", event.Name, "op", event.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.config.debounce, func() { w.runReload(ctx) })

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.config.logger.WarnContext(ctx, "file watcher error", "error", err)
		}
	}
}

func (w *Watcher) runReload(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	err := w.reload(ctx)

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()

	if err != nil {
		w.config.logger.ErrorContext(ctx, "script reload failed", "error", err)
		return
	}
	w.config.logger.InfoContext(ctx, "scripts reloaded")
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	return slices.Contains(w.config.extensions, filepath.Ext(event.Name))
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path != root && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return fsw.Add(path)
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
