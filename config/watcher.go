package config

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileWatcher polls a config file for modification-time changes and invokes
// callbacks when the file is rewritten. Polling keeps the watcher free of
// platform-specific filesystem event APIs.
type FileWatcher struct {
	mu sync.Mutex

	path     string
	interval time.Duration

	callbacks []func(path string)
	logger    *zap.Logger

	running bool
	cancel  context.CancelFunc

	lastModTime time.Time
}

// WatcherOption configures the FileWatcher.
type WatcherOption func(*FileWatcher)

// WithPollInterval sets how often the file is checked.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger sets the logger for the watcher.
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		w.logger = logger
	}
}

// NewFileWatcher creates a watcher for path.
func NewFileWatcher(path string, opts ...WatcherOption) *FileWatcher {
	w := &FileWatcher{
		path:     path,
		interval: time.Second,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if info, err := os.Stat(path); err == nil {
		w.lastModTime = info.ModTime()
	}
	return w
}

// OnChange registers a callback invoked after each detected change.
func (w *FileWatcher) OnChange(fn func(path string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Start begins polling until ctx is cancelled or Stop is called.
func (w *FileWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.running = true
	w.mu.Unlock()

	go w.loop(ctx)
	w.logger.Info("config watcher started",
		zap.String("path", w.path),
		zap.Duration("interval", w.interval))
}

// Stop stops polling.
func (w *FileWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.cancel()
	w.running = false
	w.logger.Info("config watcher stopped")
}

func (w *FileWatcher) loop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *FileWatcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		// Transient during atomic rewrites (rename over the path).
		w.logger.Debug("config file stat failed", zap.Error(err))
		return
	}

	w.mu.Lock()
	changed := info.ModTime().After(w.lastModTime)
	if changed {
		w.lastModTime = info.ModTime()
	}
	callbacks := append([]func(string){}, w.callbacks...)
	w.mu.Unlock()

	if !changed {
		return
	}

	w.logger.Info("config file changed", zap.String("path", w.path))
	for _, fn := range callbacks {
		fn(w.path)
	}
}
