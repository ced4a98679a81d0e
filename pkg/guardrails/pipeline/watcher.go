package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last file event before a
// reload.
const DefaultDebounce = 100 * time.Millisecond

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Path is the pipeline file.
	Path string

	// Debounce is the quiet period before reloading. Default: 100ms
	Debounce time.Duration

	// Options are passed to FromFile on every reload.
	Options []Option

	// OnReload is called after every reload attempt with the new pipeline
	// or the error that kept the previous one in place.
	OnReload func(*Pipeline, error)
}

// Watcher reloads a pipeline file when it changes and swaps the result into
// a Reloadable. A file that fails to load leaves the previous pipeline in
// place.
//
// The parent directory is watched rather than the file, so editors that
// save by rename are picked up.
type Watcher struct {
	config   WatcherConfig
	registry *Registry
	target   *Reloadable
	fsw      *fsnotify.Watcher
	logger   *slog.Logger

	debounceMu    sync.Mutex
	debounceTimer *time.Timer

	mu      sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher and starts listening for events on the
// file's directory. Events are processed once Watch is called.
func NewWatcher(cfg WatcherConfig, registry *Registry, target *Reloadable, logger *slog.Logger) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, errors.New("watch path is required")
	}
	if registry == nil || target == nil {
		return nil, errors.New("registry and target are required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", cfg.Path, err)
	}
	cfg.Path = abs

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		config:   cfg,
		registry: registry,
		target:   target,
		fsw:      fsw,
		logger:   logger.With("component", "guardrails.watcher"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Reload loads the file now and swaps it in on success.
func (w *Watcher) Reload() error {
	p, err := FromFile(w.config.Path, w.registry, w.config.Options...)
	if err != nil {
		w.logger.Error("pipeline reload failed, keeping previous pipeline",
			"path", w.config.Path,
			"error", err,
		)
	} else {
		w.target.Swap(p)
		w.logger.Info("pipeline reloaded",
			"path", w.config.Path,
			"version", w.target.Version(),
		)
	}

	if w.config.OnReload != nil {
		w.config.OnReload(p, err)
	}
	return err
}

// Watch processes file events until ctx is done or Stop is called.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running || w.stopped {
		w.mu.Unlock()
		return errors.New("watcher already running or stopped")
	}
	w.running = true
	w.mu.Unlock()

	defer close(w.doneCh)

	w.logger.Info("pipeline watcher started",
		"path", w.config.Path,
		"debounce_ms", w.config.Debounce.Milliseconds(),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("pipeline watcher stopped", "reason", ctx.Err())
			w.cancelPending()
			return nil

		case <-w.stopCh:
			w.logger.Info("pipeline watcher stopped")
			w.cancelPending()
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("pipeline file event", "path", event.Name, "op", event.Op.String())
			w.schedule()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.logger.Error("pipeline watcher error", "error", err)
		}
	}
}

// Stop ends Watch and releases the fsnotify watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	running := w.running
	w.mu.Unlock()

	close(w.stopCh)
	if running {
		<-w.doneCh
	}
	w.cancelPending()

	if err := w.fsw.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	return filepath.Clean(event.Name) == w.config.Path
}

// schedule restarts the debounce timer.
func (w *Watcher) schedule() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.config.Debounce, func() {
		select {
		case <-w.stopCh:
			return
		default:
		}
		_ = w.Reload()
	})
}

func (w *Watcher) cancelPending() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
}
