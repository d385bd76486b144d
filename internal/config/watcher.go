package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ChangeHandler receives the previous and the freshly loaded configuration.
type ChangeHandler func(prev, next *Config) error

// Watcher reloads the config file when it changes on disk.
type Watcher struct {
	loader   *Loader
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu       sync.RWMutex
	current  *Config
	handlers []ChangeHandler
	started  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWatcher starts from an already loaded configuration.
func NewWatcher(loader *Loader, current *Config, logger *zap.Logger) (*Watcher, error) {
	if loader == nil || current == nil {
		return nil, fmt.Errorf("loader and current config are required")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		loader:   loader,
		logger:   logger,
		watcher:  w,
		debounce: 50 * time.Millisecond,
		current:  current,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// OnChange registers a handler called after every successful reload.
func (w *Watcher) OnChange(h ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start watches the directory holding the config file. Editors that replace
// the file on save emit create or rename events on the directory, not the file.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	dir := filepath.Dir(w.loader.Path())
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	w.mu.Unlock()
	go w.loop(ctx)
	w.logger.Info("Configuration watcher started", zap.String("path", w.loader.Path()))
	return nil
}

// Stop ends the watch loop and releases the underlying watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.started = false
	w.mu.Unlock()

	close(w.stopCh)
	err := w.watcher.Close()
	<-w.doneCh
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)
	target := filepath.Clean(w.loader.Path())
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// rapid successive writes
			time.Sleep(w.debounce)
			w.reload(event.Op.String())
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Configuration watcher error", zap.Error(err))
		}
	}
}

// Reload re-reads the file and notifies handlers. Invalid files keep the previous config.
func (w *Watcher) Reload() error {
	return w.reload("manual")
}

func (w *Watcher) reload(action string) error {
	next, err := w.loader.Load()
	if err != nil {
		w.logger.Error("Failed to reload configuration",
			zap.String("action", action),
			zap.Error(err),
		)
		return err
	}

	w.mu.Lock()
	prev := w.current
	w.current = next
	handlers := append([]ChangeHandler(nil), w.handlers...)
	w.mu.Unlock()

	for _, h := range handlers {
		if err := h(prev, next); err != nil {
			w.logger.Warn("Configuration change handler failed", zap.Error(err))
		}
	}
	w.logger.Info("Configuration reloaded", zap.String("action", action))
	return nil
}
