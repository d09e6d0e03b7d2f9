package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the configuration file and triggers a reload callback on
// change. The gateway uses it to swap upstream settings and log level
// without a restart.
type Watcher struct {
	configPath   string
	watcher      *fsnotify.Watcher
	reloadFunc   func(*Config)
	logger       *slog.Logger
	mu           sync.Mutex
	running      bool
	stopCh       chan struct{}
	debounceTime time.Duration
}

// NewWatcher creates a configuration file watcher. reloadFunc receives the
// freshly loaded configuration after every successful reload.
func NewWatcher(configPath string, reloadFunc func(*Config), logger *slog.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		configPath:   configPath,
		watcher:      watcher,
		reloadFunc:   reloadFunc,
		logger:       logger,
		stopCh:       make(chan struct{}),
		debounceTime: time.Second,
	}, nil
}

// Start begins watching. The directory is watched, not the file, because
// editors and config updaters commonly write a temp file and rename it.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.configPath)); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}

	w.logger.Info("config watcher started", "config_path", w.configPath)
	go w.watchLoop(ctx)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	close(w.stopCh)
	return w.watcher.Close()
}

func (w *Watcher) watchLoop(ctx context.Context) {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		var fired <-chan time.Time
		if debounce != nil {
			fired = debounce.C
		}

		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(w.debounceTime)
			} else {
				debounce.Reset(w.debounceTime)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)
		case <-fired:
			debounce = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.configPath)
	if err != nil {
		// Keep running with the previous configuration.
		w.logger.Error("config reload failed", "error", err, "config_path", w.configPath)
		return
	}
	w.logger.Info("configuration reloaded", "config_path", w.configPath)
	w.reloadFunc(cfg)
}
