package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tollgate-io/tollgate/internal/logging"
	"go.uber.org/zap"
)

// reloadDebounce coalesces the event bursts editors and atomic-rename writes
// produce into a single reload.
const reloadDebounce = 500 * time.Millisecond

// Watcher reloads the configuration file when it changes on disk and hands
// each successfully parsed result to the callback. A file edit that fails to
// parse or validate is logged and otherwise ignored; the gateway keeps
// running on its current configuration.
type Watcher struct {
	fs       *fsnotify.Watcher
	loader   *Loader
	path     string
	onChange func(*Config)
}

// NewWatcher creates a watcher for the config file at path. onChange runs on
// the watcher goroutine; reloads are serialized.
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	return &Watcher{
		fs:       fs,
		loader:   NewLoader(),
		path:     path,
		onChange: onChange,
	}, nil
}

// Start begins watching. The parent directory is watched rather than the
// file itself so atomic renames over the file are still seen.
func (w *Watcher) Start() error {
	if err := w.fs.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}
	go w.watch()
	return nil
}

func (w *Watcher) watch() {
	var pending *time.Timer

	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(reloadDebounce, w.reload)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logging.Error("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load(w.path)
	if err != nil {
		logging.Error("config reload failed, keeping current configuration",
			zap.String("path", w.path), zap.Error(err))
		return
	}
	logging.Info("configuration reloaded", zap.String("path", w.path))
	w.onChange(cfg)
}

// Stop ends watching. Pending debounced reloads may still fire.
func (w *Watcher) Stop() error {
	return w.fs.Close()
}
