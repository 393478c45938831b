package session

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/asheshgoplani/shell-deck/internal/platform"
)

// configDebounce coalesces the burst of events an editor save produces.
const configDebounce = 150 * time.Millisecond

// ConfigWatcher watches config.toml and reloads it on change.
type ConfigWatcher struct {
	path    string
	watcher *fsnotify.Watcher

	ctx    context.Context
	cancel context.CancelFunc

	// onChange receives the freshly parsed config
	onChange func(*UserConfig)

	timerMu sync.Mutex
	timer   *time.Timer
}

// NewConfigWatcher creates a watcher for the config file at path (the
// default location when empty). Call Start() to begin watching.
func NewConfigWatcher(path string, onChange func(*UserConfig)) (*ConfigWatcher, error) {
	if path == "" {
		var err error
		if path, err = GetUserConfigPath(); err != nil {
			return nil, err
		}
	}

	// Watch the directory: editors replace the file rather than write it.
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ConfigWatcher{
		path:     path,
		watcher:  watcher,
		ctx:      ctx,
		cancel:   cancel,
		onChange: onChange,
	}, nil
}

// Start begins watching. Must be called in a goroutine.
func (w *ConfigWatcher) Start() {
	dir := filepath.Dir(w.path)
	if warning := platform.CheckFsnotifySupport(dir); warning != "" {
		configLog.Warn("config_watch_unreliable", slog.String("warning", warning))
	}
	if err := w.watcher.Add(dir); err != nil {
		configLog.Warn("config_watcher_add_failed", slog.String("dir", dir), slog.String("error", err.Error()))
		return
	}

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			configLog.Warn("config_watcher_error", slog.String("error", err.Error()))
		}
	}
}

func (w *ConfigWatcher) scheduleReload() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(configDebounce, w.reload)
}

func (w *ConfigWatcher) reload() {
	if w.ctx.Err() != nil {
		return
	}
	if _, err := os.Stat(w.path); err != nil {
		// Mid-rename; the Create that follows triggers another reload.
		return
	}
	cfg, err := decodeUserConfig(w.path)
	if err != nil {
		configLog.Warn("config_reload_failed", slog.String("error", err.Error()))
		return
	}

	userConfigCacheMu.Lock()
	userConfigCache = cfg
	userConfigCacheMu.Unlock()

	configLog.Info("config_reloaded", slog.Int("shortcuts", len(cfg.Shortcuts)))
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

// Stop shuts down the watcher.
func (w *ConfigWatcher) Stop() {
	w.cancel()
	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()
	_ = w.watcher.Close()
}
