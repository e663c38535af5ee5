package config

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// Watch reloads configPath whenever it changes and passes the result to
// onChange. The parent directory is watched so editors that replace the file
// by rename are seen. Reload errors are logged and the previous config stays.
func Watch(ctx context.Context, configPath string, logger *slog.Logger, onChange func(Config)) error {
	if configPath == "" {
		return errors.New("config watch requires a path")
	}
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		var (
			mu     sync.Mutex
			timer  *time.Timer
			closed bool
		)
		defer func() {
			mu.Lock()
			closed = true
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
		}()

		reload := func() {
			mu.Lock()
			defer mu.Unlock()
			if closed {
				return
			}
			cfg, err := Load(abs)
			if err != nil {
				logger.Warn("config reload failed", "error", err)
				return
			}
			logger.Info("config reloaded", "path", abs)
			onChange(cfg)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadDebounce, reload)
				mu.Unlock()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", "error", err)
			}
		}
	}()
	return nil
}
