package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"conductor/internal/logger"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce collapses the burst of events editors emit on save.
const reloadDebounce = 200 * time.Millisecond

// ChangeListener receives the freshly loaded config after the file changes.
type ChangeListener func(*Config)

// Watch reloads path whenever it is written or replaced and hands the result
// to fn until ctx ends. A file that fails to load is logged and skipped; the
// previous config stays in effect.
func Watch(ctx context.Context, path string, fn ChangeListener) error {
	if fn == nil {
		return fmt.Errorf("config watch requires a listener")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	// watch the directory so atomic rename-on-save is seen too
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	var (
		timer  *time.Timer
		reload <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case evt, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(evt.Name) != abs || evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(reloadDebounce)
			reload = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("config watch %s: %v", abs, err)
		case <-reload:
			reload = nil
			cfg, err := Load(abs)
			if err != nil {
				logger.Errorf("config reload failed (%s): %v", abs, err)
				continue
			}
			logger.Infof("config reloaded from %s", abs)
			safeNotify(fn, cfg)
		}
	}
}

func safeNotify(fn ChangeListener, cfg *Config) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("config listener panic: %v", r)
		}
	}()
	fn(cfg)
}
