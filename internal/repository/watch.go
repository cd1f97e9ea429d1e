package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"carmatch/internal/logger"
)

// reloadDebounce absorbs the burst of events a single save produces.
const reloadDebounce = 200 * time.Millisecond

// Watch reloads the catalog whenever the file at path is written or
// replaced, until ctx is done. A file that fails to parse leaves the current
// catalog in place.
func (c *MemoryCatalog) Watch(ctx context.Context, path string, log *logger.Logger) error {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.Named("catalog")

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve catalog path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	// editors and deploy tools replace files by rename, so watch the directory
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer w.Close()
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(reloadDebounce)
				} else {
					timer.Reset(reloadDebounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				n, err := c.Reload(abs)
				if err != nil {
					log.Warn("catalog reload failed, keeping previous catalog", zap.Error(err))
					continue
				}
				log.Info("catalog reloaded", zap.Int("vehicles", n))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("catalog watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
