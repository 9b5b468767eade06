package store

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchFallback drops the cache whenever the fallback file changes on disk, so
// a snapshot rewritten by another process is picked up on the next read. The
// directory is watched rather than the file because Save replaces the file by
// rename. It blocks until ctx is done.
func (a *Adapter) WatchFallback(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	path := filepath.Clean(a.fallback.Path())
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}
	a.log.Info("Watching fallback snapshot for external changes.", zap.String("path", path))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				a.log.Debug("Fallback snapshot changed, dropping cache.", zap.String("op", event.Op.String()))
				a.invalidate()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.log.Warn("File watcher error", zap.Error(err))
		}
	}
}
