package store

import (
	"context"
	"os"

	"DhammaFM/logger"

	"github.com/fsnotify/fsnotify"
)

// Watch removes LocalCopy records whose files are deleted outside the store.
// The read path still existence-checks; this keeps the table honest over
// time instead of accumulating stale rows.
func (s *ContentStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, dir := range []string{s.downloadDir, s.cacheDir} {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return err
		}
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				s.healRecord(ev.Name)
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("content watcher error", logger.ErrorField(werr))
			}
		}
	}()
	return nil
}

func (s *ContentStore) healRecord(path string) {
	c, err := s.copies.GetByPath(path)
	if err != nil || c == nil {
		return
	}
	// Conversion moves files between directories; only drop the record when
	// its current path is really gone.
	if _, err := os.Stat(c.FilePath); err == nil {
		return
	}
	if err := s.copies.Delete(c.TrackID); err != nil {
		logger.Warn("failed to remove stale local copy record",
			logger.String("trackId", c.TrackID), logger.ErrorField(err))
		return
	}
	logger.Info("removed stale local copy record",
		logger.String("trackId", c.TrackID), logger.String("path", path))
}
