package store

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"DhammaFM/config"
	"DhammaFM/logger"
	"DhammaFM/model"
	"DhammaFM/repository"
)

// DownloadError is a typed transfer failure. Callers treat it as non-fatal:
// playback falls back to streaming the remote URL.
type DownloadError struct {
	TrackID string
	Cause   string
	Err     error
}

func (e *DownloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("download failed for track %s: %s: %v", e.TrackID, e.Cause, e.Err)
	}
	return fmt.Sprintf("download failed for track %s: %s", e.TrackID, e.Cause)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// ProgressFunc receives fractional download progress in [0,1]. Only invoked
// when the content length is known.
type ProgressFunc func(fraction float64)

// ContentStore manages the two on-disk collections of audio files: manual
// downloads (unbounded) and the bounded auto-cache. It is the only component
// that touches the filesystem.
type ContentStore struct {
	copies       repository.LocalCopyRepository
	client       *http.Client
	downloadDir  string
	cacheDir     string
	maxAutoCache int

	now func() time.Time
}

// NewContentStore creates the store and its directories.
func NewContentStore(cfg *config.Config, copies repository.LocalCopyRepository) (*ContentStore, error) {
	for _, dir := range []string{cfg.DownloadDir, cfg.CacheDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create content directory %s: %w", dir, err)
		}
	}
	return &ContentStore{
		copies:       copies,
		client:       &http.Client{Timeout: 10 * time.Minute},
		downloadDir:  cfg.DownloadDir,
		cacheDir:     cfg.CacheDir,
		maxAutoCache: cfg.MaxAutoCache,
		now:          time.Now,
	}, nil
}

// fileNameFor derives the deterministic on-disk name for a track. FNV-64a of
// the id, not content-addressed.
func fileNameFor(trackID string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(trackID))
	return fmt.Sprintf("%016x.mp3", h.Sum64())
}

// ResolveLocalPath returns the local file path for a track only when the
// file still exists on disk. A stale record is not corrected here; the
// directory watcher handles healing.
func (s *ContentStore) ResolveLocalPath(trackID string) (string, bool) {
	c, err := s.copies.Get(trackID)
	if err != nil {
		logger.Warn("local copy lookup failed",
			logger.String("trackId", trackID), logger.ErrorField(err))
		return "", false
	}
	if c == nil {
		return "", false
	}
	if _, err := os.Stat(c.FilePath); err != nil {
		return "", false
	}
	return c.FilePath, true
}

// IsDownloaded reports whether the track has a manual download record.
func (s *ContentStore) IsDownloaded(trackID string) (bool, error) {
	return s.copies.IsDownloaded(trackID)
}

// Download fetches a track's audio to local storage. Manual requests against
// an existing auto-cache entry convert it in place; manual requests against
// an existing manual download return immediately.
func (s *ContentStore) Download(ctx context.Context, track *model.Track, onProgress ProgressFunc, manual bool) (string, error) {
	existing, err := s.copies.Get(track.ID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		if existing.State() == model.CopyAutoCached && manual {
			return s.convertToManual(existing)
		}
		if existing.Manual {
			return existing.FilePath, nil
		}
		// An auto-cache request over an existing entry of either kind just
		// returns it; AutoCache refreshes the timestamp separately.
		return existing.FilePath, nil
	}

	path, err := s.transfer(ctx, track, onProgress, manual)
	if err != nil {
		return "", err
	}

	record := &model.LocalCopy{
		TrackID:      track.ID,
		FilePath:     path,
		DownloadedAt: s.now().UnixMilli(),
		Manual:       manual,
	}
	if err := s.copies.Upsert(record); err != nil {
		return "", err
	}

	if !manual {
		s.enforceCacheLimit()
	}
	return path, nil
}

// convertToManual promotes an auto-cache entry to a manual download: the
// file moves from the cache directory to the download directory, and the
// record flips. The record update happens only after the copy completed, so
// a crash mid-copy leaves the old record intact.
func (s *ContentStore) convertToManual(c *model.LocalCopy) (string, error) {
	target := filepath.Join(s.downloadDir, fileNameFor(c.TrackID))

	if _, err := os.Stat(c.FilePath); err == nil {
		if err := copyFile(c.FilePath, target); err != nil {
			return "", fmt.Errorf("failed to move cached file for track %s: %w", c.TrackID, err)
		}
		if err := os.Remove(c.FilePath); err != nil {
			logger.Warn("failed to remove cache file after conversion",
				logger.String("path", c.FilePath), logger.ErrorField(err))
		}
	}

	c.FilePath = target
	c.DownloadedAt = s.now().UnixMilli()
	c.Manual = true
	if err := s.copies.Upsert(c); err != nil {
		return "", err
	}

	logger.Info("converted auto-cache entry to manual download",
		logger.String("trackId", c.TrackID))
	return target, nil
}

// transfer streams the remote audio to disk. No record is written here; on
// error a partial file may remain, which the caller's record-less state
// renders invisible.
func (s *ContentStore) transfer(ctx context.Context, track *model.Track, onProgress ProgressFunc, manual bool) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, track.AudioURL, nil)
	if err != nil {
		return "", &DownloadError{TrackID: track.ID, Cause: "invalid audio URL", Err: err}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &DownloadError{TrackID: track.ID, Cause: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &DownloadError{TrackID: track.ID, Cause: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	targetDir := s.cacheDir
	if manual {
		targetDir = s.downloadDir
	}
	path := filepath.Join(targetDir, fileNameFor(track.ID))

	out, err := os.Create(path)
	if err != nil {
		return "", &DownloadError{TrackID: track.ID, Cause: "cannot create file", Err: err}
	}
	defer out.Close()

	contentLength := resp.ContentLength
	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return "", &DownloadError{TrackID: track.ID, Cause: "write failed", Err: writeErr}
			}
			total += int64(n)
			if contentLength > 0 && onProgress != nil {
				onProgress(float64(total) / float64(contentLength))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", &DownloadError{TrackID: track.ID, Cause: "transfer interrupted", Err: readErr}
		}
	}
	if total == 0 {
		return "", &DownloadError{TrackID: track.ID, Cause: "empty response body"}
	}

	return path, nil
}

// AutoCache caches a track being streamed. Any existing copy, manual or
// auto, only has its timestamp refreshed.
func (s *ContentStore) AutoCache(ctx context.Context, track *model.Track) (string, error) {
	existing, err := s.copies.Get(track.ID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		existing.DownloadedAt = s.now().UnixMilli()
		if err := s.copies.Upsert(existing); err != nil {
			return "", err
		}
		return existing.FilePath, nil
	}
	return s.Download(ctx, track, nil, false)
}

// RemoveDownload deletes the file and the record. A file already absent is
// not an error.
func (s *ContentStore) RemoveDownload(trackID string) error {
	c, err := s.copies.Get(trackID)
	if err != nil {
		return err
	}
	if c != nil {
		if err := os.Remove(c.FilePath); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to delete local file",
				logger.String("path", c.FilePath), logger.ErrorField(err))
		}
	}
	return s.copies.Delete(trackID)
}

// enforceCacheLimit evicts the oldest auto-cache entries until the count is
// back at the limit. Manual downloads are never counted nor evicted.
func (s *ContentStore) enforceCacheLimit() {
	cached, err := s.copies.AutoCached()
	if err != nil {
		logger.Warn("auto-cache query failed during eviction", logger.ErrorField(err))
		return
	}
	if len(cached) <= s.maxAutoCache {
		return
	}

	evict := cached[:len(cached)-s.maxAutoCache]
	ids := make([]string, 0, len(evict))
	for _, c := range evict {
		if err := os.Remove(c.FilePath); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to delete evicted cache file",
				logger.String("path", c.FilePath), logger.ErrorField(err))
		}
		ids = append(ids, c.TrackID)
	}
	if err := s.copies.DeleteMany(ids); err != nil {
		logger.Warn("failed to delete evicted cache records", logger.ErrorField(err))
		return
	}
	logger.Info("evicted auto-cache entries", logger.Int("count", len(ids)))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
