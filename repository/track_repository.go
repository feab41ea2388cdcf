package repository

import (
	"errors"
	"fmt"
	"time"

	"DhammaFM/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TrackRepository defines catalog and playback-progress data operations.
type TrackRepository interface {
	ReplaceTracks(source model.TalkSource, tracks []model.Track) error
	GetAllTracks() ([]model.Track, error)
	GetTracksBySource(source model.TalkSource) ([]model.Track, error)
	GetTrack(id string) (*model.Track, error)

	GetProgress(trackID string) (*model.TrackProgress, error)
	GetAllProgress() ([]model.TrackProgress, error)
	SaveProgress(p *model.TrackProgress) error
	MarkFinished(trackID string, durationMs int64) error
	ResetProgress(trackID string) error
	FinishedTrackIDs() ([]string, error)
	FirstUnfinished(tracks []model.Track) (*model.Track, error)
}

// gormTrackRepository implements TrackRepository on GORM.
type gormTrackRepository struct {
	db *gorm.DB
}

// NewGormTrackRepository creates a track repository backed by the given DB.
func NewGormTrackRepository(db *gorm.DB) TrackRepository {
	return &gormTrackRepository{db: db}
}

// ReplaceTracks swaps out the whole catalog for one source. Tracks are never
// partially mutated, so a refresh deletes and reinserts.
func (r *gormTrackRepository) ReplaceTracks(source model.TalkSource, tracks []model.Track) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("source = ?", string(source)).Delete(&model.Track{}).Error; err != nil {
			return err
		}
		if len(tracks) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&tracks).Error
	})
	if err != nil {
		return fmt.Errorf("failed to replace tracks for source %s: %w", source, err)
	}
	return nil
}

func (r *gormTrackRepository) GetAllTracks() ([]model.Track, error) {
	var tracks []model.Track
	if err := r.db.Order("pub_date_timestamp DESC").Find(&tracks).Error; err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	return tracks, nil
}

func (r *gormTrackRepository) GetTracksBySource(source model.TalkSource) ([]model.Track, error) {
	var tracks []model.Track
	if err := r.db.Where("source = ?", string(source)).
		Order("pub_date_timestamp DESC").Find(&tracks).Error; err != nil {
		return nil, fmt.Errorf("failed to query tracks for source %s: %w", source, err)
	}
	return tracks, nil
}

func (r *gormTrackRepository) GetTrack(id string) (*model.Track, error) {
	var track model.Track
	err := r.db.Where("id = ?", id).First(&track).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query track %s: %w", id, err)
	}
	return &track, nil
}

func (r *gormTrackRepository) GetProgress(trackID string) (*model.TrackProgress, error) {
	var progress model.TrackProgress
	err := r.db.Where("track_id = ?", trackID).First(&progress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query progress for track %s: %w", trackID, err)
	}
	return &progress, nil
}

func (r *gormTrackRepository) GetAllProgress() ([]model.TrackProgress, error) {
	var progress []model.TrackProgress
	if err := r.db.Find(&progress).Error; err != nil {
		return nil, fmt.Errorf("failed to query progress rows: %w", err)
	}
	return progress, nil
}

// SaveProgress upserts by track id. Replace-by-key, last writer wins.
func (r *gormTrackRepository) SaveProgress(p *model.TrackProgress) error {
	if err := r.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(p).Error; err != nil {
		return fmt.Errorf("failed to save progress for track %s: %w", p.TrackID, err)
	}
	return nil
}

// MarkFinished writes an unconditional finished row at end-of-media.
func (r *gormTrackRepository) MarkFinished(trackID string, durationMs int64) error {
	return r.SaveProgress(&model.TrackProgress{
		TrackID:     trackID,
		CurrentTime: durationMs,
		Duration:    durationMs,
		Finished:    true,
		LastPlayed:  time.Now().UnixMilli(),
	})
}

// ResetProgress writes a zeroed, not-finished row rather than deleting.
func (r *gormTrackRepository) ResetProgress(trackID string) error {
	return r.SaveProgress(&model.TrackProgress{
		TrackID:     trackID,
		CurrentTime: 0,
		Duration:    0,
		Finished:    false,
		LastPlayed:  time.Now().UnixMilli(),
	})
}

func (r *gormTrackRepository) FinishedTrackIDs() ([]string, error) {
	var ids []string
	if err := r.db.Model(&model.TrackProgress{}).
		Where("finished = ?", true).Pluck("track_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to query finished track ids: %w", err)
	}
	return ids, nil
}

// FirstUnfinished returns the first of the given tracks, in order, whose
// progress is not finished. Nil when every track is finished.
func (r *gormTrackRepository) FirstUnfinished(tracks []model.Track) (*model.Track, error) {
	ids, err := r.FinishedTrackIDs()
	if err != nil {
		return nil, err
	}
	finished := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		finished[id] = struct{}{}
	}
	for i := range tracks {
		if _, ok := finished[tracks[i].ID]; !ok {
			return &tracks[i], nil
		}
	}
	return nil, nil
}
