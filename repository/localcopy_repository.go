package repository

import (
	"errors"
	"fmt"

	"DhammaFM/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LocalCopyRepository defines data operations for on-disk copy records.
type LocalCopyRepository interface {
	Get(trackID string) (*model.LocalCopy, error)
	GetByPath(path string) (*model.LocalCopy, error)
	Upsert(c *model.LocalCopy) error
	Delete(trackID string) error
	DeleteMany(trackIDs []string) error

	// AutoCached returns non-manual entries, oldest DownloadedAt first.
	AutoCached() ([]model.LocalCopy, error)
	// ManualDownloads returns manual entries, newest DownloadedAt first.
	ManualDownloads() ([]model.LocalCopy, error)
	AllTrackIDs() ([]string, error)
	IsDownloaded(trackID string) (bool, error)
}

// gormLocalCopyRepository implements LocalCopyRepository on GORM.
type gormLocalCopyRepository struct {
	db *gorm.DB
}

// NewGormLocalCopyRepository creates a local-copy repository backed by the given DB.
func NewGormLocalCopyRepository(db *gorm.DB) LocalCopyRepository {
	return &gormLocalCopyRepository{db: db}
}

func (r *gormLocalCopyRepository) Get(trackID string) (*model.LocalCopy, error) {
	var c model.LocalCopy
	err := r.db.Where("track_id = ?", trackID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query local copy for track %s: %w", trackID, err)
	}
	return &c, nil
}

func (r *gormLocalCopyRepository) GetByPath(path string) (*model.LocalCopy, error) {
	var c model.LocalCopy
	err := r.db.Where("file_path = ?", path).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query local copy for path %s: %w", path, err)
	}
	return &c, nil
}

func (r *gormLocalCopyRepository) Upsert(c *model.LocalCopy) error {
	if err := r.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(c).Error; err != nil {
		return fmt.Errorf("failed to upsert local copy for track %s: %w", c.TrackID, err)
	}
	return nil
}

func (r *gormLocalCopyRepository) Delete(trackID string) error {
	if err := r.db.Where("track_id = ?", trackID).Delete(&model.LocalCopy{}).Error; err != nil {
		return fmt.Errorf("failed to delete local copy for track %s: %w", trackID, err)
	}
	return nil
}

func (r *gormLocalCopyRepository) DeleteMany(trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}
	if err := r.db.Where("track_id IN ?", trackIDs).Delete(&model.LocalCopy{}).Error; err != nil {
		return fmt.Errorf("failed to delete local copies: %w", err)
	}
	return nil
}

func (r *gormLocalCopyRepository) AutoCached() ([]model.LocalCopy, error) {
	var copies []model.LocalCopy
	if err := r.db.Where("manual = ?", false).
		Order("downloaded_at ASC").Find(&copies).Error; err != nil {
		return nil, fmt.Errorf("failed to query auto-cached copies: %w", err)
	}
	return copies, nil
}

func (r *gormLocalCopyRepository) ManualDownloads() ([]model.LocalCopy, error) {
	var copies []model.LocalCopy
	if err := r.db.Where("manual = ?", true).
		Order("downloaded_at DESC").Find(&copies).Error; err != nil {
		return nil, fmt.Errorf("failed to query manual downloads: %w", err)
	}
	return copies, nil
}

func (r *gormLocalCopyRepository) AllTrackIDs() ([]string, error) {
	var ids []string
	if err := r.db.Model(&model.LocalCopy{}).Pluck("track_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to query local copy track ids: %w", err)
	}
	return ids, nil
}

func (r *gormLocalCopyRepository) IsDownloaded(trackID string) (bool, error) {
	var count int64
	if err := r.db.Model(&model.LocalCopy{}).
		Where("track_id = ? AND manual = ?", trackID, true).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check download for track %s: %w", trackID, err)
	}
	return count > 0, nil
}
