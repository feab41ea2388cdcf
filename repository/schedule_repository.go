package repository

import (
	"errors"
	"fmt"

	"DhammaFM/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ScheduleRepository defines data operations for playback schedules.
type ScheduleRepository interface {
	GetAll() ([]model.Schedule, error)
	GetEnabled() ([]model.Schedule, error)
	Get(id string) (*model.Schedule, error)
	Upsert(s *model.Schedule) error
	Delete(id string) error
	SetEnabled(id string, enabled bool) error
}

// gormScheduleRepository implements ScheduleRepository on GORM.
type gormScheduleRepository struct {
	db *gorm.DB
}

// NewGormScheduleRepository creates a schedule repository backed by the given DB.
func NewGormScheduleRepository(db *gorm.DB) ScheduleRepository {
	return &gormScheduleRepository{db: db}
}

func (r *gormScheduleRepository) GetAll() ([]model.Schedule, error) {
	var schedules []model.Schedule
	if err := r.db.Order("time ASC").Find(&schedules).Error; err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	return schedules, nil
}

func (r *gormScheduleRepository) GetEnabled() ([]model.Schedule, error) {
	var schedules []model.Schedule
	if err := r.db.Where("enabled = ?", true).Find(&schedules).Error; err != nil {
		return nil, fmt.Errorf("failed to query enabled schedules: %w", err)
	}
	return schedules, nil
}

func (r *gormScheduleRepository) Get(id string) (*model.Schedule, error) {
	var s model.Schedule
	err := r.db.Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule %s: %w", id, err)
	}
	return &s, nil
}

func (r *gormScheduleRepository) Upsert(s *model.Schedule) error {
	if err := r.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(s).Error; err != nil {
		return fmt.Errorf("failed to upsert schedule %s: %w", s.ID, err)
	}
	return nil
}

func (r *gormScheduleRepository) Delete(id string) error {
	if err := r.db.Where("id = ?", id).Delete(&model.Schedule{}).Error; err != nil {
		return fmt.Errorf("failed to delete schedule %s: %w", id, err)
	}
	return nil
}

func (r *gormScheduleRepository) SetEnabled(id string, enabled bool) error {
	if err := r.db.Model(&model.Schedule{}).
		Where("id = ?", id).Update("enabled", enabled).Error; err != nil {
		return fmt.Errorf("failed to set enabled for schedule %s: %w", id, err)
	}
	return nil
}
