package scheduler

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"DhammaFM/logger"
	"DhammaFM/model"
	"DhammaFM/repository"
)

// FireFunc is invoked when an armed alarm goes off.
type FireFunc func(scheduleID string, weekday time.Weekday)

// Service owns wake-up schedules and keeps the armed alarms consistent with
// what is stored: every enabled schedule has exactly one pending alarm per
// selected weekday, and disabled or deleted schedules have none.
type Service struct {
	schedules repository.ScheduleRepository
	alarmer   Alarmer
	fire      FireFunc
	now       func() time.Time
}

func NewService(schedules repository.ScheduleRepository, alarmer Alarmer, fire FireFunc) *Service {
	return &Service{
		schedules: schedules,
		alarmer:   alarmer,
		fire:      fire,
		now:       time.Now,
	}
}

// Create stores a new schedule and arms its alarms when enabled.
func (s *Service) Create(timeOfDay string, days []int, enabled bool, source model.TalkSource) (*model.Schedule, error) {
	sched := &model.Schedule{
		ID:         uuid.New().String(),
		Time:       timeOfDay,
		Days:       model.DayList(days),
		Enabled:    enabled,
		TalkSource: string(source),
	}
	if _, _, err := sched.HourMinute(); err != nil {
		return nil, err
	}
	if len(sched.Days) == 0 {
		return nil, fmt.Errorf("schedule needs at least one day")
	}

	if err := s.schedules.Upsert(sched); err != nil {
		return nil, fmt.Errorf("failed to save schedule: %w", err)
	}
	s.applyAlarms(sched)
	return sched, nil
}

// Update replaces a schedule's settings and re-arms its alarms from scratch,
// so days removed from the selection lose their pending alarm.
func (s *Service) Update(sched *model.Schedule) error {
	if _, _, err := sched.HourMinute(); err != nil {
		return err
	}
	if len(sched.Days) == 0 {
		return fmt.Errorf("schedule needs at least one day")
	}

	existing, err := s.schedules.Get(sched.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("schedule %s not found", sched.ID)
	}

	if err := s.schedules.Upsert(sched); err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}
	s.alarmer.CancelAll(sched.ID)
	s.applyAlarms(sched)
	return nil
}

// Delete removes a schedule and cancels all of its alarms.
func (s *Service) Delete(id string) error {
	if err := s.schedules.Delete(id); err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	s.alarmer.CancelAll(id)
	return nil
}

// SetEnabled toggles a schedule, arming or cancelling its alarms to match.
func (s *Service) SetEnabled(id string, enabled bool) error {
	sched, err := s.schedules.Get(id)
	if err != nil {
		return err
	}
	if sched == nil {
		return fmt.Errorf("schedule %s not found", id)
	}

	if err := s.schedules.SetEnabled(id, enabled); err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	if enabled {
		sched.Enabled = true
		s.applyAlarms(sched)
	} else {
		s.alarmer.CancelAll(id)
	}
	return nil
}

// GetAll returns every stored schedule.
func (s *Service) GetAll() ([]model.Schedule, error) {
	return s.schedules.GetAll()
}

// ScheduleAlarm arms the next occurrence of one schedule on one weekday.
// The trigger calls this after firing so the alarm carries over to the
// following week.
func (s *Service) ScheduleAlarm(scheduleID string, weekday time.Weekday) {
	sched, err := s.schedules.Get(scheduleID)
	if err != nil {
		logger.Error("failed to load schedule for alarm",
			logger.String("scheduleId", scheduleID), logger.ErrorField(err))
		return
	}
	if sched == nil || !sched.Enabled {
		return
	}
	s.armDay(sched, weekday)
}

// CancelAlarms cancels every pending alarm of one schedule.
func (s *Service) CancelAlarms(scheduleID string) {
	s.alarmer.CancelAll(scheduleID)
}

// RescheduleAll arms alarms for every enabled schedule. Called on startup,
// where pending in-process timers from a previous run no longer exist.
func (s *Service) RescheduleAll() error {
	enabled, err := s.schedules.GetEnabled()
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}
	for i := range enabled {
		s.applyAlarms(&enabled[i])
	}
	logger.Info("schedules re-armed", logger.Int("count", len(enabled)))
	return nil
}

func (s *Service) applyAlarms(sched *model.Schedule) {
	if !sched.Enabled {
		return
	}
	for _, d := range sched.Days {
		s.armDay(sched, time.Weekday(d))
	}
}

func (s *Service) armDay(sched *model.Schedule, weekday time.Weekday) {
	hour, minute, err := sched.HourMinute()
	if err != nil {
		logger.Error("schedule has invalid time",
			logger.String("scheduleId", sched.ID), logger.ErrorField(err))
		return
	}

	at := NextOccurrence(s.now(), weekday, hour, minute)
	id := sched.ID
	s.alarmer.Set(id, weekday, at, func() {
		s.fire(id, weekday)
	})
	logger.Debug("alarm armed",
		logger.String("scheduleId", id),
		logger.String("at", at.Format(time.RFC3339)))
}

// NextOccurrence returns the next wall-clock instant matching the weekday and
// time of day, strictly after now. A occurrence earlier today, or exactly
// now, lands a week ahead.
func NextOccurrence(now time.Time, weekday time.Weekday, hour, minute int) time.Time {
	delta := (int(weekday) - int(now.Weekday()) + 7) % 7
	day := now.AddDate(0, 0, delta)
	t := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location())
	if !t.After(now) {
		t = t.AddDate(0, 0, 7)
	}
	return t
}
