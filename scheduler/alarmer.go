package scheduler

import (
	"fmt"
	"sync"
	"time"

	"DhammaFM/logger"
)

// Alarmer arms one-shot wakeups for schedule occurrences. Keys are unique per
// schedule and weekday so re-arming the same pair replaces the pending alarm
// instead of stacking a duplicate.
type Alarmer interface {
	Set(scheduleID string, weekday time.Weekday, at time.Time, fire func())
	Cancel(scheduleID string, weekday time.Weekday)
	CancelAll(scheduleID string)
}

// TimerAlarmer backs alarms with in-process timers. When exact alarms are not
// permitted it degrades to doing nothing, mirroring platforms that withhold
// the exact-alarm privilege.
type TimerAlarmer struct {
	mu           sync.Mutex
	timers       map[string]*time.Timer
	exactAllowed bool
}

func NewTimerAlarmer(exactAllowed bool) *TimerAlarmer {
	return &TimerAlarmer{
		timers:       make(map[string]*time.Timer),
		exactAllowed: exactAllowed,
	}
}

func alarmKey(scheduleID string, weekday time.Weekday) string {
	return fmt.Sprintf("%s_%d", scheduleID, int(weekday))
}

// Set arms an alarm, replacing any pending alarm for the same key.
func (a *TimerAlarmer) Set(scheduleID string, weekday time.Weekday, at time.Time, fire func()) {
	if !a.exactAllowed {
		logger.Warn("exact alarms not permitted, skipping",
			logger.String("scheduleId", scheduleID))
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := alarmKey(scheduleID, weekday)
	if t, ok := a.timers[key]; ok {
		t.Stop()
	}

	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	a.timers[key] = time.AfterFunc(d, func() {
		a.mu.Lock()
		delete(a.timers, key)
		a.mu.Unlock()
		fire()
	})
}

func (a *TimerAlarmer) Cancel(scheduleID string, weekday time.Weekday) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := alarmKey(scheduleID, weekday)
	if t, ok := a.timers[key]; ok {
		t.Stop()
		delete(a.timers, key)
	}
}

// CancelAll cancels the alarms for every weekday of a schedule.
func (a *TimerAlarmer) CancelAll(scheduleID string) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		a.Cancel(scheduleID, d)
	}
}

// Pending reports the number of armed alarms.
func (a *TimerAlarmer) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.timers)
}
