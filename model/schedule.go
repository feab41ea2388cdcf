package model

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// DayList holds weekday indices (0=Sunday..6=Saturday). Persisted as a
// comma-joined string.
type DayList []int

// Value implements driver.Valuer.
func (d DayList) Value() (driver.Value, error) {
	if len(d) == 0 {
		return "", nil
	}
	parts := make([]string, len(d))
	for i, day := range d {
		parts[i] = strconv.Itoa(day)
	}
	return strings.Join(parts, ","), nil
}

// Scan implements sql.Scanner.
func (d *DayList) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*d = nil
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into DayList", src)
	}
	if raw == "" {
		*d = nil
		return nil
	}
	parts := strings.Split(raw, ",")
	days := make(DayList, 0, len(parts))
	for _, p := range parts {
		day, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return fmt.Errorf("invalid weekday %q: %w", p, err)
		}
		days = append(days, day)
	}
	*d = days
	return nil
}

// Schedule is a user-defined recurring playback schedule.
type Schedule struct {
	ID         string  `gorm:"primaryKey" json:"id"`
	Time       string  `json:"time"` // HH:MM
	Days       DayList `gorm:"type:text" json:"days"`
	Enabled    bool    `json:"enabled"`
	TalkSource string  `json:"talkSource"`
}

// TableName sets the table name for GORM.
func (Schedule) TableName() string {
	return "schedules"
}

// HourMinute parses the schedule's HH:MM time of day.
func (s Schedule) HourMinute() (hour, minute int, err error) {
	parts := strings.SplitN(s.Time, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid schedule time %q", s.Time)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid schedule hour %q: %w", parts[0], err)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid schedule minute %q: %w", parts[1], err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("schedule time %q out of range", s.Time)
	}
	return hour, minute, nil
}
