package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// IntervalSchedule schedules a job to run at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{
		Interval: interval,
	}
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval.String())
}

// DailySchedule runs a job once a day at a local wall-clock time.
// Break detection uses it to run right after local midnight.
type DailySchedule struct {
	Hour     int
	Minute   int
	Location *time.Location
}

// NewDailySchedule creates a DailySchedule; a nil location means UTC.
func NewDailySchedule(hour, minute int, loc *time.Location) *DailySchedule {
	if loc == nil {
		loc = time.UTC
	}
	return &DailySchedule{Hour: hour, Minute: minute, Location: loc}
}

// Next returns the first occurrence of the wall-clock time strictly after t.
func (s *DailySchedule) Next(t time.Time) time.Time {
	local := t.In(s.Location)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.Hour, s.Minute, 0, 0, s.Location)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, s.Hour, s.Minute, 0, 0, s.Location)
	}
	return next
}

// String returns the string representation of the schedule.
func (s *DailySchedule) String() string {
	return fmt.Sprintf("@daily %02d:%02d %s", s.Hour, s.Minute, s.Location)
}

// EarliestSchedule fires at the earliest next time of any of its schedules.
type EarliestSchedule []Schedule

// Next returns the soonest next time among the schedules.
func (s EarliestSchedule) Next(t time.Time) time.Time {
	var next time.Time
	for _, sch := range s {
		n := sch.Next(t)
		if next.IsZero() || n.Before(next) {
			next = n
		}
	}
	return next
}

// String returns the string representation of the schedule.
func (s EarliestSchedule) String() string {
	parts := make([]string, len(s))
	for i, sch := range s {
		parts[i] = sch.String()
	}
	return strings.Join(parts, " | ")
}
