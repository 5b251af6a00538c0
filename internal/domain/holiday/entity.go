// Package holiday implements holiday mode: declared windows during which whole habits,
// or specific tasks inside a habit, are excluded from streak-breaking evaluation.
package holiday

import (
	"sort"
	"strings"
	"time"

	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// FREEZE MODE
// ══════════════════════════════════════════════════════════════════════════════

// FreezeMode is the tagged kind of freeze that applies to a (habit, date) pair.
// Values are ordered by strength: a stronger mode always wins when periods overlap.
type FreezeMode int

const (
	// FreezeNone - nothing is frozen.
	FreezeNone FreezeMode = iota
	// FreezeTasks - only the named tasks of the habit are frozen.
	FreezeTasks
	// FreezeHabit - the habit is frozen entirely.
	FreezeHabit
	// FreezeAll - every habit of the owner is frozen entirely.
	FreezeAll
)

// String returns the string representation of the mode.
func (m FreezeMode) String() string {
	switch m {
	case FreezeNone:
		return "none"
	case FreezeTasks:
		return "tasks"
	case FreezeHabit:
		return "habit"
	case FreezeAll:
		return "all"
	default:
		return "unknown"
	}
}

// Freeze is the resolved freeze state for one habit on one date.
type Freeze struct {
	Mode FreezeMode

	// Tasks holds the frozen task ids when Mode is FreezeTasks.
	Tasks map[string]struct{}
}

// NoFreeze is the zero freeze.
var NoFreeze = Freeze{Mode: FreezeNone}

// Entire reports whether the whole habit is frozen.
func (f Freeze) Entire() bool {
	return f.Mode == FreezeHabit || f.Mode == FreezeAll
}

// TaskFrozen reports whether a single task is excluded from evaluation.
func (f Freeze) TaskFrozen(taskID string) bool {
	if f.Entire() {
		return true
	}
	if f.Mode != FreezeTasks {
		return false
	}
	_, ok := f.Tasks[taskID]
	return ok
}

// merge combines two freezes; the stronger mode wins and task sets are unioned.
func (f Freeze) merge(other Freeze) Freeze {
	switch {
	case other.Mode > f.Mode:
		if other.Mode == FreezeTasks {
			return Freeze{Mode: FreezeTasks, Tasks: copySet(other.Tasks)}
		}
		return Freeze{Mode: other.Mode}
	case other.Mode == FreezeTasks && f.Mode == FreezeTasks:
		merged := copySet(f.Tasks)
		for id := range other.Tasks {
			merged[id] = struct{}{}
		}
		return Freeze{Mode: FreezeTasks, Tasks: merged}
	default:
		return f
	}
}

func copySet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// PERIOD
// ══════════════════════════════════════════════════════════════════════════════

// Status is the lifecycle state of a holiday period.
type Status string

const (
	// StatusActive - declared and not yet over (may start in the future).
	StatusActive Status = "active"
	// StatusEnded - ended naturally after its end date.
	StatusEnded Status = "ended"
	// StatusCancelled - ended early by the user.
	StatusCancelled Status = "cancelled"
)

// TaskFreeze freezes specific tasks of one habit.
type TaskFreeze struct {
	HabitID string   `json:"habit_id"`
	TaskIDs []string `json:"task_ids"`
}

// Period is a declared holiday window.
type Period struct {
	ID           string        `json:"id"`
	OwnerID      string        `json:"owner_id"`
	StartDate    timeutil.Date `json:"start_date"`
	EndDate      timeutil.Date `json:"end_date"`
	AppliesToAll bool          `json:"applies_to_all"`
	HabitIDs     []string      `json:"habit_ids,omitempty"`
	TaskFreezes  []TaskFreeze  `json:"task_freezes,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Status       Status        `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	EndedAt      *time.Time    `json:"ended_at,omitempty"`
}

// NewPeriodParams holds the fields needed to declare a holiday.
type NewPeriodParams struct {
	ID           string
	OwnerID      string
	StartDate    timeutil.Date
	EndDate      timeutil.Date
	AppliesToAll bool
	HabitIDs     []string
	TaskFreezes  []TaskFreeze
	Reason       string
	CreatedAt    time.Time
}

// NewPeriod validates params and creates an active period.
func NewPeriod(p NewPeriodParams) (*Period, error) {
	period := &Period{
		ID:           p.ID,
		OwnerID:      p.OwnerID,
		StartDate:    p.StartDate,
		EndDate:      p.EndDate,
		AppliesToAll: p.AppliesToAll,
		Reason:       strings.TrimSpace(p.Reason),
		Status:       StatusActive,
		CreatedAt:    p.CreatedAt,
	}

	if !p.AppliesToAll {
		period.HabitIDs = dedupe(p.HabitIDs)
		for _, tf := range p.TaskFreezes {
			ids := dedupe(tf.TaskIDs)
			if tf.HabitID == "" || len(ids) == 0 {
				continue
			}
			period.TaskFreezes = append(period.TaskFreezes, TaskFreeze{HabitID: tf.HabitID, TaskIDs: ids})
		}
	}

	if err := period.Validate(); err != nil {
		return nil, err
	}
	return period, nil
}

// Validate checks the date range and the freeze target.
func (p *Period) Validate() error {
	if p.ID == "" || p.OwnerID == "" {
		return shared.NewDomainError("holiday", "Validate", shared.ErrInvalidID, "id and owner are required")
	}
	if p.StartDate.IsZero() || p.EndDate.IsZero() {
		return shared.NewDomainError("holiday", "Validate", shared.ErrInvalidFormat, "start and end dates are required")
	}
	if p.StartDate.After(p.EndDate) {
		return shared.ErrInvalidHolidayRange
	}
	if !p.AppliesToAll && len(p.HabitIDs) == 0 && len(p.TaskFreezes) == 0 {
		return shared.ErrEmptyFreeze
	}
	return nil
}

// Contains reports whether d falls inside the period window.
func (p *Period) Contains(d timeutil.Date) bool {
	return d.Between(p.StartDate, p.EndDate)
}

// Effective reports whether the period still freezes anything.
// Cancelled periods keep freezing the days they covered before cancellation,
// unless they were cancelled before they started.
func (p *Period) Effective() bool {
	return !p.StartDate.After(p.EndDate)
}

// FreezeFor resolves this period's freeze for one habit, ignoring the date.
// Precedence: applies-to-all, then the habit list, then task pairs.
func (p *Period) FreezeFor(habitID string) Freeze {
	if p.AppliesToAll {
		return Freeze{Mode: FreezeAll}
	}
	for _, id := range p.HabitIDs {
		if id == habitID {
			return Freeze{Mode: FreezeHabit}
		}
	}
	var tasks map[string]struct{}
	for _, tf := range p.TaskFreezes {
		if tf.HabitID != habitID {
			continue
		}
		if tasks == nil {
			tasks = make(map[string]struct{}, len(tf.TaskIDs))
		}
		for _, id := range tf.TaskIDs {
			tasks[id] = struct{}{}
		}
	}
	if len(tasks) > 0 {
		return Freeze{Mode: FreezeTasks, Tasks: tasks}
	}
	return NoFreeze
}

// Affects reports whether the period can change the evaluation of the habit.
func (p *Period) Affects(habitID string) bool {
	return p.FreezeFor(habitID).Mode != FreezeNone
}

// IsRunning reports whether today is inside an active period.
func (p *Period) IsRunning(today timeutil.Date) bool {
	return p.Status == StatusActive && p.Contains(today)
}

// HasExpired reports whether an active period is past its end date.
func (p *Period) HasExpired(today timeutil.Date) bool {
	return p.Status == StatusActive && p.EndDate.Before(today)
}

// End marks an active period as ended naturally.
func (p *Period) End(now time.Time) error {
	if p.Status != StatusActive {
		return shared.ErrHolidayNotActive
	}
	p.Status = StatusEnded
	p.EndedAt = &now
	return nil
}

// Cancel ends the period early.
// If the window is running, the end date becomes yesterday so already frozen
// past days stay frozen; a window that has not started yet stops freezing anything.
func (p *Period) Cancel(today timeutil.Date, now time.Time) error {
	if p.Status != StatusActive {
		return shared.ErrHolidayNotActive
	}
	switch {
	case today.Before(p.StartDate) || today == p.StartDate:
		p.EndDate = p.StartDate.AddDays(-1)
	case p.EndDate.After(today.AddDays(-1)):
		p.EndDate = today.AddDays(-1)
	}
	p.Status = StatusCancelled
	p.EndedAt = &now
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
