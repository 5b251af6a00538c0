package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/streakhub/internal/domain/habit"
	"github.com/alem-hub/streakhub/internal/domain/holiday"
	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HOLIDAY COMMANDS
// Declare, cancel and naturally expire holiday windows. Every change drops the
// owner's cached freeze state and re-runs the streak walk for affected habits.
// ══════════════════════════════════════════════════════════════════════════════

// CreateHolidayCommand declares a holiday window.
type CreateHolidayCommand struct {
	OwnerID      string
	StartDate    timeutil.Date
	EndDate      timeutil.Date
	AppliesToAll bool
	HabitIDs     []string
	TaskFreezes  []holiday.TaskFreeze
	Reason       string
}

// CancelHolidayCommand ends a holiday early.
type CancelHolidayCommand struct {
	OwnerID   string
	HolidayID string
}

// HolidayResult is the outcome of a holiday change.
type HolidayResult struct {
	Period         *holiday.Period
	AffectedHabits []string
	Events         []shared.Event
}

// HolidayHandler handles holiday commands.
type HolidayHandler struct {
	engine    *Engine
	habits    habit.Repository
	periods   holiday.Repository
	publisher shared.EventPublisher
	logger    *slog.Logger
}

// NewHolidayHandler creates a new HolidayHandler.
func NewHolidayHandler(engine *Engine, habits habit.Repository, periods holiday.Repository, publisher shared.EventPublisher) *HolidayHandler {
	return &HolidayHandler{
		engine:    engine,
		habits:    habits,
		periods:   periods,
		publisher: publisher,
		logger:    engine.logger.With("handler", "holiday"),
	}
}

// Create validates references and stores a new period.
// Unknown habits are NotFound; unknown task ids are ValidationErrors.
func (h *HolidayHandler) Create(ctx context.Context, cmd CreateHolidayCommand) (*HolidayResult, error) {
	if cmd.OwnerID == "" {
		return nil, shared.ValidationError("holiday", "Create", "owner_id is required")
	}
	if !cmd.AppliesToAll {
		if err := h.checkReferences(ctx, cmd); err != nil {
			return nil, err
		}
	}

	now, _ := h.engine.Now()
	period, err := holiday.NewPeriod(holiday.NewPeriodParams{
		ID:           h.engine.config.NewID(),
		OwnerID:      cmd.OwnerID,
		StartDate:    cmd.StartDate,
		EndDate:      cmd.EndDate,
		AppliesToAll: cmd.AppliesToAll,
		HabitIDs:     cmd.HabitIDs,
		TaskFreezes:  cmd.TaskFreezes,
		Reason:       cmd.Reason,
		CreatedAt:    now,
	})
	if err != nil {
		return nil, err
	}

	if err := h.periods.Save(ctx, period); err != nil {
		return nil, fmt.Errorf("create holiday: save: %w", err)
	}

	affected, events, err := h.engine.RecalculateOwner(ctx, cmd.OwnerID, func(hb *habit.Habit) bool {
		return period.Affects(hb.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("create holiday: recalculate: %w", err)
	}

	events = append(events, shared.NewHolidayStartedEvent(
		period.ID, period.OwnerID, period.StartDate.String(), period.EndDate.String(), now))
	publish(h.publisher, h.logger, events)

	h.logger.Info("holiday created",
		"holiday_id", period.ID,
		"owner_id", period.OwnerID,
		"start", period.StartDate,
		"end", period.EndDate,
	)
	return &HolidayResult{Period: period, AffectedHabits: affected, Events: events}, nil
}

func (h *HolidayHandler) checkReferences(ctx context.Context, cmd CreateHolidayCommand) error {
	owned := func(id string) (*habit.Habit, error) {
		hb, err := h.habits.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if hb.OwnerID != cmd.OwnerID {
			return nil, shared.NotFoundError("habit", "CreateHoliday", id)
		}
		return hb, nil
	}

	for _, id := range cmd.HabitIDs {
		if _, err := owned(id); err != nil {
			return err
		}
	}
	for _, tf := range cmd.TaskFreezes {
		hb, err := owned(tf.HabitID)
		if err != nil {
			return err
		}
		for _, taskID := range tf.TaskIDs {
			if !hb.HasTask(taskID) {
				return shared.ValidationError("holiday", "CreateHoliday",
					fmt.Sprintf("habit %s has no task %q", hb.ID, taskID))
			}
		}
	}
	return nil
}

// Cancel ends a period early. The cached freeze state is dropped before the
// streaks of every affected habit are recomputed, so no stale streak survives.
// If recomputation fails the caller must reload the authoritative records.
func (h *HolidayHandler) Cancel(ctx context.Context, cmd CancelHolidayCommand) (*HolidayResult, error) {
	period, err := h.periods.FindByID(ctx, cmd.HolidayID)
	if err != nil {
		return nil, err
	}
	if cmd.OwnerID != "" && period.OwnerID != cmd.OwnerID {
		return nil, shared.NotFoundError("holiday", "Cancel", cmd.HolidayID)
	}

	now, today := h.engine.Now()
	if err := period.Cancel(today, now); err != nil {
		return nil, err
	}
	if err := h.periods.Save(ctx, period); err != nil {
		return nil, fmt.Errorf("cancel holiday: save: %w", err)
	}

	return h.finish(ctx, period, true, now)
}

// EndExpired ends every active period whose end date has passed.
// Used by the background worker.
func (h *HolidayHandler) EndExpired(ctx context.Context) (int, error) {
	now, today := h.engine.Now()
	expired, err := h.periods.FindExpired(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("find expired holidays: %w", err)
	}

	ended := 0
	for i := range expired {
		period := &expired[i]
		if err := period.End(now); err != nil {
			continue
		}
		if err := h.periods.Save(ctx, period); err != nil {
			return ended, fmt.Errorf("end holiday %s: %w", period.ID, err)
		}
		if _, err := h.finish(ctx, period, false, now); err != nil {
			return ended, err
		}
		ended++
	}
	return ended, nil
}

func (h *HolidayHandler) finish(ctx context.Context, period *holiday.Period, cancelled bool, now time.Time) (*HolidayResult, error) {
	affected, events, err := h.engine.RecalculateOwner(ctx, period.OwnerID, func(hb *habit.Habit) bool {
		return period.Affects(hb.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("holiday %s: recalculate: %w", period.ID, err)
	}

	events = append(events, shared.NewHolidayEndedEvent(
		period.ID, period.OwnerID, period.StartDate.String(), period.EndDate.String(), cancelled, affected, now))
	publish(h.publisher, h.logger, events)

	h.logger.Info("holiday ended",
		"holiday_id", period.ID,
		"owner_id", period.OwnerID,
		"cancelled", cancelled,
		"affected_habits", len(affected),
	)
	return &HolidayResult{Period: period, AffectedHabits: affected, Events: events}, nil
}
