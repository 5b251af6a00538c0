package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alem-hub/streakhub/internal/domain/habit"
	"github.com/alem-hub/streakhub/internal/domain/progression"
	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// TOGGLE COMMAND
// A completion write: toggles one task (or the whole day), then re-runs the
// evaluator, the streak walk with the owner's freeze index and the tier/XP engine.
// ══════════════════════════════════════════════════════════════════════════════

// ToggleCommand contains the data to toggle a task or a whole day.
type ToggleCommand struct {
	HabitID string

	// Date is the local date to toggle (empty = today).
	Date timeutil.Date

	// TaskID is the task to toggle; empty toggles the whole day.
	TaskID string
}

// Validate validates the command.
func (c ToggleCommand) Validate() error {
	if c.HabitID == "" {
		return shared.ValidationError("habit", "Toggle", "habit_id is required")
	}
	if c.Date != "" && c.Date.IsZero() {
		return shared.ValidationError("habit", "Toggle", fmt.Sprintf("invalid date %q", c.Date))
	}
	return nil
}

// ToggleResult contains the outcome of a toggle.
type ToggleResult struct {
	Habit      *habit.Habit
	Transition habit.Transition
	Completion habit.Completion
	Streak     habit.StreakResult
	Award      *progression.Award
	Events     []shared.Event
}

// ToggleHandler handles ToggleCommand.
type ToggleHandler struct {
	engine    *Engine
	habits    habit.Repository
	publisher shared.EventPublisher
	logger    *slog.Logger
}

// NewToggleHandler creates a new ToggleHandler.
func NewToggleHandler(engine *Engine, habits habit.Repository, publisher shared.EventPublisher) *ToggleHandler {
	return &ToggleHandler{
		engine:    engine,
		habits:    habits,
		publisher: publisher,
		logger:    engine.logger.With("handler", "toggle"),
	}
}

// Handle executes the toggle. A stale write reloads the record and applies the
// toggle again to the fresh snapshot.
func (h *ToggleHandler) Handle(ctx context.Context, cmd ToggleCommand) (*ToggleResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var result *ToggleResult
	err := h.engine.conflictRetrier().Do(ctx, func(ctx context.Context) error {
		r, err := h.attempt(ctx, cmd)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("toggle: %w", err)
	}

	publish(h.publisher, h.logger, result.Events)
	return result, nil
}

func (h *ToggleHandler) attempt(ctx context.Context, cmd ToggleCommand) (*ToggleResult, error) {
	hb, err := h.habits.FindByID(ctx, cmd.HabitID)
	if err != nil {
		return nil, err
	}

	now, today := h.engine.Now()
	date := cmd.Date
	if date == "" {
		date = today
	}
	expected := hb.Version

	ix, err := h.engine.holidays.Index(ctx, hb.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("load freeze index: %w", err)
	}
	freeze := ix.Resolve(hb.ID, date)

	var tr habit.Transition
	if cmd.TaskID == "" {
		tr, err = hb.ToggleDayWithFreeze(date, today, freeze)
	} else {
		tr, err = hb.ToggleTaskWithFreeze(date, cmd.TaskID, today, freeze)
	}
	if err != nil {
		return nil, err
	}

	rec, err := h.engine.Recompute(ctx, hb, ix, today, now)
	if err != nil {
		return nil, err
	}

	result := &ToggleResult{
		Habit:      hb,
		Transition: tr,
		Completion: habit.EvaluateWithFreeze(hb.Tasks, hb.Day(date), freeze),
		Streak:     rec.Streak,
		Events:     rec.Events,
	}

	// XP only for the transition into a completed day; un-completing keeps earned XP.
	if tr.Qualifies() {
		policy := h.engine.config.Policies.For(progression.ScopeHabit)
		award := policy.AwardXP(progression.Action{
			CompletedTasks: tr.CompletedTasks,
			HasTasks:       len(hb.Tasks) > 0,
			Streak:         hb.CurrentStreak,
			TierValue:      hb.CurrentStreak,
		})
		hb.AddXP(award.Amount)
		result.Award = &award
		result.Events = append(result.Events, shared.NewXPAwardedEvent(
			hb.ID, date.String(), award.Amount, award.BaseXP, award.StreakBonus, award.Multiplier, award.Tier, now,
		))
	}

	hb.Touch(now)
	if err := h.habits.Update(ctx, hb, expected); err != nil {
		return nil, err
	}
	if ev := h.engine.commitBreak(ctx, rec.Break, now); ev != nil {
		result.Events = append(result.Events, ev)
	}

	h.logger.Debug("habit toggled",
		"habit_id", hb.ID,
		"date", date,
		"task_id", cmd.TaskID,
		"completed", tr.NowCompleted,
		"streak", hb.CurrentStreak,
	)
	return result, nil
}
