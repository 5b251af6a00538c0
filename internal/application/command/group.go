package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/streakhub/internal/domain/group"
	"github.com/alem-hub/streakhub/internal/domain/habit"
	"github.com/alem-hub/streakhub/internal/domain/progression"
	"github.com/alem-hub/streakhub/internal/domain/saver"
	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GROUP TOGGLE COMMAND
// A member completion write on a group habit. The group day (or week) counts
// only once every current member has completed it; XP goes to the group and
// moves it through the level table.
// ══════════════════════════════════════════════════════════════════════════════

// GroupToggleCommand toggles one member's task (or whole day) on a group habit.
type GroupToggleCommand struct {
	GroupHabitID string
	MemberID     string
	Date         timeutil.Date
	TaskID       string
}

// GroupToggleResult contains the outcome of a group toggle.
type GroupToggleResult struct {
	Group      *group.Group
	Habit      *group.Habit
	Day        group.DayStatus
	Transition habit.Transition
	Streak     habit.StreakResult
	Award      *progression.Award
	Level      progression.LevelChange
	Events     []shared.Event
}

// GroupToggleHandler handles GroupToggleCommand.
type GroupToggleHandler struct {
	engine    *Engine
	groups    group.Repository
	publisher shared.EventPublisher
	logger    *slog.Logger
}

// NewGroupToggleHandler creates a new GroupToggleHandler.
func NewGroupToggleHandler(engine *Engine, groups group.Repository, publisher shared.EventPublisher) *GroupToggleHandler {
	return &GroupToggleHandler{
		engine:    engine,
		groups:    groups,
		publisher: publisher,
		logger:    engine.logger.With("handler", "group_toggle"),
	}
}

// Handle executes the group toggle with reload-and-retry on stale writes.
func (h *GroupToggleHandler) Handle(ctx context.Context, cmd GroupToggleCommand) (*GroupToggleResult, error) {
	if cmd.GroupHabitID == "" || cmd.MemberID == "" {
		return nil, shared.ValidationError("group", "Toggle", "group_habit_id and member_id are required")
	}

	var result *GroupToggleResult
	err := h.engine.conflictRetrier().Do(ctx, func(ctx context.Context) error {
		r, err := h.attempt(ctx, cmd)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("group toggle: %w", err)
	}

	publish(h.publisher, h.logger, result.Events)
	return result, nil
}

func (h *GroupToggleHandler) attempt(ctx context.Context, cmd GroupToggleCommand) (*GroupToggleResult, error) {
	gh, err := h.groups.FindHabit(ctx, cmd.GroupHabitID)
	if err != nil {
		return nil, err
	}
	g, err := h.groups.FindGroup(ctx, gh.GroupID)
	if err != nil {
		return nil, err
	}

	now, today := h.engine.Now()
	date := cmd.Date
	if date == "" {
		date = today
	}
	habitVersion, groupVersion := gh.Version, g.Version

	tr, err := gh.ToggleTask(g, cmd.MemberID, date, cmd.TaskID, today)
	if err != nil {
		return nil, err
	}

	prevStreak := gh.CurrentStreak
	res := gh.CalculateStreak(g, today)
	gh.ApplyStreak(res)

	result := &GroupToggleResult{
		Group:      g,
		Habit:      gh,
		Day:        gh.DayStatus(g, date),
		Transition: tr,
		Streak:     res,
	}
	if gh.CurrentStreak != prevStreak {
		result.Events = append(result.Events,
			shared.NewStreakUpdatedEvent(gh.ID, prevStreak, gh.CurrentStreak, gh.BestStreak, now))
	}

	brk, err := h.engine.detectBreak(ctx, gh.ID, g.ID, saver.ScopeTeam, res, now)
	if err != nil {
		return nil, err
	}

	if tr.Qualifies() {
		h.award(result, g, gh, date, now)
	}

	gh.Touch(now)
	if err := h.groups.SaveHabit(ctx, gh, habitVersion); err != nil {
		return nil, err
	}
	if result.Award != nil {
		g.Version++
		if err := h.groups.SaveGroup(ctx, g, groupVersion); err != nil {
			return nil, err
		}
	}
	if ev := h.engine.commitBreak(ctx, brk, now); ev != nil {
		result.Events = append(result.Events, ev)
	}
	return result, nil
}

func (h *GroupToggleHandler) award(result *GroupToggleResult, g *group.Group, gh *group.Habit, date timeutil.Date, now time.Time) {
	policy := h.engine.config.Policies.For(progression.ScopeGroup)
	oldTier := g.Tier

	award := policy.AwardXP(progression.Action{
		CompletedTasks: len(gh.Tasks),
		HasTasks:       len(gh.Tasks) > 0,
		Streak:         gh.CurrentStreak,
		TierValue:      g.Level,
	})
	change := g.AddXP(award.Amount, h.engine.config.LevelTable, policy)

	result.Award = &award
	result.Level = change
	result.Events = append(result.Events, shared.NewXPAwardedEvent(
		gh.ID, date.String(), award.Amount, award.BaseXP, award.StreakBonus, award.Multiplier, award.Tier, now,
	))
	if change.LeveledUp() {
		result.Events = append(result.Events,
			shared.NewGroupLevelUpEvent(g.ID, change.OldLevel, change.NewLevel, change.NewXP, now))
		h.logger.Info("group leveled up", "group_id", g.ID, "level", change.NewLevel)
	}
	if oldTier != "" && oldTier != g.Tier {
		result.Events = append(result.Events,
			shared.NewTierChangedEvent(g.ID, string(progression.ScopeGroup), oldTier, g.Tier, g.Level, now))
	}
}
