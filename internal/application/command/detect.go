package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alem-hub/streakhub/internal/domain/group"
	"github.com/alem-hub/streakhub/internal/domain/habit"
	"github.com/alem-hub/streakhub/internal/domain/saver"
	"github.com/alem-hub/streakhub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DETECT BROKEN STREAKS
// Periodic full recomputation. A streak can break without any write (the user
// simply did nothing yesterday), so the worker walks every habit after midnight
// and records the break, which opens the saver window.
// ══════════════════════════════════════════════════════════════════════════════

// DetectStats summarizes a scan.
type DetectStats struct {
	Owners      int
	Changed     int
	GroupHabits int
	Failed      int
}

// DetectBreaksHandler recomputes every habit and group habit.
type DetectBreaksHandler struct {
	engine    *Engine
	habits    habit.Repository
	groups    group.Repository
	publisher shared.EventPublisher
	logger    *slog.Logger
}

// NewDetectBreaksHandler creates a new DetectBreaksHandler. groups may be nil.
func NewDetectBreaksHandler(engine *Engine, habits habit.Repository, groups group.Repository, publisher shared.EventPublisher) *DetectBreaksHandler {
	return &DetectBreaksHandler{
		engine:    engine,
		habits:    habits,
		groups:    groups,
		publisher: publisher,
		logger:    engine.logger.With("handler", "detect_breaks"),
	}
}

// Handle runs one scan. A failing owner is logged and skipped.
func (h *DetectBreaksHandler) Handle(ctx context.Context) (DetectStats, error) {
	var stats DetectStats

	owners, err := h.habits.ListOwners(ctx)
	if err != nil {
		return stats, fmt.Errorf("detect breaks: list owners: %w", err)
	}

	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Owners++

		changed, events, err := h.engine.RecalculateOwner(ctx, owner, nil)
		if err != nil {
			stats.Failed++
			h.logger.Error("owner recalculation failed", "owner_id", owner, "error", err)
			continue
		}
		stats.Changed += len(changed)
		publish(h.publisher, h.logger, events)
	}

	if h.groups != nil {
		n, err := h.scanGroups(ctx)
		stats.GroupHabits = n
		if err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (h *DetectBreaksHandler) scanGroups(ctx context.Context) (int, error) {
	groups, err := h.groups.ListGroups(ctx)
	if err != nil {
		return 0, fmt.Errorf("detect breaks: list groups: %w", err)
	}

	scanned := 0
	for _, g := range groups {
		habits, err := h.groups.FindHabitsByGroup(ctx, g.ID)
		if err != nil {
			h.logger.Error("group habits load failed", "group_id", g.ID, "error", err)
			continue
		}
		for _, gh := range habits {
			scanned++
			if err := h.recalculateGroupHabit(ctx, g, gh); err != nil {
				h.logger.Error("group habit recalculation failed", "group_habit_id", gh.ID, "error", err)
			}
		}
	}
	return scanned, nil
}

func (h *DetectBreaksHandler) recalculateGroupHabit(ctx context.Context, g *group.Group, gh *group.Habit) error {
	now, today := h.engine.Now()
	prev, expected := gh.CurrentStreak, gh.Version

	res := gh.CalculateStreak(g, today)
	gh.ApplyStreak(res)

	brk, err := h.engine.detectBreak(ctx, gh.ID, g.ID, saver.ScopeTeam, res, now)
	if err != nil {
		return err
	}

	var events []shared.Event
	if gh.CurrentStreak != prev {
		events = append(events, shared.NewStreakUpdatedEvent(gh.ID, prev, gh.CurrentStreak, gh.BestStreak, now))
		gh.Touch(now)
		if err := h.groups.SaveHabit(ctx, gh, expected); err != nil {
			// a concurrent toggle already recomputed this habit and records the break itself
			if shared.IsConcurrency(err) {
				return nil
			}
			return err
		}
	}
	if ev := h.engine.commitBreak(ctx, brk, now); ev != nil {
		events = append(events, ev)
	}
	publish(h.publisher, h.logger, events)
	return nil
}
