package command

import (
	"context"
	"fmt"

	"github.com/alem-hub/streakhub/internal/domain/group"
	"github.com/alem-hub/streakhub/internal/domain/habit"
	"github.com/alem-hub/streakhub/internal/domain/progression"
	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// CreateHabitCommand creates a personal habit.
type CreateHabitCommand struct {
	OwnerID          string
	Name             string
	Kind             habit.Kind
	Category         string
	Tasks            []habit.Task
	Frequency        habit.Frequency
	DurationGoalDays int

	// CreatedAt defaults to today.
	CreatedAt timeutil.Date
}

// CreateHabit validates and stores a new habit.
func CreateHabit(ctx context.Context, e *Engine, habits habit.Repository, cmd CreateHabitCommand) (*habit.Habit, error) {
	if cmd.OwnerID == "" {
		return nil, shared.ValidationError("habit", "Create", "owner_id is required")
	}
	now, today := e.Now()
	created := cmd.CreatedAt
	if created == "" {
		created = today
	}

	h, err := habit.NewHabit(habit.NewHabitParams{
		ID:               e.config.NewID(),
		OwnerID:          cmd.OwnerID,
		Name:             cmd.Name,
		Kind:             cmd.Kind,
		Category:         cmd.Category,
		Tasks:            cmd.Tasks,
		Frequency:        cmd.Frequency,
		DurationGoalDays: cmd.DurationGoalDays,
		CreatedAt:        created,
	})
	if err != nil {
		return nil, err
	}
	h.Tier = e.config.Policies.For(progression.ScopeHabit).TierFor(0).Tier.Name
	h.Touch(now)

	if err := habits.Create(ctx, h); err != nil {
		return nil, fmt.Errorf("create habit: %w", err)
	}
	return h, nil
}

// CreateGroupCommand creates a group with its first habit.
type CreateGroupCommand struct {
	Name      string
	Members   []string
	HabitName string
	Tasks     []habit.Task
	Frequency habit.Frequency
}

// CreateGroup stores a new group and its habit.
func CreateGroup(ctx context.Context, e *Engine, groups group.Repository, cmd CreateGroupCommand) (*group.Group, *group.Habit, error) {
	now, today := e.Now()

	g, err := group.NewGroup(e.config.NewID(), cmd.Name, cmd.Members, now)
	if err != nil {
		return nil, nil, err
	}
	g.Tier = e.config.Policies.For(progression.ScopeGroup).TierFor(g.Level).Tier.Name

	gh, err := group.NewHabit(e.config.NewID(), g.ID, cmd.HabitName, cmd.Tasks, cmd.Frequency, today)
	if err != nil {
		return nil, nil, err
	}
	gh.Touch(now)
	g.Version = 1

	if err := groups.SaveGroup(ctx, g, 0); err != nil {
		return nil, nil, fmt.Errorf("create group: %w", err)
	}
	if err := groups.SaveHabit(ctx, gh, 0); err != nil {
		return nil, nil, fmt.Errorf("create group habit: %w", err)
	}
	return g, gh, nil
}
