package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/streakhub/internal/domain/group"
	"github.com/alem-hub/streakhub/internal/domain/habit"
	"github.com/alem-hub/streakhub/internal/domain/holiday"
	"github.com/alem-hub/streakhub/internal/domain/progression"
	"github.com/alem-hub/streakhub/internal/domain/saver"
	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

var d = timeutil.MustDate

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type stubHabits struct {
	habit.Repository
	items map[string]*habit.Habit
}

func (s stubHabits) FindByID(_ context.Context, id string) (*habit.Habit, error) {
	h, ok := s.items[id]
	if !ok {
		return nil, shared.NotFoundError("habit", "Find", id)
	}
	return h.Clone(), nil
}

func (s stubHabits) FindByOwner(_ context.Context, owner string) ([]*habit.Habit, error) {
	var out []*habit.Habit
	for _, h := range s.items {
		if h.OwnerID == owner {
			out = append(out, h.Clone())
		}
	}
	return out, nil
}

type stubPeriods struct {
	holiday.Repository
	periods []holiday.Period
}

func (s stubPeriods) FindByOwner(_ context.Context, owner string) ([]holiday.Period, error) {
	var out []holiday.Period
	for _, p := range s.periods {
		if p.OwnerID == owner {
			out = append(out, p)
		}
	}
	return out, nil
}

type stubSavers struct {
	saver.Store
	breaks      map[string]*saver.BreakEvent
	inventories map[string]int
}

func (s stubSavers) LatestBreak(_ context.Context, habitID string) (*saver.BreakEvent, error) {
	b, ok := s.breaks[habitID]
	if !ok {
		return nil, shared.ErrBreakNotFound
	}
	return b, nil
}

func (s stubSavers) Inventory(_ context.Context, owner string, scope saver.Scope) (*saver.Inventory, error) {
	inv := saver.NewInventory(owner, scope)
	inv.Available = s.inventories[string(scope)+"/"+owner]
	return inv, nil
}

type stubGroups struct {
	group.Repository
	g  *group.Group
	gh *group.Habit
}

func (s stubGroups) FindGroup(context.Context, string) (*group.Group, error) { return s.g, nil }
func (s stubGroups) FindHabit(context.Context, string) (*group.Habit, error) { return s.gh, nil }

func clockAt(date string) Config {
	now := d(date).In(time.UTC).Add(12 * time.Hour)
	return Config{Location: time.UTC, Clock: func() time.Time { return now }}
}

func readingHabit(t *testing.T, created string) *habit.Habit {
	t.Helper()
	h, err := habit.NewHabit(habit.NewHabitParams{
		ID:      "h1",
		OwnerID: "u1",
		Name:    "Read",
		Tasks: []habit.Task{
			{ID: "a", Label: "Chapter"},
			{ID: "b", Label: "Notes"},
		},
		CreatedAt: d(created),
	})
	require.NoError(t, err)
	return h
}

// ══════════════════════════════════════════════════════════════════════════════
// GET HABIT PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

func TestGetHabitProgress_DayView(t *testing.T) {
	h := readingHabit(t, "2024-05-01")
	for _, day := range []string{"2024-05-01", "2024-05-02", "2024-05-03"} {
		_, err := h.ToggleDay(d(day), d("2024-05-04"))
		require.NoError(t, err)
	}
	_, err := h.ToggleTask(d("2024-05-04"), "a", d("2024-05-04"))
	require.NoError(t, err)

	// отметка задачи, удалённой из привычки
	day := h.Days[d("2024-05-04")]
	day.CompletedTasks = append(day.CompletedTasks, "zz")
	h.Days[d("2024-05-04")] = day

	handler := NewGetHabitProgressHandler(
		stubHabits{items: map[string]*habit.Habit{"h1": h}},
		holiday.NewManager(stubPeriods{}, nil),
		stubSavers{},
		clockAt("2024-05-04"),
	)

	dto, err := handler.Handle(context.Background(), GetHabitProgressQuery{HabitID: "h1"})
	require.NoError(t, err)

	assert.True(t, dto.IsToday)
	assert.Equal(t, 0.5, dto.Ratio)
	assert.False(t, dto.AllCompleted)
	require.Len(t, dto.Tasks, 3)
	assert.True(t, dto.Tasks[0].Done)
	assert.False(t, dto.Tasks[1].Done)
	assert.Equal(t, "Unknown task (zz)", dto.Tasks[2].Label)
	assert.True(t, dto.Tasks[2].Unknown)

	assert.Equal(t, 3, dto.Streak.Current)
	assert.Equal(t, "Bronze", dto.Tier.Name)
	assert.Equal(t, "Silver", dto.Tier.Next)
	assert.InDelta(t, 3.0/7*100, dto.Tier.ProgressToNext, 0.001)
	assert.True(t, dto.Stale)

	assert.False(t, dto.Eligibility.CanSave)
	assert.Equal(t, string(shared.ReasonNoBreak), dto.Eligibility.Reason)
	assert.Nil(t, dto.Weekly)
	assert.Nil(t, dto.Goal)
}

func TestGetHabitProgress_FreezeAndGoal(t *testing.T) {
	h := readingHabit(t, "2024-05-01")
	h.DurationGoalDays = 10
	for _, day := range []string{"2024-05-01", "2024-05-02", "2024-05-05"} {
		_, err := h.ToggleDay(d(day), d("2024-05-05"))
		require.NoError(t, err)
	}

	period, err := holiday.NewPeriod(holiday.NewPeriodParams{
		ID: "p1", OwnerID: "u1", StartDate: d("2024-05-03"), EndDate: d("2024-05-04"),
		HabitIDs: []string{"h1"},
	})
	require.NoError(t, err)

	cfg := clockAt("2024-05-05")
	cfg.Goal = habit.GoalPolicy{CountFrozenTowardGoal: true}
	handler := NewGetHabitProgressHandler(
		stubHabits{items: map[string]*habit.Habit{"h1": h}},
		holiday.NewManager(stubPeriods{periods: []holiday.Period{*period}}, nil),
		nil,
		cfg,
	)

	dto, err := handler.Handle(context.Background(), GetHabitProgressQuery{HabitID: "h1", Date: d("2024-05-03")})
	require.NoError(t, err)

	assert.False(t, dto.IsToday)
	assert.True(t, dto.Frozen)
	assert.Equal(t, holiday.FreezeHabit.String(), dto.FreezeMode)
	assert.Equal(t, 3, dto.Streak.Current)

	require.NotNil(t, dto.Goal)
	assert.Equal(t, 3, dto.Goal.Completed)
	assert.Equal(t, 2, dto.Goal.Frozen)
	assert.Equal(t, 5, dto.Goal.Counted)
	assert.InDelta(t, 50.0, dto.Goal.Percent, 0.001)
}

func TestGetHabitProgress_Weekly(t *testing.T) {
	// 2024-05-15 - среда
	h, err := habit.NewHabit(habit.NewHabitParams{
		ID: "w1", OwnerID: "u1", Name: "Long run",
		Frequency: habit.Weekly(), CreatedAt: d("2024-05-15"),
	})
	require.NoError(t, err)
	_, err = h.ToggleDay(d("2024-05-16"), d("2024-05-17"))
	require.NoError(t, err)

	handler := NewGetHabitProgressHandler(
		stubHabits{items: map[string]*habit.Habit{"w1": h}},
		holiday.NewManager(stubPeriods{}, nil),
		nil,
		clockAt("2024-05-17"),
	)
	dto, err := handler.Handle(context.Background(), GetHabitProgressQuery{HabitID: "w1"})
	require.NoError(t, err)

	require.NotNil(t, dto.Weekly)
	assert.True(t, dto.Weekly.Completed)
	assert.Equal(t, d("2024-05-13"), dto.Weekly.WeekStart)
	assert.Equal(t, time.Date(2024, 5, 20, 0, 1, 0, 0, time.UTC), dto.Weekly.ResetsAt)
	assert.True(t, dto.Streak.Weekly)
	assert.Equal(t, 1, dto.Streak.Current)
}

func TestGetHabitProgress_Validation(t *testing.T) {
	handler := NewGetHabitProgressHandler(stubHabits{}, holiday.NewManager(stubPeriods{}, nil), nil, clockAt("2024-05-01"))

	_, err := handler.Handle(context.Background(), GetHabitProgressQuery{})
	assert.True(t, shared.IsValidation(err))

	_, err = handler.Handle(context.Background(), GetHabitProgressQuery{HabitID: "h1", Date: "05/01/2024"})
	assert.True(t, shared.IsValidation(err))

	_, err = handler.Handle(context.Background(), GetHabitProgressQuery{HabitID: "nope"})
	assert.True(t, shared.IsNotFound(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// ELIGIBILITY
// ══════════════════════════════════════════════════════════════════════════════

func TestGetSaveEligibility(t *testing.T) {
	detected := d("2024-05-12").In(time.UTC).Add(12 * time.Hour)
	savers := stubSavers{
		breaks: map[string]*saver.BreakEvent{
			"h1": {ID: "b1", HabitID: "h1", OwnerID: "u1", Scope: saver.ScopePersonal,
				BreakDate: d("2024-05-11"), PreviousStreak: 10, DetectedAt: detected},
		},
		inventories: map[string]int{"personal/u1": 2},
	}
	ctx := context.Background()

	handler := NewGetSaveEligibilityHandler(savers, clockAt("2024-05-12"))
	e, err := handler.Handle(ctx, GetSaveEligibilityQuery{HabitID: "h1"})
	require.NoError(t, err)
	assert.True(t, e.CanSave)
	assert.Equal(t, 2, e.Available)
	assert.Equal(t, d("2024-05-11"), e.LastBreakDate)
	require.NotNil(t, e.ExpiresAt)
	assert.Equal(t, detected.Add(24*time.Hour), *e.ExpiresAt)

	late := NewGetSaveEligibilityHandler(savers, clockAt("2024-05-14"))
	e, err = late.Handle(ctx, GetSaveEligibilityQuery{HabitID: "h1"})
	require.NoError(t, err)
	assert.False(t, e.CanSave)
	assert.Equal(t, string(shared.ReasonWindowClosed), e.Reason)
	assert.False(t, e.CanAcquireMore)

	e, err = handler.Handle(ctx, GetSaveEligibilityQuery{HabitID: "h2", OwnerID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, string(shared.ReasonNoBreak), e.Reason)
	assert.Equal(t, 2, e.Available)

	savers.inventories["personal/u1"] = 0
	e, err = handler.Handle(ctx, GetSaveEligibilityQuery{HabitID: "h1"})
	require.NoError(t, err)
	assert.Equal(t, string(shared.ReasonNoSavers), e.Reason)
	assert.True(t, e.CanAcquireMore)
}

// ══════════════════════════════════════════════════════════════════════════════
// LISTS AND GROUPS
// ══════════════════════════════════════════════════════════════════════════════

func TestListHabits(t *testing.T) {
	h := readingHabit(t, "2024-05-01")
	_, err := h.ToggleDay(d("2024-05-01"), d("2024-05-01"))
	require.NoError(t, err)

	handler := NewListHabitsHandler(
		stubHabits{items: map[string]*habit.Habit{"h1": h}},
		holiday.NewManager(stubPeriods{}, nil),
		clockAt("2024-05-01"),
	)
	list, err := handler.Handle(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].DoneToday)
	assert.Equal(t, 1, list[0].Streak)

	_, err = handler.Handle(context.Background(), "")
	assert.True(t, shared.IsValidation(err))
}

func TestGetGroupProgress(t *testing.T) {
	g, err := group.NewGroup("g1", "Crew", []string{"u1", "u2"}, time.Now())
	require.NoError(t, err)
	gh, err := group.NewHabit("gh1", "g1", "Pushups", nil, habit.Daily(), d("2024-05-01"))
	require.NoError(t, err)
	_, err = gh.ToggleTask(g, "u1", d("2024-05-01"), "", d("2024-05-01"))
	require.NoError(t, err)

	handler := NewGetGroupProgressHandler(stubGroups{g: g, gh: gh}, nil, progression.DefaultLevelTable(), clockAt("2024-05-01"))
	dto, err := handler.Handle(context.Background(), "gh1")
	require.NoError(t, err)

	assert.Equal(t, 0.5, dto.Ratio)
	assert.False(t, dto.DayCompleted)
	require.Len(t, dto.Members, 2)
	assert.True(t, dto.Members[0].DoneToday)
	assert.True(t, dto.Members[0].WeekFlag)
	assert.False(t, dto.Members[1].DoneToday)
	assert.Equal(t, 1, dto.Level)
	assert.Equal(t, "Spark", dto.Tier.Name)
}
