package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/streakhub/internal/domain/group"
	"github.com/alem-hub/streakhub/internal/domain/habit"
	"github.com/alem-hub/streakhub/internal/domain/holiday"
	"github.com/alem-hub/streakhub/internal/domain/saver"
	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

var d = timeutil.MustDate

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "habits.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newHabit(t *testing.T, id, owner, created string) *habit.Habit {
	t.Helper()
	h, err := habit.NewHabit(habit.NewHabitParams{
		ID:        id,
		OwnerID:   owner,
		Name:      "Stretch",
		Tasks:     []habit.Task{{ID: "t1", Label: "Morning"}},
		CreatedAt: d(created),
	})
	require.NoError(t, err)
	return h
}

func TestHabitRepository_RoundTripAndVersioning(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t).Habits()

	h := newHabit(t, "h1", "u1", "2024-05-01")
	_, err := h.ToggleTask(d("2024-05-02"), "t1", d("2024-05-02"))
	require.NoError(t, err)
	h.Touch(time.Now())
	require.NoError(t, repo.Create(ctx, h))

	err = repo.Create(ctx, h)
	assert.True(t, shared.IsAlreadyExists(err))

	got, err := repo.FindByID(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, got.Day(d("2024-05-02")).AllCompleted)
	assert.Equal(t, []timeutil.Date{d("2024-05-02")}, got.CompletedDates)

	expected := got.Version
	got.AddXP(10)
	got.Touch(time.Now())
	require.NoError(t, repo.Update(ctx, got, expected))

	// the first snapshot is now stale
	err = repo.Update(ctx, h, 1)
	assert.True(t, shared.IsConcurrency(err))

	missing := newHabit(t, "nope", "u1", "2024-05-01")
	err = repo.Update(ctx, missing, 0)
	assert.True(t, shared.IsNotFound(err))
}

func TestHabitRepository_OwnersAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t).Habits()

	require.NoError(t, repo.Create(ctx, newHabit(t, "b", "u1", "2024-05-03")))
	require.NoError(t, repo.Create(ctx, newHabit(t, "a", "u1", "2024-05-01")))
	require.NoError(t, repo.Create(ctx, newHabit(t, "c", "u2", "2024-05-01")))

	hs, err := repo.FindByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, hs, 2)
	assert.Equal(t, "a", hs[0].ID)

	owners, err := repo.ListOwners(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, owners)

	require.NoError(t, repo.Delete(ctx, "a"))
	assert.True(t, shared.IsNotFound(repo.Delete(ctx, "a")))
}

func TestHolidayRepository_FindExpired(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t).Holidays()

	past := &holiday.Period{ID: "p1", OwnerID: "u1", StartDate: d("2024-05-01"), EndDate: d("2024-05-03"),
		AppliesToAll: true, Status: holiday.StatusActive}
	current := &holiday.Period{ID: "p2", OwnerID: "u1", StartDate: d("2024-05-05"), EndDate: d("2024-05-10"),
		HabitIDs: []string{"h1"}, Status: holiday.StatusActive}
	ended := &holiday.Period{ID: "p3", OwnerID: "u2", StartDate: d("2024-04-01"), EndDate: d("2024-04-02"),
		AppliesToAll: true, Status: holiday.StatusEnded}
	for _, p := range []*holiday.Period{past, current, ended} {
		require.NoError(t, repo.Save(ctx, p))
	}

	expired, err := repo.FindExpired(ctx, d("2024-05-06"))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "p1", expired[0].ID)

	owned, err := repo.FindByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, owned, 2)

	_, err = repo.FindByID(ctx, "missing")
	assert.True(t, errors.Is(err, shared.ErrHolidayNotFound))
}

func TestSaverStore_BreaksAndInventory(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t).Savers()

	inv, err := store.Inventory(ctx, "u1", saver.ScopePersonal)
	require.NoError(t, err)
	assert.Equal(t, 0, inv.Available)

	require.NoError(t, inv.Grant(3, time.Now()))
	require.NoError(t, store.SaveInventory(ctx, inv))

	inv, err = store.Inventory(ctx, "u1", saver.ScopePersonal)
	require.NoError(t, err)
	assert.Equal(t, 3, inv.Available)

	_, err = store.LatestBreak(ctx, "h1")
	assert.True(t, errors.Is(err, shared.ErrBreakNotFound))

	now := time.Now()
	require.NoError(t, store.RecordBreak(ctx, &saver.BreakEvent{ID: "b1", HabitID: "h1", OwnerID: "u1",
		Scope: saver.ScopePersonal, BreakDate: d("2024-05-02"), PreviousStreak: 4, DetectedAt: now}))
	require.NoError(t, store.RecordBreak(ctx, &saver.BreakEvent{ID: "b2", HabitID: "h1", OwnerID: "u1",
		Scope: saver.ScopePersonal, BreakDate: d("2024-05-09"), PreviousStreak: 6, DetectedAt: now}))

	err = store.RecordBreak(ctx, &saver.BreakEvent{ID: "b3", HabitID: "h1", OwnerID: "u1",
		Scope: saver.ScopePersonal, BreakDate: d("2024-05-09"), PreviousStreak: 6, DetectedAt: now})
	assert.True(t, shared.IsAlreadyExists(err))

	latest, err := store.LatestBreak(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "b2", latest.ID)
}

func TestSaverStore_WithinSave(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	habits, store := s.Habits(), s.Savers()

	h := newHabit(t, "h1", "u1", "2024-05-01")
	for _, day := range []string{"2024-05-01", "2024-05-02", "2024-05-03"} {
		_, err := h.ToggleTask(d(day), "t1", d("2024-05-05"))
		require.NoError(t, err)
	}
	h.CurrentStreak = 0
	h.BestStreak = 3
	h.Touch(time.Now())
	require.NoError(t, habits.Create(ctx, h))

	inv := saver.NewInventory("u1", saver.ScopePersonal)
	require.NoError(t, inv.Grant(1, time.Now()))
	require.NoError(t, store.SaveInventory(ctx, inv))

	now := time.Now()
	require.NoError(t, store.RecordBreak(ctx, &saver.BreakEvent{ID: "b1", HabitID: "h1", OwnerID: "u1",
		Scope: saver.ScopePersonal, BreakDate: d("2024-05-04"), PreviousStreak: 3, DetectedAt: now}))

	var result saver.Result
	err := store.WithinSave(ctx, "b1", func(tg saver.Target, brk *saver.BreakEvent, inv *saver.Inventory) error {
		res, err := saver.Apply(tg, brk, inv, now, saver.DefaultWindow)
		result = res
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Remaining)

	saved, err := habits.FindByID(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, saved.IsSaved(d("2024-05-04")))
	assert.Equal(t, int64(2), saved.Version)

	brk, err := store.LatestBreak(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, brk.IsConsumed())

	// a failing fn writes nothing
	err = store.WithinSave(ctx, "b1", func(tg saver.Target, brk *saver.BreakEvent, inv *saver.Inventory) error {
		_, err := saver.Apply(tg, brk, inv, now, saver.DefaultWindow)
		return err
	})
	assert.True(t, shared.IsEligibility(err))

	after, err := habits.FindByID(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), after.Version)

	err = store.WithinSave(ctx, "missing", func(saver.Target, *saver.BreakEvent, *saver.Inventory) error { return nil })
	assert.True(t, errors.Is(err, shared.ErrBreakNotFound))
}

func TestGroupRepository_Versioning(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t).Groups()

	g, err := group.NewGroup("g1", "Runners", []string{"u1", "u2"}, time.Now())
	require.NoError(t, err)
	g.Version = 1
	require.NoError(t, repo.SaveGroup(ctx, g, 0))
	assert.True(t, shared.IsConcurrency(repo.SaveGroup(ctx, g, 0)))

	g.TotalXP = 40
	g.Version = 2
	require.NoError(t, repo.SaveGroup(ctx, g, 1))
	assert.True(t, shared.IsConcurrency(repo.SaveGroup(ctx, g, 1)))

	got, err := repo.FindGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 40, got.TotalXP)
	assert.Equal(t, []string{"u1", "u2"}, got.Members)

	_, err = repo.FindGroup(ctx, "nope")
	assert.True(t, errors.Is(err, shared.ErrGroupNotFound))

	gh, err := group.NewHabit("gh1", "g1", "Run", nil, habit.Daily(), d("2024-05-01"))
	require.NoError(t, err)
	gh.Touch(time.Now())
	require.NoError(t, repo.SaveHabit(ctx, gh, 0))

	list, err := repo.FindHabitsByGroup(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Run", list[0].Name)

	groups, err := repo.ListGroups(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 1)
}
