package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/streakhub/internal/domain/habit"
	"github.com/alem-hub/streakhub/internal/domain/holiday"
	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/internal/infrastructure/persistence/sqlite"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

type testEnv struct {
	ctx *Context
	out *bytes.Buffer
	now time.Time
}

func setupTestContext(t *testing.T) *testEnv {
	t.Helper()

	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "habitctl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	env := &testEnv{
		out: &bytes.Buffer{},
		now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	ctx, err := NewContext(context.Background(), store, Options{
		Owner:    "u1",
		Out:      env.out,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Location: time.UTC,
		Clock:    func() time.Time { return env.now },
	})
	require.NoError(t, err)
	t.Cleanup(func() { ctx.Close() })

	env.ctx = ctx
	return env
}

// setDay moves the clock and runs the same refresh habitctl runs before a command.
func (e *testEnv) setDay(t *testing.T, date string) {
	t.Helper()
	e.now = timeutil.MustDate(date).In(time.UTC).Add(12 * time.Hour)
	require.NoError(t, e.ctx.Refresh())
}

func (e *testEnv) run(t *testing.T, cmd interface{ Run(*Context) error }) string {
	t.Helper()
	e.out.Reset()
	require.NoError(t, cmd.Run(e.ctx))
	return e.out.String()
}

func (e *testEnv) onlyHabit(t *testing.T) *habit.Habit {
	t.Helper()
	habits, err := e.ctx.Store.Habits().FindByOwner(e.ctx.Ctx, "u1")
	require.NoError(t, err)
	require.Len(t, habits, 1)
	return habits[0]
}

func TestHabitCommands(t *testing.T) {
	env := setupTestContext(t)

	out := env.run(t, &HabitAddCmd{Name: "Read", Kind: "good", Tasks: []string{"chapter", "notes"}, Frequency: "daily"})
	assert.Contains(t, out, `Created habit "Read"`)
	assert.Contains(t, out, "t1   chapter")
	assert.Contains(t, out, "t2   notes")

	h := env.onlyHabit(t)

	out = env.run(t, &HabitToggleCmd{HabitID: h.ID, TaskID: "t1", Date: "today"})
	assert.Contains(t, out, "Read 2024-05-01: open (1/2 tasks)")

	out = env.run(t, &HabitToggleCmd{HabitID: h.ID, TaskID: "t2", Date: "today"})
	assert.Contains(t, out, "Read 2024-05-01: done (2/2 tasks)")
	assert.Contains(t, out, "Streak: 1d (best 1)")
	assert.Contains(t, out, "XP")

	env.setDay(t, "2024-05-02")
	out = env.run(t, &HabitDayCmd{HabitID: h.ID, Date: "today"})
	assert.Contains(t, out, "Streak: 2d")

	out = env.run(t, &HabitStatusCmd{HabitID: h.ID, Date: "today"})
	assert.Contains(t, out, "Read (good, daily)")
	assert.Contains(t, out, "Day 2024-05-02 (today): 100% done")
	assert.Contains(t, out, "[x] t1")
	assert.Contains(t, out, "Tier: Bronze")

	out = env.run(t, &HabitListCmd{})
	assert.Contains(t, out, h.ID)
	assert.Contains(t, out, "done")

	err := (&HabitToggleCmd{HabitID: h.ID, TaskID: "t1", Date: "2024-05-09"}).Run(env.ctx)
	assert.Error(t, err)

	err = (&HabitStatusCmd{HabitID: h.ID, Date: "02/05/2024"}).Run(env.ctx)
	assert.ErrorContains(t, err, "invalid date")
}

func TestHabitAdd_CustomFrequency(t *testing.T) {
	env := setupTestContext(t)

	out := env.run(t, &HabitAddCmd{Name: "Gym", Kind: "good", Frequency: "custom", Weekdays: "mon,wed,5"})
	assert.Contains(t, out, "on Mon,Wed,Fri")

	err := (&HabitAddCmd{Name: "Run", Kind: "good", Frequency: "daily", Weekdays: "mon"}).Run(env.ctx)
	assert.ErrorContains(t, err, "--weekdays needs --frequency custom")

	err = (&HabitAddCmd{Name: "Swim", Kind: "good", Frequency: "custom"}).Run(env.ctx)
	assert.ErrorContains(t, err, "custom frequency needs --weekdays")
}

func TestSaverFlow(t *testing.T) {
	env := setupTestContext(t)
	env.run(t, &HabitAddCmd{Name: "Walk", Kind: "good", Frequency: "daily"})
	h := env.onlyHabit(t)

	for _, d := range []string{"2024-05-01", "2024-05-02", "2024-05-03"} {
		env.setDay(t, d)
		env.run(t, &HabitDayCmd{HabitID: h.ID, Date: "today"})
	}

	// 2024-05-04 is missed; the refresh on the next day records the break.
	env.out.Reset()
	env.setDay(t, "2024-05-05")
	assert.Contains(t, env.out.String(), "Streak of 3 broke on 2024-05-04")

	out := env.run(t, &SaverStatusCmd{HabitID: h.ID})
	assert.Contains(t, out, "Cannot save")

	err := (&SaverUseCmd{HabitID: h.ID}).Run(env.ctx)
	require.Error(t, err)
	assert.True(t, shared.IsEligibility(err))

	out = env.run(t, &SaverGrantCmd{Amount: 2})
	assert.Contains(t, out, "personal savers: 2")

	out = env.run(t, &SaverStatusCmd{HabitID: h.ID})
	assert.Contains(t, out, "Break on 2024-05-04 can be saved")

	out = env.run(t, &SaverUseCmd{HabitID: h.ID})
	assert.Contains(t, out, "Streak is 4 again, 1 saver(s) left")

	err = (&SaverUseCmd{HabitID: h.ID}).Run(env.ctx)
	require.Error(t, err)
	assert.True(t, shared.IsEligibility(err))

	out = env.run(t, &SaverStatusCmd{})
	assert.Contains(t, out, "personal savers: 1")
}

func TestHolidayCommands(t *testing.T) {
	env := setupTestContext(t)
	env.run(t, &HabitAddCmd{Name: "Read", Kind: "good", Tasks: []string{"chapter", "notes"}, Frequency: "daily"})
	h := env.onlyHabit(t)

	out := env.run(t, &HolidayStartCmd{From: "2024-05-03", To: "2024-05-06", Reason: "trip"})
	assert.Contains(t, out, "2024-05-03..2024-05-06, all habits")

	out = env.run(t, &HolidayStartCmd{From: "today", To: "2024-05-02", Tasks: []string{h.ID + ":t2"}})
	assert.Contains(t, out, h.ID+":t2")

	periods, err := env.ctx.Store.Holidays().FindByOwner(env.ctx.Ctx, "u1")
	require.NoError(t, err)
	require.Len(t, periods, 2)

	out = env.run(t, &HabitStatusCmd{HabitID: h.ID, Date: "today"})
	assert.Contains(t, out, "[~] t2")

	var trip holiday.Period
	for _, p := range periods {
		if p.AppliesToAll {
			trip = p
		}
	}
	out = env.run(t, &HolidayCancelCmd{ID: trip.ID})
	assert.Contains(t, out, "cancelled")

	out = env.run(t, &HolidayListCmd{})
	assert.NotContains(t, out, trip.ID)

	out = env.run(t, &HolidayListCmd{All: true})
	assert.Contains(t, out, trip.ID)
	assert.Contains(t, out, "cancelled")

	err = (&HolidayStartCmd{From: "2024-05-03", To: "2024-05-06", Tasks: []string{"nocolon"}}).Run(env.ctx)
	assert.ErrorContains(t, err, "use habit:task")
}

func TestGroupCommands(t *testing.T) {
	env := setupTestContext(t)

	out := env.run(t, &GroupCreateCmd{Name: "Flatmates", Habit: "Clean", Members: []string{"u2"}, Frequency: "daily"})
	assert.Contains(t, out, "with 2 member(s)")

	groups, err := env.ctx.Store.Groups().ListGroups(env.ctx.Ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	habits, err := env.ctx.Store.Groups().FindHabitsByGroup(env.ctx.Ctx, groups[0].ID)
	require.NoError(t, err)
	require.Len(t, habits, 1)
	gh := habits[0]

	out = env.run(t, &GroupToggleCmd{HabitID: gh.ID, Date: "today"})
	assert.Contains(t, out, "open (1/2 members)")

	out = env.run(t, &GroupToggleCmd{HabitID: gh.ID, Member: "u2", Date: "today"})
	assert.Contains(t, out, "done (2/2 members)")
	assert.Contains(t, out, "Streak: 1d")
	assert.Contains(t, out, "group XP")

	out = env.run(t, &GroupStatusCmd{HabitID: gh.ID})
	assert.Contains(t, out, "Flatmates / Clean")
	assert.Contains(t, out, "[x] u1")
	assert.Contains(t, out, "[x] u2")
	assert.Contains(t, out, "Today: done (100%)")

	err = (&GroupToggleCmd{HabitID: gh.ID, Member: "stranger", Date: "today"}).Run(env.ctx)
	assert.Error(t, err)
}

func TestTierShow(t *testing.T) {
	env := setupTestContext(t)

	out := env.run(t, &TierShowCmd{Scope: "habit", Value: 10})
	assert.Contains(t, out, "Silver")
	assert.Contains(t, out, "streak 10 is Silver")
	assert.Contains(t, out, "to Gold")

	out = env.run(t, &TierShowCmd{Scope: "group", Value: -1})
	assert.Contains(t, out, "Spark")
	assert.Contains(t, out, "Levels (cumulative XP): 1:0 2:100")
	assert.NotContains(t, out, " is ")
}

func TestParseTaskFreezes(t *testing.T) {
	freezes, err := parseTaskFreezes([]string{"h1:t1", "h2:t1", "h1:t2"})
	require.NoError(t, err)
	assert.Equal(t, []holiday.TaskFreeze{
		{HabitID: "h1", TaskIDs: []string{"t1", "t2"}},
		{HabitID: "h2", TaskIDs: []string{"t1"}},
	}, freezes)

	_, err = parseTaskFreezes([]string{"h1:"})
	assert.Error(t, err)
}

func TestParseWeekdays(t *testing.T) {
	days, err := parseWeekdays("Mon, friday,0")
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Friday, time.Sunday}, days)

	_, err = parseWeekdays("someday")
	assert.Error(t, err)
}

func TestRequireOwner(t *testing.T) {
	env := setupTestContext(t)
	env.ctx.Owner = ""

	err := (&HabitListCmd{}).Run(env.ctx)
	assert.ErrorContains(t, err, "--owner")

	err = (&SaverGrantCmd{Amount: 1}).Run(env.ctx)
	assert.ErrorContains(t, err, "--owner")
}
