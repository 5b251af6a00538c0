package command

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/streakhub/internal/domain/group"
	"github.com/alem-hub/streakhub/internal/domain/habit"
	"github.com/alem-hub/streakhub/internal/domain/holiday"
	"github.com/alem-hub/streakhub/internal/domain/saver"
	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY FAKES
// ══════════════════════════════════════════════════════════════════════════════

type memHabits struct {
	mu    sync.Mutex
	items map[string]*habit.Habit

	// staleOnce simulates a concurrent writer: the next Update bumps the stored
	// version before comparing, so the caller sees a stale snapshot once.
	staleOnce bool
	updates   int
}

func newMemHabits(hs ...*habit.Habit) *memHabits {
	m := &memHabits{items: make(map[string]*habit.Habit)}
	for _, h := range hs {
		m.items[h.ID] = h.Clone()
	}
	return m
}

func (m *memHabits) Create(_ context.Context, h *habit.Habit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[h.ID]; ok {
		return shared.NewDomainError("habit", "Create", shared.ErrAlreadyExists, "habit exists")
	}
	m.items[h.ID] = h.Clone()
	return nil
}

func (m *memHabits) Update(_ context.Context, h *habit.Habit, expected int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[h.ID]
	if !ok {
		return shared.NotFoundError("habit", "Update", h.ID)
	}
	if m.staleOnce {
		m.staleOnce = false
		cur.Version++
	}
	if cur.Version != expected {
		return shared.ConcurrencyError("habit", "Update", expected)
	}
	m.updates++
	m.items[h.ID] = h.Clone()
	return nil
}

func (m *memHabits) FindByID(_ context.Context, id string) (*habit.Habit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.items[id]
	if !ok {
		return nil, shared.NotFoundError("habit", "Find", id)
	}
	return h.Clone(), nil
}

func (m *memHabits) FindByOwner(_ context.Context, ownerID string) ([]*habit.Habit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*habit.Habit
	for _, h := range m.items {
		if h.OwnerID == ownerID {
			out = append(out, h.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memHabits) ListOwners(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]struct{}{}
	var out []string
	for _, h := range m.items {
		if _, ok := seen[h.OwnerID]; !ok {
			seen[h.OwnerID] = struct{}{}
			out = append(out, h.OwnerID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memHabits) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

func (m *memHabits) get(id string) *habit.Habit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id]
}

type memPeriods struct {
	mu    sync.Mutex
	items map[string]holiday.Period
}

func newMemPeriods() *memPeriods {
	return &memPeriods{items: make(map[string]holiday.Period)}
}

func (m *memPeriods) Save(_ context.Context, p *holiday.Period) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[p.ID] = *p
	return nil
}

func (m *memPeriods) FindByID(_ context.Context, id string) (*holiday.Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, shared.ErrHolidayNotFound
	}
	return &p, nil
}

func (m *memPeriods) FindByOwner(_ context.Context, ownerID string) ([]holiday.Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []holiday.Period
	for _, p := range m.items {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPeriods) FindExpired(_ context.Context, today timeutil.Date) ([]holiday.Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []holiday.Period
	for _, p := range m.items {
		if p.HasExpired(today) {
			out = append(out, p)
		}
	}
	return out, nil
}

// memCache counts invalidations so tests can check the cache is dropped.
type memCache struct {
	mu          sync.Mutex
	items       map[string][]holiday.Period
	invalidated int
}

func newMemCache() *memCache {
	return &memCache{items: make(map[string][]holiday.Period)}
}

func (c *memCache) Get(_ context.Context, ownerID string) ([]holiday.Period, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.items[ownerID]
	return p, ok, nil
}

func (c *memCache) Set(_ context.Context, ownerID string, periods []holiday.Period) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[ownerID] = periods
	return nil
}

func (c *memCache) Invalidate(_ context.Context, ownerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, ownerID)
	c.invalidated++
	return nil
}

type memSavers struct {
	mu          sync.Mutex
	habits      *memHabits
	groups      *memGroups
	inventories map[string]saver.Inventory
	breaks      map[string]saver.BreakEvent
}

func newMemSavers(habits *memHabits, groups *memGroups) *memSavers {
	return &memSavers{
		habits:      habits,
		groups:      groups,
		inventories: make(map[string]saver.Inventory),
		breaks:      make(map[string]saver.BreakEvent),
	}
}

func invKey(owner string, scope saver.Scope) string {
	return string(scope) + "/" + owner
}

func (m *memSavers) Inventory(_ context.Context, ownerID string, scope saver.Scope) (*saver.Inventory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.inventories[invKey(ownerID, scope)]
	if !ok {
		return saver.NewInventory(ownerID, scope), nil
	}
	return &inv, nil
}

func (m *memSavers) SaveInventory(_ context.Context, inv *saver.Inventory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inventories[invKey(inv.OwnerID, inv.Scope)] = *inv
	return nil
}

func (m *memSavers) RecordBreak(_ context.Context, brk *saver.BreakEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.breaks {
		if b.HabitID == brk.HabitID && b.BreakDate == brk.BreakDate {
			return shared.NewDomainError("saver", "RecordBreak", shared.ErrAlreadyExists, "break exists")
		}
	}
	m.breaks[brk.ID] = *brk
	return nil
}

func (m *memSavers) LatestBreak(_ context.Context, habitID string) (*saver.BreakEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *saver.BreakEvent
	for _, b := range m.breaks {
		if b.HabitID != habitID {
			continue
		}
		if latest == nil || b.BreakDate.After(latest.BreakDate) {
			b := b
			latest = &b
		}
	}
	if latest == nil {
		return nil, shared.ErrBreakNotFound
	}
	return latest, nil
}

func (m *memSavers) WithinSave(ctx context.Context, breakID string, fn saver.SaveFunc) error {
	m.mu.Lock()
	b, ok := m.breaks[breakID]
	m.mu.Unlock()
	if !ok {
		return shared.ErrBreakNotFound
	}
	inv, _ := m.Inventory(ctx, b.OwnerID, b.Scope)

	if b.Scope == saver.ScopeTeam {
		gh, err := m.groups.FindHabit(ctx, b.HabitID)
		if err != nil {
			return err
		}
		if err := fn(gh, &b, inv); err != nil {
			return err
		}
		expected := gh.Version
		gh.Touch(time.Time{})
		if err := m.groups.SaveHabit(ctx, gh, expected); err != nil {
			return err
		}
	} else {
		h, err := m.habits.FindByID(ctx, b.HabitID)
		if err != nil {
			return err
		}
		if err := fn(h, &b, inv); err != nil {
			return err
		}
		expected := h.Version
		h.Touch(time.Time{})
		if err := m.habits.Update(ctx, h, expected); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.breaks[b.ID] = b
	m.inventories[invKey(inv.OwnerID, inv.Scope)] = *inv
	return nil
}

type memGroups struct {
	mu     sync.Mutex
	groups map[string]group.Group
	habits map[string]*group.Habit
}

func newMemGroups() *memGroups {
	return &memGroups{groups: make(map[string]group.Group), habits: make(map[string]*group.Habit)}
}

func (m *memGroups) SaveGroup(_ context.Context, g *group.Group, expected int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.groups[g.ID]; ok && cur.Version != expected {
		return shared.ConcurrencyError("group", "SaveGroup", expected)
	}
	cp := *g
	cp.Members = append([]string(nil), g.Members...)
	m.groups[g.ID] = cp
	return nil
}

func (m *memGroups) FindGroup(_ context.Context, id string) (*group.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, shared.ErrGroupNotFound
	}
	return &g, nil
}

func (m *memGroups) ListGroups(_ context.Context) ([]*group.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*group.Group
	for _, g := range m.groups {
		g := g
		out = append(out, &g)
	}
	return out, nil
}

func (m *memGroups) SaveHabit(_ context.Context, gh *group.Habit, expected int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.habits[gh.ID]; ok && cur.Version != expected {
		return shared.ConcurrencyError("group", "SaveHabit", expected)
	}
	m.habits[gh.ID] = cloneGroupHabit(gh)
	return nil
}

func (m *memGroups) FindHabit(_ context.Context, id string) (*group.Habit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gh, ok := m.habits[id]
	if !ok {
		return nil, shared.NotFoundError("group_habit", "Find", id)
	}
	return cloneGroupHabit(gh), nil
}

func (m *memGroups) FindHabitsByGroup(_ context.Context, groupID string) ([]*group.Habit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*group.Habit
	for _, gh := range m.habits {
		if gh.GroupID == groupID {
			out = append(out, cloneGroupHabit(gh))
		}
	}
	return out, nil
}

func cloneGroupHabit(gh *group.Habit) *group.Habit {
	cp := *gh
	cp.MemberDays = make(map[timeutil.Date]map[string]habit.DayProgress, len(gh.MemberDays))
	for d, members := range gh.MemberDays {
		inner := make(map[string]habit.DayProgress, len(members))
		for id, p := range members {
			p.CompletedTasks = append([]string(nil), p.CompletedTasks...)
			inner[id] = p
		}
		cp.MemberDays[d] = inner
	}
	cp.WeeklyMemberFlags = make(map[timeutil.Date]map[string]bool, len(gh.WeeklyMemberFlags))
	for w, flags := range gh.WeeklyMemberFlags {
		inner := make(map[string]bool, len(flags))
		for id, v := range flags {
			inner[id] = v
		}
		cp.WeeklyMemberFlags[w] = inner
	}
	cp.SavedDates = append([]timeutil.Date(nil), gh.SavedDates...)
	return &cp
}

type recorder struct {
	mu     sync.Mutex
	events []shared.Event
}

func (r *recorder) Publish(ev shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []shared.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]shared.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.EventType())
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURE
// ══════════════════════════════════════════════════════════════════════════════

type fixture struct {
	habits  *memHabits
	periods *memPeriods
	cache   *memCache
	savers  *memSavers
	groups  *memGroups
	events  *recorder
	engine  *Engine
	now     time.Time
	ids     int
}

func newFixture(today string, hs ...*habit.Habit) *fixture {
	f := &fixture{
		habits:  newMemHabits(hs...),
		periods: newMemPeriods(),
		cache:   newMemCache(),
		groups:  newMemGroups(),
		events:  &recorder{},
	}
	f.savers = newMemSavers(f.habits, f.groups)
	f.setToday(today)

	cfg := DefaultEngineConfig()
	cfg.Location = time.UTC
	cfg.Clock = func() time.Time { return f.now }
	cfg.NewID = func() string {
		f.ids++
		return "id-" + string(rune('a'+f.ids-1))
	}
	f.engine = NewEngine(f.habits, holiday.NewManager(f.periods, f.cache), f.savers, cfg)
	return f
}

// setToday moves the clock to noon UTC of the given date.
func (f *fixture) setToday(d string) {
	f.now = timeutil.MustDate(d).In(time.UTC).Add(12 * time.Hour)
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

// newDailyHabit builds a one-task daily habit completed on every date in done.
func newDailyHabit(id, owner, created string, done ...string) *habit.Habit {
	h, err := habit.NewHabit(habit.NewHabitParams{
		ID:        id,
		OwnerID:   owner,
		Name:      "Read",
		Tasks:     []habit.Task{{ID: "t1", Label: "Read 10 pages"}},
		CreatedAt: timeutil.MustDate(created),
	})
	if err != nil {
		panic(err)
	}
	last := timeutil.MustDate(created)
	for _, d := range done {
		if dd := timeutil.MustDate(d); dd.After(last) {
			last = dd
		}
	}
	for _, d := range done {
		if _, err := h.ToggleTask(timeutil.MustDate(d), "t1", last); err != nil {
			panic(err)
		}
	}
	return h
}

// dateRange lists every date from..to inclusive.
func dateRange(from, to string) []string {
	var out []string
	timeutil.EachDay(timeutil.MustDate(from), timeutil.MustDate(to), func(d timeutil.Date) bool {
		out = append(out, d.String())
		return true
	})
	return out
}
