package query

import (
	"context"

	"github.com/alem-hub/streakhub/internal/domain/group"
	"github.com/alem-hub/streakhub/internal/domain/progression"
	"github.com/alem-hub/streakhub/internal/domain/saver"
	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET GROUP PROGRESS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// MemberDTO - выполнение дня одним участником.
type MemberDTO struct {
	ID        string `json:"id"`
	DoneToday bool   `json:"done_today"`
	WeekFlag  bool   `json:"week_flag"`
}

// GroupProgressDTO - представление групповой привычки на сегодня.
type GroupProgressDTO struct {
	GroupID   string        `json:"group_id"`
	GroupName string        `json:"group_name"`
	HabitID   string        `json:"habit_id"`
	HabitName string        `json:"habit_name"`
	Date      timeutil.Date `json:"date"`

	Members       []MemberDTO `json:"members"`
	Ratio         float64     `json:"ratio"`
	DayCompleted  bool        `json:"day_completed"`
	WeekCompleted bool        `json:"week_completed"`

	Streak StreakDTO `json:"streak"`

	Level         int     `json:"level"`
	TotalXP       int     `json:"total_xp"`
	LevelProgress float64 `json:"level_progress"`
	Tier          TierDTO `json:"tier"`

	Eligibility EligibilityDTO `json:"eligibility"`
}

// GetGroupProgressHandler обрабатывает запрос.
type GetGroupProgressHandler struct {
	groups group.Repository
	savers saver.Store
	table  progression.LevelTable
	config Config
}

// NewGetGroupProgressHandler создаёт новый обработчик. savers может быть nil.
func NewGetGroupProgressHandler(groups group.Repository, savers saver.Store, table progression.LevelTable, config Config) *GetGroupProgressHandler {
	if len(table.Thresholds) == 0 {
		table = progression.DefaultLevelTable()
	}
	return &GetGroupProgressHandler{groups: groups, savers: savers, table: table, config: config.withDefaults()}
}

// Handle выполняет запрос по ID групповой привычки.
func (h *GetGroupProgressHandler) Handle(ctx context.Context, groupHabitID string) (*GroupProgressDTO, error) {
	if groupHabitID == "" {
		return nil, shared.ValidationError("query", "GetGroupProgress", "group_habit_id is required")
	}

	gh, err := h.groups.FindHabit(ctx, groupHabitID)
	if err != nil {
		return nil, err
	}
	g, err := h.groups.FindGroup(ctx, gh.GroupID)
	if err != nil {
		return nil, err
	}

	now, today := h.config.now()
	day := gh.DayStatus(g, today)
	week := timeutil.WeekStart(today)
	res := gh.CalculateStreak(g, today)

	dto := &GroupProgressDTO{
		GroupID:       g.ID,
		GroupName:     g.Name,
		HabitID:       gh.ID,
		HabitName:     gh.Name,
		Date:          today,
		Ratio:         day.Ratio,
		DayCompleted:  day.AllCompleted,
		WeekCompleted: gh.IsWeekCompleted(g, today),
		Streak: StreakDTO{
			Current:  res.Current,
			Best:     max(res.Best, gh.BestStreak),
			Weekly:   res.Weekly,
			BrokenOn: res.BrokenOn,
			Previous: res.Previous,
		},
		Level:         g.Level,
		TotalXP:       g.TotalXP,
		LevelProgress: h.table.ProgressToNext(g.TotalXP),
		Tier:          buildTier(h.config.Policies.For(progression.ScopeGroup).TierFor(g.Level)),
	}

	for _, m := range g.Members {
		single := &group.Group{ID: g.ID, Members: []string{m}}
		dto.Members = append(dto.Members, MemberDTO{
			ID:        m,
			DoneToday: gh.DayStatus(single, today).AllCompleted,
			WeekFlag:  gh.MemberFlagged(week, m),
		})
	}

	if h.savers != nil {
		e, err := eligibility(ctx, h.savers, gh.ID, g.ID, saver.ScopeTeam, now, h.config.SaverWindow)
		if err != nil {
			return nil, err
		}
		dto.Eligibility = e
	}
	return dto, nil
}
