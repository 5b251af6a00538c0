// Package group содержит групповые привычки.
// Структура повторяет habit, но выполнение хранится по участникам и агрегируется:
// день группы выполнен, только если его выполнил каждый текущий участник.
package group

import (
	"context"
	"strings"
	"time"

	"github.com/alem-hub/streakhub/internal/domain/habit"
	"github.com/alem-hub/streakhub/internal/domain/progression"
	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GROUP
// ══════════════════════════════════════════════════════════════════════════════

// Group - команда пользователей с общим XP и уровнем.
type Group struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`

	TotalXP int    `json:"total_xp"`
	Level   int    `json:"level"`
	Tier    string `json:"tier,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// NewGroup создаёт группу с валидацией.
func NewGroup(id, name string, members []string, now time.Time) (*Group, error) {
	g := &Group{ID: id, Name: strings.TrimSpace(name), Level: 1, CreatedAt: now}
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		g.Members = append(g.Members, m)
	}

	if g.ID == "" {
		return nil, shared.NewDomainError("group", "New", shared.ErrInvalidID, "group id is required")
	}
	if g.Name == "" || len(g.Members) == 0 {
		return nil, shared.ValidationError("group", "New", "group needs a name and at least one member")
	}
	return g, nil
}

// IsMember проверяет членство пользователя.
func (g *Group) IsMember(userID string) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// AddXP начисляет XP группе по таблице уровней и обновляет тир по уровню.
func (g *Group) AddXP(amount int, table progression.LevelTable, policy progression.Policy) progression.LevelChange {
	change := table.Apply(g.TotalXP, amount)
	g.TotalXP = change.NewXP
	g.Level = change.NewLevel
	g.Tier = policy.TierFor(g.Level).Tier.Name
	return change
}

// ══════════════════════════════════════════════════════════════════════════════
// GROUP HABIT
// ══════════════════════════════════════════════════════════════════════════════

// Habit - групповая привычка.
type Habit struct {
	ID        string          `json:"id"`
	GroupID   string          `json:"group_id"`
	Name      string          `json:"name"`
	Tasks     []habit.Task    `json:"tasks,omitempty"`
	Frequency habit.Frequency `json:"frequency"`

	// MemberDays - прогресс каждого участника по датам.
	MemberDays map[timeutil.Date]map[string]habit.DayProgress `json:"member_days"`

	// WeeklyMemberFlags - участник выполнил неделю (ключ - понедельник недели).
	// Флаг ставится при первом выполнении и не снимается до конца недели.
	WeeklyMemberFlags map[timeutil.Date]map[string]bool `json:"weekly_member_flags,omitempty"`

	CurrentStreak int             `json:"current_streak"`
	BestStreak    int             `json:"best_streak"`
	SavedDates    []timeutil.Date `json:"saved_dates,omitempty"`
	CreatedAt     timeutil.Date   `json:"created_at"`

	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewHabit создаёт групповую привычку.
func NewHabit(id, groupID, name string, tasks []habit.Task, freq habit.Frequency, createdAt timeutil.Date) (*Habit, error) {
	if freq.Kind == "" {
		freq = habit.Daily()
	}
	// валидация через обычную привычку: те же правила для задач и расписания
	if _, err := habit.NewHabit(habit.NewHabitParams{
		ID: id, OwnerID: groupID, Name: name, Tasks: tasks, Frequency: freq, CreatedAt: createdAt,
	}); err != nil {
		return nil, err
	}
	return &Habit{
		ID:                id,
		GroupID:           groupID,
		Name:              strings.TrimSpace(name),
		Tasks:             tasks,
		Frequency:         freq,
		MemberDays:        make(map[timeutil.Date]map[string]habit.DayProgress),
		WeeklyMemberFlags: make(map[timeutil.Date]map[string]bool),
		CreatedAt:         createdAt,
	}, nil
}

// memberView собирает обычную привычку из дней одного участника.
func (gh *Habit) memberView(memberID string) *habit.Habit {
	h := &habit.Habit{
		ID:        gh.ID,
		OwnerID:   memberID,
		Name:      gh.Name,
		Kind:      habit.KindGood,
		Tasks:     gh.Tasks,
		Frequency: gh.Frequency,
		Days:      make(map[timeutil.Date]habit.DayProgress),
		CreatedAt: gh.CreatedAt,
	}
	for d, members := range gh.MemberDays {
		if p, ok := members[memberID]; ok {
			h.Days[d] = p
		}
	}
	return h
}

// ToggleTask переключает задачу участника. Пустой taskID переключает день целиком.
func (gh *Habit) ToggleTask(g *Group, memberID string, date timeutil.Date, taskID string, today timeutil.Date) (habit.Transition, error) {
	if !g.IsMember(memberID) {
		return habit.Transition{}, shared.ErrNotGroupMember
	}

	view := gh.memberView(memberID)
	wasGroup := gh.completedOn(g, date)

	var (
		tr  habit.Transition
		err error
	)
	if taskID == "" {
		tr, err = view.ToggleDay(date, today)
	} else {
		tr, err = view.ToggleTask(date, taskID, today)
	}
	if err != nil {
		return habit.Transition{}, err
	}

	if gh.MemberDays == nil {
		gh.MemberDays = make(map[timeutil.Date]map[string]habit.DayProgress)
	}
	if p, ok := view.Days[date]; ok {
		if gh.MemberDays[date] == nil {
			gh.MemberDays[date] = make(map[string]habit.DayProgress)
		}
		gh.MemberDays[date][memberID] = p
	} else if members := gh.MemberDays[date]; members != nil {
		delete(members, memberID)
		if len(members) == 0 {
			delete(gh.MemberDays, date)
		}
	}

	if tr.NowCompleted {
		gh.flagWeek(memberID, date)
	}

	// для группы переход считается по агрегату, а не по участнику
	tr.WasCompleted = wasGroup
	tr.NowCompleted = gh.completedOn(g, date)
	return tr, nil
}

// completedOn - выполнен ли агрегат: неделя для weekly, иначе день.
func (gh *Habit) completedOn(g *Group, date timeutil.Date) bool {
	if gh.Frequency.Kind == habit.FrequencyWeekly {
		return gh.IsWeekCompleted(g, date)
	}
	return gh.DayStatus(g, date).AllCompleted
}

func (gh *Habit) flagWeek(memberID string, date timeutil.Date) {
	week := timeutil.WeekStart(date)
	if gh.WeeklyMemberFlags == nil {
		gh.WeeklyMemberFlags = make(map[timeutil.Date]map[string]bool)
	}
	if gh.WeeklyMemberFlags[week] == nil {
		gh.WeeklyMemberFlags[week] = make(map[string]bool)
	}
	gh.WeeklyMemberFlags[week][memberID] = true
}

// MarkSaved отмечает пропуск группы как закрытый спасителем.
func (gh *Habit) MarkSaved(d timeutil.Date) {
	for _, s := range gh.SavedDates {
		if s == d {
			return
		}
	}
	gh.SavedDates = append(gh.SavedDates, d)
}

// Streak возвращает текущую серию группы.
func (gh *Habit) Streak() int {
	return gh.CurrentStreak
}

// RestoreStreak выставляет серию после применения спасителя.
func (gh *Habit) RestoreStreak(current int) {
	gh.ApplyStreak(habit.StreakResult{Current: current})
}

// ApplyStreak записывает результат расчёта; лучшая серия не уменьшается.
func (gh *Habit) ApplyStreak(r habit.StreakResult) {
	gh.CurrentStreak = r.Current
	gh.BestStreak = max(gh.BestStreak, r.Best, r.Current)
}

// Touch увеличивает версию записи.
func (gh *Habit) Touch(now time.Time) {
	gh.Version++
	gh.UpdatedAt = now
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// Repository - хранилище групп и групповых привычек.
type Repository interface {
	SaveGroup(ctx context.Context, g *Group, expectedVersion int64) error
	FindGroup(ctx context.Context, id string) (*Group, error)
	ListGroups(ctx context.Context) ([]*Group, error)

	SaveHabit(ctx context.Context, gh *Habit, expectedVersion int64) error
	FindHabit(ctx context.Context, id string) (*Habit, error)
	FindHabitsByGroup(ctx context.Context, groupID string) ([]*Habit, error)
}
