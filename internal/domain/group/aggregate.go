package group

import (
	"github.com/alem-hub/streakhub/internal/domain/habit"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

// DayStatus - агрегированный статус дня группы.
type DayStatus struct {
	Completed    int
	Members      int
	Ratio        float64
	AllCompleted bool
}

// DayStatus считает, сколько текущих участников выполнили день.
// Бывшие участники не учитываются.
func (gh *Habit) DayStatus(g *Group, date timeutil.Date) DayStatus {
	st := DayStatus{Members: len(g.Members)}
	if st.Members == 0 {
		return st
	}

	days := gh.MemberDays[date]
	for _, m := range g.Members {
		if habit.Evaluate(gh.Tasks, days[m]).AllCompleted {
			st.Completed++
		}
	}
	st.Ratio = float64(st.Completed) / float64(st.Members)
	st.AllCompleted = st.Completed == st.Members
	return st
}

// MemberFlagged возвращает true, если участник выполнил неделю, начинающуюся с weekStart.
func (gh *Habit) MemberFlagged(weekStart timeutil.Date, memberID string) bool {
	return gh.WeeklyMemberFlags[weekStart][memberID]
}

// IsWeekCompleted возвращает true, если каждый текущий участник отмечен за неделю.
func (gh *Habit) IsWeekCompleted(g *Group, date timeutil.Date) bool {
	if len(g.Members) == 0 {
		return false
	}
	week := timeutil.WeekStart(date)
	for _, m := range g.Members {
		if !gh.MemberFlagged(week, m) {
			return false
		}
	}
	return true
}

// Projection сворачивает групповую привычку в обычную бинарную привычку,
// чтобы использовать тот же расчёт серии.
// Для weekly выполненная неделя помечается первым днём окна недели.
func (gh *Habit) Projection(g *Group, today timeutil.Date) *habit.Habit {
	h := &habit.Habit{
		ID:            gh.ID,
		OwnerID:       gh.GroupID,
		Name:          gh.Name,
		Kind:          habit.KindGood,
		Frequency:     gh.Frequency,
		Days:          make(map[timeutil.Date]habit.DayProgress),
		CurrentStreak: gh.CurrentStreak,
		BestStreak:    gh.BestStreak,
		CreatedAt:     gh.CreatedAt,
	}
	for _, d := range gh.SavedDates {
		h.MarkSaved(d)
	}

	if gh.Frequency.Kind == habit.FrequencyWeekly {
		for week := range gh.WeeklyMemberFlags {
			if !gh.IsWeekCompleted(g, week) {
				continue
			}
			if from, _, ok := timeutil.Clamp(week, week.AddDays(6), gh.CreatedAt, today); ok {
				h.Days[from] = habit.DayProgress{AllCompleted: true}
			}
		}
		return h
	}

	for d := range gh.MemberDays {
		if gh.DayStatus(g, d).AllCompleted {
			h.Days[d] = habit.DayProgress{AllCompleted: true}
		}
	}
	return h
}

// CalculateStreak считает серию группы на дату today.
func (gh *Habit) CalculateStreak(g *Group, today timeutil.Date) habit.StreakResult {
	return habit.CalculateStreak(gh.Projection(g, today), nil, today)
}
