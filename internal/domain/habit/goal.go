package habit

import (
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

// GoalPolicy - правила подсчёта прогресса к цели по длительности.
type GoalPolicy struct {
	// CountFrozenTowardGoal - засчитывать ли полностью замороженные дни в цель.
	CountFrozenTowardGoal bool
}

// GoalProgress - прогресс привычки к цели.
type GoalProgress struct {
	Target    int
	Completed int
	Frozen    int
	// Counted - дни, засчитанные в цель (Completed, плюс Frozen при включённой политике).
	Counted int
	Percent float64
	Reached bool
}

// CalculateGoalProgress считает прогресс к DurationGoalDays с createdAt по today.
// Закрытые спасителем дни засчитываются как выполненные.
func CalculateGoalProgress(h *Habit, freeze FreezeFunc, today timeutil.Date, policy GoalPolicy) GoalProgress {
	if freeze == nil {
		freeze = NoFreezes
	}
	g := GoalProgress{Target: h.DurationGoalDays}
	if h.CreatedAt.IsZero() || h.CreatedAt.After(today) {
		return g
	}

	timeutil.EachDay(h.CreatedAt, today, func(d timeutil.Date) bool {
		switch ClassifyDay(h, d, freeze(d), today) {
		case DayCompleted:
			g.Completed++
		case DayFrozen:
			g.Frozen++
		}
		return true
	})

	g.Counted = g.Completed
	if policy.CountFrozenTowardGoal {
		g.Counted += g.Frozen
	}

	if g.Target > 0 {
		g.Percent = min(float64(g.Counted)/float64(g.Target), 1) * 100
		g.Reached = g.Counted >= g.Target
	}
	return g
}
