package progression

import (
	"math"
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// XP AWARD
// ══════════════════════════════════════════════════════════════════════════════

// Action - квалифицирующее действие: день стал полностью выполненным.
type Action struct {
	// CompletedTasks - число выполненных задач; 0 для привычки без задач.
	CompletedTasks int

	// HasTasks - у привычки есть задачи.
	HasTasks bool

	// Streak - серия после действия; определяет бонус.
	Streak int

	// TierValue - значение для поиска тира (серия для привычек, уровень для групп).
	TierValue int
}

// Award - начисление XP с разбивкой.
type Award struct {
	BaseXP      int
	StreakBonus int
	Multiplier  float64
	Tier        string
	Amount      int
}

// AwardXP считает XP: round((baseXP + streakBonus) * multiplier).
func (p Policy) AwardXP(a Action) Award {
	base := p.BinaryXP
	if a.HasTasks {
		base = a.CompletedTasks * p.BaseXPPerTask
	}

	bonus := p.StreakBonus(a.Streak)
	tier := p.TierFor(a.TierValue).Tier

	return Award{
		BaseXP:      base,
		StreakBonus: bonus,
		Multiplier:  tier.Multiplier,
		Tier:        tier.Name,
		Amount:      int(math.Round(float64(base+bonus) * tier.Multiplier)),
	}
}

// StreakBonus возвращает бонус за серию: floor(streak / 7) * 5, только при streak > 7.
func (p Policy) StreakBonus(streak int) int {
	if p.BonusEvery <= 0 || streak <= p.BonusEvery {
		return 0
	}
	return (streak / p.BonusEvery) * p.BonusXP
}

// ══════════════════════════════════════════════════════════════════════════════
// MILESTONES
// ══════════════════════════════════════════════════════════════════════════════

// DefaultMilestones - серии, за которые выдаётся событие milestone.
var DefaultMilestones = []int{7, 30, 100, 365}

// CrossedMilestones возвращает вехи, пересечённые при переходе серии from -> to.
func CrossedMilestones(milestones []int, from, to int) []int {
	if to <= from {
		return nil
	}
	sorted := append([]int(nil), milestones...)
	sort.Ints(sorted)

	var out []int
	for _, m := range sorted {
		if m > from && m <= to {
			out = append(out, m)
		}
	}
	return out
}
