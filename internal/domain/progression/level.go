package progression

import (
	"sort"

	"github.com/alem-hub/streakhub/internal/domain/shared"
)

// LevelTable - явная таблица порогов накопленного XP группы.
// Thresholds[i] - XP, необходимый для уровня i+1. Не связана с тирами привычек.
type LevelTable struct {
	Thresholds []int
}

// DefaultLevelTable возвращает таблицу уровней групп по умолчанию.
func DefaultLevelTable() LevelTable {
	return LevelTable{Thresholds: []int{
		0, 100, 250, 500, 900, 1400, 2000, 2800, 3800, 5000,
		6500, 8200, 10000, 12000, 14500, 17500, 21000, 25000, 30000, 36000,
	}}
}

// Validate проверяет, что таблица начинается с 0 и строго возрастает.
func (t LevelTable) Validate() error {
	if len(t.Thresholds) == 0 || t.Thresholds[0] != 0 {
		return shared.NewDomainError("progression", "LevelTable", shared.ErrInvalidInput, "level table must start at 0 XP")
	}
	for i := 1; i < len(t.Thresholds); i++ {
		if t.Thresholds[i] <= t.Thresholds[i-1] {
			return shared.NewDomainError("progression", "LevelTable", shared.ErrValueOutOfRange, "level thresholds must increase")
		}
	}
	return nil
}

// MaxLevel возвращает верхний уровень таблицы.
func (t LevelTable) MaxLevel() int {
	return len(t.Thresholds)
}

// LevelFor возвращает уровень для накопленного XP (минимум 1).
func (t LevelTable) LevelFor(xp int) int {
	n := sort.Search(len(t.Thresholds), func(i int) bool { return t.Thresholds[i] > xp })
	if n < 1 {
		return 1
	}
	return n
}

// ProgressToNext возвращает прогресс до следующего уровня в процентах.
// На максимальном уровне всегда 100.
func (t LevelTable) ProgressToNext(xp int) float64 {
	level := t.LevelFor(xp)
	if level >= t.MaxLevel() {
		return 100
	}
	floor := t.Thresholds[level-1]
	next := t.Thresholds[level]
	return clamp01(float64(xp-floor)/float64(next-floor)) * 100
}

// LevelChange - результат начисления XP группе.
type LevelChange struct {
	OldXP    int
	NewXP    int
	OldLevel int
	NewLevel int
}

// LeveledUp возвращает true, если XP пересёк границу уровня.
func (c LevelChange) LeveledUp() bool {
	return c.NewLevel > c.OldLevel
}

// Apply начисляет XP и возвращает изменение уровня.
func (t LevelTable) Apply(currentXP, award int) LevelChange {
	if award < 0 {
		award = 0
	}
	return LevelChange{
		OldXP:    currentXP,
		NewXP:    currentXP + award,
		OldLevel: t.LevelFor(currentXP),
		NewLevel: t.LevelFor(currentXP + award),
	}
}
