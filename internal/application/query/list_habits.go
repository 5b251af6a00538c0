package query

import (
	"context"

	"github.com/alem-hub/streakhub/internal/domain/habit"
	"github.com/alem-hub/streakhub/internal/domain/holiday"
	"github.com/alem-hub/streakhub/internal/domain/progression"
	"github.com/alem-hub/streakhub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST HABITS QUERY
// Краткая сводка по всем привычкам пользователя на сегодня.
// ══════════════════════════════════════════════════════════════════════════════

// HabitSummaryDTO - строка списка привычек.
type HabitSummaryDTO struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Frequency habit.FrequencyKind `json:"frequency"`
	Ratio     float64             `json:"ratio"`
	DoneToday bool                `json:"done_today"`
	Frozen    bool                `json:"frozen"`
	Streak    int                 `json:"streak"`
	Best      int                 `json:"best"`
	Tier      string              `json:"tier"`
	TotalXP   int                 `json:"total_xp"`
}

// ListHabitsHandler обрабатывает запрос.
type ListHabitsHandler struct {
	habits   habit.Repository
	holidays *holiday.Manager
	config   Config
}

// NewListHabitsHandler создаёт новый обработчик.
func NewListHabitsHandler(habits habit.Repository, holidays *holiday.Manager, config Config) *ListHabitsHandler {
	return &ListHabitsHandler{habits: habits, holidays: holidays, config: config.withDefaults()}
}

// Handle возвращает привычки владельца в порядке хранилища.
func (h *ListHabitsHandler) Handle(ctx context.Context, ownerID string) ([]HabitSummaryDTO, error) {
	if ownerID == "" {
		return nil, shared.ValidationError("query", "ListHabits", "owner_id is required")
	}

	habits, err := h.habits.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	ix, err := h.holidays.Index(ctx, ownerID)
	if err != nil {
		return nil, shared.WrapError("query", "ListHabits", shared.ErrServiceUnavailable, "freeze index unavailable", err)
	}

	_, today := h.config.now()
	policy := h.config.Policies.For(progression.ScopeHabit)

	out := make([]HabitSummaryDTO, 0, len(habits))
	for _, hb := range habits {
		c := habit.EvaluateWithFreeze(hb.Tasks, hb.Day(today), ix.Resolve(hb.ID, today))
		res := habit.CalculateStreak(hb, ix.FreezeFunc(hb.ID), today)
		out = append(out, HabitSummaryDTO{
			ID:        hb.ID,
			Name:      hb.Name,
			Frequency: hb.Frequency.Kind,
			Ratio:     c.Ratio,
			DoneToday: c.AllCompleted,
			Frozen:    c.Frozen,
			Streak:    res.Current,
			Best:      max(res.Best, hb.BestStreak),
			Tier:      policy.TierFor(res.Current).Tier.Name,
			TotalXP:   hb.TotalXP,
		})
	}
	return out, nil
}
