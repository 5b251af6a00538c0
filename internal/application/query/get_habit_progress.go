// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/streakhub/internal/domain/habit"
	"github.com/alem-hub/streakhub/internal/domain/holiday"
	"github.com/alem-hub/streakhub/internal/domain/progression"
	"github.com/alem-hub/streakhub/internal/domain/saver"
	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET HABIT PROGRESS QUERY
// Собирает всё, что нужно экрану привычки: выполнение дня, серию, тир,
// недельную сводку, прогресс к цели и доступность спасителя.
// Запрос только читает: серия пересчитывается в памяти и не сохраняется.
// ══════════════════════════════════════════════════════════════════════════════

// Config - общие настройки запросов.
type Config struct {
	// Location - часовой пояс пользователя для ключей дат.
	Location *time.Location

	// Clock возвращает текущее время (по умолчанию time.Now).
	Clock func() time.Time

	Policies    progression.Policies
	Goal        habit.GoalPolicy
	SaverWindow time.Duration

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Policies == nil {
		c.Policies = progression.DefaultPolicies()
	}
	if c.SaverWindow <= 0 {
		c.SaverWindow = saver.DefaultWindow
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// now возвращает текущий момент и локальную дату.
func (c Config) now() (time.Time, timeutil.Date) {
	now := c.Clock()
	return now, timeutil.DateOf(now, c.Location)
}

// GetHabitProgressQuery содержит параметры запроса.
type GetHabitProgressQuery struct {
	// HabitID - ID привычки.
	HabitID string

	// Date - день для отображения выполнения (пустая = сегодня).
	Date timeutil.Date
}

// Validate проверяет корректность параметров.
func (q GetHabitProgressQuery) Validate() error {
	if q.HabitID == "" {
		return shared.ValidationError("query", "GetHabitProgress", "habit_id is required")
	}
	if q.Date != "" && q.Date.IsZero() {
		return shared.ValidationError("query", "GetHabitProgress", fmt.Sprintf("invalid date %q", q.Date))
	}
	return nil
}

// TaskDTO - задача с отметкой за день.
type TaskDTO struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Done   bool   `json:"done"`
	Frozen bool   `json:"frozen"`

	// Unknown - отметка ссылается на задачу, которой больше нет в привычке.
	Unknown bool `json:"unknown,omitempty"`
}

// StreakDTO - серия на сегодня.
type StreakDTO struct {
	Current int  `json:"current"`
	Best    int  `json:"best"`
	Weekly  bool `json:"weekly"`

	// BrokenOn - день, на котором оборвалась серия (пусто, если не обрывалась).
	BrokenOn timeutil.Date `json:"broken_on,omitempty"`

	// Previous - длина серии до обрыва.
	Previous int `json:"previous,omitempty"`
}

// TierDTO - тир и прогресс до следующего.
type TierDTO struct {
	Name           string  `json:"name"`
	Multiplier     float64 `json:"multiplier"`
	Next           string  `json:"next,omitempty"`
	ProgressToNext float64 `json:"progress_to_next"`
}

// EligibilityDTO - можно ли сейчас спасти серию.
type EligibilityDTO struct {
	CanSave        bool          `json:"can_save"`
	Reason         string        `json:"reason,omitempty"`
	Message        string        `json:"message,omitempty"`
	LastBreakDate  timeutil.Date `json:"last_break_date,omitempty"`
	Available      int           `json:"available"`
	ExpiresAt      *time.Time    `json:"expires_at,omitempty"`
	CanAcquireMore bool          `json:"can_acquire_more,omitempty"`
}

// HabitProgressDTO - представление привычки на дату.
type HabitProgressDTO struct {
	HabitID   string              `json:"habit_id"`
	Name      string              `json:"name"`
	Kind      habit.Kind          `json:"kind"`
	Frequency habit.FrequencyKind `json:"frequency"`
	Date      timeutil.Date       `json:"date"`
	IsToday   bool                `json:"is_today"`

	// ─────────────────────────────────────────────────────────────────────────
	// Выполнение дня
	// ─────────────────────────────────────────────────────────────────────────

	Tasks        []TaskDTO `json:"tasks,omitempty"`
	Ratio        float64   `json:"ratio"`
	AllCompleted bool      `json:"all_completed"`
	Frozen       bool      `json:"frozen"`
	FreezeMode   string    `json:"freeze_mode"`
	Saved        bool      `json:"saved"`

	// ─────────────────────────────────────────────────────────────────────────
	// Прогрессия
	// ─────────────────────────────────────────────────────────────────────────

	Streak  StreakDTO `json:"streak"`
	Tier    TierDTO   `json:"tier"`
	TotalXP int       `json:"total_xp"`

	Weekly      *habit.WeeklyStatus `json:"weekly,omitempty"`
	Goal        *habit.GoalProgress `json:"goal,omitempty"`
	Eligibility EligibilityDTO      `json:"eligibility"`

	// Stale - сохранённая серия расходится с пересчитанной;
	// фоновая задача или следующая запись её обновит.
	Stale bool `json:"stale,omitempty"`
}

// GetHabitProgressHandler обрабатывает запрос.
type GetHabitProgressHandler struct {
	habits   habit.Repository
	holidays *holiday.Manager
	savers   saver.Store
	config   Config
}

// NewGetHabitProgressHandler создаёт новый обработчик. savers может быть nil.
func NewGetHabitProgressHandler(habits habit.Repository, holidays *holiday.Manager, savers saver.Store, config Config) *GetHabitProgressHandler {
	return &GetHabitProgressHandler{
		habits:   habits,
		holidays: holidays,
		savers:   savers,
		config:   config.withDefaults(),
	}
}

// Handle выполняет запрос.
func (h *GetHabitProgressHandler) Handle(ctx context.Context, q GetHabitProgressQuery) (*HabitProgressDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	hb, err := h.habits.FindByID(ctx, q.HabitID)
	if err != nil {
		return nil, err
	}
	ix, err := h.holidays.Index(ctx, hb.OwnerID)
	if err != nil {
		return nil, shared.WrapError("query", "GetHabitProgress", shared.ErrServiceUnavailable, "freeze index unavailable", err)
	}

	now, today := h.config.now()
	date := q.Date
	if date == "" {
		date = today
	}

	freeze := ix.Resolve(hb.ID, date)
	c := habit.EvaluateWithFreeze(hb.Tasks, hb.Day(date), freeze)

	dto := &HabitProgressDTO{
		HabitID:      hb.ID,
		Name:         hb.Name,
		Kind:         hb.Kind,
		Frequency:    hb.Frequency.Kind,
		Date:         date,
		IsToday:      date == today,
		Tasks:        buildTasks(hb, date, freeze, c),
		Ratio:        c.Ratio,
		AllCompleted: c.AllCompleted,
		Frozen:       c.Frozen,
		FreezeMode:   freeze.Mode.String(),
		Saved:        hb.IsSaved(date),
		TotalXP:      hb.TotalXP,
	}

	// Серия и тир - всегда на сегодня, независимо от просматриваемого дня
	freezeFn := ix.FreezeFunc(hb.ID)
	res := habit.CalculateStreak(hb, freezeFn, today)
	dto.Streak = StreakDTO{
		Current:  res.Current,
		Best:     max(res.Best, hb.BestStreak),
		Weekly:   res.Weekly,
		BrokenOn: res.BrokenOn,
		Previous: res.Previous,
	}
	dto.Stale = res.Current != hb.CurrentStreak
	dto.Tier = buildTier(h.config.Policies.For(progression.ScopeHabit).TierFor(res.Current))

	if hb.IsWeekly() {
		w := hb.Weekly(today, h.config.Location, freezeFn)
		dto.Weekly = &w
	}
	if hb.DurationGoalDays > 0 {
		g := habit.CalculateGoalProgress(hb, freezeFn, today, h.config.Goal)
		dto.Goal = &g
	}

	if h.savers != nil {
		e, err := eligibility(ctx, h.savers, hb.ID, hb.OwnerID, saver.ScopePersonal, now, h.config.SaverWindow)
		if err != nil {
			return nil, err
		}
		dto.Eligibility = e
	}
	return dto, nil
}

// buildTasks возвращает задачи привычки и отметки неизвестных задач.
func buildTasks(hb *habit.Habit, date timeutil.Date, freeze holiday.Freeze, c habit.Completion) []TaskDTO {
	day := hb.Day(date)
	out := make([]TaskDTO, 0, len(hb.Tasks)+len(c.Unknown))
	for _, t := range hb.Tasks {
		out = append(out, TaskDTO{
			ID:     t.ID,
			Label:  t.Label,
			Done:   day.Has(t.ID),
			Frozen: freeze.Entire() || freeze.TaskFrozen(t.ID),
		})
	}
	for _, id := range c.Unknown {
		out = append(out, TaskDTO{ID: id, Label: habit.UnknownTaskLabel(id), Done: true, Unknown: true})
	}
	return out
}

func buildTier(st progression.TierStatus) TierDTO {
	dto := TierDTO{
		Name:           st.Tier.Name,
		Multiplier:     st.Tier.Multiplier,
		ProgressToNext: st.ProgressToNext,
	}
	if st.Next != nil {
		dto.Next = st.Next.Name
	}
	return dto
}
