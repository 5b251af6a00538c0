package habit

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alem-hub/streakhub/internal/domain/holiday"
	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Kind определяет тип привычки.
type Kind string

const (
	// KindGood - привычка, которую нужно выполнять.
	KindGood Kind = "good"
	// KindBad - привычка, от которой нужно воздерживаться; день засчитывается отметкой "удержался".
	KindBad Kind = "bad"
)

// IsValid проверяет корректность типа.
func (k Kind) IsValid() bool {
	return k == KindGood || k == KindBad
}

// FrequencyKind определяет периодичность привычки.
type FrequencyKind string

const (
	FrequencyDaily  FrequencyKind = "daily"
	FrequencyWeekly FrequencyKind = "weekly"
	FrequencyCustom FrequencyKind = "custom"
)

// Frequency описывает расписание привычки.
// Для custom задаётся явный набор дней недели.
type Frequency struct {
	Kind     FrequencyKind  `json:"kind"`
	Weekdays []time.Weekday `json:"weekdays,omitempty"`
}

// Daily возвращает ежедневное расписание.
func Daily() Frequency { return Frequency{Kind: FrequencyDaily} }

// Weekly возвращает еженедельное расписание.
func Weekly() Frequency { return Frequency{Kind: FrequencyWeekly} }

// Custom возвращает расписание по выбранным дням недели.
func Custom(days ...time.Weekday) Frequency {
	return Frequency{Kind: FrequencyCustom, Weekdays: days}
}

// Validate проверяет расписание.
func (f Frequency) Validate() error {
	switch f.Kind {
	case FrequencyDaily, FrequencyWeekly:
		return nil
	case FrequencyCustom:
		if len(f.Weekdays) == 0 {
			return shared.ErrInvalidFrequency
		}
		for _, d := range f.Weekdays {
			if d < time.Sunday || d > time.Saturday {
				return shared.ErrInvalidFrequency
			}
		}
		return nil
	default:
		return shared.ErrInvalidFrequency
	}
}

// IsScheduled возвращает true, если в этот день привычку нужно выполнять.
// Для weekly каждый день недели допустим - оценка идёт по неделе целиком.
func (f Frequency) IsScheduled(d timeutil.Date) bool {
	if f.Kind != FrequencyCustom {
		return true
	}
	wd := d.Weekday()
	for _, day := range f.Weekdays {
		if day == wd {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Task - подзадача привычки.
type Task struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// DayProgress - прогресс привычки за один день.
type DayProgress struct {
	// CompletedTasks - уникальные id выполненных задач.
	CompletedTasks []string `json:"completed_tasks,omitempty"`

	// AllCompleted - день выполнен полностью.
	// Для привычек без задач это явный флаг.
	AllCompleted bool `json:"all_completed"`
}

// Has проверяет, выполнена ли задача.
func (p DayProgress) Has(taskID string) bool {
	for _, id := range p.CompletedTasks {
		if id == taskID {
			return true
		}
	}
	return false
}

func (p DayProgress) with(taskID string) DayProgress {
	if p.Has(taskID) {
		return p
	}
	tasks := append(append([]string(nil), p.CompletedTasks...), taskID)
	sort.Strings(tasks)
	p.CompletedTasks = tasks
	return p
}

func (p DayProgress) without(taskID string) DayProgress {
	out := make([]string, 0, len(p.CompletedTasks))
	for _, id := range p.CompletedTasks {
		if id != taskID {
			out = append(out, id)
		}
	}
	p.CompletedTasks = out
	return p
}

// ══════════════════════════════════════════════════════════════════════════════
// HABIT ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Habit - основная сущность: привычка со своими днями и сериями.
type Habit struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	Category  string    `json:"category,omitempty"`
	Tasks     []Task    `json:"tasks,omitempty"`
	Frequency Frequency `json:"frequency"`

	// Days - прогресс по локальным датам.
	Days map[timeutil.Date]DayProgress `json:"days"`

	CurrentStreak int `json:"current_streak"`
	BestStreak    int `json:"best_streak"`

	// CompletedDates - даты, когда день был выполнен полностью.
	CompletedDates []timeutil.Date `json:"completed_dates,omitempty"`

	// SavedDates - даты пропусков, закрытые спасителем серии.
	// Задачи за эти дни не отмечаются, но серия считает их выполненными.
	SavedDates []timeutil.Date `json:"saved_dates,omitempty"`

	// DurationGoalDays - цель по количеству выполненных дней (0 - без цели).
	DurationGoalDays int `json:"duration_goal_days,omitempty"`

	CreatedAt timeutil.Date `json:"created_at"`

	// Прогрессия
	TotalXP int    `json:"total_xp"`
	Tier    string `json:"tier,omitempty"`

	// Version - версия для оптимистичной блокировки.
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewHabitParams - параметры для создания привычки.
type NewHabitParams struct {
	ID               string
	OwnerID          string
	Name             string
	Kind             Kind
	Category         string
	Tasks            []Task
	Frequency        Frequency
	DurationGoalDays int
	CreatedAt        timeutil.Date
}

// NewHabit создаёт новую привычку с валидацией.
func NewHabit(p NewHabitParams) (*Habit, error) {
	if p.Kind == "" {
		p.Kind = KindGood
	}
	if p.Frequency.Kind == "" {
		p.Frequency = Daily()
	}

	h := &Habit{
		ID:               p.ID,
		OwnerID:          p.OwnerID,
		Name:             strings.TrimSpace(p.Name),
		Kind:             p.Kind,
		Category:         p.Category,
		Tasks:            p.Tasks,
		Frequency:        p.Frequency,
		Days:             make(map[timeutil.Date]DayProgress),
		DurationGoalDays: p.DurationGoalDays,
		CreatedAt:        p.CreatedAt,
	}

	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// Validate проверяет инварианты привычки.
func (h *Habit) Validate() error {
	if h.ID == "" {
		return shared.NewDomainError("habit", "Validate", shared.ErrInvalidID, "habit id is required")
	}
	if h.Name == "" {
		return shared.ErrEmptyHabitName
	}
	if !h.Kind.IsValid() {
		return shared.ErrInvalidHabitKind
	}
	if err := h.Frequency.Validate(); err != nil {
		return err
	}
	if h.CreatedAt.IsZero() {
		return shared.NewDomainError("habit", "Validate", shared.ErrInvalidFormat, "creation date is required")
	}
	if h.DurationGoalDays < 0 {
		return shared.NewDomainError("habit", "Validate", shared.ErrNegativeValue, "duration goal cannot be negative")
	}
	seen := make(map[string]struct{}, len(h.Tasks))
	for _, t := range h.Tasks {
		if t.ID == "" {
			return shared.ValidationError("habit", "Validate", "task id is required")
		}
		if _, dup := seen[t.ID]; dup {
			return shared.ValidationError("habit", "Validate", fmt.Sprintf("duplicate task id %q", t.ID))
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}

// HasTask проверяет, принадлежит ли задача привычке.
func (h *Habit) HasTask(taskID string) bool {
	for _, t := range h.Tasks {
		if t.ID == taskID {
			return true
		}
	}
	return false
}

// TaskLabel возвращает название задачи.
// Для неизвестного id возвращается заглушка вместо ошибки.
func (h *Habit) TaskLabel(taskID string) string {
	for _, t := range h.Tasks {
		if t.ID == taskID {
			return t.Label
		}
	}
	return UnknownTaskLabel(taskID)
}

// UnknownTaskLabel - подпись для задачи, которой нет в привычке.
func UnknownTaskLabel(taskID string) string {
	return fmt.Sprintf("Unknown task (%s)", taskID)
}

// Day возвращает прогресс за дату; отсутствующий день - не выполнен.
func (h *Habit) Day(d timeutil.Date) DayProgress {
	return h.Days[d]
}

// IsWeekly возвращает true для недельных привычек.
func (h *Habit) IsWeekly() bool {
	return h.Frequency.Kind == FrequencyWeekly
}

// IsSaved проверяет, закрыт ли пропуск спасителем.
func (h *Habit) IsSaved(d timeutil.Date) bool {
	return containsDate(h.SavedDates, d)
}

// ══════════════════════════════════════════════════════════════════════════════
// TOGGLES
// ══════════════════════════════════════════════════════════════════════════════

// Transition описывает изменение статуса дня после переключения.
type Transition struct {
	Date           timeutil.Date
	WasCompleted   bool
	NowCompleted   bool
	CompletedTasks int
}

// Qualifies возвращает true, если день только что стал выполненным - за это начисляется XP.
func (t Transition) Qualifies() bool {
	return !t.WasCompleted && t.NowCompleted
}

// ToggleTask переключает отметку задачи за дату без учёта заморозки.
// Повторный вызов возвращает день в исходное состояние.
func (h *Habit) ToggleTask(date timeutil.Date, taskID string, today timeutil.Date) (Transition, error) {
	return h.ToggleTaskWithFreeze(date, taskID, today, holiday.NoFreeze)
}

// ToggleTaskWithFreeze переключает отметку задачи с учётом заморозки на эту дату:
// при заморозке отдельных задач день выполнен, когда выполнены все незамороженные.
func (h *Habit) ToggleTaskWithFreeze(date timeutil.Date, taskID string, today timeutil.Date, freeze holiday.Freeze) (Transition, error) {
	if err := h.checkDate("ToggleTask", date, today); err != nil {
		return Transition{}, err
	}
	if !h.HasTask(taskID) {
		return Transition{}, shared.WrapError("habit", "ToggleTask", shared.ErrValidation,
			fmt.Sprintf("habit %s has no task %q", h.ID, taskID), shared.ErrUnknownTask)
	}

	day := h.Days[date]
	if day.Has(taskID) {
		day = day.without(taskID)
	} else {
		day = day.with(taskID)
	}
	return h.store(date, day, freeze), nil
}

// SetTask выставляет отметку задачи явно; операция идемпотентна.
func (h *Habit) SetTask(date timeutil.Date, taskID string, done bool, today timeutil.Date) (Transition, error) {
	return h.SetTaskWithFreeze(date, taskID, done, today, holiday.NoFreeze)
}

// SetTaskWithFreeze - SetTask с учётом заморозки на эту дату.
func (h *Habit) SetTaskWithFreeze(date timeutil.Date, taskID string, done bool, today timeutil.Date, freeze holiday.Freeze) (Transition, error) {
	if err := h.checkDate("SetTask", date, today); err != nil {
		return Transition{}, err
	}
	if !h.HasTask(taskID) {
		return Transition{}, shared.WrapError("habit", "SetTask", shared.ErrValidation,
			fmt.Sprintf("habit %s has no task %q", h.ID, taskID), shared.ErrUnknownTask)
	}

	day := h.Days[date]
	if done {
		day = day.with(taskID)
	} else {
		day = day.without(taskID)
	}
	return h.store(date, day, freeze), nil
}

// ToggleDay переключает день целиком.
// Для привычки с задачами: если всё выполнено - снимает все отметки, иначе отмечает все задачи.
// Для привычки без задач переключает явный флаг.
func (h *Habit) ToggleDay(date timeutil.Date, today timeutil.Date) (Transition, error) {
	return h.ToggleDayWithFreeze(date, today, holiday.NoFreeze)
}

// ToggleDayWithFreeze - ToggleDay с учётом заморозки: "всё выполнено" считается
// по незамороженным задачам.
func (h *Habit) ToggleDayWithFreeze(date timeutil.Date, today timeutil.Date, freeze holiday.Freeze) (Transition, error) {
	if err := h.checkDate("ToggleDay", date, today); err != nil {
		return Transition{}, err
	}

	day := h.Days[date]
	if len(h.Tasks) == 0 {
		day.AllCompleted = !day.AllCompleted
		return h.store(date, day, freeze), nil
	}

	if judgeStored(h.Tasks, day, freeze).AllCompleted {
		day.CompletedTasks = nil
	} else {
		ids := make([]string, 0, len(h.Tasks))
		for _, t := range h.Tasks {
			ids = append(ids, t.ID)
		}
		sort.Strings(ids)
		day.CompletedTasks = ids
	}
	return h.store(date, day, freeze), nil
}

func (h *Habit) checkDate(op string, date, today timeutil.Date) error {
	if date.IsZero() {
		return shared.NewDomainError("habit", op, shared.ErrInvalidFormat, "date is required")
	}
	if date.After(today) {
		return shared.ErrFutureDate
	}
	if date.Before(h.CreatedAt) {
		return shared.ErrBeforeCreation
	}
	return nil
}

// store пересчитывает флаг дня с учётом заморозки и синхронизирует CompletedDates.
func (h *Habit) store(date timeutil.Date, day DayProgress, freeze holiday.Freeze) Transition {
	if h.Days == nil {
		h.Days = make(map[timeutil.Date]DayProgress)
	}

	was := judgeStored(h.Tasks, h.Days[date], freeze)
	result := judgeStored(h.Tasks, day, freeze)
	h.setDay(date, day, result.AllCompleted)

	return Transition{
		Date:           date,
		WasCompleted:   was.AllCompleted,
		NowCompleted:   result.AllCompleted,
		CompletedTasks: result.Completed,
	}
}

// judgeStored оценивает день для сохранённого флага. Заморозка части задач меняет оценку;
// полностью замороженный день хранит то, что реально сделано, а нейтральным его делает обход серии.
func judgeStored(tasks []Task, day DayProgress, freeze holiday.Freeze) Completion {
	c := EvaluateWithFreeze(tasks, day, freeze)
	if c.Frozen {
		return Evaluate(tasks, day)
	}
	return c
}

func (h *Habit) setDay(date timeutil.Date, day DayProgress, completed bool) {
	day.AllCompleted = completed
	if len(day.CompletedTasks) == 0 && !day.AllCompleted {
		delete(h.Days, date)
	} else {
		h.Days[date] = day
	}

	if day.AllCompleted {
		h.CompletedDates = insertDate(h.CompletedDates, date)
	} else {
		h.CompletedDates = removeDate(h.CompletedDates, date)
	}
}

// SyncCompletion пересчитывает сохранённые флаги дней с задачами под текущие заморозки.
// Нужна после начала или отмены праздника. Возвращает true, если что-то изменилось.
func (h *Habit) SyncCompletion(freeze FreezeFunc) bool {
	if len(h.Tasks) == 0 {
		return false
	}
	if freeze == nil {
		freeze = NoFreezes
	}

	changed := false
	for date, day := range h.Days {
		completed := judgeStored(h.Tasks, day, freeze(date)).AllCompleted
		if completed != day.AllCompleted || completed != containsDate(h.CompletedDates, date) {
			h.setDay(date, day, completed)
			changed = true
		}
	}
	return changed
}

// ApplyStreak записывает результат расчёта серии.
// BestStreak никогда не уменьшается.
func (h *Habit) ApplyStreak(r StreakResult) {
	h.CurrentStreak = r.Current
	if r.Best > h.BestStreak {
		h.BestStreak = r.Best
	}
	if h.CurrentStreak > h.BestStreak {
		h.BestStreak = h.CurrentStreak
	}
}

// MarkSaved отмечает пропуск как закрытый спасителем серии.
func (h *Habit) MarkSaved(d timeutil.Date) {
	h.SavedDates = insertDate(h.SavedDates, d)
}

// Streak возвращает текущую серию.
func (h *Habit) Streak() int {
	return h.CurrentStreak
}

// RestoreStreak выставляет серию после применения спасителя.
func (h *Habit) RestoreStreak(current int) {
	h.ApplyStreak(StreakResult{Current: current})
}

// AddXP начисляет опыт.
func (h *Habit) AddXP(amount int) {
	if amount > 0 {
		h.TotalXP += amount
	}
}

// Touch увеличивает версию записи.
func (h *Habit) Touch(now time.Time) {
	h.Version++
	h.UpdatedAt = now
}

// Clone возвращает глубокую копию привычки.
func (h *Habit) Clone() *Habit {
	c := *h
	c.Tasks = append([]Task(nil), h.Tasks...)
	c.Frequency.Weekdays = append([]time.Weekday(nil), h.Frequency.Weekdays...)
	c.CompletedDates = append([]timeutil.Date(nil), h.CompletedDates...)
	c.SavedDates = append([]timeutil.Date(nil), h.SavedDates...)
	c.Days = make(map[timeutil.Date]DayProgress, len(h.Days))
	for d, p := range h.Days {
		p.CompletedTasks = append([]string(nil), p.CompletedTasks...)
		c.Days[d] = p
	}
	return &c
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func containsDate(dates []timeutil.Date, d timeutil.Date) bool {
	i := sort.Search(len(dates), func(i int) bool { return dates[i] >= d })
	return i < len(dates) && dates[i] == d
}

func insertDate(dates []timeutil.Date, d timeutil.Date) []timeutil.Date {
	i := sort.Search(len(dates), func(i int) bool { return dates[i] >= d })
	if i < len(dates) && dates[i] == d {
		return dates
	}
	dates = append(dates, "")
	copy(dates[i+1:], dates[i:])
	dates[i] = d
	return dates
}

func removeDate(dates []timeutil.Date, d timeutil.Date) []timeutil.Date {
	i := sort.Search(len(dates), func(i int) bool { return dates[i] >= d })
	if i < len(dates) && dates[i] == d {
		return append(dates[:i], dates[i+1:]...)
	}
	return dates
}
