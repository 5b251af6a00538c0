package habit

import (
	"github.com/alem-hub/streakhub/internal/domain/holiday"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

// DayStatus - классификация дня при обходе серии.
type DayStatus int

const (
	// DayBroken - день в прошлом не выполнен и не заморожен.
	DayBroken DayStatus = iota
	// DayCompleted - день выполнен (или закрыт спасителем).
	DayCompleted
	// DayFrozen - день заморожен праздником; нейтрален.
	DayFrozen
	// DayUnscheduled - день вне расписания custom-привычки; нейтрален.
	DayUnscheduled
	// DayPending - сегодняшний день, который ещё можно выполнить; нейтрален.
	DayPending
)

// String возвращает строковое представление статуса.
func (s DayStatus) String() string {
	switch s {
	case DayCompleted:
		return "completed"
	case DayFrozen:
		return "frozen"
	case DayUnscheduled:
		return "unscheduled"
	case DayPending:
		return "pending"
	default:
		return "broken"
	}
}

// FreezeFunc возвращает заморозку привычки на дату.
type FreezeFunc func(timeutil.Date) holiday.Freeze

// NoFreezes - FreezeFunc без заморозок.
func NoFreezes(timeutil.Date) holiday.Freeze { return holiday.NoFreeze }

// StreakResult - результат расчёта серии.
type StreakResult struct {
	// Current - текущая серия (дни, для weekly - недели).
	Current int

	// Best - лучшая серия за историю, не меньше Current.
	Best int

	// BrokenOn - последний пропуск, на котором остановился обход (пусто, если его нет).
	// Для weekly - первый день недели пропуска.
	BrokenOn timeutil.Date

	// Previous - серия, которая была до пропуска BrokenOn.
	Previous int

	// Weekly - серия считается в неделях.
	Weekly bool
}

// ClassifyDay определяет статус одного дня.
// Заморозка строго нейтральна: замороженный день не увеличивает и не обрывает серию.
func ClassifyDay(h *Habit, d timeutil.Date, freeze holiday.Freeze, today timeutil.Date) DayStatus {
	if !h.Frequency.IsScheduled(d) {
		return DayUnscheduled
	}
	if h.IsSaved(d) {
		return DayCompleted
	}

	c := EvaluateWithFreeze(h.Tasks, h.Days[d], freeze)
	switch {
	case c.Frozen:
		return DayFrozen
	case c.AllCompleted:
		return DayCompleted
	case d == today:
		// сегодня ещё можно успеть
		return DayPending
	default:
		return DayBroken
	}
}

// CalculateStreak считает текущую и лучшую серию на дату today.
// Обход идёт назад от today до даты создания; первый пропуск останавливает счёт.
func CalculateStreak(h *Habit, freeze FreezeFunc, today timeutil.Date) StreakResult {
	if freeze == nil {
		freeze = NoFreezes
	}
	if h.IsWeekly() {
		return calculateWeekStreak(h, freeze, today)
	}

	start := h.CreatedAt
	if start.IsZero() || start.After(today) {
		return StreakResult{Best: h.BestStreak}
	}

	statuses := make(map[timeutil.Date]DayStatus, timeutil.DaysBetween(start, today)+1)
	timeutil.EachDay(start, today, func(d timeutil.Date) bool {
		statuses[d] = ClassifyDay(h, d, freeze(d), today)
		return true
	})

	var res StreakResult
	d := today
	res.Current, d = runBackward(statuses, d, start)
	if !d.Before(start) {
		res.BrokenOn = d
		res.Previous, _ = runBackward(statuses, d.AddDays(-1), start)
	}

	res.Best = bestForward(start, today, func(d timeutil.Date) DayStatus { return statuses[d] }, 1)
	res.Best = max(res.Best, res.Current, h.BestStreak)
	return res
}

// runBackward считает выполненные дни назад от d до первого пропуска.
// Возвращает счёт и дату пропуска (или start-1, если пропуска нет).
func runBackward(statuses map[timeutil.Date]DayStatus, d, start timeutil.Date) (int, timeutil.Date) {
	count := 0
	for ; !d.Before(start); d = d.AddDays(-1) {
		switch statuses[d] {
		case DayCompleted:
			count++
		case DayBroken:
			return count, d
		}
	}
	return count, d
}

// bestForward находит самую длинную серию, шагая от from к to с шагом step дней.
func bestForward(from, to timeutil.Date, status func(timeutil.Date) DayStatus, step int) int {
	best, run := 0, 0
	for d := from; !d.After(to); d = d.AddDays(step) {
		switch status(d) {
		case DayCompleted:
			run++
			best = max(best, run)
		case DayBroken:
			run = 0
		}
	}
	return best
}

// ══════════════════════════════════════════════════════════════════════════════
// WEEK STREAK
// ══════════════════════════════════════════════════════════════════════════════

// ClassifyWeek определяет статус недели, начинающейся с weekStart.
// Окно недели обрезается до [createdAt, today]. Текущая невыполненная неделя - pending.
func ClassifyWeek(h *Habit, weekStart timeutil.Date, freeze FreezeFunc, today timeutil.Date) DayStatus {
	from, to, ok := timeutil.Clamp(weekStart, weekStart.AddDays(6), h.CreatedAt, today)
	if !ok {
		return DayUnscheduled
	}
	if freeze == nil {
		freeze = NoFreezes
	}

	allFrozen := true
	completed := false
	timeutil.EachDay(from, to, func(d timeutil.Date) bool {
		if h.IsSaved(d) {
			completed = true
			return false
		}
		c := EvaluateWithFreeze(h.Tasks, h.Days[d], freeze(d))
		if !c.Frozen {
			allFrozen = false
			if c.AllCompleted {
				completed = true
				return false
			}
		}
		return true
	})

	switch {
	case completed:
		return DayCompleted
	case allFrozen:
		return DayFrozen
	case timeutil.WeekStart(today) == weekStart:
		return DayPending
	default:
		return DayBroken
	}
}

func calculateWeekStreak(h *Habit, freeze FreezeFunc, today timeutil.Date) StreakResult {
	res := StreakResult{Weekly: true}
	if h.CreatedAt.IsZero() || h.CreatedAt.After(today) {
		res.Best = h.BestStreak
		return res
	}

	first := timeutil.WeekStart(h.CreatedAt)
	statuses := make(map[timeutil.Date]DayStatus)
	for w := first; !w.After(today); w = w.AddDays(7) {
		statuses[w] = ClassifyWeek(h, w, freeze, today)
	}

	w := timeutil.WeekStart(today)
	for ; !w.Before(first); w = w.AddDays(-7) {
		if statuses[w] == DayBroken {
			break
		}
		if statuses[w] == DayCompleted {
			res.Current++
		}
	}

	if !w.Before(first) {
		if from, _, ok := timeutil.Clamp(w, w.AddDays(6), h.CreatedAt, today); ok {
			res.BrokenOn = from
		}
		for p := w.AddDays(-7); !p.Before(first); p = p.AddDays(-7) {
			if statuses[p] == DayBroken {
				break
			}
			if statuses[p] == DayCompleted {
				res.Previous++
			}
		}
	}

	res.Best = bestForward(first, timeutil.WeekStart(today), func(d timeutil.Date) DayStatus { return statuses[d] }, 7)
	res.Best = max(res.Best, res.Current, h.BestStreak)
	return res
}
