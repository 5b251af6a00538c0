package habit

import (
	"time"

	"github.com/alem-hub/streakhub/pkg/timeutil"
)

// WeekWindow возвращает окно текущей недели, обрезанное до [createdAt, today].
// ok == false, если окно пустое (привычка создана позже today).
func WeekWindow(createdAt, today timeutil.Date) (from, to timeutil.Date, ok bool) {
	start := timeutil.WeekStart(today)
	return timeutil.Clamp(start, start.AddDays(6), createdAt, today)
}

// IsWeeklyHabitCompletedThisWeek возвращает true, если в окне текущей недели
// есть хотя бы один полностью выполненный день.
// День оценивается с учётом заморозки так же, как при обходе серии;
// полностью замороженный день неделю не закрывает.
// Дни до createdAt и после today не рассматриваются.
func IsWeeklyHabitCompletedThisWeek(tasks []Task, days map[timeutil.Date]DayProgress, createdAt, today timeutil.Date, freeze FreezeFunc) bool {
	from, to, ok := WeekWindow(createdAt, today)
	if !ok {
		return false
	}
	if freeze == nil {
		freeze = NoFreezes
	}

	completed := false
	timeutil.EachDay(from, to, func(d timeutil.Date) bool {
		c := EvaluateWithFreeze(tasks, days[d], freeze(d))
		if !c.Frozen && c.AllCompleted {
			completed = true
			return false
		}
		return true
	})
	return completed
}

// WeeklyCompletedTasksCount возвращает объединение (не сумму) выполненных задач за окно недели.
// Задача, выполненная в два разных дня, считается один раз; неизвестные id не считаются.
func WeeklyCompletedTasksCount(tasks []Task, days map[timeutil.Date]DayProgress, createdAt, today timeutil.Date) int {
	from, to, ok := WeekWindow(createdAt, today)
	if !ok {
		return 0
	}

	known := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		known[t.ID] = struct{}{}
	}

	union := make(map[string]struct{}, len(tasks))
	timeutil.EachDay(from, to, func(d timeutil.Date) bool {
		for _, id := range days[d].CompletedTasks {
			if _, ok := known[id]; ok {
				union[id] = struct{}{}
			}
		}
		return len(union) < len(known)
	})
	return len(union)
}

// WeeklyStatus - сводка по недельной привычке для отображения.
type WeeklyStatus struct {
	WeekStart      timeutil.Date
	WeekEnd        timeutil.Date
	Completed      bool
	CompletedTasks int
	TotalTasks     int
	ResetsAt       time.Time
}

// Weekly собирает недельную сводку привычки на дату today.
// Неделя выполнена по тем же правилам, что и в недельной серии: закрытый спасителем
// день тоже считается.
func (h *Habit) Weekly(today timeutil.Date, loc *time.Location, freeze FreezeFunc) WeeklyStatus {
	return WeeklyStatus{
		WeekStart:      timeutil.WeekStart(today),
		WeekEnd:        timeutil.WeekEnd(today),
		Completed:      ClassifyWeek(h, timeutil.WeekStart(today), freeze, today) == DayCompleted,
		CompletedTasks: WeeklyCompletedTasksCount(h.Tasks, h.Days, h.CreatedAt, today),
		TotalTasks:     len(h.Tasks),
		ResetsAt:       timeutil.WeekResetAt(today, loc),
	}
}
