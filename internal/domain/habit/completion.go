package habit

import (
	"github.com/alem-hub/streakhub/internal/domain/holiday"
)

// Completion - результат оценки одного дня.
type Completion struct {
	// Ratio - доля выполненных незамороженных задач, 0..1.
	Ratio float64

	// AllCompleted - все незамороженные задачи выполнены.
	AllCompleted bool

	// Frozen - день полностью заморожен и не участвует в серии.
	Frozen bool

	// Completed / Total - счётчики по незамороженным задачам.
	Completed int
	Total     int

	// Unknown - id в CompletedTasks, которых нет в привычке. Они не считаются.
	Unknown []string
}

// Evaluate оценивает день без учёта заморозки.
// Чистая функция: отсутствующий день считается невыполненным.
func Evaluate(tasks []Task, day DayProgress) Completion {
	return EvaluateWithFreeze(tasks, day, holiday.NoFreeze)
}

// EvaluateWithFreeze оценивает день с учётом заморозки.
// При заморозке отдельных задач AllCompleted считается только по незамороженным задачам;
// если заморожены все задачи, день считается замороженным.
func EvaluateWithFreeze(tasks []Task, day DayProgress, freeze holiday.Freeze) Completion {
	// Привычки без задач: явный флаг, без подсчёта доли.
	if len(tasks) == 0 {
		c := Completion{AllCompleted: day.AllCompleted, Total: 1, Frozen: freeze.Entire()}
		if day.AllCompleted {
			c.Ratio = 1
			c.Completed = 1
		}
		return c
	}

	known := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		known[t.ID] = struct{}{}
	}

	var c Completion
	for _, id := range day.CompletedTasks {
		if _, ok := known[id]; !ok {
			c.Unknown = append(c.Unknown, id)
		}
	}

	for _, t := range tasks {
		if freeze.TaskFrozen(t.ID) {
			continue
		}
		c.Total++
		if day.Has(t.ID) {
			c.Completed++
		}
	}

	if c.Total == 0 {
		c.Frozen = true
		return c
	}

	c.Ratio = float64(c.Completed) / float64(c.Total)
	c.AllCompleted = c.Completed == c.Total
	return c
}
