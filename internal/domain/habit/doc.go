// Package habit содержит доменную модель привычки и движок прогресса.
//
// Здесь живут чистые функции оценки:
//   - Evaluate: выполнен ли день по набору задач (с учётом заморозки)
//   - CalculateStreak: текущая и лучшая серия, обход дней назад от "сегодня"
//   - IsWeeklyHabitCompletedThisWeek / WeeklyCompletedTasksCount: недельные привычки
//   - CalculateGoalProgress: прогресс к цели по длительности
//
// Ни одна функция не читает системное время: "сегодня" всегда передаётся явно,
// а все ключи дат - локальные календарные даты пользователя (timeutil.Date).
package habit
