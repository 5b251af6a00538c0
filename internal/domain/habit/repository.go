package habit

import (
	"context"
)

// Repository определяет интерфейс хранилища привычек.
// Реализация находится в infrastructure слое.
type Repository interface {
	// Create сохраняет новую привычку.
	Create(ctx context.Context, h *Habit) error

	// Update сохраняет привычку, если версия в хранилище равна expectedVersion.
	// Иначе возвращает shared.ConcurrencyError - вызывающий код перечитывает запись.
	Update(ctx context.Context, h *Habit, expectedVersion int64) error

	// FindByID возвращает привычку по ID.
	FindByID(ctx context.Context, id string) (*Habit, error)

	// FindByOwner возвращает все привычки владельца.
	FindByOwner(ctx context.Context, ownerID string) ([]*Habit, error)

	// ListOwners возвращает ID всех владельцев, у которых есть привычки.
	// Используется фоновыми задачами.
	ListOwners(ctx context.Context) ([]string, error)

	// Delete удаляет привычку.
	Delete(ctx context.Context, id string) error
}
