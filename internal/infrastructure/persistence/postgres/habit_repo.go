package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/streakhub/internal/domain/habit"
	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HABIT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// HabitRepository implements habit.Repository for PostgreSQL.
type HabitRepository struct {
	conn *Connection
}

// NewHabitRepository creates a new HabitRepository.
func NewHabitRepository(conn *Connection) *HabitRepository {
	return &HabitRepository{conn: conn}
}

const habitColumns = `
	id, owner_id, name, kind, category, tasks, frequency, days,
	completed_dates, saved_dates, current_streak, best_streak,
	duration_goal_days, total_xp, tier, created_on, version, updated_at
`

// Create inserts a new habit.
func (r *HabitRepository) Create(ctx context.Context, h *habit.Habit) error {
	cols, err := encodeHabit(h)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO habits (` + habitColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err = r.conn.Exec(ctx, query,
		h.ID, h.OwnerID, h.Name, string(h.Kind), h.Category,
		cols.tasks, cols.frequency, cols.days, cols.completed, cols.saved,
		h.CurrentStreak, h.BestStreak, h.DurationGoalDays, h.TotalXP, h.Tier,
		h.CreatedAt.String(), h.Version, h.UpdatedAt,
	)
	return mapError("habit", "Create", h.ID, err)
}

// Update writes the habit if the stored version still equals expectedVersion.
func (r *HabitRepository) Update(ctx context.Context, h *habit.Habit, expectedVersion int64) error {
	return updateHabit(ctx, r.conn, h, expectedVersion)
}

// FindByID returns a habit by ID.
func (r *HabitRepository) FindByID(ctx context.Context, id string) (*habit.Habit, error) {
	query := `SELECT ` + habitColumns + ` FROM habits WHERE id = $1`
	h, err := scanHabit(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError("habit", "Find", id, err)
	}
	return h, nil
}

// FindByOwner returns every habit of an owner ordered by creation.
func (r *HabitRepository) FindByOwner(ctx context.Context, ownerID string) ([]*habit.Habit, error) {
	query := `SELECT ` + habitColumns + ` FROM habits WHERE owner_id = $1 ORDER BY created_on, id`

	rows, err := r.conn.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("postgres: query habits: %w", err)
	}
	defer rows.Close()

	var out []*habit.Habit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan habit: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListOwners returns every owner that has at least one habit.
func (r *HabitRepository) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := r.conn.Query(ctx, `SELECT DISTINCT owner_id FROM habits ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list owners: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Delete removes a habit.
func (r *HabitRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.conn.Exec(ctx, `DELETE FROM habits WHERE id = $1`, id)
	if err != nil {
		return mapError("habit", "Delete", id, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundError("habit", "Delete", id)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Row mapping (shared with the saver transaction)
// ─────────────────────────────────────────────────────────────────────────────

type habitJSON struct {
	tasks, frequency, days, completed, saved []byte
}

func encodeHabit(h *habit.Habit) (habitJSON, error) {
	var (
		out habitJSON
		err error
	)
	tasks := h.Tasks
	if tasks == nil {
		tasks = []habit.Task{}
	}
	if out.tasks, err = json.Marshal(tasks); err != nil {
		return out, fmt.Errorf("marshal tasks: %w", err)
	}
	if out.frequency, err = json.Marshal(h.Frequency); err != nil {
		return out, fmt.Errorf("marshal frequency: %w", err)
	}
	days := h.Days
	if days == nil {
		days = map[timeutil.Date]habit.DayProgress{}
	}
	if out.days, err = json.Marshal(days); err != nil {
		return out, fmt.Errorf("marshal days: %w", err)
	}
	if out.completed, err = marshalDates(h.CompletedDates); err != nil {
		return out, err
	}
	if out.saved, err = marshalDates(h.SavedDates); err != nil {
		return out, err
	}
	return out, nil
}

func marshalDates(dates []timeutil.Date) ([]byte, error) {
	if dates == nil {
		dates = []timeutil.Date{}
	}
	b, err := json.Marshal(dates)
	if err != nil {
		return nil, fmt.Errorf("marshal dates: %w", err)
	}
	return b, nil
}

func scanHabit(row pgx.Row) (*habit.Habit, error) {
	var (
		h               habit.Habit
		kind, createdOn string
		cols            habitJSON
	)
	err := row.Scan(
		&h.ID, &h.OwnerID, &h.Name, &kind, &h.Category,
		&cols.tasks, &cols.frequency, &cols.days, &cols.completed, &cols.saved,
		&h.CurrentStreak, &h.BestStreak, &h.DurationGoalDays, &h.TotalXP, &h.Tier,
		&createdOn, &h.Version, &h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	h.Kind = habit.Kind(kind)
	h.CreatedAt = timeutil.Date(createdOn)

	if err := json.Unmarshal(cols.tasks, &h.Tasks); err != nil {
		return nil, fmt.Errorf("unmarshal tasks: %w", err)
	}
	if err := json.Unmarshal(cols.frequency, &h.Frequency); err != nil {
		return nil, fmt.Errorf("unmarshal frequency: %w", err)
	}
	if err := json.Unmarshal(cols.days, &h.Days); err != nil {
		return nil, fmt.Errorf("unmarshal days: %w", err)
	}
	if err := json.Unmarshal(cols.completed, &h.CompletedDates); err != nil {
		return nil, fmt.Errorf("unmarshal completed dates: %w", err)
	}
	if err := json.Unmarshal(cols.saved, &h.SavedDates); err != nil {
		return nil, fmt.Errorf("unmarshal saved dates: %w", err)
	}
	if h.Days == nil {
		h.Days = make(map[timeutil.Date]habit.DayProgress)
	}
	return &h, nil
}

// updateHabit is the optimistic write used by the repository and the saver transaction.
func updateHabit(ctx context.Context, q Querier, h *habit.Habit, expectedVersion int64) error {
	cols, err := encodeHabit(h)
	if err != nil {
		return err
	}

	query := `
		UPDATE habits SET
			name = $3, kind = $4, category = $5, tasks = $6, frequency = $7, days = $8,
			completed_dates = $9, saved_dates = $10, current_streak = $11, best_streak = $12,
			duration_goal_days = $13, total_xp = $14, tier = $15, version = $16, updated_at = $17
		WHERE id = $1 AND version = $2
	`
	tag, err := q.Exec(ctx, query,
		h.ID, expectedVersion,
		h.Name, string(h.Kind), h.Category, cols.tasks, cols.frequency, cols.days,
		cols.completed, cols.saved, h.CurrentStreak, h.BestStreak,
		h.DurationGoalDays, h.TotalXP, h.Tier, h.Version, h.UpdatedAt,
	)
	if err != nil {
		return mapError("habit", "Update", h.ID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return staleOrMissing(ctx, q, "habits", "habit", h.ID, expectedVersion)
}

// staleOrMissing explains a conditional update that touched no rows.
func staleOrMissing(ctx context.Context, q Querier, table, domain, id string, expectedVersion int64) error {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return mapError(domain, "Update", id, err)
	}
	if !exists {
		return shared.NotFoundError(domain, "Update", id)
	}
	return shared.ConcurrencyError(domain, "Update", expectedVersion)
}
