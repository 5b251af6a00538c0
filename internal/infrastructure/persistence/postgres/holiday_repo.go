package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/streakhub/internal/domain/holiday"
	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HOLIDAY REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// HolidayRepository implements holiday.Repository for PostgreSQL.
type HolidayRepository struct {
	conn *Connection
}

// NewHolidayRepository creates a new HolidayRepository.
func NewHolidayRepository(conn *Connection) *HolidayRepository {
	return &HolidayRepository{conn: conn}
}

const periodColumns = `
	id, owner_id, start_date, end_date, applies_to_all, habit_ids,
	task_freezes, reason, status, created_at, ended_at
`

// Save creates or updates a period.
func (r *HolidayRepository) Save(ctx context.Context, p *holiday.Period) error {
	habitIDs := p.HabitIDs
	if habitIDs == nil {
		habitIDs = []string{}
	}
	ids, err := json.Marshal(habitIDs)
	if err != nil {
		return fmt.Errorf("marshal habit ids: %w", err)
	}
	freezes := p.TaskFreezes
	if freezes == nil {
		freezes = []holiday.TaskFreeze{}
	}
	tasks, err := json.Marshal(freezes)
	if err != nil {
		return fmt.Errorf("marshal task freezes: %w", err)
	}

	query := `
		INSERT INTO holiday_periods (` + periodColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			applies_to_all = EXCLUDED.applies_to_all,
			habit_ids = EXCLUDED.habit_ids,
			task_freezes = EXCLUDED.task_freezes,
			reason = EXCLUDED.reason,
			status = EXCLUDED.status,
			ended_at = EXCLUDED.ended_at
	`
	_, err = r.conn.Exec(ctx, query,
		p.ID, p.OwnerID, p.StartDate.String(), p.EndDate.String(), p.AppliesToAll,
		ids, tasks, p.Reason, string(p.Status), p.CreatedAt, p.EndedAt,
	)
	return mapError("holiday", "Save", p.ID, err)
}

// FindByID returns a period by id.
func (r *HolidayRepository) FindByID(ctx context.Context, id string) (*holiday.Period, error) {
	query := `SELECT ` + periodColumns + ` FROM holiday_periods WHERE id = $1`
	p, err := scanPeriod(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrHolidayNotFound
		}
		return nil, mapError("holiday", "Find", id, err)
	}
	return &p, nil
}

// FindByOwner returns every period of an owner, in any status.
func (r *HolidayRepository) FindByOwner(ctx context.Context, ownerID string) ([]holiday.Period, error) {
	query := `SELECT ` + periodColumns + ` FROM holiday_periods WHERE owner_id = $1 ORDER BY start_date, id`
	return r.list(ctx, query, ownerID)
}

// FindExpired returns active periods whose end date is before today.
func (r *HolidayRepository) FindExpired(ctx context.Context, today timeutil.Date) ([]holiday.Period, error) {
	query := `
		SELECT ` + periodColumns + ` FROM holiday_periods
		WHERE status = 'active' AND end_date < $1
		ORDER BY end_date, id
	`
	return r.list(ctx, query, today.String())
}

func (r *HolidayRepository) list(ctx context.Context, query string, arg any) ([]holiday.Period, error) {
	rows, err := r.conn.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("postgres: query holiday periods: %w", err)
	}
	defer rows.Close()

	var out []holiday.Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan holiday period: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPeriod(row pgx.Row) (holiday.Period, error) {
	var (
		p                     holiday.Period
		start, end, status    string
		habitIDs, taskFreezes []byte
	)
	err := row.Scan(
		&p.ID, &p.OwnerID, &start, &end, &p.AppliesToAll, &habitIDs,
		&taskFreezes, &p.Reason, &status, &p.CreatedAt, &p.EndedAt,
	)
	if err != nil {
		return p, err
	}
	p.StartDate = timeutil.Date(start)
	p.EndDate = timeutil.Date(end)
	p.Status = holiday.Status(status)

	if err := json.Unmarshal(habitIDs, &p.HabitIDs); err != nil {
		return p, fmt.Errorf("unmarshal habit ids: %w", err)
	}
	if err := json.Unmarshal(taskFreezes, &p.TaskFreezes); err != nil {
		return p, fmt.Errorf("unmarshal task freezes: %w", err)
	}
	return p, nil
}
