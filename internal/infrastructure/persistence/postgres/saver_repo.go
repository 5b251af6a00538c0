package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/streakhub/internal/domain/saver"
	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/pkg/retry"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SAVER STORE IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// SaverStore implements saver.Store for PostgreSQL.
// WithinSave locks the break, the target habit and the inventory with
// SELECT ... FOR UPDATE, so two concurrent saves of one break serialize and
// the second one sees the break consumed.
type SaverStore struct {
	conn *Connection
}

// NewSaverStore creates a new SaverStore.
func NewSaverStore(conn *Connection) *SaverStore {
	return &SaverStore{conn: conn}
}

const breakColumns = `
	id, habit_id, owner_id, scope, break_date, previous_streak, detected_at, consumed_at
`

// Inventory returns the inventory of an owner; a missing one is returned empty.
func (s *SaverStore) Inventory(ctx context.Context, ownerID string, scope saver.Scope) (*saver.Inventory, error) {
	return loadInventory(ctx, s.conn, ownerID, scope, false)
}

// SaveInventory creates or replaces an inventory.
func (s *SaverStore) SaveInventory(ctx context.Context, inv *saver.Inventory) error {
	return saveInventory(ctx, s.conn, inv)
}

// RecordBreak stores a new break event.
func (s *SaverStore) RecordBreak(ctx context.Context, brk *saver.BreakEvent) error {
	query := `
		INSERT INTO break_events (` + breakColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.conn.Exec(ctx, query,
		brk.ID, brk.HabitID, brk.OwnerID, string(brk.Scope), brk.BreakDate.String(),
		brk.PreviousStreak, brk.DetectedAt, brk.ConsumedAt,
	)
	return mapError("saver", "RecordBreak", brk.HabitID+"@"+brk.BreakDate.String(), err)
}

// LatestBreak returns the most recent break of a habit.
func (s *SaverStore) LatestBreak(ctx context.Context, habitID string) (*saver.BreakEvent, error) {
	query := `
		SELECT ` + breakColumns + ` FROM break_events
		WHERE habit_id = $1
		ORDER BY break_date DESC
		LIMIT 1
	`
	brk, err := scanBreak(s.conn.QueryRow(ctx, query, habitID))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrBreakNotFound
		}
		return nil, mapError("saver", "LatestBreak", habitID, err)
	}
	return brk, nil
}

// WithinSave loads the break, its target and its inventory, runs fn and persists
// all three in one transaction. A transaction aborted by a deadlock or a
// serialization failure is run again from the load.
func (s *SaverStore) WithinSave(ctx context.Context, breakID string, fn saver.SaveFunc) error {
	return retry.DatabaseRetrier(IsSerializationFailure).Do(ctx, func(ctx context.Context) error {
		return s.withinSave(ctx, breakID, fn)
	})
}

func (s *SaverStore) withinSave(ctx context.Context, breakID string, fn saver.SaveFunc) error {
	return s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		brk, err := scanBreak(tx.QueryRow(ctx,
			`SELECT `+breakColumns+` FROM break_events WHERE id = $1 FOR UPDATE`, breakID))
		if err != nil {
			if IsNoRows(err) {
				return shared.ErrBreakNotFound
			}
			return mapError("saver", "WithinSave", breakID, err)
		}

		inv, err := loadInventory(ctx, tx, brk.OwnerID, brk.Scope, true)
		if err != nil {
			return err
		}

		switch brk.Scope {
		case saver.ScopeTeam:
			gh, err := scanGroupHabit(tx.QueryRow(ctx,
				`SELECT `+groupHabitColumns+` FROM group_habits WHERE id = $1 FOR UPDATE`, brk.HabitID))
			if err != nil {
				return mapError("group_habit", "WithinSave", brk.HabitID, err)
			}
			if err := fn(gh, brk, inv); err != nil {
				return err
			}
			expected := gh.Version
			gh.Touch(time.Now().UTC())
			if err := updateGroupHabit(ctx, tx, gh, expected); err != nil {
				return err
			}
		default:
			h, err := scanHabit(tx.QueryRow(ctx,
				`SELECT `+habitColumns+` FROM habits WHERE id = $1 FOR UPDATE`, brk.HabitID))
			if err != nil {
				return mapError("habit", "WithinSave", brk.HabitID, err)
			}
			if err := fn(h, brk, inv); err != nil {
				return err
			}
			expected := h.Version
			h.Touch(time.Now().UTC())
			if err := updateHabit(ctx, tx, h, expected); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(ctx,
			`UPDATE break_events SET consumed_at = $2 WHERE id = $1`, brk.ID, brk.ConsumedAt); err != nil {
			return mapError("saver", "ConsumeBreak", brk.ID, err)
		}
		return saveInventory(ctx, tx, inv)
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func loadInventory(ctx context.Context, q Querier, ownerID string, scope saver.Scope, lock bool) (*saver.Inventory, error) {
	query := `SELECT available, updated_at FROM saver_inventories WHERE owner_id = $1 AND scope = $2`
	if lock {
		query += ` FOR UPDATE`
	}

	inv := saver.NewInventory(ownerID, scope)
	err := q.QueryRow(ctx, query, ownerID, string(scope)).Scan(&inv.Available, &inv.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return inv, nil
		}
		return nil, fmt.Errorf("postgres: load inventory %s/%s: %w", scope, ownerID, err)
	}
	return inv, nil
}

func saveInventory(ctx context.Context, q Querier, inv *saver.Inventory) error {
	updatedAt := inv.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO saver_inventories (owner_id, scope, available, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_id, scope) DO UPDATE SET
			available = EXCLUDED.available,
			updated_at = EXCLUDED.updated_at
	`
	_, err := q.Exec(ctx, query, inv.OwnerID, string(inv.Scope), inv.Available, updatedAt)
	if err != nil {
		return fmt.Errorf("postgres: save inventory %s/%s: %w", inv.Scope, inv.OwnerID, err)
	}
	return nil
}

func scanBreak(row pgx.Row) (*saver.BreakEvent, error) {
	var (
		b                saver.BreakEvent
		scope, breakDate string
	)
	err := row.Scan(
		&b.ID, &b.HabitID, &b.OwnerID, &scope, &breakDate,
		&b.PreviousStreak, &b.DetectedAt, &b.ConsumedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Scope = saver.Scope(scope)
	b.BreakDate = timeutil.Date(breakDate)
	return &b, nil
}
