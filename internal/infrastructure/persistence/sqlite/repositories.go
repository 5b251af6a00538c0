package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/alem-hub/streakhub/internal/domain/group"
	"github.com/alem-hub/streakhub/internal/domain/habit"
	"github.com/alem-hub/streakhub/internal/domain/holiday"
	"github.com/alem-hub/streakhub/internal/domain/saver"
	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HABITS
// ══════════════════════════════════════════════════════════════════════════════

// HabitRepository implements habit.Repository.
type HabitRepository struct {
	db *sql.DB
}

func habitRecord(h *habit.Habit) record {
	return record{kind: kindHabit, id: h.ID, ref: h.OwnerID, sortKey: h.CreatedAt.String(), version: h.Version}
}

// Create inserts a new habit.
func (r *HabitRepository) Create(ctx context.Context, h *habit.Habit) error {
	return insertRecord(ctx, r.db, habitRecord(h), h)
}

// Update writes the habit if the stored version still equals expectedVersion.
func (r *HabitRepository) Update(ctx context.Context, h *habit.Habit, expectedVersion int64) error {
	return updateRecord(ctx, r.db, habitRecord(h), expectedVersion, h)
}

// FindByID returns a habit by id.
func (r *HabitRepository) FindByID(ctx context.Context, id string) (*habit.Habit, error) {
	return getRecord[habit.Habit](ctx, r.db, kindHabit, id)
}

// FindByOwner returns the habits of an owner in creation order.
func (r *HabitRepository) FindByOwner(ctx context.Context, ownerID string) ([]*habit.Habit, error) {
	return listRecords[habit.Habit](ctx, r.db,
		`SELECT body FROM records WHERE kind = ? AND ref = ? ORDER BY sort_key, id`, kindHabit, ownerID)
}

// ListOwners returns every owner with at least one habit.
func (r *HabitRepository) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT ref FROM records WHERE kind = ? ORDER BY ref`, kindHabit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, err
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

// Delete removes a habit.
func (r *HabitRepository) Delete(ctx context.Context, id string) error {
	return deleteRecord(ctx, r.db, kindHabit, id)
}

// ══════════════════════════════════════════════════════════════════════════════
// HOLIDAYS
// ══════════════════════════════════════════════════════════════════════════════

// HolidayRepository implements holiday.Repository.
type HolidayRepository struct {
	db *sql.DB
}

// Save creates or updates a period.
func (r *HolidayRepository) Save(ctx context.Context, p *holiday.Period) error {
	return upsertRecord(ctx, r.db, record{
		kind: kindHoliday, id: p.ID, ref: p.OwnerID, sortKey: p.StartDate.String(),
	}, p)
}

// FindByID returns a period by id.
func (r *HolidayRepository) FindByID(ctx context.Context, id string) (*holiday.Period, error) {
	p, err := getRecord[holiday.Period](ctx, r.db, kindHoliday, id)
	if shared.IsNotFound(err) {
		return nil, shared.ErrHolidayNotFound
	}
	return p, err
}

// FindByOwner returns every period of an owner.
func (r *HolidayRepository) FindByOwner(ctx context.Context, ownerID string) ([]holiday.Period, error) {
	ps, err := listRecords[holiday.Period](ctx, r.db,
		`SELECT body FROM records WHERE kind = ? AND ref = ? ORDER BY sort_key, id`, kindHoliday, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]holiday.Period, 0, len(ps))
	for _, p := range ps {
		out = append(out, *p)
	}
	return out, nil
}

// FindExpired returns active periods whose end date is before today.
func (r *HolidayRepository) FindExpired(ctx context.Context, today timeutil.Date) ([]holiday.Period, error) {
	ps, err := listRecords[holiday.Period](ctx, r.db,
		`SELECT body FROM records WHERE kind = ? ORDER BY sort_key, id`, kindHoliday)
	if err != nil {
		return nil, err
	}
	var out []holiday.Period
	for _, p := range ps {
		if p.Status == holiday.StatusActive && p.EndDate.Before(today) {
			out = append(out, *p)
		}
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SAVERS
// ══════════════════════════════════════════════════════════════════════════════

// SaverStore implements saver.Store. Break events are unique per (habit, break date).
type SaverStore struct {
	db *sql.DB
}

func inventoryKey(ownerID string, scope saver.Scope) string {
	return string(scope) + "/" + ownerID
}

// Inventory returns the inventory of an owner; a missing one is returned empty.
func (s *SaverStore) Inventory(ctx context.Context, ownerID string, scope saver.Scope) (*saver.Inventory, error) {
	return loadInventory(ctx, s.db, ownerID, scope)
}

// SaveInventory creates or replaces an inventory.
func (s *SaverStore) SaveInventory(ctx context.Context, inv *saver.Inventory) error {
	return saveInventory(ctx, s.db, inv)
}

// RecordBreak stores a new break event.
func (s *SaverStore) RecordBreak(ctx context.Context, brk *saver.BreakEvent) error {
	return insertRecord(ctx, s.db, breakRecord(brk), brk)
}

// LatestBreak returns the most recent break of a habit.
func (s *SaverStore) LatestBreak(ctx context.Context, habitID string) (*saver.BreakEvent, error) {
	bs, err := listRecords[saver.BreakEvent](ctx, s.db,
		`SELECT body FROM records WHERE kind = ? AND ref = ? ORDER BY sort_key DESC LIMIT 1`, kindBreak, habitID)
	if err != nil {
		return nil, err
	}
	if len(bs) == 0 {
		return nil, shared.ErrBreakNotFound
	}
	return bs[0], nil
}

// WithinSave loads the break, its target and its inventory, runs fn and persists
// all three in one transaction.
func (s *SaverStore) WithinSave(ctx context.Context, breakID string, fn saver.SaveFunc) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		brk, err := getRecord[saver.BreakEvent](ctx, tx, kindBreak, breakID)
		if err != nil {
			if shared.IsNotFound(err) {
				return shared.ErrBreakNotFound
			}
			return err
		}
		inv, err := loadInventory(ctx, tx, brk.OwnerID, brk.Scope)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		switch brk.Scope {
		case saver.ScopeTeam:
			gh, err := getRecord[group.Habit](ctx, tx, kindGroupHabit, brk.HabitID)
			if err != nil {
				return err
			}
			if err := fn(gh, brk, inv); err != nil {
				return err
			}
			expected := gh.Version
			gh.Touch(now)
			if err := updateRecord(ctx, tx, groupHabitRecord(gh), expected, gh); err != nil {
				return err
			}
		default:
			h, err := getRecord[habit.Habit](ctx, tx, kindHabit, brk.HabitID)
			if err != nil {
				return err
			}
			if err := fn(h, brk, inv); err != nil {
				return err
			}
			expected := h.Version
			h.Touch(now)
			if err := updateRecord(ctx, tx, habitRecord(h), expected, h); err != nil {
				return err
			}
		}

		if err := upsertRecord(ctx, tx, breakRecord(brk), brk); err != nil {
			return err
		}
		return saveInventory(ctx, tx, inv)
	})
}

func breakRecord(brk *saver.BreakEvent) record {
	return record{kind: kindBreak, id: brk.ID, ref: brk.HabitID, sortKey: brk.BreakDate.String()}
}

func loadInventory(ctx context.Context, q queryer, ownerID string, scope saver.Scope) (*saver.Inventory, error) {
	inv, err := getRecord[saver.Inventory](ctx, q, kindInventory, inventoryKey(ownerID, scope))
	if shared.IsNotFound(err) {
		return saver.NewInventory(ownerID, scope), nil
	}
	return inv, err
}

func saveInventory(ctx context.Context, q queryer, inv *saver.Inventory) error {
	return upsertRecord(ctx, q, record{
		kind: kindInventory, id: inventoryKey(inv.OwnerID, inv.Scope), ref: inv.OwnerID,
	}, inv)
}

// ══════════════════════════════════════════════════════════════════════════════
// GROUPS
// ══════════════════════════════════════════════════════════════════════════════

// GroupRepository implements group.Repository; expectedVersion 0 inserts.
type GroupRepository struct {
	db *sql.DB
}

func groupHabitRecord(gh *group.Habit) record {
	return record{kind: kindGroupHabit, id: gh.ID, ref: gh.GroupID, sortKey: gh.CreatedAt.String(), version: gh.Version}
}

// SaveGroup writes a group with an optimistic version check.
func (r *GroupRepository) SaveGroup(ctx context.Context, g *group.Group, expectedVersion int64) error {
	rec := record{kind: kindGroup, id: g.ID, version: g.Version}
	if expectedVersion == 0 {
		err := insertRecord(ctx, r.db, rec, g)
		if shared.IsAlreadyExists(err) {
			return shared.ConcurrencyError(kindGroup, "SaveGroup", expectedVersion)
		}
		return err
	}
	err := updateRecord(ctx, r.db, rec, expectedVersion, g)
	if shared.IsNotFound(err) {
		return shared.ErrGroupNotFound
	}
	return err
}

// FindGroup returns a group by id.
func (r *GroupRepository) FindGroup(ctx context.Context, id string) (*group.Group, error) {
	g, err := getRecord[group.Group](ctx, r.db, kindGroup, id)
	if shared.IsNotFound(err) {
		return nil, shared.ErrGroupNotFound
	}
	return g, err
}

// ListGroups returns every group.
func (r *GroupRepository) ListGroups(ctx context.Context) ([]*group.Group, error) {
	return listRecords[group.Group](ctx, r.db, `SELECT body FROM records WHERE kind = ? ORDER BY id`, kindGroup)
}

// SaveHabit writes a group habit with an optimistic version check.
func (r *GroupRepository) SaveHabit(ctx context.Context, gh *group.Habit, expectedVersion int64) error {
	if expectedVersion == 0 {
		err := insertRecord(ctx, r.db, groupHabitRecord(gh), gh)
		if shared.IsAlreadyExists(err) {
			return shared.ConcurrencyError(kindGroupHabit, "SaveHabit", expectedVersion)
		}
		return err
	}
	return updateRecord(ctx, r.db, groupHabitRecord(gh), expectedVersion, gh)
}

// FindHabit returns a group habit by id.
func (r *GroupRepository) FindHabit(ctx context.Context, id string) (*group.Habit, error) {
	return getRecord[group.Habit](ctx, r.db, kindGroupHabit, id)
}

// FindHabitsByGroup returns the habits of a group.
func (r *GroupRepository) FindHabitsByGroup(ctx context.Context, groupID string) ([]*group.Habit, error) {
	return listRecords[group.Habit](ctx, r.db,
		`SELECT body FROM records WHERE kind = ? AND ref = ? ORDER BY sort_key, id`, kindGroupHabit, groupID)
}
