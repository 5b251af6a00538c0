package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/streakhub/internal/domain/group"
	"github.com/alem-hub/streakhub/internal/domain/habit"
	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GROUP REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// GroupRepository implements group.Repository for PostgreSQL.
// expectedVersion 0 means the record is new and is inserted.
type GroupRepository struct {
	conn *Connection
}

// NewGroupRepository creates a new GroupRepository.
func NewGroupRepository(conn *Connection) *GroupRepository {
	return &GroupRepository{conn: conn}
}

const groupColumns = `id, name, members, total_xp, level, tier, version, created_at`

const groupHabitColumns = `
	id, group_id, name, tasks, frequency, member_days, weekly_member_flags,
	saved_dates, current_streak, best_streak, created_on, version, updated_at
`

// SaveGroup writes a group with an optimistic version check.
func (r *GroupRepository) SaveGroup(ctx context.Context, g *group.Group, expectedVersion int64) error {
	members := g.Members
	if members == nil {
		members = []string{}
	}
	membersJSON, err := json.Marshal(members)
	if err != nil {
		return fmt.Errorf("marshal members: %w", err)
	}

	if expectedVersion == 0 {
		query := `
			INSERT INTO groups (` + groupColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING
		`
		tag, err := r.conn.Exec(ctx, query,
			g.ID, g.Name, membersJSON, g.TotalXP, g.Level, g.Tier, g.Version, g.CreatedAt)
		if err != nil {
			return mapError("group", "SaveGroup", g.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ConcurrencyError("group", "SaveGroup", expectedVersion)
		}
		return nil
	}

	query := `
		UPDATE groups SET
			name = $3, members = $4, total_xp = $5, level = $6, tier = $7, version = $8
		WHERE id = $1 AND version = $2
	`
	tag, err := r.conn.Exec(ctx, query,
		g.ID, expectedVersion, g.Name, membersJSON, g.TotalXP, g.Level, g.Tier, g.Version)
	if err != nil {
		return mapError("group", "SaveGroup", g.ID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	err = staleOrMissing(ctx, r.conn, "groups", "group", g.ID, expectedVersion)
	if shared.IsNotFound(err) {
		return shared.ErrGroupNotFound
	}
	return err
}

// FindGroup returns a group by id.
func (r *GroupRepository) FindGroup(ctx context.Context, id string) (*group.Group, error) {
	g, err := scanGroup(r.conn.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = $1`, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrGroupNotFound
		}
		return nil, mapError("group", "Find", id, err)
	}
	return g, nil
}

// ListGroups returns every group.
func (r *GroupRepository) ListGroups(ctx context.Context) ([]*group.Group, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+groupColumns+` FROM groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list groups: %w", err)
	}
	defer rows.Close()

	var out []*group.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// SaveHabit writes a group habit with an optimistic version check.
func (r *GroupRepository) SaveHabit(ctx context.Context, gh *group.Habit, expectedVersion int64) error {
	if expectedVersion != 0 {
		return updateGroupHabit(ctx, r.conn, gh, expectedVersion)
	}

	cols, err := encodeGroupHabit(gh)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO group_habits (` + groupHabitColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`
	tag, err := r.conn.Exec(ctx, query,
		gh.ID, gh.GroupID, gh.Name, cols.tasks, cols.frequency, cols.memberDays, cols.weekly,
		cols.saved, gh.CurrentStreak, gh.BestStreak, gh.CreatedAt.String(), gh.Version, gh.UpdatedAt,
	)
	if err != nil {
		return mapError("group_habit", "SaveHabit", gh.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ConcurrencyError("group_habit", "SaveHabit", expectedVersion)
	}
	return nil
}

// FindHabit returns a group habit by id.
func (r *GroupRepository) FindHabit(ctx context.Context, id string) (*group.Habit, error) {
	gh, err := scanGroupHabit(r.conn.QueryRow(ctx,
		`SELECT `+groupHabitColumns+` FROM group_habits WHERE id = $1`, id))
	if err != nil {
		return nil, mapError("group_habit", "Find", id, err)
	}
	return gh, nil
}

// FindHabitsByGroup returns the habits of a group.
func (r *GroupRepository) FindHabitsByGroup(ctx context.Context, groupID string) ([]*group.Habit, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT `+groupHabitColumns+` FROM group_habits WHERE group_id = $1 ORDER BY created_on, id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("postgres: query group habits: %w", err)
	}
	defer rows.Close()

	var out []*group.Habit
	for rows.Next() {
		gh, err := scanGroupHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan group habit: %w", err)
		}
		out = append(out, gh)
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Row mapping
// ─────────────────────────────────────────────────────────────────────────────

func scanGroup(row pgx.Row) (*group.Group, error) {
	var (
		g       group.Group
		members []byte
	)
	if err := row.Scan(&g.ID, &g.Name, &members, &g.TotalXP, &g.Level, &g.Tier, &g.Version, &g.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(members, &g.Members); err != nil {
		return nil, fmt.Errorf("unmarshal members: %w", err)
	}
	return &g, nil
}

type groupHabitJSON struct {
	tasks, frequency, memberDays, weekly, saved []byte
}

func encodeGroupHabit(gh *group.Habit) (groupHabitJSON, error) {
	var (
		out groupHabitJSON
		err error
	)
	tasks := gh.Tasks
	if tasks == nil {
		tasks = []habit.Task{}
	}
	if out.tasks, err = json.Marshal(tasks); err != nil {
		return out, fmt.Errorf("marshal tasks: %w", err)
	}
	if out.frequency, err = json.Marshal(gh.Frequency); err != nil {
		return out, fmt.Errorf("marshal frequency: %w", err)
	}
	memberDays := gh.MemberDays
	if memberDays == nil {
		memberDays = map[timeutil.Date]map[string]habit.DayProgress{}
	}
	if out.memberDays, err = json.Marshal(memberDays); err != nil {
		return out, fmt.Errorf("marshal member days: %w", err)
	}
	weekly := gh.WeeklyMemberFlags
	if weekly == nil {
		weekly = map[timeutil.Date]map[string]bool{}
	}
	if out.weekly, err = json.Marshal(weekly); err != nil {
		return out, fmt.Errorf("marshal weekly flags: %w", err)
	}
	if out.saved, err = marshalDates(gh.SavedDates); err != nil {
		return out, err
	}
	return out, nil
}

func scanGroupHabit(row pgx.Row) (*group.Habit, error) {
	var (
		gh        group.Habit
		createdOn string
		cols      groupHabitJSON
	)
	err := row.Scan(
		&gh.ID, &gh.GroupID, &gh.Name, &cols.tasks, &cols.frequency, &cols.memberDays, &cols.weekly,
		&cols.saved, &gh.CurrentStreak, &gh.BestStreak, &createdOn, &gh.Version, &gh.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	gh.CreatedAt = timeutil.Date(createdOn)

	if err := json.Unmarshal(cols.tasks, &gh.Tasks); err != nil {
		return nil, fmt.Errorf("unmarshal tasks: %w", err)
	}
	if err := json.Unmarshal(cols.frequency, &gh.Frequency); err != nil {
		return nil, fmt.Errorf("unmarshal frequency: %w", err)
	}
	if err := json.Unmarshal(cols.memberDays, &gh.MemberDays); err != nil {
		return nil, fmt.Errorf("unmarshal member days: %w", err)
	}
	if err := json.Unmarshal(cols.weekly, &gh.WeeklyMemberFlags); err != nil {
		return nil, fmt.Errorf("unmarshal weekly flags: %w", err)
	}
	if err := json.Unmarshal(cols.saved, &gh.SavedDates); err != nil {
		return nil, fmt.Errorf("unmarshal saved dates: %w", err)
	}
	if gh.MemberDays == nil {
		gh.MemberDays = make(map[timeutil.Date]map[string]habit.DayProgress)
	}
	if gh.WeeklyMemberFlags == nil {
		gh.WeeklyMemberFlags = make(map[timeutil.Date]map[string]bool)
	}
	return &gh, nil
}

func updateGroupHabit(ctx context.Context, q Querier, gh *group.Habit, expectedVersion int64) error {
	cols, err := encodeGroupHabit(gh)
	if err != nil {
		return err
	}
	query := `
		UPDATE group_habits SET
			name = $3, tasks = $4, frequency = $5, member_days = $6, weekly_member_flags = $7,
			saved_dates = $8, current_streak = $9, best_streak = $10, version = $11, updated_at = $12
		WHERE id = $1 AND version = $2
	`
	tag, err := q.Exec(ctx, query,
		gh.ID, expectedVersion, gh.Name, cols.tasks, cols.frequency, cols.memberDays, cols.weekly,
		cols.saved, gh.CurrentStreak, gh.BestStreak, gh.Version, gh.UpdatedAt,
	)
	if err != nil {
		return mapError("group_habit", "SaveHabit", gh.ID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return staleOrMissing(ctx, q, "group_habits", "group_habit", gh.ID, expectedVersion)
}
