// Package sqlite is the local record store used by habitctl. Every aggregate is
// kept as a JSON document in one records table keyed by (kind, id), with an
// owner reference and a sort key for the few lookups the ports need.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/alem-hub/streakhub/internal/domain/shared"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
    kind TEXT NOT NULL,
    id TEXT NOT NULL,
    ref TEXT NOT NULL DEFAULT '',
    sort_key TEXT NOT NULL DEFAULT '',
    version INTEGER NOT NULL DEFAULT 0,
    body TEXT NOT NULL,
    PRIMARY KEY (kind, id)
);

CREATE INDEX IF NOT EXISTS idx_records_ref ON records(kind, ref, sort_key);
CREATE UNIQUE INDEX IF NOT EXISTS idx_records_break_day ON records(ref, sort_key) WHERE kind = 'break';
`

const (
	kindHabit      = "habit"
	kindHoliday    = "holiday"
	kindInventory  = "inventory"
	kindBreak      = "break"
	kindGroup      = "group"
	kindGroupHabit = "group_habit"
)

// Store owns the sqlite database.
type Store struct {
	path string
	db   *sql.DB
}

// Open opens (and creates if missing) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; transactions and plain calls must not interleave on separate connections
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{path: path, db: db}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Habits returns the habit repository.
func (s *Store) Habits() *HabitRepository { return &HabitRepository{db: s.db} }

// Holidays returns the holiday repository.
func (s *Store) Holidays() *HolidayRepository { return &HolidayRepository{db: s.db} }

// Savers returns the saver store.
func (s *Store) Savers() *SaverStore { return &SaverStore{db: s.db} }

// Groups returns the group repository.
func (s *Store) Groups() *GroupRepository { return &GroupRepository{db: s.db} }

// ══════════════════════════════════════════════════════════════════════════════
// RECORD HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type record struct {
	kind    string
	id      string
	ref     string
	sortKey string
	version int64
}

func getRecord[T any](ctx context.Context, q queryer, kind, id string) (*T, error) {
	var body string
	err := q.QueryRowContext(ctx, `SELECT body FROM records WHERE kind = ? AND id = ?`, kind, id).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.NotFoundError(kind, "Find", id)
		}
		return nil, fmt.Errorf("sqlite: get %s %s: %w", kind, id, err)
	}
	var v T
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return nil, fmt.Errorf("sqlite: decode %s %s: %w", kind, id, err)
	}
	return &v, nil
}

func listRecords[T any](ctx context.Context, q queryer, query string, args ...any) ([]*T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list: %w", err)
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		var v T
		if err := json.Unmarshal([]byte(body), &v); err != nil {
			return nil, fmt.Errorf("sqlite: decode: %w", err)
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

// insertRecord fails with ErrAlreadyExists when the key (or the break day) is taken.
func insertRecord(ctx context.Context, q queryer, r record, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sqlite: encode %s %s: %w", r.kind, r.id, err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO records (kind, id, ref, sort_key, version, body) VALUES (?, ?, ?, ?, ?, ?)`,
		r.kind, r.id, r.ref, r.sortKey, r.version, string(body))
	if err != nil {
		if isConstraint(err) {
			return shared.WrapError(r.kind, "Insert", shared.ErrAlreadyExists,
				fmt.Sprintf("%s %q already exists", r.kind, r.id), err)
		}
		return fmt.Errorf("sqlite: insert %s %s: %w", r.kind, r.id, err)
	}
	return nil
}

// upsertRecord creates or replaces a record without a version check.
func upsertRecord(ctx context.Context, q queryer, r record, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sqlite: encode %s %s: %w", r.kind, r.id, err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO records (kind, id, ref, sort_key, version, body) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, id) DO UPDATE SET
			ref = excluded.ref, sort_key = excluded.sort_key,
			version = excluded.version, body = excluded.body`,
		r.kind, r.id, r.ref, r.sortKey, r.version, string(body))
	if err != nil {
		return fmt.Errorf("sqlite: upsert %s %s: %w", r.kind, r.id, err)
	}
	return nil
}

// updateRecord writes the record only if the stored version equals expected.
func updateRecord(ctx context.Context, q queryer, r record, expected int64, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sqlite: encode %s %s: %w", r.kind, r.id, err)
	}
	res, err := q.ExecContext(ctx, `
		UPDATE records SET ref = ?, sort_key = ?, version = ?, body = ?
		WHERE kind = ? AND id = ? AND version = ?`,
		r.ref, r.sortKey, r.version, string(body), r.kind, r.id, expected)
	if err != nil {
		return fmt.Errorf("sqlite: update %s %s: %w", r.kind, r.id, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var exists bool
	err = q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM records WHERE kind = ? AND id = ?)`, r.kind, r.id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("sqlite: check %s %s: %w", r.kind, r.id, err)
	}
	if !exists {
		return shared.NotFoundError(r.kind, "Update", r.id)
	}
	return shared.ConcurrencyError(r.kind, "Update", expected)
}

func deleteRecord(ctx context.Context, q queryer, kind, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM records WHERE kind = ? AND id = ?`, kind, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete %s %s: %w", kind, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shared.NotFoundError(kind, "Delete", id)
	}
	return nil
}

func isConstraint(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}

// withTx runs fn inside a transaction, committing on nil.
func withTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}
