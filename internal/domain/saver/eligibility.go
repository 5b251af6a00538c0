package saver

import (
	"context"
	"time"

	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

// Eligibility is the derived, never stored, answer to "can this streak be saved now".
type Eligibility struct {
	CanSave       bool
	LastBreakDate timeutil.Date
	BreakID       string
	Reason        shared.EligibilityReason
	Available     int
	ExpiresAt     time.Time
}

// Err returns the typed error for an ineligible result, nil otherwise.
func (e Eligibility) Err(habitID string) error {
	if e.CanSave {
		return nil
	}
	return shared.NewEligibilityError(habitID, e.Reason)
}

// CheckEligibility evaluates the saver rules against a snapshot.
// The checks run in order: a break exists, it was not consumed, the window is open,
// the inventory is not empty.
func CheckEligibility(brk *BreakEvent, inv *Inventory, now time.Time, window time.Duration) Eligibility {
	if window <= 0 {
		window = DefaultWindow
	}

	var e Eligibility
	if inv != nil {
		e.Available = inv.Available
	}
	if brk == nil {
		e.Reason = shared.ReasonNoBreak
		return e
	}

	e.LastBreakDate = brk.BreakDate
	e.BreakID = brk.ID
	e.ExpiresAt = brk.ExpiresAt(window)

	switch {
	case brk.IsConsumed():
		e.Reason = shared.ReasonAlreadyUsed
	case now.After(e.ExpiresAt):
		e.Reason = shared.ReasonWindowClosed
	case inv == nil || inv.Available <= 0:
		e.Reason = shared.ReasonNoSavers
	default:
		e.CanSave = true
	}
	return e
}

// Target is a streak holder a saver can repair (a personal habit or a group habit).
type Target interface {
	MarkSaved(d timeutil.Date)
	Streak() int
	RestoreStreak(current int)
}

// Result describes a successful save.
type Result struct {
	BreakID   string
	BreakDate timeutil.Date
	Restored  int
	Remaining int
}

// Apply repairs the streak in place: one saver is taken, the break is consumed
// and the streak becomes previousStreak + 1 plus any days completed since the break.
// The missed day's tasks stay untouched. On error nothing is modified.
func Apply(t Target, brk *BreakEvent, inv *Inventory, now time.Time, window time.Duration) (Result, error) {
	e := CheckEligibility(brk, inv, now, window)
	if !e.CanSave {
		habitID := ""
		if brk != nil {
			habitID = brk.HabitID
		}
		return Result{}, e.Err(habitID)
	}

	restored := brk.PreviousStreak + 1 + t.Streak()

	inv.consume(now)
	consumed := now
	brk.ConsumedAt = &consumed
	t.MarkSaved(brk.BreakDate)
	t.RestoreStreak(restored)

	return Result{
		BreakID:   brk.ID,
		BreakDate: brk.BreakDate,
		Restored:  restored,
		Remaining: inv.Available,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// SaveFunc mutates the records loaded inside a save transaction.
type SaveFunc func(t Target, brk *BreakEvent, inv *Inventory) error

// Store persists inventories and break events.
type Store interface {
	// Inventory returns the inventory of an owner; a missing one is returned empty.
	Inventory(ctx context.Context, ownerID string, scope Scope) (*Inventory, error)

	// SaveInventory creates or replaces an inventory.
	SaveInventory(ctx context.Context, inv *Inventory) error

	// RecordBreak stores a new break event; the (habit, break date) pair is unique.
	RecordBreak(ctx context.Context, brk *BreakEvent) error

	// LatestBreak returns the most recent break of a habit or shared.ErrBreakNotFound.
	LatestBreak(ctx context.Context, habitID string) (*BreakEvent, error)

	// WithinSave loads the break, its target and its inventory, runs fn and persists
	// all three in one transaction. If fn fails nothing is written.
	WithinSave(ctx context.Context, breakID string, fn SaveFunc) error
}
