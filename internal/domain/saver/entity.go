// Package saver contains the streak saver: a consumable that repairs exactly one
// broken streak within a fixed window after the break was detected.
// This is a pure domain layer; atomicity is provided by the Store implementation.
package saver

import (
	"time"

	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

// DefaultWindow is how long a detected break stays repairable.
const DefaultWindow = 24 * time.Hour

// Scope selects which inventory pays for a save.
type Scope string

const (
	ScopePersonal Scope = "personal"
	ScopeTeam     Scope = "team" // shared allowance of a group, used by group habits
)

// IsValid checks if the scope is known.
func (s Scope) IsValid() bool {
	return s == ScopePersonal || s == ScopeTeam
}

// Inventory is the non-negative count of savers an owner (user or group) holds.
type Inventory struct {
	OwnerID   string    `json:"owner_id"`
	Scope     Scope     `json:"scope"`
	Available int       `json:"available"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewInventory returns an empty inventory.
func NewInventory(ownerID string, scope Scope) *Inventory {
	return &Inventory{OwnerID: ownerID, Scope: scope}
}

// Grant adds savers to the inventory.
func (inv *Inventory) Grant(n int, now time.Time) error {
	if n <= 0 {
		return shared.ErrInvalidGrantAmount
	}
	inv.Available += n
	inv.UpdatedAt = now
	return nil
}

// consume takes exactly one saver.
func (inv *Inventory) consume(now time.Time) {
	inv.Available--
	inv.UpdatedAt = now
}

// BreakEvent is a detected streak break.
// It is recorded the first time a streak walk stops on a new missed day.
type BreakEvent struct {
	ID             string        `json:"id"`
	HabitID        string        `json:"habit_id"`
	OwnerID        string        `json:"owner_id"` // user id, or group id for team scope
	Scope          Scope         `json:"scope"`
	BreakDate      timeutil.Date `json:"break_date"`
	PreviousStreak int           `json:"previous_streak"`
	DetectedAt     time.Time     `json:"detected_at"`
	ConsumedAt     *time.Time    `json:"consumed_at,omitempty"`
}

// IsConsumed reports whether a saver was already used on this break.
func (b *BreakEvent) IsConsumed() bool {
	return b.ConsumedAt != nil
}

// ExpiresAt returns the end of the repair window.
func (b *BreakEvent) ExpiresAt(window time.Duration) time.Time {
	return b.DetectedAt.Add(window)
}

// NewBreak returns the break a streak walk has just reported, or nil when nothing new broke.
// latest is the most recently recorded break of the habit (nil if none).
// A break is recorded only once per break date and only when there was a streak to lose.
func NewBreak(id, habitID, ownerID string, scope Scope, brokenOn timeutil.Date, previous int, latest *BreakEvent, now time.Time) *BreakEvent {
	if brokenOn.IsZero() || previous <= 0 {
		return nil
	}
	if latest != nil && !brokenOn.After(latest.BreakDate) {
		return nil
	}
	return &BreakEvent{
		ID:             id,
		HabitID:        habitID,
		OwnerID:        ownerID,
		Scope:          scope,
		BreakDate:      brokenOn,
		PreviousStreak: previous,
		DetectedAt:     now,
	}
}
