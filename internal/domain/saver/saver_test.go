package saver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

type fakeTarget struct {
	current int
	saved   []timeutil.Date
}

func (f *fakeTarget) MarkSaved(d timeutil.Date) { f.saved = append(f.saved, d) }
func (f *fakeTarget) Streak() int               { return f.current }
func (f *fakeTarget) RestoreStreak(n int)       { f.current = n }

var detected = time.Date(2024, 5, 12, 0, 5, 0, 0, time.UTC)

func newBreak() *BreakEvent {
	return NewBreak("brk-1", "habit-1", "user-1", ScopePersonal, "2024-05-11", 10, nil, detected)
}

func TestNewBreak(t *testing.T) {
	brk := newBreak()
	require.NotNil(t, brk)
	assert.Equal(t, 10, brk.PreviousStreak)

	assert.Nil(t, NewBreak("b", "h", "u", ScopePersonal, "2024-05-11", 10, brk, detected), "same break date is recorded once")
	assert.Nil(t, NewBreak("b", "h", "u", ScopePersonal, "2024-05-11", 0, nil, detected), "nothing to lose")
	assert.Nil(t, NewBreak("b", "h", "u", ScopePersonal, "", 3, nil, detected))
	assert.NotNil(t, NewBreak("b", "h", "u", ScopePersonal, "2024-05-14", 2, brk, detected))
}

func TestCheckEligibility(t *testing.T) {
	inv := &Inventory{OwnerID: "user-1", Scope: ScopePersonal, Available: 2}

	tests := []struct {
		name   string
		brk    func() *BreakEvent
		inv    *Inventory
		now    time.Time
		reason shared.EligibilityReason
		ok     bool
	}{
		{"eligible", newBreak, inv, detected.Add(23 * time.Hour), "", true},
		{"window edge is inclusive", newBreak, inv, detected.Add(24 * time.Hour), "", true},
		{"window closed", newBreak, inv, detected.Add(24*time.Hour + time.Second), shared.ReasonWindowClosed, false},
		{"no savers", newBreak, &Inventory{Available: 0}, detected, shared.ReasonNoSavers, false},
		{"missing inventory", newBreak, nil, detected, shared.ReasonNoSavers, false},
		{"no break", func() *BreakEvent { return nil }, inv, detected, shared.ReasonNoBreak, false},
		{"already used", func() *BreakEvent {
			b := newBreak()
			at := detected
			b.ConsumedAt = &at
			return b
		}, inv, detected, shared.ReasonAlreadyUsed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := CheckEligibility(tt.brk(), tt.inv, tt.now, DefaultWindow)
			assert.Equal(t, tt.ok, e.CanSave)
			assert.Equal(t, tt.reason, e.Reason)
		})
	}
}

func TestApply_SingleShotPerBreak(t *testing.T) {
	brk := newBreak()
	inv := &Inventory{OwnerID: "user-1", Scope: ScopePersonal, Available: 3}
	target := &fakeTarget{current: 0}
	now := detected.Add(2 * time.Hour)

	res, err := Apply(target, brk, inv, now, DefaultWindow)
	require.NoError(t, err)
	assert.Equal(t, 11, res.Restored)
	assert.Equal(t, 11, target.current)
	assert.Equal(t, []timeutil.Date{"2024-05-11"}, target.saved)
	assert.Equal(t, 2, inv.Available)
	assert.True(t, brk.IsConsumed())

	_, err = Apply(target, brk, inv, now, DefaultWindow)
	require.Error(t, err)
	assert.True(t, shared.IsEligibility(err))

	var eligErr *shared.EligibilityError
	require.ErrorAs(t, err, &eligErr)
	assert.Equal(t, shared.ReasonAlreadyUsed, eligErr.Reason)
	assert.Equal(t, 2, inv.Available, "inventory decreases by exactly one")
}

func TestApply_FailureLeavesRecordsUntouched(t *testing.T) {
	brk := newBreak()
	inv := &Inventory{Available: 0}
	target := &fakeTarget{}

	_, err := Apply(target, brk, inv, detected, DefaultWindow)
	var eligErr *shared.EligibilityError
	require.ErrorAs(t, err, &eligErr)
	assert.Equal(t, shared.ReasonNoSavers, eligErr.Reason)
	assert.True(t, eligErr.Reason.CanAcquireMore())
	assert.Equal(t, "saver.Apply: habit habit-1: no savers available", err.Error())

	assert.False(t, brk.IsConsumed())
	assert.Empty(t, target.saved)
	assert.Zero(t, inv.Available)
}

func TestApply_CountsDaysCompletedSinceBreak(t *testing.T) {
	brk := newBreak()
	inv := &Inventory{Available: 1}
	target := &fakeTarget{current: 2}

	res, err := Apply(target, brk, inv, detected.Add(time.Hour), DefaultWindow)
	require.NoError(t, err)
	assert.Equal(t, 13, res.Restored)
}

func TestInventory_Grant(t *testing.T) {
	inv := NewInventory("user-1", ScopePersonal)
	require.NoError(t, inv.Grant(2, detected))
	assert.Equal(t, 2, inv.Available)
	assert.ErrorIs(t, inv.Grant(0, detected), shared.ErrNegativeValue)
}
