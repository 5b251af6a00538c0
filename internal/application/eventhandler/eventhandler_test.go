package eventhandler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/streakhub/internal/application/command"
	"github.com/alem-hub/streakhub/internal/domain/habit"
	"github.com/alem-hub/streakhub/internal/domain/saver"
	"github.com/alem-hub/streakhub/internal/domain/shared"
)

type grantRecorder struct {
	calls []command.GrantSaversCommand
	err   error
}

func (g *grantRecorder) Grant(_ context.Context, cmd command.GrantSaversCommand) (*saver.Inventory, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.calls = append(g.calls, cmd)
	return &saver.Inventory{OwnerID: cmd.OwnerID, Scope: cmd.Scope, Available: cmd.Amount}, nil
}

type habitsStub map[string]*habit.Habit

func (s habitsStub) FindByID(_ context.Context, id string) (*habit.Habit, error) {
	if h, ok := s[id]; ok {
		return h, nil
	}
	return nil, shared.NotFoundError("habit", "FindByID", id)
}

var at = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestOnMilestoneReached(t *testing.T) {
	granter := &grantRecorder{}
	h := NewOnMilestoneReachedHandler(habitsStub{"h1": {ID: "h1", OwnerID: "u1"}}, granter, nil, DefaultMilestoneRewardConfig())

	require.NoError(t, h.Handle(shared.NewMilestoneReachedEvent("h1", 7, 7, at)))
	assert.Empty(t, granter.calls, "7 is not a rewarded milestone")

	require.NoError(t, h.Handle(shared.NewMilestoneReachedEvent("h1", 30, 30, at)))
	require.Len(t, granter.calls, 1)
	assert.Equal(t, command.GrantSaversCommand{OwnerID: "u1", Scope: saver.ScopePersonal, Amount: 1}, granter.calls[0])

	assert.Error(t, h.Handle(shared.NewMilestoneReachedEvent("missing", 30, 30, at)))

	// other events are ignored
	assert.NoError(t, h.Handle(shared.NewStreakUpdatedEvent("h1", 1, 2, 2, at)))
	assert.Len(t, granter.calls, 1)
}

func TestOnMilestoneReached_EveryMilestone(t *testing.T) {
	granter := &grantRecorder{}
	h := NewOnMilestoneReachedHandler(habitsStub{"h1": {ID: "h1", OwnerID: "u1"}}, granter, nil,
		MilestoneRewardConfig{SaversPerMilestone: 2})

	require.NoError(t, h.Handle(shared.NewMilestoneReachedEvent("h1", 7, 7, at)))
	require.Len(t, granter.calls, 1)
	assert.Equal(t, 2, granter.calls[0].Amount)
}

func TestOnGroupLevelUp(t *testing.T) {
	granter := &grantRecorder{}
	h := NewOnGroupLevelUpHandler(granter, nil, DefaultGroupLevelRewardConfig())

	require.NoError(t, h.Handle(shared.NewGroupLevelUpEvent("g1", 1, 2, 120, at)))
	require.NoError(t, h.Handle(shared.NewGroupLevelUpEvent("g1", 2, 9, 2000, at)))
	require.Len(t, granter.calls, 2)
	assert.Equal(t, command.GrantSaversCommand{OwnerID: "g1", Scope: saver.ScopeTeam, Amount: 1}, granter.calls[0])
	assert.Equal(t, 3, granter.calls[1].Amount, "capped per event")

	granter.err = errors.New("db down")
	assert.Error(t, h.Handle(shared.NewGroupLevelUpEvent("g1", 9, 10, 3800, at)))
}
