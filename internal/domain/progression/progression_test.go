package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierFor_HabitScope(t *testing.T) {
	p := DefaultHabitPolicy()
	require.NoError(t, p.Validate())

	tests := []struct {
		streak   int
		tier     string
		progress float64
	}{
		{0, "Bronze", 0},
		{6, "Bronze", 6.0 / 7.0 * 100},
		{7, "Silver", 0},
		{60, "Gold", 50},
		{180, "Diamond", 0},
		{365, "Diamond", 100},
		{1000, "Diamond", 100},
	}

	for _, tt := range tests {
		st := p.TierFor(tt.streak)
		assert.Equal(t, tt.tier, st.Tier.Name, "streak=%d", tt.streak)
		assert.InDelta(t, tt.progress, st.ProgressToNext, 1e-9, "streak=%d", tt.streak)
	}

	assert.Nil(t, p.TierFor(200).Next)
	assert.Equal(t, "Gold", p.TierFor(8).Next.Name)
}

func TestTierFor_GroupScopeUsesLevels(t *testing.T) {
	p := DefaultPolicies().For(ScopeGroup)
	require.NoError(t, p.Validate())

	assert.Equal(t, "Spark", p.TierFor(0).Tier.Name, "below the first floor still gets the first tier")
	assert.Equal(t, "Flame", p.TierFor(5).Tier.Name)
	assert.Equal(t, "Nova", p.TierFor(50).Tier.Name)
	assert.InDelta(t, 100, p.TierFor(50).ProgressToNext, 1e-9)
}

func TestPolicy_Validate(t *testing.T) {
	p := DefaultHabitPolicy()
	p.Tiers[2].Floor = 5
	assert.Error(t, p.Validate())

	p = DefaultHabitPolicy()
	p.TopCeiling = 100
	assert.Error(t, p.Validate())
}

func TestAwardXP(t *testing.T) {
	p := DefaultHabitPolicy()

	tests := []struct {
		name   string
		action Action
		want   int
		bonus  int
	}{
		{"three tasks, silver", Action{CompletedTasks: 3, HasTasks: true, Streak: 14, TierValue: 14}, 44, 10},
		{"binary at bronze", Action{Streak: 1, TierValue: 1}, 20, 0},
		{"no bonus at exactly seven", Action{CompletedTasks: 1, HasTasks: true, Streak: 7, TierValue: 7}, 11, 0},
		{"gold", Action{CompletedTasks: 2, HasTasks: true, Streak: 30, TierValue: 30}, 50, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := p.AwardXP(tt.action)
			assert.Equal(t, tt.want, a.Amount)
			assert.Equal(t, tt.bonus, a.StreakBonus)
		})
	}
}

func TestCrossedMilestones(t *testing.T) {
	assert.Equal(t, []int{7}, CrossedMilestones(DefaultMilestones, 6, 7))
	assert.Equal(t, []int{7, 30}, CrossedMilestones(DefaultMilestones, 5, 30))
	assert.Nil(t, CrossedMilestones(DefaultMilestones, 7, 7))
	assert.Nil(t, CrossedMilestones(DefaultMilestones, 10, 0))
}

func TestLevelTable(t *testing.T) {
	lt := DefaultLevelTable()
	require.NoError(t, lt.Validate())

	assert.Equal(t, 1, lt.LevelFor(0))
	assert.Equal(t, 1, lt.LevelFor(99))
	assert.Equal(t, 2, lt.LevelFor(100))
	assert.Equal(t, 10, lt.LevelFor(5000))
	assert.Equal(t, lt.MaxLevel(), lt.LevelFor(1_000_000))
	assert.InDelta(t, 50, lt.ProgressToNext(175), 1e-9)
	assert.InDelta(t, 100, lt.ProgressToNext(1_000_000), 1e-9)

	ch := lt.Apply(90, 20)
	assert.True(t, ch.LeveledUp())
	assert.Equal(t, 2, ch.NewLevel)

	assert.False(t, lt.Apply(100, 10).LeveledUp())
	assert.Error(t, LevelTable{Thresholds: []int{0, 50, 50}}.Validate())
}
