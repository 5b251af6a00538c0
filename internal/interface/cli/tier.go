package cli

import (
	"fmt"

	"github.com/alem-hub/streakhub/internal/domain/progression"
)

type TierCmd struct {
	Show TierShowCmd `cmd:"" help:"Show the tier ladder." default:"1"`
}

type TierShowCmd struct {
	Scope string `short:"s" help:"Ladder to show (habit|group)." enum:"habit,group" default:"habit"`
	Value int    `short:"v" help:"Streak (habit) or level (group) to place on the ladder." default:"-1"`
}

func (c *TierShowCmd) Run(ctx *Context) error {
	cfg := ctx.Engine.Config()
	scope := progression.ScopeHabit
	unit := "streak"
	if c.Scope == "group" {
		scope = progression.ScopeGroup
		unit = "level"
	}
	policy := cfg.Policies.For(scope)

	fmt.Fprintf(ctx.Out, "%-10s  %6s  %s\n", "TIER", unit, "XP")
	for _, t := range policy.Tiers {
		fmt.Fprintf(ctx.Out, "%-10s  %5d+  x%.2f\n", t.Name, t.Floor, t.Multiplier)
	}
	fmt.Fprintf(ctx.Out, "%d XP per task, %d per day without tasks", policy.BaseXPPerTask, policy.BinaryXP)
	if policy.BonusEvery > 0 && policy.BonusXP > 0 {
		fmt.Fprintf(ctx.Out, ", +%d per %d %s", policy.BonusXP, policy.BonusEvery, unit)
	}
	fmt.Fprintln(ctx.Out)

	if scope == progression.ScopeGroup {
		fmt.Fprint(ctx.Out, "Levels (cumulative XP):")
		for i, xp := range cfg.LevelTable.Thresholds {
			fmt.Fprintf(ctx.Out, " %d:%d", i+1, xp)
		}
		fmt.Fprintln(ctx.Out)
	}

	if c.Value >= 0 {
		st := policy.TierFor(c.Value)
		fmt.Fprintf(ctx.Out, "%s %d is %s", unit, c.Value, st.Tier.Name)
		if st.Next != nil {
			fmt.Fprintf(ctx.Out, ", %.0f%% of the way to %s", st.ProgressToNext, st.Next.Name)
		}
		fmt.Fprintln(ctx.Out)
	}
	return nil
}
