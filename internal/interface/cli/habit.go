package cli

import (
	"fmt"
	"strings"

	"github.com/alem-hub/streakhub/internal/application/command"
	"github.com/alem-hub/streakhub/internal/application/query"
	"github.com/alem-hub/streakhub/internal/domain/habit"
)

type HabitCmd struct {
	Add    HabitAddCmd    `cmd:"" help:"Create a habit."`
	Toggle HabitToggleCmd `cmd:"" help:"Toggle one task of a habit for a day."`
	Day    HabitDayCmd    `cmd:"" help:"Toggle a whole day of a habit."`
	Status HabitStatusCmd `cmd:"" help:"Show a habit's progress for a day."`
	List   HabitListCmd   `cmd:"" help:"List habits." default:"1"`
}

type HabitAddCmd struct {
	Name      string   `arg:"" help:"Habit name."`
	Kind      string   `short:"k" help:"Habit kind (good|bad)." enum:"good,bad" default:"good"`
	Category  string   `short:"c" help:"Category label."`
	Tasks     []string `short:"t" help:"Task labels, comma separated or repeated."`
	Frequency string   `short:"f" help:"Frequency (daily|weekly|custom)." enum:"daily,weekly,custom" default:"daily"`
	Weekdays  string   `short:"w" help:"Comma-separated weekdays for custom frequency."`
	Goal      int      `short:"g" help:"Duration goal in completed days (0 = none)."`
}

func (c *HabitAddCmd) Validate() error {
	if c.Goal < 0 {
		return fmt.Errorf("goal cannot be negative")
	}
	return nil
}

func (c *HabitAddCmd) Run(ctx *Context) error {
	if err := ctx.requireOwner(); err != nil {
		return err
	}
	freq, err := parseFrequency(c.Frequency, c.Weekdays)
	if err != nil {
		return err
	}

	h, err := command.CreateHabit(ctx.Ctx, ctx.Engine, ctx.Store.Habits(), command.CreateHabitCommand{
		OwnerID:          ctx.Owner,
		Name:             c.Name,
		Kind:             habit.Kind(c.Kind),
		Category:         c.Category,
		Tasks:            newTasks(c.Tasks),
		Frequency:        freq,
		DurationGoalDays: c.Goal,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.Out, "Created habit %q (%s), %s\n", h.Name, h.ID, formatFrequency(h.Frequency))
	for _, t := range h.Tasks {
		fmt.Fprintf(ctx.Out, "  %-4s %s\n", t.ID, t.Label)
	}
	return nil
}

type HabitToggleCmd struct {
	HabitID string `arg:"" name:"habit" help:"Habit ID."`
	TaskID  string `arg:"" name:"task" help:"Task ID."`
	Date    string `short:"d" help:"Date to toggle (YYYY-MM-DD, 'today' or 'yesterday')." default:"today"`
}

func (c *HabitToggleCmd) Run(ctx *Context) error {
	return toggle(ctx, c.HabitID, c.TaskID, c.Date)
}

type HabitDayCmd struct {
	HabitID string `arg:"" name:"habit" help:"Habit ID."`
	Date    string `short:"d" help:"Date to toggle (YYYY-MM-DD, 'today' or 'yesterday')." default:"today"`
}

func (c *HabitDayCmd) Run(ctx *Context) error {
	return toggle(ctx, c.HabitID, "", c.Date)
}

func toggle(ctx *Context, habitID, taskID, date string) error {
	d, err := ctx.parseDate(date)
	if err != nil {
		return err
	}

	res, err := ctx.Toggle.Handle(ctx.Ctx, command.ToggleCommand{HabitID: habitID, Date: d, TaskID: taskID})
	if err != nil {
		return err
	}

	state := "open"
	switch {
	case res.Completion.Frozen:
		state = "frozen"
	case res.Completion.AllCompleted:
		state = "done"
	}
	fmt.Fprintf(ctx.Out, "%s %s: %s", res.Habit.Name, res.Transition.Date, state)
	if res.Completion.Total > 0 {
		fmt.Fprintf(ctx.Out, " (%d/%d tasks)", res.Completion.Completed, res.Completion.Total)
	}
	fmt.Fprintln(ctx.Out)

	fmt.Fprintf(ctx.Out, "Streak: %d%s (best %d)\n", res.Streak.Current, streakUnit(res.Streak.Weekly), res.Streak.Best)
	if res.Award != nil && res.Award.Amount > 0 {
		fmt.Fprintf(ctx.Out, "+%d XP (%s x%.2f)\n", res.Award.Amount, res.Award.Tier, res.Award.Multiplier)
	}
	return nil
}

type HabitStatusCmd struct {
	HabitID string `arg:"" name:"habit" help:"Habit ID."`
	Date    string `short:"d" help:"Date to show (YYYY-MM-DD, 'today' or 'yesterday')." default:"today"`
}

func (c *HabitStatusCmd) Run(ctx *Context) error {
	d, err := ctx.parseDate(c.Date)
	if err != nil {
		return err
	}
	p, err := ctx.HabitProgress.Handle(ctx.Ctx, query.GetHabitProgressQuery{HabitID: c.HabitID, Date: d})
	if err != nil {
		return err
	}
	printProgress(ctx, p)
	return nil
}

func printProgress(ctx *Context, p *query.HabitProgressDTO) {
	out := ctx.Out
	fmt.Fprintf(out, "%s (%s, %s)\n", p.Name, p.Kind, p.Frequency)

	day := string(p.Date)
	if p.IsToday {
		day += " (today)"
	}
	fmt.Fprintf(out, "Day %s: %s done", day, percent(p.Ratio))
	switch {
	case p.Frozen:
		fmt.Fprint(out, ", frozen")
	case p.Saved:
		fmt.Fprint(out, ", saved")
	case p.FreezeMode != "" && p.FreezeMode != "none":
		fmt.Fprintf(out, ", partly frozen (%s)", p.FreezeMode)
	}
	fmt.Fprintln(out)

	for _, t := range p.Tasks {
		mark := "[ ]"
		switch {
		case t.Frozen:
			mark = "[~]"
		case t.Done:
			mark = "[x]"
		}
		fmt.Fprintf(out, "  %s %-4s %s\n", mark, t.ID, t.Label)
	}

	unit := streakUnit(p.Streak.Weekly)
	fmt.Fprintf(out, "Streak: %d%s (best %d)\n", p.Streak.Current, unit, p.Streak.Best)
	if p.Streak.BrokenOn != "" && p.Streak.Previous > 0 {
		fmt.Fprintf(out, "Last break: %s after %d%s\n", p.Streak.BrokenOn, p.Streak.Previous, unit)
	}

	fmt.Fprintf(out, "Tier: %s x%.2f, %d XP", p.Tier.Name, p.Tier.Multiplier, p.TotalXP)
	if p.Tier.Next != "" {
		fmt.Fprintf(out, ", %.0f%% to %s", p.Tier.ProgressToNext, p.Tier.Next)
	}
	fmt.Fprintln(out)

	if w := p.Weekly; w != nil {
		state := "open"
		if w.Completed {
			state = "done"
		}
		fmt.Fprintf(out, "Week %s..%s: %s (%d/%d tasks)\n", w.WeekStart, w.WeekEnd, state, w.CompletedTasks, w.TotalTasks)
	}
	if g := p.Goal; g != nil {
		fmt.Fprintf(out, "Goal: %d/%d days (%.0f%%)", g.Counted, g.Target, g.Percent)
		if g.Reached {
			fmt.Fprint(out, ", reached")
		}
		fmt.Fprintln(out)
	}
	if p.Eligibility.CanSave {
		fmt.Fprintf(out, "Saver: can repair the break on %s (%d left)\n", p.Eligibility.LastBreakDate, p.Eligibility.Available)
	}
}

type HabitListCmd struct{}

func (c *HabitListCmd) Run(ctx *Context) error {
	if err := ctx.requireOwner(); err != nil {
		return err
	}
	habits, err := ctx.HabitList.Handle(ctx.Ctx, ctx.Owner)
	if err != nil {
		return err
	}
	if len(habits) == 0 {
		fmt.Fprintln(ctx.Out, "No habits yet. Add one with: habitctl habit add <name>")
		return nil
	}

	fmt.Fprintf(ctx.Out, "%-36s  %-24s  %-7s  %5s  %6s  %4s  %-9s  %s\n",
		"ID", "NAME", "FREQ", "TODAY", "STREAK", "BEST", "TIER", "XP")
	for _, h := range habits {
		today := percent(h.Ratio)
		switch {
		case h.Frozen:
			today = "~"
		case h.DoneToday:
			today = "done"
		}
		fmt.Fprintf(ctx.Out, "%-36s  %-24s  %-7s  %5s  %6d  %4d  %-9s  %d\n",
			h.ID, truncate(h.Name, 24), h.Frequency, today, h.Streak, h.Best, h.Tier, h.TotalXP)
	}
	return nil
}

func streakUnit(weekly bool) string {
	if weekly {
		return "w"
	}
	return "d"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
