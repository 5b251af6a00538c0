package cli

import (
	"fmt"
	"slices"

	"github.com/alem-hub/streakhub/internal/application/command"
)

type GroupCmd struct {
	Create GroupCreateCmd `cmd:"" help:"Create a group with a shared habit."`
	Toggle GroupToggleCmd `cmd:"" help:"Toggle a member's task or day on a group habit."`
	Status GroupStatusCmd `cmd:"" help:"Show a group habit's progress today."`
}

type GroupCreateCmd struct {
	Name      string   `arg:"" help:"Group name."`
	Habit     string   `help:"Name of the shared habit." required:""`
	Members   []string `short:"m" help:"Member IDs; the owner is always added."`
	Tasks     []string `short:"t" help:"Task labels, comma separated or repeated."`
	Frequency string   `short:"f" help:"Frequency (daily|weekly|custom)." enum:"daily,weekly,custom" default:"daily"`
	Weekdays  string   `short:"w" help:"Comma-separated weekdays for custom frequency."`
}

func (c *GroupCreateCmd) Run(ctx *Context) error {
	freq, err := parseFrequency(c.Frequency, c.Weekdays)
	if err != nil {
		return err
	}
	members := c.Members
	if ctx.Owner != "" && !slices.Contains(members, ctx.Owner) {
		members = append([]string{ctx.Owner}, members...)
	}

	g, gh, err := command.CreateGroup(ctx.Ctx, ctx.Engine, ctx.Store.Groups(), command.CreateGroupCommand{
		Name:      c.Name,
		Members:   members,
		HabitName: c.Habit,
		Tasks:     newTasks(c.Tasks),
		Frequency: freq,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.Out, "Created group %q (%s) with %d member(s)\n", g.Name, g.ID, len(g.Members))
	fmt.Fprintf(ctx.Out, "Habit %q (%s), %s\n", gh.Name, gh.ID, formatFrequency(gh.Frequency))
	for _, t := range gh.Tasks {
		fmt.Fprintf(ctx.Out, "  %-4s %s\n", t.ID, t.Label)
	}
	return nil
}

type GroupToggleCmd struct {
	HabitID string `arg:"" name:"habit" help:"Group habit ID."`
	TaskID  string `arg:"" name:"task" optional:"" help:"Task ID; omit to toggle the whole day."`
	Member  string `short:"m" help:"Member to toggle for (default: the owner)."`
	Date    string `short:"d" help:"Date to toggle (YYYY-MM-DD, 'today' or 'yesterday')." default:"today"`
}

func (c *GroupToggleCmd) Run(ctx *Context) error {
	member := c.Member
	if member == "" {
		if err := ctx.requireOwner(); err != nil {
			return err
		}
		member = ctx.Owner
	}
	d, err := ctx.parseDate(c.Date)
	if err != nil {
		return err
	}

	res, err := ctx.GroupToggle.Handle(ctx.Ctx, command.GroupToggleCommand{
		GroupHabitID: c.HabitID,
		MemberID:     member,
		Date:         d,
		TaskID:       c.TaskID,
	})
	if err != nil {
		return err
	}

	state := "open"
	if res.Day.AllCompleted {
		state = "done"
	}
	fmt.Fprintf(ctx.Out, "%s %s: %s (%d/%d members)\n", res.Habit.Name, res.Transition.Date, state, res.Day.Completed, res.Day.Members)
	fmt.Fprintf(ctx.Out, "Streak: %d%s (best %d)\n", res.Streak.Current, streakUnit(res.Streak.Weekly), res.Streak.Best)
	if res.Award != nil && res.Award.Amount > 0 {
		fmt.Fprintf(ctx.Out, "+%d group XP, level %d\n", res.Award.Amount, res.Group.Level)
	}
	return nil
}

type GroupStatusCmd struct {
	HabitID string `arg:"" name:"habit" help:"Group habit ID."`
}

func (c *GroupStatusCmd) Run(ctx *Context) error {
	p, err := ctx.GroupProgress.Handle(ctx.Ctx, c.HabitID)
	if err != nil {
		return err
	}

	out := ctx.Out
	fmt.Fprintf(out, "%s / %s, %s\n", p.GroupName, p.HabitName, p.Date)
	for _, m := range p.Members {
		mark := "[ ]"
		if m.DoneToday {
			mark = "[x]"
		}
		week := ""
		if m.WeekFlag {
			week = "  week done"
		}
		fmt.Fprintf(out, "  %s %s%s\n", mark, m.ID, week)
	}

	state := "open"
	if p.DayCompleted {
		state = "done"
	}
	fmt.Fprintf(out, "Today: %s (%s)\n", state, percent(p.Ratio))
	if p.Streak.Weekly {
		fmt.Fprintf(out, "Week completed: %t\n", p.WeekCompleted)
	}
	fmt.Fprintf(out, "Streak: %d%s (best %d)\n", p.Streak.Current, streakUnit(p.Streak.Weekly), p.Streak.Best)
	fmt.Fprintf(out, "Level %d, %d XP, %.0f%% to next; tier %s\n", p.Level, p.TotalXP, p.LevelProgress, p.Tier.Name)
	if p.Eligibility.CanSave {
		fmt.Fprintf(out, "Team saver: can repair the break on %s (%d left)\n", p.Eligibility.LastBreakDate, p.Eligibility.Available)
	}
	return nil
}
