package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alem-hub/streakhub/internal/application/command"
	"github.com/alem-hub/streakhub/internal/domain/holiday"
)

type HolidayCmd struct {
	Start  HolidayStartCmd  `cmd:"" help:"Freeze habits for a date range."`
	Cancel HolidayCancelCmd `cmd:"" help:"End a holiday early."`
	List   HolidayListCmd   `cmd:"" help:"List holidays." default:"1"`
}

type HolidayStartCmd struct {
	From   string   `arg:"" help:"First frozen day (YYYY-MM-DD, 'today' or 'yesterday')."`
	To     string   `arg:"" help:"Last frozen day (YYYY-MM-DD)."`
	Habits []string `short:"H" help:"Freeze only these habit IDs."`
	Tasks  []string `short:"t" help:"Freeze single tasks, written as habit:task."`
	Reason string   `short:"r" help:"Why the holiday is taken."`
}

func (c *HolidayStartCmd) Run(ctx *Context) error {
	if err := ctx.requireOwner(); err != nil {
		return err
	}
	from, err := ctx.parseDate(c.From)
	if err != nil {
		return err
	}
	to, err := ctx.parseDate(c.To)
	if err != nil {
		return err
	}
	freezes, err := parseTaskFreezes(c.Tasks)
	if err != nil {
		return err
	}

	res, err := ctx.Holidays.Create(ctx.Ctx, command.CreateHolidayCommand{
		OwnerID:      ctx.Owner,
		StartDate:    from,
		EndDate:      to,
		AppliesToAll: len(c.Habits) == 0 && len(freezes) == 0,
		HabitIDs:     c.Habits,
		TaskFreezes:  freezes,
		Reason:       c.Reason,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.Out, "Holiday %s: %s..%s, %s\n", res.Period.ID, res.Period.StartDate, res.Period.EndDate, holidayScope(res.Period))
	if n := len(res.AffectedHabits); n > 0 {
		fmt.Fprintf(ctx.Out, "Recomputed %d habit(s)\n", n)
	}
	return nil
}

// parseTaskFreezes groups habit:task pairs by habit, keeping first-seen order.
func parseTaskFreezes(pairs []string) ([]holiday.TaskFreeze, error) {
	var (
		freezes []holiday.TaskFreeze
		index   = make(map[string]int)
	)
	for _, p := range pairs {
		habitID, taskID, ok := strings.Cut(p, ":")
		habitID, taskID = strings.TrimSpace(habitID), strings.TrimSpace(taskID)
		if !ok || habitID == "" || taskID == "" {
			return nil, fmt.Errorf("invalid task freeze %q, use habit:task", p)
		}
		i, seen := index[habitID]
		if !seen {
			i = len(freezes)
			index[habitID] = i
			freezes = append(freezes, holiday.TaskFreeze{HabitID: habitID})
		}
		freezes[i].TaskIDs = append(freezes[i].TaskIDs, taskID)
	}
	return freezes, nil
}

type HolidayCancelCmd struct {
	ID string `arg:"" help:"Holiday ID."`
}

func (c *HolidayCancelCmd) Run(ctx *Context) error {
	if err := ctx.requireOwner(); err != nil {
		return err
	}
	res, err := ctx.Holidays.Cancel(ctx.Ctx, command.CancelHolidayCommand{OwnerID: ctx.Owner, HolidayID: c.ID})
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "Holiday %s cancelled, now %s..%s\n", res.Period.ID, res.Period.StartDate, res.Period.EndDate)
	if n := len(res.AffectedHabits); n > 0 {
		fmt.Fprintf(ctx.Out, "Recomputed %d habit(s)\n", n)
	}
	return nil
}

type HolidayListCmd struct {
	All bool `short:"a" help:"Include ended and cancelled holidays."`
}

func (c *HolidayListCmd) Run(ctx *Context) error {
	if err := ctx.requireOwner(); err != nil {
		return err
	}
	periods, err := ctx.Store.Holidays().FindByOwner(ctx.Ctx, ctx.Owner)
	if err != nil {
		return err
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].StartDate.Before(periods[j].StartDate) })

	shown := 0
	for i := range periods {
		p := &periods[i]
		if !c.All && p.Status != holiday.StatusActive {
			continue
		}
		if shown == 0 {
			fmt.Fprintf(ctx.Out, "%-36s  %-10s  %-10s  %-9s  %s\n", "ID", "FROM", "TO", "STATUS", "SCOPE")
		}
		shown++
		fmt.Fprintf(ctx.Out, "%-36s  %-10s  %-10s  %-9s  %s\n", p.ID, p.StartDate, p.EndDate, p.Status, holidayScope(p))
	}
	if shown == 0 {
		fmt.Fprintln(ctx.Out, "No holidays")
	}
	return nil
}

func holidayScope(p *holiday.Period) string {
	if p.AppliesToAll {
		return "all habits"
	}
	var parts []string
	if len(p.HabitIDs) > 0 {
		parts = append(parts, "habits "+strings.Join(p.HabitIDs, ","))
	}
	for _, tf := range p.TaskFreezes {
		parts = append(parts, tf.HabitID+":"+strings.Join(tf.TaskIDs, ","))
	}
	return strings.Join(parts, "; ")
}
