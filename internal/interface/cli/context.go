// Package cli implements the habitctl commands on top of a local sqlite store.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alem-hub/streakhub/internal/application/command"
	"github.com/alem-hub/streakhub/internal/application/eventhandler"
	"github.com/alem-hub/streakhub/internal/application/query"
	"github.com/alem-hub/streakhub/internal/domain/habit"
	"github.com/alem-hub/streakhub/internal/domain/holiday"
	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/internal/infrastructure/messaging"
	"github.com/alem-hub/streakhub/internal/infrastructure/persistence/sqlite"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

// Options configures a Context.
type Options struct {
	Owner    string
	Out      io.Writer
	Logger   *slog.Logger
	Location *time.Location
	Clock    func() time.Time
	Goal     habit.GoalPolicy
}

// Context is passed to every command's Run.
type Context struct {
	Ctx    context.Context
	Owner  string
	Out    io.Writer
	Logger *slog.Logger

	Store  *sqlite.Store
	Events *messaging.InMemoryEventBus

	Engine      *command.Engine
	Toggle      *command.ToggleHandler
	Holidays    *command.HolidayHandler
	Savers      *command.SaverHandler
	GroupToggle *command.GroupToggleHandler
	Detect      *command.DetectBreaksHandler

	HabitProgress *query.GetHabitProgressHandler
	HabitList     *query.ListHabitsHandler
	Eligibility   *query.GetSaveEligibilityHandler
	GroupProgress *query.GetGroupProgressHandler
}

// NewContext wires the engine, handlers and queries to the store.
func NewContext(ctx context.Context, store *sqlite.Store, opts Options) (*Context, error) {
	if store == nil {
		return nil, fmt.Errorf("cli: store is required")
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
		Logger:        opts.Logger,
		EnableMetrics: true,
	})
	if err := bus.SubscribeAll(messaging.LogHandler(opts.Logger)); err != nil {
		return nil, err
	}
	if err := bus.SubscribeAll(announce(opts.Out)); err != nil {
		return nil, err
	}

	holidays := holiday.NewManager(store.Holidays(), nil)

	engine := command.NewEngine(store.Habits(), holidays, store.Savers(), command.EngineConfig{
		Location: opts.Location,
		Clock:    opts.Clock,
		Goal:     opts.Goal,
		Logger:   opts.Logger,
	})
	cfg := engine.Config()

	qcfg := query.Config{
		Location:    cfg.Location,
		Clock:       cfg.Clock,
		Policies:    cfg.Policies,
		Goal:        cfg.Goal,
		SaverWindow: cfg.SaverWindow,
		Logger:      opts.Logger,
	}

	savers := command.NewSaverHandler(engine, store.Savers(), bus)
	milestones := eventhandler.NewOnMilestoneReachedHandler(store.Habits(), savers, opts.Logger, eventhandler.DefaultMilestoneRewardConfig())
	if err := bus.Subscribe(shared.EventMilestoneReached, milestones.Handle); err != nil {
		return nil, err
	}
	levels := eventhandler.NewOnGroupLevelUpHandler(savers, opts.Logger, eventhandler.DefaultGroupLevelRewardConfig())
	if err := bus.Subscribe(shared.EventGroupLevelUp, levels.Handle); err != nil {
		return nil, err
	}

	return &Context{
		Ctx:    ctx,
		Owner:  opts.Owner,
		Out:    opts.Out,
		Logger: opts.Logger,
		Store:  store,
		Events: bus,

		Engine:      engine,
		Toggle:      command.NewToggleHandler(engine, store.Habits(), bus),
		Holidays:    command.NewHolidayHandler(engine, store.Habits(), store.Holidays(), bus),
		Savers:      savers,
		GroupToggle: command.NewGroupToggleHandler(engine, store.Groups(), bus),
		Detect:      command.NewDetectBreaksHandler(engine, store.Habits(), store.Groups(), bus),

		HabitProgress: query.NewGetHabitProgressHandler(store.Habits(), holidays, store.Savers(), qcfg),
		HabitList:     query.NewListHabitsHandler(store.Habits(), holidays, qcfg),
		Eligibility:   query.NewGetSaveEligibilityHandler(store.Savers(), qcfg),
		GroupProgress: query.NewGetGroupProgressHandler(store.Groups(), store.Savers(), cfg.LevelTable, qcfg),
	}, nil
}

// Refresh ends holidays past their last day and records breaks that happened
// since the previous run. habitctl has no background worker, so every command
// starts with it.
func (c *Context) Refresh() error {
	if _, err := c.Holidays.EndExpired(c.Ctx); err != nil {
		return fmt.Errorf("end expired holidays: %w", err)
	}
	if _, err := c.Detect.Handle(c.Ctx); err != nil {
		return fmt.Errorf("detect breaks: %w", err)
	}
	return nil
}

// Close stops the event bus.
func (c *Context) Close() error {
	return c.Events.Close()
}

func (c *Context) requireOwner() error {
	if c.Owner == "" {
		return fmt.Errorf("no owner set, pass --owner")
	}
	return nil
}

// today returns the local date of the configured clock.
func (c *Context) today() timeutil.Date {
	_, today := c.Engine.Now()
	return today
}

// parseDate accepts YYYY-MM-DD, "today" and "yesterday".
func (c *Context) parseDate(s string) (timeutil.Date, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "today":
		return c.today(), nil
	case "yesterday":
		return c.today().AddDays(-1), nil
	}
	d, err := timeutil.ParseDate(s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q, use YYYY-MM-DD, 'today' or 'yesterday'", s)
	}
	return d, nil
}

// announce prints the events a user should notice right away.
func announce(out io.Writer) shared.EventHandler {
	return func(event shared.Event) error {
		switch e := event.(type) {
		case shared.StreakBrokenEvent:
			fmt.Fprintf(out, "! Streak of %d broke on %s. A saver can repair it.\n", e.PreviousStreak, e.BreakDate)
		case shared.MilestoneReachedEvent:
			fmt.Fprintf(out, "* Milestone reached: %d\n", e.Milestone)
		case shared.TierChangedEvent:
			fmt.Fprintf(out, "* Tier %s -> %s\n", e.OldTier, e.NewTier)
		case shared.GroupLevelUpEvent:
			fmt.Fprintf(out, "* Group level %d -> %d\n", e.OldLevel, e.NewLevel)
		case shared.HolidayEvent:
			if e.EventType() == shared.EventHolidayEnded {
				fmt.Fprintf(out, "* Holiday %s (%s..%s) ended\n", e.AggregateID(), e.StartDate, e.EndDate)
			}
		}
		return nil
	}
}

var weekdayNames = map[string]time.Weekday{
	"sun":       time.Sunday,
	"sunday":    time.Sunday,
	"mon":       time.Monday,
	"monday":    time.Monday,
	"tue":       time.Tuesday,
	"tuesday":   time.Tuesday,
	"wed":       time.Wednesday,
	"wednesday": time.Wednesday,
	"thu":       time.Thursday,
	"thursday":  time.Thursday,
	"fri":       time.Friday,
	"friday":    time.Friday,
	"sat":       time.Saturday,
	"saturday":  time.Saturday,
}

func parseWeekdays(s string) ([]time.Weekday, error) {
	var weekdays []time.Weekday
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if part == "" {
			continue
		}
		if wd, ok := weekdayNames[part]; ok {
			weekdays = append(weekdays, wd)
			continue
		}
		// 0=Sunday, 6=Saturday
		num, err := strconv.Atoi(part)
		if err != nil || num < 0 || num > 6 {
			return nil, fmt.Errorf("invalid weekday: %s", part)
		}
		weekdays = append(weekdays, time.Weekday(num))
	}
	return weekdays, nil
}

func parseFrequency(kind, weekdays string) (habit.Frequency, error) {
	switch habit.FrequencyKind(kind) {
	case habit.FrequencyDaily, "":
		if weekdays != "" {
			return habit.Frequency{}, fmt.Errorf("--weekdays needs --frequency custom")
		}
		return habit.Daily(), nil
	case habit.FrequencyWeekly:
		if weekdays != "" {
			return habit.Frequency{}, fmt.Errorf("--weekdays needs --frequency custom")
		}
		return habit.Weekly(), nil
	case habit.FrequencyCustom:
		days, err := parseWeekdays(weekdays)
		if err != nil {
			return habit.Frequency{}, err
		}
		if len(days) == 0 {
			return habit.Frequency{}, fmt.Errorf("custom frequency needs --weekdays")
		}
		return habit.Custom(days...), nil
	default:
		return habit.Frequency{}, fmt.Errorf("unknown frequency %q", kind)
	}
}

func formatFrequency(f habit.Frequency) string {
	if f.Kind != habit.FrequencyCustom {
		return string(f.Kind)
	}
	days := make([]string, 0, len(f.Weekdays))
	for _, wd := range f.Weekdays {
		days = append(days, wd.String()[:3])
	}
	return "on " + strings.Join(days, ",")
}

// newTasks numbers labels as t1, t2, ... so they are easy to type.
func newTasks(labels []string) []habit.Task {
	var tasks []habit.Task
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		tasks = append(tasks, habit.Task{ID: fmt.Sprintf("t%d", len(tasks)+1), Label: l})
	}
	return tasks
}

func percent(ratio float64) string {
	return fmt.Sprintf("%.0f%%", ratio*100)
}
