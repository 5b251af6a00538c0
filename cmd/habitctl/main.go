// habitctl tracks habits, streaks, holidays and streak savers in a local database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/alem-hub/streakhub/internal/domain/habit"
	"github.com/alem-hub/streakhub/internal/infrastructure/persistence/sqlite"
	"github.com/alem-hub/streakhub/internal/interface/cli"
	"github.com/alem-hub/streakhub/pkg/logger"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

var CLI struct {
	Version kong.VersionFlag

	DB       string `help:"SQLite database path." type:"path" default:"~/.local/share/habitctl/habitctl.db" env:"HABITCTL_DB"`
	Owner    string `short:"o" help:"User the commands act for." default:"${user}" env:"HABITCTL_OWNER"`
	Timezone string `help:"IANA time zone for day boundaries." default:"Local" env:"HABITCTL_TZ"`
	Today    string `help:"Pretend today is this date (YYYY-MM-DD)." hidden:""`
	Debug    bool   `help:"Log to stderr as well."`
	LogDir   string `help:"Directory for the log file." type:"path" default:"~/.local/state/habitctl"`
	LogLevel string `help:"Log level when --debug is off." default:"warn" enum:"debug,info,warn,error"`

	CountFrozen bool `help:"Count fully frozen days toward duration goals."`

	Habit   cli.HabitCmd   `cmd:"" help:"Manage and track habits."`
	Holiday cli.HolidayCmd `cmd:"" help:"Freeze habits for a while."`
	Saver   cli.SaverCmd   `cmd:"" help:"Repair broken streaks."`
	Tier    cli.TierCmd    `cmd:"" help:"Show tiers and levels."`
	Group   cli.GroupCmd   `cmd:"" help:"Shared group habits."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("habitctl"),
		kong.Description("Habit tracker with streaks, holidays and streak savers"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": "v0.3.0",
			"user":    os.Getenv("USER"),
		},
	)

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(kctx *kong.Context) error {
	log, err := logger.New(logger.Config{
		Debug:  CLI.Debug,
		Dir:    CLI.LogDir,
		Level:  CLI.LogLevel,
		Prefix: "habitctl",
	})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Close()

	loc, err := timeutil.LoadLocation(CLI.Timezone)
	if err != nil {
		return fmt.Errorf("--timezone: %w", err)
	}
	clock, err := clockFor(CLI.Today, loc)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(CLI.DB), 0o755); err != nil {
		return err
	}
	store, err := sqlite.Open(ctx, CLI.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	app, err := cli.NewContext(ctx, store, cli.Options{
		Owner:    CLI.Owner,
		Out:      os.Stdout,
		Logger:   log.Logger,
		Location: loc,
		Clock:    clock,
		Goal:     habit.GoalPolicy{CountFrozenTowardGoal: CLI.CountFrozen},
	})
	if err != nil {
		return err
	}
	defer app.Close()

	log.Debug("habitctl start", "command", kctx.Command(), "db", store.Path(), "owner", CLI.Owner)

	if err := app.Refresh(); err != nil {
		return err
	}
	return kctx.Run(app)
}

// clockFor returns time.Now, or a clock pinned to the same time of day on the
// given date.
func clockFor(today string, loc *time.Location) (func() time.Time, error) {
	if today == "" {
		return time.Now, nil
	}
	d, err := timeutil.ParseDate(today)
	if err != nil {
		return nil, fmt.Errorf("--today: %w", err)
	}
	return func() time.Time {
		now := time.Now().In(loc)
		day := d.In(loc)
		return time.Date(day.Year(), day.Month(), day.Day(),
			now.Hour(), now.Minute(), now.Second(), now.Nanosecond(), loc)
	}, nil
}
