// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/streakhub/internal/domain/habit"
	"github.com/alem-hub/streakhub/internal/domain/holiday"
	"github.com/alem-hub/streakhub/internal/domain/progression"
	"github.com/alem-hub/streakhub/internal/domain/saver"
	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/pkg/retry"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION ENGINE
// Shared by every write path that can move a streak: toggles, holiday changes
// and the background break scan. It recomputes from the authoritative record
// and never merges concurrent writes itself.
// ══════════════════════════════════════════════════════════════════════════════

// EngineConfig configures the progression engine.
type EngineConfig struct {
	// Location is the users' time zone; every date key is derived in it.
	Location *time.Location

	// Clock returns the current instant. Defaults to time.Now.
	Clock func() time.Time

	// Policies selects the tier/XP policy by scope.
	Policies progression.Policies

	// LevelTable is the group level threshold table.
	LevelTable progression.LevelTable

	// Milestones are the streak values that emit a milestone event.
	Milestones []int

	// SaverWindow is how long a detected break can be repaired.
	SaverWindow time.Duration

	// Goal is the duration goal counting policy.
	Goal habit.GoalPolicy

	// ConflictAttempts bounds reload-and-retry on stale writes.
	ConflictAttempts int

	// NewID generates ids for break events and holidays. Defaults to uuid.NewString.
	NewID func() string

	Logger *slog.Logger
}

// DefaultEngineConfig returns default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Location:         time.Local,
		Clock:            time.Now,
		Policies:         progression.DefaultPolicies(),
		LevelTable:       progression.DefaultLevelTable(),
		Milestones:       progression.DefaultMilestones,
		SaverWindow:      saver.DefaultWindow,
		ConflictAttempts: 3,
		NewID:            uuid.NewString,
	}
}

// Engine recomputes streaks, records breaks and builds progression events.
type Engine struct {
	habits   habit.Repository
	holidays *holiday.Manager
	savers   saver.Store
	config   EngineConfig
	logger   *slog.Logger
}

// NewEngine creates an Engine. Zero config fields fall back to defaults.
func NewEngine(habits habit.Repository, holidays *holiday.Manager, savers saver.Store, config EngineConfig) *Engine {
	def := DefaultEngineConfig()
	if config.Location == nil {
		config.Location = def.Location
	}
	if config.Clock == nil {
		config.Clock = def.Clock
	}
	if config.Policies == nil {
		config.Policies = def.Policies
	}
	if len(config.LevelTable.Thresholds) == 0 {
		config.LevelTable = def.LevelTable
	}
	if config.Milestones == nil {
		config.Milestones = def.Milestones
	}
	if config.SaverWindow <= 0 {
		config.SaverWindow = def.SaverWindow
	}
	if config.ConflictAttempts <= 0 {
		config.ConflictAttempts = def.ConflictAttempts
	}
	if config.NewID == nil {
		config.NewID = def.NewID
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		habits:   habits,
		holidays: holidays,
		savers:   savers,
		config:   config,
		logger:   logger.With("component", "progression"),
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() EngineConfig {
	return e.config
}

// Now returns the current instant and the local date it falls on.
func (e *Engine) Now() (time.Time, timeutil.Date) {
	now := e.config.Clock()
	return now, timeutil.DateOf(now, e.config.Location)
}

// conflictRetrier reloads and retries on stale snapshots.
func (e *Engine) conflictRetrier() *retry.Retrier {
	return retry.ConflictRetrier(shared.IsConcurrency, e.config.ConflictAttempts,
		retry.WithOnRetry(func(attempt int, err error, _ time.Duration) {
			e.logger.Debug("stale write, reloading", "attempt", attempt, "error", err)
		}))
}

// RecomputeResult is what a recomputation changed.
type RecomputeResult struct {
	Streak habit.StreakResult

	// Break is a newly detected break, not stored yet. The caller records it
	// with commitBreak once the habit itself is saved, so a retried attempt
	// detects it again instead of finding it already stored.
	Break  *saver.BreakEvent
	Events []shared.Event

	// Changed reports whether the stored streak, tier or day flags moved.
	Changed bool
}

// Recompute re-judges the stored days under the owner's current freezes,
// re-runs the streak walk for h, detects a break on a day not seen before
// and updates the habit tier.
// The habit is modified in memory only; persisting it is up to the caller.
func (e *Engine) Recompute(ctx context.Context, h *habit.Habit, ix *holiday.Index, today timeutil.Date, now time.Time) (RecomputeResult, error) {
	prevStreak, prevBest, prevTier := h.CurrentStreak, h.BestStreak, h.Tier

	freeze := ix.FreezeFunc(h.ID)
	synced := h.SyncCompletion(freeze)
	res := habit.CalculateStreak(h, freeze, today)
	h.ApplyStreak(res)

	out := RecomputeResult{Streak: res}
	policy := e.config.Policies.For(progression.ScopeHabit)
	tier := policy.TierFor(h.CurrentStreak).Tier.Name
	h.Tier = tier

	if h.CurrentStreak != prevStreak {
		out.Events = append(out.Events,
			shared.NewStreakUpdatedEvent(h.ID, prevStreak, h.CurrentStreak, h.BestStreak, now))
		for _, m := range progression.CrossedMilestones(e.config.Milestones, prevStreak, h.CurrentStreak) {
			out.Events = append(out.Events, shared.NewMilestoneReachedEvent(h.ID, m, h.CurrentStreak, now))
		}
	}
	if prevTier != "" && prevTier != tier {
		out.Events = append(out.Events,
			shared.NewTierChangedEvent(h.ID, string(progression.ScopeHabit), prevTier, tier, h.CurrentStreak, now))
	}

	brk, err := e.detectBreak(ctx, h.ID, h.OwnerID, saver.ScopePersonal, res, now)
	if err != nil {
		return out, err
	}
	out.Break = brk

	out.Changed = synced || h.CurrentStreak != prevStreak || h.BestStreak != prevBest || tier != prevTier
	return out, nil
}

// detectBreak returns a break event when the walk stopped on a missed day newer
// than the last recorded break. Nothing is stored.
func (e *Engine) detectBreak(ctx context.Context, habitID, ownerID string, scope saver.Scope, res habit.StreakResult, now time.Time) (*saver.BreakEvent, error) {
	if res.BrokenOn.IsZero() || e.savers == nil {
		return nil, nil
	}

	latest, err := e.savers.LatestBreak(ctx, habitID)
	if err != nil && !shared.IsNotFound(err) {
		return nil, fmt.Errorf("load latest break: %w", err)
	}
	return saver.NewBreak(e.config.NewID(), habitID, ownerID, scope, res.BrokenOn, res.Previous, latest, now), nil
}

// commitBreak stores a detected break and returns its StreakBroken event.
// It runs after the owning record is saved. A failure is logged, not returned:
// the write already succeeded and the next recomputation detects the break again.
func (e *Engine) commitBreak(ctx context.Context, brk *saver.BreakEvent, now time.Time) shared.Event {
	if brk == nil || e.savers == nil {
		return nil
	}
	if err := e.savers.RecordBreak(ctx, brk); err != nil {
		if !errors.Is(err, shared.ErrAlreadyExists) {
			e.logger.Warn("break not recorded", "habit_id", brk.HabitID, "break_date", brk.BreakDate, "error", err)
		}
		return nil
	}

	e.logger.Info("streak broken",
		"habit_id", brk.HabitID,
		"break_date", brk.BreakDate,
		"previous_streak", brk.PreviousStreak,
	)
	return shared.NewStreakBrokenEvent(brk.HabitID, brk.ID, brk.BreakDate.String(), brk.PreviousStreak, now)
}

// RecalculateOwner recomputes and persists every habit of an owner that match reports.
// Each habit is reloaded and retried independently on a stale write.
// It returns the ids of the habits that changed and the events to publish.
func (e *Engine) RecalculateOwner(ctx context.Context, ownerID string, match func(*habit.Habit) bool) ([]string, []shared.Event, error) {
	// a stale cached index would make the recomputation below wrong
	if err := e.holidays.Invalidate(ctx, ownerID); err != nil {
		return nil, nil, fmt.Errorf("invalidate freeze cache: %w", err)
	}

	habits, err := e.habits.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, nil, fmt.Errorf("load habits: %w", err)
	}

	var (
		changed []string
		events  []shared.Event
	)
	for _, h := range habits {
		if match != nil && !match(h) {
			continue
		}
		evs, moved, err := e.recalculateHabit(ctx, h.ID)
		if err != nil {
			return changed, events, err
		}
		if moved {
			changed = append(changed, h.ID)
		}
		events = append(events, evs...)
	}
	return changed, events, nil
}

// recalculateHabit loads, recomputes and saves one habit with conflict retry.
func (e *Engine) recalculateHabit(ctx context.Context, habitID string) ([]shared.Event, bool, error) {
	var (
		events []shared.Event
		moved  bool
	)
	err := e.conflictRetrier().Do(ctx, func(ctx context.Context) error {
		h, err := e.habits.FindByID(ctx, habitID)
		if err != nil {
			return err
		}
		ix, err := e.holidays.Index(ctx, h.OwnerID)
		if err != nil {
			return fmt.Errorf("load freeze index: %w", err)
		}

		now, today := e.Now()
		expected := h.Version
		res, err := e.Recompute(ctx, h, ix, today, now)
		if err != nil {
			return err
		}
		events, moved = res.Events, res.Changed
		if res.Changed {
			h.Touch(now)
			if err := e.habits.Update(ctx, h, expected); err != nil {
				return err
			}
		}
		if ev := e.commitBreak(ctx, res.Break, now); ev != nil {
			events = append(events, ev)
		}
		return nil
	})
	return events, moved, err
}

// publish sends events and logs failures; a lost notification never fails a write.
func publish(publisher shared.EventPublisher, logger *slog.Logger, events []shared.Event) {
	if publisher == nil {
		return
	}
	for _, ev := range events {
		if err := publisher.Publish(ev); err != nil {
			logger.Warn("event publish failed", "event_type", ev.EventType(), "error", err)
		}
	}
}
