// Package jobs contains the worker's scheduled jobs.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alem-hub/streakhub/internal/application/command"
)

// BreakDetector is the part of command.DetectBreaksHandler the job needs.
type BreakDetector interface {
	Handle(ctx context.Context) (command.DetectStats, error)
}

// DetectBreaksJob recomputes every streak after local midnight so that breaks
// caused by inactivity are recorded and the saver window opens.
type DetectBreaksJob struct {
	detector BreakDetector
	timeout  time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	last command.DetectStats
}

// NewDetectBreaksJob creates the job. A zero timeout means 10 minutes.
func NewDetectBreaksJob(detector BreakDetector, timeout time.Duration, logger *slog.Logger) *DetectBreaksJob {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DetectBreaksJob{
		detector: detector,
		timeout:  timeout,
		logger:   logger.With("job", "detect_breaks"),
	}
}

// Name implements scheduler.Job.
func (j *DetectBreaksJob) Name() string { return "detect_breaks" }

// Description implements scheduler.Job.
func (j *DetectBreaksJob) Description() string {
	return "Recompute all habit and group streaks and record new breaks"
}

// Run implements scheduler.Job.
func (j *DetectBreaksJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	stats, err := j.detector.Handle(ctx)

	j.mu.Lock()
	j.last = stats
	j.mu.Unlock()

	j.logger.Info("scan finished",
		"owners", stats.Owners,
		"changed", stats.Changed,
		"group_habits", stats.GroupHabits,
		"failed", stats.Failed,
	)

	if err != nil {
		return fmt.Errorf("detect breaks: %w", err)
	}
	if stats.Failed > 0 && stats.Failed == stats.Owners {
		return fmt.Errorf("detect breaks: all %d owners failed", stats.Failed)
	}
	return nil
}

// LastStats returns the stats of the most recent run.
func (j *DetectBreaksJob) LastStats() command.DetectStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}
