package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// HolidayExpirer is the part of command.HolidayHandler the job needs.
type HolidayExpirer interface {
	EndExpired(ctx context.Context) (int, error)
}

// ExpireHolidaysJob ends holidays whose last day has passed.
type ExpireHolidaysJob struct {
	expirer HolidayExpirer
	timeout time.Duration
	logger  *slog.Logger

	total atomic.Int64
}

// NewExpireHolidaysJob creates the job. A zero timeout means 2 minutes.
func NewExpireHolidaysJob(expirer HolidayExpirer, timeout time.Duration, logger *slog.Logger) *ExpireHolidaysJob {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpireHolidaysJob{
		expirer: expirer,
		timeout: timeout,
		logger:  logger.With("job", "expire_holidays"),
	}
}

// Name implements scheduler.Job.
func (j *ExpireHolidaysJob) Name() string { return "expire_holidays" }

// Description implements scheduler.Job.
func (j *ExpireHolidaysJob) Description() string {
	return "End holidays past their end date and recompute affected streaks"
}

// Run implements scheduler.Job.
func (j *ExpireHolidaysJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	ended, err := j.expirer.EndExpired(ctx)
	j.total.Add(int64(ended))
	if ended > 0 {
		j.logger.Info("holidays ended", "count", ended)
	}
	if err != nil {
		return fmt.Errorf("expire holidays: %w", err)
	}
	return nil
}

// TotalEnded returns how many holidays this job has ended since start.
func (j *ExpireHolidaysJob) TotalEnded() int64 {
	return j.total.Load()
}
