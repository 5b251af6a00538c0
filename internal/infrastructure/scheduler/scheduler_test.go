package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testJob struct {
	name  string
	err   error
	block chan struct{}
	runs  atomic.Int32
}

func (j *testJob) Name() string        { return j.name }
func (j *testJob) Description() string { return "test job " + j.name }
func (j *testJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
		}
	}
	return j.err
}

// fakeClock is advanced manually; runDue is driven directly.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestScheduler(clock *fakeClock) *Scheduler {
	return NewScheduler(SchedulerConfig{Clock: clock.Now, EnableMetrics: true})
}

func TestScheduler_Register(t *testing.T) {
	s := newTestScheduler(&fakeClock{now: time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)})

	job := &testJob{name: "a"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Minute)))
	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Minute)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&testJob{name: "b"}, nil), ErrNilSchedule)

	infos := s.ListJobs()
	require.Len(t, infos, 1)
	assert.Equal(t, "a", infos[0].Name)
	assert.Equal(t, "@every 1m0s", infos[0].Schedule)
	assert.Equal(t, time.Date(2024, 5, 6, 12, 1, 0, 0, time.UTC), infos[0].NextRun)
}

func TestScheduler_RunsDueJobs(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)}
	s := newTestScheduler(clock)
	s.ctx = context.Background()

	job := &testJob{name: "a"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Minute)))

	s.runDue()
	s.wg.Wait()
	assert.Equal(t, int32(0), job.runs.Load())

	clock.Advance(time.Minute)
	s.runDue()
	s.wg.Wait()
	assert.Equal(t, int32(1), job.runs.Load())

	require.NoError(t, s.SetEnabled("a", false))
	clock.Advance(time.Hour)
	s.runDue()
	s.wg.Wait()
	assert.Equal(t, int32(1), job.runs.Load())
	assert.ErrorIs(t, s.SetEnabled("missing", true), ErrJobNotFound)
}

func TestScheduler_SkipsOverlappingRun(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)}
	s := newTestScheduler(clock)
	s.ctx = context.Background()

	job := &testJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Second)))

	clock.Advance(time.Second)
	s.runDue()
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, time.Millisecond)

	clock.Advance(time.Second)
	s.runDue()

	close(job.block)
	s.wg.Wait()
	assert.Equal(t, int32(1), job.runs.Load())

	clock.Advance(time.Second)
	s.runDue()
	s.wg.Wait()
	assert.Equal(t, int32(2), job.runs.Load())
}

func TestScheduler_RunNowRecordsFailure(t *testing.T) {
	s := newTestScheduler(&fakeClock{now: time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)})

	boom := errors.New("boom")
	require.NoError(t, s.Register(&testJob{name: "a", err: boom}, NewIntervalSchedule(time.Hour)))

	var failed string
	s.OnJobError(func(name string, _ error) { failed = name })

	res, err := s.RunNow(context.Background(), "a")
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.True(t, res.Manual)
	assert.Equal(t, "a", failed)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	snap := s.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalFailures)
	assert.Len(t, s.History(0), 1)
	assert.Equal(t, int64(1), s.ListJobs()[0].FailCount)
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(SchedulerConfig{TickInterval: 5 * time.Millisecond})
	job := &testJob{name: "a"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(10*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool { return job.runs.Load() > 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}

func TestDailySchedule(t *testing.T) {
	loc := time.FixedZone("ALMT", 5*3600)
	s := NewDailySchedule(0, 1, loc)

	before := time.Date(2024, 5, 6, 23, 30, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 5, 7, 0, 1, 0, 0, loc), s.Next(before))

	exact := time.Date(2024, 5, 7, 0, 1, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 5, 8, 0, 1, 0, 0, loc), s.Next(exact))

	early := time.Date(2024, 5, 7, 0, 0, 30, 0, loc)
	assert.Equal(t, exact, s.Next(early))

	utc := time.Date(2024, 5, 6, 19, 30, 0, 0, time.UTC)
	assert.True(t, s.Next(utc).Equal(time.Date(2024, 5, 7, 0, 1, 0, 0, loc)))

	assert.Equal(t, "@daily 00:01 ALMT", s.String())
	assert.Equal(t, time.UTC, NewDailySchedule(1, 0, nil).Next(exact).Location())
}

func TestEarliestSchedule(t *testing.T) {
	s := EarliestSchedule{
		NewDailySchedule(0, 5, time.UTC),
		NewIntervalSchedule(time.Hour),
	}

	assert.Equal(t, time.Date(2024, 5, 7, 0, 5, 0, 0, time.UTC), s.Next(time.Date(2024, 5, 6, 23, 30, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2024, 5, 6, 11, 0, 0, 0, time.UTC), s.Next(time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "@daily 00:05 UTC | @every 1h0m0s", s.String())
}
