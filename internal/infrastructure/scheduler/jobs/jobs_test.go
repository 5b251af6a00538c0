package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/streakhub/internal/application/command"
)

type detectorFunc func(ctx context.Context) (command.DetectStats, error)

func (f detectorFunc) Handle(ctx context.Context) (command.DetectStats, error) { return f(ctx) }

type expirerFunc func(ctx context.Context) (int, error)

func (f expirerFunc) EndExpired(ctx context.Context) (int, error) { return f(ctx) }

func TestDetectBreaksJob(t *testing.T) {
	job := NewDetectBreaksJob(detectorFunc(func(ctx context.Context) (command.DetectStats, error) {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return command.DetectStats{Owners: 3, Changed: 2, Failed: 1}, nil
	}), 0, nil)

	assert.Equal(t, "detect_breaks", job.Name())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 2, job.LastStats().Changed)
}

func TestDetectBreaksJob_Failures(t *testing.T) {
	allFailed := NewDetectBreaksJob(detectorFunc(func(context.Context) (command.DetectStats, error) {
		return command.DetectStats{Owners: 2, Failed: 2}, nil
	}), 0, nil)
	assert.Error(t, allFailed.Run(context.Background()))

	boom := errors.New("db down")
	broken := NewDetectBreaksJob(detectorFunc(func(context.Context) (command.DetectStats, error) {
		return command.DetectStats{}, boom
	}), 0, nil)
	assert.ErrorIs(t, broken.Run(context.Background()), boom)
}

func TestExpireHolidaysJob(t *testing.T) {
	calls := 0
	job := NewExpireHolidaysJob(expirerFunc(func(context.Context) (int, error) {
		calls++
		if calls == 2 {
			return 1, errors.New("save failed")
		}
		return 2, nil
	}), 0, nil)

	require.NoError(t, job.Run(context.Background()))
	assert.Error(t, job.Run(context.Background()))
	assert.Equal(t, int64(3), job.TotalEnded())
	assert.Equal(t, "expire_holidays", job.Name())
}
