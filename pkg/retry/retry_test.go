package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStale = errors.New("stale")

func isStale(err error) bool { return errors.Is(err, errStale) }

func TestConflictRetrier_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := ConflictRetrier(isStale, 3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errStale
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnNonRetryableError(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	}, WithRetryIf(isStale), WithInitialDelay(0))

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDo_PermanentIsUnwrapped(t *testing.T) {
	boom := errors.New("boom")
	err := Do(context.Background(), func(context.Context) error {
		return Permanent(boom)
	})
	assert.Equal(t, boom, err)
}

func TestDo_BeforeRetryRunsBetweenAttempts(t *testing.T) {
	reloads := 0
	err := Do(context.Background(), func(context.Context) error {
		if reloads == 0 {
			return errStale
		}
		return nil
	},
		WithInitialDelay(time.Millisecond),
		WithBeforeRetry(func(context.Context) error {
			reloads++
			return nil
		}),
	)

	require.NoError(t, err)
	assert.Equal(t, 1, reloads)
}

func TestDoWithData_ReturnsLastError(t *testing.T) {
	_, err := DoWithData(context.Background(), func(context.Context) (int, error) {
		return 0, errStale
	}, WithMaxAttempts(2), WithInitialDelay(time.Millisecond))

	assert.ErrorIs(t, err, errStale)
}
