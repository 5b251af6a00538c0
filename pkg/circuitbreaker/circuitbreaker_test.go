package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)
	var transitions []string

	b := New(Config{
		Name:             "redis",
		FailureThreshold: 2,
		Cooldown:         time.Minute,
		Clock:            func() time.Time { return now },
		OnStateChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	boom := errors.New("connection refused")
	fail := func(context.Context) error { return boom }
	ctx := context.Background()

	assert.ErrorIs(t, b.Execute(ctx, fail), boom)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Execute(ctx, fail), boom)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	now = now.Add(time.Minute)
	require.NoError(t, b.Execute(ctx, func(context.Context) error { return nil }))
	assert.Equal(t, StateClosed, b.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	now := time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)
	b := New(Config{FailureThreshold: 1, Cooldown: time.Second, Clock: func() time.Time { return now }})
	ctx := context.Background()
	boom := errors.New("timeout")

	_ = b.Execute(ctx, func(context.Context) error { return boom })
	require.Equal(t, StateOpen, b.State())

	now = now.Add(time.Second)
	_ = b.Execute(ctx, func(context.Context) error { return boom })
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Execute(ctx, func(context.Context) error { return nil }), ErrCircuitOpen)
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := New(Config{FailureThreshold: 2})
	ctx := context.Background()
	boom := errors.New("boom")

	_ = b.Execute(ctx, func(context.Context) error { return boom })
	_ = b.Execute(ctx, func(context.Context) error { return nil })
	_ = b.Execute(ctx, func(context.Context) error { return boom })
	assert.Equal(t, StateClosed, b.State())
}

func TestForRedis_IgnoresCancellation(t *testing.T) {
	b := ForRedis(nil)
	assert.Equal(t, "redis", b.Name())

	for i := 0; i < 5; i++ {
		_ = b.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	}
	assert.Equal(t, StateClosed, b.State())
}
