package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/streakhub/internal/domain/holiday"
	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/pkg/circuitbreaker"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

func TestConfig_Options(t *testing.T) {
	cfg := DefaultConfig()
	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 10, opts.PoolSize)

	cfg.URL = "redis://:secret@cache.internal:6380/2"
	opts, err = cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)

	cfg.URL = "http://nope"
	_, err = cfg.Options()
	assert.ErrorIs(t, err, ErrCacheConnection)
}

func TestKeysAndChannels(t *testing.T) {
	cache := NewCacheFromClient(goredis.NewClient(&goredis.Options{Addr: "localhost:0"}), "app:")
	defer cache.Close()

	assert.Equal(t, "app:freeze:u1", NewFreezeCache(cache, 0).key("u1"))

	pub := NewPublisher(cache, nil)
	assert.Equal(t, "app:events:progress.streak_broken", pub.Channel(shared.EventStreakBroken))
	assert.Equal(t, "app:events:*", pub.Pattern())
}

func TestEnvelope(t *testing.T) {
	at := time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)
	ev := shared.NewHolidayEndedEvent("p1", "u1", "2024-05-01", "2024-05-05", false, []string{"h1"}, at)

	env := Envelope(ev)
	assert.Equal(t, shared.EventHolidayEnded, env.Type)
	assert.Equal(t, at, env.OccurredAt)
	assert.Equal(t, ev.AggregateID(), env.AggregateID)
	assert.NotEmpty(t, env.Payload)
}

// TestFreezeCache_Redis runs against a live server when STREAKHUB_TEST_REDIS_URL is set.
func TestFreezeCache_Redis(t *testing.T) {
	url := os.Getenv("STREAKHUB_TEST_REDIS_URL")
	if url == "" {
		t.Skip("STREAKHUB_TEST_REDIS_URL not set")
	}
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.URL = url
	cfg.Prefix = "streakhub-test:"
	cache, err := NewCache(ctx, cfg)
	require.NoError(t, err)
	defer cache.Close()

	fc := NewFreezeCache(cache, time.Minute)
	require.NoError(t, fc.Invalidate(ctx, "u1"))

	_, ok, err := fc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	periods := []holiday.Period{{
		ID: "p1", OwnerID: "u1", AppliesToAll: true, Status: holiday.StatusActive,
		StartDate: timeutil.MustDate("2024-05-01"), EndDate: timeutil.MustDate("2024-05-03"),
	}}
	require.NoError(t, fc.Set(ctx, "u1", periods))

	got, ok, err := fc.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, timeutil.MustDate("2024-05-03"), got[0].EndDate)

	require.NoError(t, fc.Invalidate(ctx, "u1"))
	_, ok, err = fc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPublisher_BreakerOpensOnOutage(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 50 * time.Millisecond,
	})
	cache := NewCacheFromClient(client, "app:")
	defer cache.Close()

	pub := NewPublisher(cache, nil)
	ev := shared.NewStreakBrokenEvent("h1", "b1", "2024-05-05", 4, time.Now())

	for i := 0; i < 3; i++ {
		err := pub.Publish(ev)
		require.Error(t, err)
		assert.NotErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	}
	assert.ErrorIs(t, pub.Publish(ev), circuitbreaker.ErrCircuitOpen)
}
