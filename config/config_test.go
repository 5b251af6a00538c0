package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/streaks?sslmode=disable")
	t.Setenv("REDIS_URL", "")
	t.Setenv("APP_TIMEZONE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Local, cfg.App.Location)
	assert.Equal(t, 24*time.Hour, cfg.Progression.SaverWindow)
	assert.Equal(t, []int{7, 30, 100, 365}, cfg.Progression.Milestones)
	assert.False(t, cfg.Progression.CountFrozenTowardGoal)
	assert.Equal(t, 10*time.Minute, cfg.Progression.FreezeCacheTTL)
	assert.False(t, cfg.Redis.Enabled)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/streaks")
	t.Setenv("APP_TIMEZONE", "Asia/Almaty")
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("SAVER_WINDOW", "48h")
	t.Setenv("STREAK_MILESTONES", "3, 10,50")
	t.Setenv("COUNT_FROZEN_TOWARD_GOAL", "true")
	t.Setenv("BREAK_SCAN_INTERVAL", "30m")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Asia/Almaty", cfg.App.Location.String())
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 48*time.Hour, cfg.Progression.SaverWindow)
	assert.Equal(t, []int{3, 10, 50}, cfg.Progression.Milestones)
	assert.True(t, cfg.Progression.CountFrozenTowardGoal)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.BreakScanInterval)
	assert.Equal(t, "text", cfg.Observability.LogFormat)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing database", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		t.Setenv("DB_HOST", "")
		_, err := Load()
		assert.ErrorContains(t, err, "DATABASE_URL is required")
	})

	t.Run("bad timezone", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/streaks")
		t.Setenv("APP_TIMEZONE", "Mars/Olympus")
		_, err := Load()
		assert.ErrorContains(t, err, "APP_TIMEZONE")
		assert.ErrorContains(t, err, `unknown time zone "Mars/Olympus"`)
	})

	t.Run("bad milestones", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/streaks")
		t.Setenv("STREAK_MILESTONES", "7,thirty")
		_, err := Load()
		assert.ErrorContains(t, err, "STREAK_MILESTONES")
	})

	t.Run("bad scan hour", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/streaks")
		t.Setenv("BREAK_SCAN_HOUR", "24")
		_, err := Load()
		assert.ErrorContains(t, err, "BREAK_SCAN_HOUR")
	})
}

func TestLoadDatabaseConfig_FromParts(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_NAME", "streaks")
	t.Setenv("DB_SSLMODE", "disable")

	assert.Equal(t, "postgres://app:pw@db.internal:5432/streaks?sslmode=disable", loadDatabaseConfig().URL)
}
