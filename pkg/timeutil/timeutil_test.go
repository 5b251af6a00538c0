package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateOf_UsesLocalCalendar(t *testing.T) {
	tokyo := time.FixedZone("UTC+9", 9*60*60)

	// 20:30 UTC on the 1st is already the 2nd in Tokyo.
	instant := time.Date(2024, 3, 1, 20, 30, 0, 0, time.UTC)

	assert.Equal(t, Date("2024-03-01"), DateOf(instant, time.UTC))
	assert.Equal(t, Date("2024-03-02"), DateOf(instant, tokyo))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, Date("2024-02-29"), d)

	_, err = ParseDate("2023-02-29")
	assert.Error(t, err)

	_, err = ParseDate("29.02.2024")
	assert.Error(t, err)
}

func TestDate_Arithmetic(t *testing.T) {
	d := MustDate("2024-02-28")

	assert.Equal(t, Date("2024-02-29"), d.AddDays(1))
	assert.Equal(t, Date("2024-03-01"), d.AddDays(2))
	assert.Equal(t, Date("2024-01-31"), d.AddDays(-28))
	assert.Equal(t, 2, DaysBetween(d, d.AddDays(2)))
	assert.Equal(t, -3, DaysBetween(d, d.AddDays(-3)))
	assert.True(t, d.Before(d.AddDays(1)))
	assert.True(t, d.Between(d, d))
	assert.True(t, Date("").IsZero())
}

func TestWeekStart(t *testing.T) {
	tests := []struct {
		name string
		date Date
		want Date
	}{
		{"monday", "2024-05-13", "2024-05-13"},
		{"wednesday", "2024-05-15", "2024-05-13"},
		{"sunday belongs to previous monday", "2024-05-19", "2024-05-13"},
		{"across month boundary", "2024-06-01", "2024-05-27"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WeekStart(tt.date))
			assert.Equal(t, tt.want.AddDays(6), WeekEnd(tt.date))
		})
	}
}

func TestWeekResetAt(t *testing.T) {
	reset := WeekResetAt("2024-05-15", time.UTC)
	assert.Equal(t, time.Date(2024, 5, 20, 0, 1, 0, 0, time.UTC), reset)
}

func TestClamp(t *testing.T) {
	from, to, ok := Clamp("2024-05-13", "2024-05-19", "2024-05-15", "2024-05-17")
	require.True(t, ok)
	assert.Equal(t, Date("2024-05-15"), from)
	assert.Equal(t, Date("2024-05-17"), to)

	_, _, ok = Clamp("2024-05-13", "2024-05-19", "2024-05-20", "2024-05-25")
	assert.False(t, ok)
}

func TestEachDay(t *testing.T) {
	var days []Date
	EachDay("2024-12-30", "2025-01-02", func(d Date) bool {
		days = append(days, d)
		return true
	})
	assert.Equal(t, []Date{"2024-12-30", "2024-12-31", "2025-01-01", "2025-01-02"}, days)

	count := 0
	EachDay("2024-01-01", "2024-01-10", func(Date) bool {
		count++
		return count < 3
	})
	assert.Equal(t, 3, count)
}

func TestLoadLocation(t *testing.T) {
	for _, name := range []string{"", "Local"} {
		loc, err := LoadLocation(name)
		require.NoError(t, err)
		assert.Equal(t, time.Local, loc)
	}

	loc, err := LoadLocation("UTC")
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	_, err = LoadLocation("Mars/Olympus")
	assert.ErrorContains(t, err, `unknown time zone "Mars/Olympus"`)
}
