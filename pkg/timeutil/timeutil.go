// Package timeutil provides local-calendar date utilities for StreakHub.
// Every streak, freeze and weekly decision is keyed by the user's perceived day,
// so dates are civil YYYY-MM-DD values derived in the user's own time zone, never UTC.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// FormatDate is the layout of a date key (YYYY-MM-DD).
const FormatDate = "2006-01-02"

// Date is a local-calendar date key in YYYY-MM-DD form.
// The zero value is an invalid date; use IsZero to detect it.
// Lexicographic order of valid keys equals chronological order.
type Date string

// DateOf returns the calendar date of t as observed in loc.
// A nil location falls back to time.Local.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.Local
	}
	return Date(t.In(loc).Format(FormatDate))
}

// Today returns the current local date in loc.
// Only entry points (CLI, worker, handlers) call this; evaluation code takes today as a parameter.
func Today(loc *time.Location) Date {
	return DateOf(time.Now(), loc)
}

// ParseDate validates and returns a date key.
func ParseDate(value string) (Date, error) {
	t, err := time.Parse(FormatDate, value)
	if err != nil {
		return "", fmt.Errorf("timeutil: invalid date %q: %w", value, err)
	}
	return Date(t.Format(FormatDate)), nil
}

// MustDate parses a date key and panics on failure. Intended for tests and constants.
func MustDate(value string) Date {
	d, err := ParseDate(value)
	if err != nil {
		panic(err)
	}
	return d
}

// civil returns the date as midnight UTC; used only for calendar arithmetic.
func (d Date) civil() time.Time {
	t, err := time.Parse(FormatDate, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

// String implements fmt.Stringer.
func (d Date) String() string {
	return string(d)
}

// IsZero reports whether the date is empty or malformed.
func (d Date) IsZero() bool {
	return d.civil().IsZero()
}

// AddDays returns the date n calendar days later (earlier for negative n).
func (d Date) AddDays(n int) Date {
	return Date(d.civil().AddDate(0, 0, n).Format(FormatDate))
}

// Weekday returns the day of week of the date.
func (d Date) Weekday() time.Weekday {
	return d.civil().Weekday()
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d < other
}

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool {
	return d > other
}

// Between reports whether d lies in the inclusive range [from, to].
func (d Date) Between(from, to Date) bool {
	return d >= from && d <= to
}

// In returns midnight of the date in loc.
func (d Date) In(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	c := d.civil()
	return time.Date(c.Year(), c.Month(), c.Day(), 0, 0, 0, 0, loc)
}

// ══════════════════════════════════════════════════════════════════════════════
// WEEKS
// ══════════════════════════════════════════════════════════════════════════════

// WeekStart returns the Monday of the ISO week containing d.
func WeekStart(d Date) Date {
	weekday := int(d.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return d.AddDays(-(weekday - 1))
}

// WeekEnd returns the Sunday of the ISO week containing d.
func WeekEnd(d Date) Date {
	return WeekStart(d).AddDays(6)
}

// WeekResetAt returns the instant a new weekly evaluation window opens after the week
// containing d: the following Monday at 00:01 local time.
func WeekResetAt(d Date, loc *time.Location) time.Time {
	return WeekStart(d).AddDays(7).In(loc).Add(time.Minute)
}

// ══════════════════════════════════════════════════════════════════════════════
// RANGES
// ══════════════════════════════════════════════════════════════════════════════

// DaysBetween returns the signed number of calendar days from a to b.
func DaysBetween(a, b Date) int {
	return int(b.civil().Sub(a.civil()).Hours() / 24)
}

// Clamp restricts the inclusive range [from, to] to [lo, hi].
// ok is false when the clamped range is empty.
func Clamp(from, to, lo, hi Date) (Date, Date, bool) {
	if !lo.IsZero() && from < lo {
		from = lo
	}
	if !hi.IsZero() && to > hi {
		to = hi
	}
	return from, to, from <= to
}

// EachDay calls fn for every date in the inclusive range [from, to].
// Iteration stops early when fn returns false.
func EachDay(from, to Date, fn func(Date) bool) {
	if from.IsZero() || to.IsZero() {
		return
	}
	for d := from; d <= to; d = d.AddDays(1) {
		if !fn(d) {
			return
		}
	}
}

// LoadLocation resolves an IANA zone name; "" and "Local" map to time.Local.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timeutil: unknown time zone %q: %w", name, err)
	}
	return loc, nil
}
