// Package timeutil provides calendar-day arithmetic in a tenant's reference
// timezone. Streak and risk-flag calculations depend on a single consistent
// location; callers pass it explicitly so the functions stay deterministic.
// No external dependencies - uses only standard library.
package timeutil

import "time"

// StartOfDay returns the start of the day (00:00:00) of t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay returns the last nanosecond of the day of t in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 999999999, loc)
}

// IsSameDay checks if two times fall on the same calendar day in loc.
func IsSameDay(t1, t2 time.Time, loc *time.Location) bool {
	a, b := t1.In(loc), t2.In(loc)
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// IsConsecutiveDay checks if t2 falls on the calendar day after t1 in loc.
func IsConsecutiveDay(t1, t2 time.Time, loc *time.Location) bool {
	next := StartOfDay(t1, loc).AddDate(0, 0, 1)
	return IsSameDay(next, t2, loc)
}

// IsToday checks if t falls on the same calendar day as now in loc.
func IsToday(t, now time.Time, loc *time.Location) bool {
	return IsSameDay(t, now, loc)
}

// IsYesterday checks if t falls on the calendar day before now in loc.
func IsYesterday(t, now time.Time, loc *time.Location) bool {
	return IsSameDay(t, now.AddDate(0, 0, -1), loc)
}

// DaysBetween returns the number of calendar days between two times in loc.
// The result is always non-negative. Same day yields 0.
func DaysBetween(t1, t2 time.Time, loc *time.Location) int {
	a := StartOfDay(t1, loc)
	b := StartOfDay(t2, loc)
	days := int(b.Sub(a).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// ElapsedWholeDays returns the whole-day floor of the wall-clock time elapsed
// from t to now. Unlike DaysBetween this is duration-based, not calendar
// based: 23h59m elapsed is 0 days regardless of midnight crossings.
func ElapsedWholeDays(t, now time.Time) int {
	elapsed := now.Sub(t)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed.Hours() / 24)
}

// DateKey formats t as YYYY-MM-DD in loc, useful as a map key for grouping
// records by calendar day.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
