// Package calendar holds the date arithmetic used by the ledger and the
// scheduler. Dates are time.Time values at midnight UTC; the wall-clock
// date of the caller's location is preserved when normalizing.
package calendar

import (
	"fmt"
	"time"
)

// ISOLayout is the wire and storage format for calendar dates.
const ISOLayout = "2006-01-02"

// Day truncates t to its calendar date, keeping the date as seen in t's
// own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar date in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Day(now.In(loc))
}

// AddDays moves d by n calendar days.
func AddDays(d time.Time, n int) time.Time {
	return Day(d).AddDate(0, 0, n)
}

// IsWeekend reports whether d is a Saturday or Sunday.
func IsWeekend(d time.Time) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	return false
}

// IsBusinessDay reports whether deliveries can happen on d.
func IsBusinessDay(d time.Time) bool {
	return !IsWeekend(d)
}

// Range enumerates n consecutive dates starting at start.
func Range(start time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	out := make([]time.Time, n)
	first := Day(start)
	for i := range out {
		out[i] = first.AddDate(0, 0, i)
	}
	return out
}

// MonthRange returns every date of the given month.
func MonthRange(year int, month time.Month) []time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	days := first.AddDate(0, 1, -1).Day()
	return Range(first, days)
}

// Format renders d as YYYY-MM-DD.
func Format(d time.Time) string {
	return d.Format(ISOLayout)
}

// Parse reads a YYYY-MM-DD date.
func Parse(s string) (time.Time, error) {
	d, err := time.Parse(ISOLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return d, nil
}

