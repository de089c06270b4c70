package models

import "time"

// CivilDate returns the calendar day of t in loc, as midnight UTC.
// Day boundaries for counters and warmup are compared in this form.
func CivilDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a stored civil date equals day.
func SameDay(stored *time.Time, day time.Time) bool {
	return stored != nil && stored.Equal(day)
}

// StartOfDay returns local midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
