package analytics

import (
	"time"
)

// MinTime is the start of the window used by gauge stats, whose interval is
// effectively unbounded.
var MinTime = time.Date(1000, time.January, 1, 0, 0, 0, 0, time.UTC)

// FloorHour returns the greatest hour-aligned instant <= t, in UTC.
func FloorHour(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// FloorDay returns midnight UTC of the calendar day containing t.
func FloorDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// CeilHour returns the smallest hour-aligned instant >= t, in UTC.
func CeilHour(t time.Time) time.Time {
	floor := FloorHour(t)
	if floor.Equal(t) {
		return floor
	}
	return floor.Add(time.Hour)
}

// CeilDay returns the smallest UTC midnight >= t.
func CeilDay(t time.Time) time.Time {
	floor := FloorDay(t)
	if floor.Equal(t) {
		return floor
	}
	return floor.AddDate(0, 0, 1)
}

// IsHourAligned reports whether t sits exactly on an hour boundary.
func IsHourAligned(t time.Time) bool {
	return FloorHour(t).Equal(t)
}

// IsDayAligned reports whether t sits exactly on a UTC midnight.
func IsDayAligned(t time.Time) bool {
	return FloorDay(t).Equal(t)
}
