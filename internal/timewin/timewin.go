// Package timewin holds the interval arithmetic shared by the quota model,
// the validator and the lifecycle guards. Callers must reject intervals
// with end <= start before reaching these functions.
package timewin

import "time"

// DurationHours returns end-start in fractional hours.
func DurationHours(start, end time.Time) float64 {
	return end.Sub(start).Hours()
}

// Overlaps reports whether [aStart,aEnd] and [bStart,bEnd] intersect.
// Touching endpoints (aEnd == bStart) count as an overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd) && !bStart.After(aEnd)
}

// GapMinutes returns the minutes between an earlier interval's end and a
// later interval's start. The result is negative when they overlap.
func GapMinutes(earlierEnd, laterStart time.Time) float64 {
	return laterStart.Sub(earlierEnd).Minutes()
}

// SeparationMinutes returns the gap between two intervals regardless of the
// order they are given in: the later interval's start minus the earlier
// interval's end. Equal starts order by end.
func SeparationMinutes(aStart, aEnd, bStart, bEnd time.Time) float64 {
	if bStart.Before(aStart) || (bStart.Equal(aStart) && bEnd.Before(aEnd)) {
		return GapMinutes(bEnd, aStart)
	}
	return GapMinutes(aEnd, bStart)
}

// InWindow reports whether anchor-before <= now <= anchor+after.
func InWindow(now, anchor time.Time, before, after time.Duration) bool {
	return !now.Before(anchor.Add(-before)) && !now.After(anchor.Add(after))
}
