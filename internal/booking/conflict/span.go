package conflict

import (
	"time"

	"github.com/conferia/roombook/internal/booking/recurrence"
)

// Overlaps reports whether two spans share any time. Touching intervals
// (end == start) do not overlap.
func Overlaps(a, b recurrence.Span) bool {
	return maxTime(a.Start, b.Start).Before(minTime(a.End, b.End))
}

// Intersect returns the shared part of two spans. ok is false when they
// only touch or are disjoint.
func Intersect(a, b recurrence.Span) (recurrence.Span, bool) {
	start := maxTime(a.Start, b.Start)
	end := minTime(a.End, b.End)
	if !start.Before(end) {
		return recurrence.Span{}, false
	}
	return recurrence.Span{Start: start, End: end}, true
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
