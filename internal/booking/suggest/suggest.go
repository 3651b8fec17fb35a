// Package suggest proposes the least disruptive adjustments that would
// make a conflicting booking request fit.
package suggest

import (
	"sort"
	"time"

	"github.com/conferia/roombook/internal/authz"
	"github.com/conferia/roombook/internal/booking"
	"github.com/conferia/roombook/internal/booking/conflict"
	"github.com/conferia/roombook/internal/booking/recurrence"
)

const (
	// shiftWindow bounds the stepped scan around the requested start.
	// Edges of conflicting obstructions are tried as well, so a proposal
	// may shift further when a slot opens right after an obstruction.
	shiftWindow = 20 * time.Minute
	shiftStep   = 5 * time.Minute

	// maxShrinkRatio caps how much of the requested duration a
	// shorten-suggestion may give up.
	maxShrinkRatio = 0.25

	// durationCostWeight discounts duration changes against time shifts
	// when ranking suggestions.
	durationCostWeight = 0.2
)

// Suggestion is one proposed adjustment. Exactly one of NewStart,
// ShortenBy, or SkipOccurrences is set.
type Suggestion struct {
	// NewStart shifts the booking, duration unchanged.
	NewStart *time.Time
	// ShortenBy trims the booking's end.
	ShortenBy time.Duration
	// SkipOccurrences drops the conflicting occurrences of a recurring
	// request, keeping the rest.
	SkipOccurrences int

	// Cost ranks suggestions: time-shift minutes plus a fifth of the
	// duration-shift minutes. Lower is less disruptive.
	Cost float64
}

// Suggestions proposes adjustments for a classified, conflicting request.
// It returns nil when the request is already bookable or nothing helps.
func Suggestions(cal booking.RoomCalendar, actor authz.Actor, opts conflict.Options, cls conflict.Classification) []Suggestion {
	if cls.Bookable() || len(cls.Candidates) == 0 {
		return nil
	}
	if len(cls.Candidates) > 1 {
		return skipSuggestion(cls)
	}

	candidate := cls.Candidates[0]
	var suggestions []Suggestion
	if shifted := bestShift(cal, actor, opts, candidate, cls.Conflicts); shifted != nil {
		suggestions = append(suggestions, *shifted)
	}
	if shortened := bestShrink(cal, actor, opts, candidate); shortened != nil {
		suggestions = append(suggestions, *shortened)
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Cost < suggestions[j].Cost
	})
	return suggestions
}

// bestShift scans alternative starts: stepped offsets inside the shift
// window plus the edges of the conflicting obstructions. The cheapest
// conflict-free position wins.
func bestShift(cal booking.RoomCalendar, actor authz.Actor, opts conflict.Options, candidate recurrence.Span, conflicts []conflict.Conflict) *Suggestion {
	duration := candidate.End.Sub(candidate.Start)

	starts := make(map[time.Time]struct{})
	for offset := shiftStep; offset <= shiftWindow; offset += shiftStep {
		starts[candidate.Start.Add(offset)] = struct{}{}
		starts[candidate.Start.Add(-offset)] = struct{}{}
	}
	for _, c := range conflicts {
		// Only occupied slots open a gap right at their edge. Hours,
		// closure, and blocking conflicts cover whole days or windows;
		// hopping past them is not a useful proposal.
		if c.Kind != conflict.KindBooking && c.Kind != conflict.KindPreBooking {
			continue
		}
		starts[c.Span.End] = struct{}{}
		starts[c.Span.Start.Add(-duration)] = struct{}{}
	}

	var best *Suggestion
	for start := range starts {
		if start.Equal(candidate.Start) {
			continue
		}
		shifted := recurrence.Span{Start: start, End: start.Add(duration)}
		result := conflict.Classify([]recurrence.Span{shifted}, cal, actor, opts)
		if !result.Bookable() {
			continue
		}
		cost := absMinutes(start.Sub(candidate.Start))
		if best == nil || cost < best.Cost {
			proposed := start
			best = &Suggestion{NewStart: &proposed, Cost: cost}
		}
	}
	return best
}

// bestShrink tries trimming the end in steps, giving up at a quarter of
// the original duration.
func bestShrink(cal booking.RoomCalendar, actor authz.Actor, opts conflict.Options, candidate recurrence.Span) *Suggestion {
	duration := candidate.End.Sub(candidate.Start)
	maxShrink := time.Duration(float64(duration) * maxShrinkRatio)

	for shrink := shiftStep; shrink <= maxShrink; shrink += shiftStep {
		trimmed := recurrence.Span{Start: candidate.Start, End: candidate.End.Add(-shrink)}
		result := conflict.Classify([]recurrence.Span{trimmed}, cal, actor, opts)
		if result.Bookable() {
			return &Suggestion{ShortenBy: shrink, Cost: durationCostWeight * absMinutes(shrink)}
		}
	}
	return nil
}

// skipSuggestion counts the conflicting occurrences of a recurring
// request. Skipping helps only when some occurrences survive.
func skipSuggestion(cls conflict.Classification) []Suggestion {
	conflicting := 0
	for _, candidate := range cls.Candidates {
		for _, c := range cls.Conflicts {
			if conflict.Overlaps(candidate, c.Span) {
				conflicting++
				break
			}
		}
	}
	if conflicting == 0 || conflicting >= len(cls.Candidates) {
		return nil
	}
	return []Suggestion{{SkipOccurrences: conflicting, Cost: float64(conflicting)}}
}

func absMinutes(d time.Duration) float64 {
	if d < 0 {
		d = -d
	}
	return d.Minutes()
}
