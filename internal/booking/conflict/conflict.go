// Package conflict classifies candidate occurrences against a room's
// calendar: free, conflicting, or pre-conflicting, with override
// eligibility already applied.
package conflict

import (
	"time"

	"github.com/conferia/roombook/internal/authz"
	"github.com/conferia/roombook/internal/booking"
	"github.com/conferia/roombook/internal/booking/recurrence"
)

// Kind names the obstruction behind a conflict.
type Kind int

const (
	KindBooking Kind = iota
	KindPreBooking
	KindBlocking
	KindNonBookable
	KindHours
)

func (k Kind) String() string {
	switch k {
	case KindBooking:
		return "booking"
	case KindPreBooking:
		return "pre_booking"
	case KindBlocking:
		return "blocking"
	case KindNonBookable:
		return "non_bookable_period"
	case KindHours:
		return "bookable_hours"
	default:
		return "unknown"
	}
}

// Conflict is one obstruction of one candidate. Span is the intersection
// of candidate and obstruction, not the full candidate, except for pure
// hours conflicts where the whole candidate is unusable.
type Conflict struct {
	Span recurrence.Span
	Kind Kind

	// Set when the obstruction is an existing occurrence.
	ReservationID int64
	OccurrenceID  int64
	// Set when the obstruction is a blocking.
	BlockingID int64
}

// Options carries the caller-context flags of one classification pass.
type Options struct {
	// AdminOverride lets room managers book through closures. Without it
	// a non-bookable period rejects everyone.
	AdminOverride bool
	// ExplicitOnly restricts blocking overrides to the creator and the
	// allow-list, excluding room managers.
	ExplicitOnly bool
	// SkipReservationID ignores occurrences of the given reservation,
	// used when re-checking a booking against its own calendar entries.
	SkipReservationID int64
}

// Classification is the per-room outcome.
type Classification struct {
	Candidates   []recurrence.Span
	Conflicts    []Conflict
	PreConflicts []Conflict
}

// Bookable reports whether nothing blocks a direct booking.
// Pre-conflicts do not count: pre-bookings are provisional and a direct
// booking may take their slot.
func (c Classification) Bookable() bool {
	return len(c.Conflicts) == 0
}

// ConflictingDays counts distinct candidate days with at least one conflict.
func (c Classification) ConflictingDays() int {
	days := make(map[string]struct{})
	for _, conflict := range c.Conflicts {
		days[conflict.Span.Start.Format("2006-01-02")] = struct{}{}
	}
	return len(days)
}

// Classify compares each candidate against the room calendar. All
// comparisons happen in the room's time zone.
func Classify(candidates []recurrence.Span, cal booking.RoomCalendar, actor authz.Actor, opts Options) Classification {
	loc := cal.Room.Location()
	manages := actor.CanManage(cal.Room)

	result := Classification{Candidates: candidates}
	for _, candidate := range candidates {
		localized := recurrence.Span{Start: candidate.Start.In(loc), End: candidate.End.In(loc)}

		if !withinBookableHours(localized, cal.Hours) && !manages {
			result.Conflicts = append(result.Conflicts, Conflict{Span: localized, Kind: KindHours})
			continue
		}

		for _, period := range cal.NonBookable {
			obstruction := recurrence.Span{Start: period.Start.In(loc), End: period.End.In(loc)}
			overlap, ok := Intersect(localized, obstruction)
			if !ok {
				continue
			}
			if opts.AdminOverride && manages {
				continue
			}
			result.Conflicts = append(result.Conflicts, Conflict{Span: overlap, Kind: KindNonBookable})
		}

		result.Conflicts = appendOccurrenceConflicts(result.Conflicts, localized, cal.Bookings, KindBooking, opts, loc)
		result.PreConflicts = appendOccurrenceConflicts(result.PreConflicts, localized, cal.PreBookings, KindPreBooking, opts, loc)

		for _, blocked := range cal.BlockedRooms {
			if blocked.State != booking.BlockedRoomAccepted {
				continue
			}
			if !blocked.Blocking.ContainsDate(localized.Start) {
				continue
			}
			if blocked.Blocking.CanOverride(actor.UserID, cal.Room, actor.IsAdmin, opts.ExplicitOnly) {
				continue
			}
			result.Conflicts = append(result.Conflicts, Conflict{
				Span:       localized,
				Kind:       KindBlocking,
				BlockingID: blocked.BlockingID,
			})
		}
	}
	return result
}

func appendOccurrenceConflicts(dst []Conflict, candidate recurrence.Span, occurrences []booking.Occurrence, kind Kind, opts Options, loc *time.Location) []Conflict {
	for _, occ := range occurrences {
		if !occ.IsValid() {
			continue
		}
		if opts.SkipReservationID != 0 && occ.ReservationID == opts.SkipReservationID {
			continue
		}
		obstruction := recurrence.Span{Start: occ.Start.In(loc), End: occ.End.In(loc)}
		overlap, ok := Intersect(candidate, obstruction)
		if !ok {
			continue
		}
		dst = append(dst, Conflict{
			Span:          overlap,
			Kind:          kind,
			ReservationID: occ.ReservationID,
			OccurrenceID:  occ.ID,
		})
	}
	return dst
}

// withinBookableHours reports whether the candidate's time of day fits
// entirely inside one window in effect on its weekday. A room with no
// windows is bookable at any hour. Boundaries are inclusive.
func withinBookableHours(candidate recurrence.Span, hours []booking.BookableHours) bool {
	if len(hours) == 0 {
		return true
	}
	startMinute := candidate.Start.Hour()*60 + candidate.Start.Minute()
	endMinute := startMinute + int(candidate.End.Sub(candidate.Start).Minutes())
	for _, window := range hours {
		if !window.AppliesOn(candidate.Start.Weekday()) {
			continue
		}
		if startMinute >= window.StartMinute && endMinute <= window.EndMinute {
			return true
		}
	}
	return false
}
