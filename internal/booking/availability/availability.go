// Package availability orchestrates recurrence expansion, calendar
// reads, and conflict classification into a per-room availability view.
package availability

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conferia/roombook/internal/authz"
	"github.com/conferia/roombook/internal/booking"
	"github.com/conferia/roombook/internal/booking/conflict"
	"github.com/conferia/roombook/internal/booking/recurrence"
)

// CalendarSource is the read-only collaborator that loads everything
// occupying a set of rooms over a window.
type CalendarSource interface {
	RoomCalendars(ctx context.Context, roomIDs []int64, start, end time.Time) ([]booking.RoomCalendar, error)
}

// Request describes one availability query.
type Request struct {
	RoomIDs []int64

	Start     time.Time
	End       time.Time
	Frequency recurrence.Frequency
	Interval  int
	Pattern   recurrence.MonthPattern

	// SkipReservationID excludes a reservation's own occurrences when
	// re-checking an edit against the calendar.
	SkipReservationID int64

	// AdminOverride lets managing requesters book through closures;
	// ExplicitOnly restricts blocking overrides to the allow-list.
	AdminOverride bool
	ExplicitOnly  bool
}

// Rule returns the recurrence rule of the request.
func (r Request) Rule() recurrence.Rule {
	return recurrence.Rule{Frequency: r.Frequency, Interval: r.Interval, Pattern: r.Pattern}
}

// RoomAvailability is the per-room slice of a Result. Rooms that fail
// up-front validation are reported with Skipped set instead of being
// dropped, so callers can always explain the outcome.
type RoomAvailability struct {
	RoomID int64
	Room   booking.Room

	Skipped    bool
	SkipReason string

	Candidates   []recurrence.Span
	Conflicts    []conflict.Conflict
	PreConflicts []conflict.Conflict

	AllDaysAvailable    bool
	ConflictingDayCount int
	Bookable            bool
}

// Result is the full availability matrix for one request.
type Result struct {
	Candidates []recurrence.Span
	Rooms      []RoomAvailability
}

// Aggregator wires the pieces together. now is injected so policies
// like max-advance stay testable.
type Aggregator struct {
	source CalendarSource
	now    func() time.Time
}

func New(source CalendarSource, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{source: source, now: now}
}

// Availability expands the request once, loads calendars for all rooms
// in one batch, and classifies each room. Only structurally invalid
// requests error; fully conflicting rooms are still returned.
func (a *Aggregator) Availability(ctx context.Context, actor authz.Actor, req Request) (*Result, error) {
	if len(req.RoomIDs) == 0 {
		return nil, booking.ValidationError{Field: "room_ids", Reason: "must name at least one room"}
	}

	candidates, err := recurrence.Generate(req.Start, req.End, req.Rule())
	if err != nil {
		return nil, booking.ValidationError{Field: "recurrence", Reason: err.Error()}
	}

	windowStart := startOfDay(req.Start)
	windowEnd := endOfDay(req.End)
	calendars, err := a.source.RoomCalendars(ctx, req.RoomIDs, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("load room calendars: %w", err)
	}

	// Rooms are independent once their calendars are loaded; classify
	// them in parallel into fixed slots to keep the request order.
	result := &Result{Candidates: candidates, Rooms: make([]RoomAvailability, len(calendars))}
	g, _ := errgroup.WithContext(ctx)
	for i, cal := range calendars {
		i, cal := i, cal
		g.Go(func() error {
			result.Rooms[i] = a.classifyRoom(actor, req, candidates, cal)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func (a *Aggregator) classifyRoom(actor authz.Actor, req Request, candidates []recurrence.Span, cal booking.RoomCalendar) RoomAvailability {
	entry := RoomAvailability{RoomID: cal.Room.ID, Room: cal.Room}

	if reason := a.rejectRoom(actor, req, candidates, cal.Room); reason != "" {
		entry.Skipped = true
		entry.SkipReason = reason
		return entry
	}

	cls := conflict.Classify(candidates, cal, actor, conflict.Options{
		AdminOverride:     req.AdminOverride,
		ExplicitOnly:      req.ExplicitOnly,
		SkipReservationID: req.SkipReservationID,
	})

	entry.Candidates = cls.Candidates
	entry.Conflicts = cls.Conflicts
	entry.PreConflicts = cls.PreConflicts
	entry.ConflictingDayCount = cls.ConflictingDays()
	entry.AllDaysAvailable = entry.ConflictingDayCount == 0
	entry.Bookable = cls.Bookable()
	return entry
}

func (a *Aggregator) rejectRoom(actor authz.Actor, req Request, candidates []recurrence.Span, room booking.Room) string {
	return RoomRejectReason(actor, room, candidates, req.End, a.now())
}

// RoomRejectReason applies the up-front per-room limits. A non-empty
// return is the reported reason. The booking mutator runs the same
// checks before writing.
func RoomRejectReason(actor authz.Actor, room booking.Room, candidates []recurrence.Span, reqEnd, now time.Time) string {
	if !room.IsActive {
		return "room is deactivated"
	}
	if !room.IsReservable {
		return "room is not reservable"
	}

	if room.BookingLimitDays > 0 {
		for _, candidate := range candidates {
			days := int64(startOfDay(candidate.End).Sub(startOfDay(candidate.Start)).Hours()/24) + 1
			if days > room.BookingLimitDays {
				return fmt.Sprintf("booking spans %d days, above the room limit of %d", days, room.BookingLimitDays)
			}
		}
	}

	if room.MaxAdvanceDays > 0 && !actor.CanManage(room) {
		horizon := startOfDay(now).AddDate(0, 0, int(room.MaxAdvanceDays))
		if !startOfDay(reqEnd).Before(horizon) {
			return fmt.Sprintf("bookings may be made at most %d days in advance", room.MaxAdvanceDays)
		}
	}

	return ""
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}
