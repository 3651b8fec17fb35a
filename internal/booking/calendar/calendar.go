// Package calendar loads everything occupying a set of rooms over a
// window and assembles it into the domain calendar the conflict engine
// consumes.
package calendar

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/conferia/roombook/internal/booking"
	"github.com/conferia/roombook/internal/db/store"
	"github.com/conferia/roombook/internal/principal"
)

// GroupResolver expands a named group or role into a principal. Group
// membership lives outside this service, so the resolver is pluggable; a
// nil resolver treats unknown groups as empty.
type GroupResolver func(kind, name string) principal.Principal

// Store assembles room calendars from the query layer. It is safe to
// point at a transaction-scoped Queries for in-transaction re-checks.
type Store struct {
	q       *store.Queries
	resolve GroupResolver
}

func New(q *store.Queries, resolve GroupResolver) *Store {
	return &Store{q: q, resolve: resolve}
}

// WithQueries returns a Store running on a different query handle,
// keeping the resolver. Used to re-check inside a write transaction.
func (s *Store) WithQueries(q *store.Queries) *Store {
	return &Store{q: q, resolve: s.resolve}
}

// RoomCalendars loads the calendars of the given rooms for [start, end].
// Rooms that do not exist are silently absent from the result.
func (s *Store) RoomCalendars(ctx context.Context, roomIDs []int64, start, end time.Time) ([]booking.RoomCalendar, error) {
	rooms, err := s.q.ListRoomsByIDs(ctx, roomIDs)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	if len(rooms) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(rooms))
	for i, r := range rooms {
		ids[i] = r.ID
	}

	hours, err := s.q.ListBookableHoursByRooms(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list bookable hours: %w", err)
	}
	periods, err := s.q.ListNonbookablePeriodsByRooms(ctx, ids, start, end)
	if err != nil {
		return nil, fmt.Errorf("list nonbookable periods: %w", err)
	}
	occurrences, err := s.q.ListOccurrencesInWindow(ctx, ids, start, end)
	if err != nil {
		return nil, fmt.Errorf("list occurrences: %w", err)
	}
	blocked, err := s.q.ListBlockedRoomsByRooms(ctx, ids, start, end)
	if err != nil {
		return nil, fmt.Errorf("list blocked rooms: %w", err)
	}

	allowLists, err := s.loadAllowLists(ctx, blocked)
	if err != nil {
		return nil, err
	}

	byRoom := make(map[int64]*booking.RoomCalendar, len(rooms))
	calendars := make([]booking.RoomCalendar, len(rooms))
	for i, r := range rooms {
		calendars[i] = booking.RoomCalendar{Room: roomFromStore(r)}
		byRoom[r.ID] = &calendars[i]
	}

	for _, h := range hours {
		cal := byRoom[h.RoomID]
		if cal == nil {
			continue
		}
		cal.Hours = append(cal.Hours, hoursFromStore(h))
	}
	for _, p := range periods {
		cal := byRoom[p.RoomID]
		if cal == nil {
			continue
		}
		cal.NonBookable = append(cal.NonBookable, booking.NonBookablePeriod{
			ID: p.ID, RoomID: p.RoomID, Start: p.StartAt, End: p.EndAt,
		})
	}
	for _, o := range occurrences {
		cal := byRoom[o.RoomID]
		if cal == nil {
			continue
		}
		occ := occurrenceFromStore(o)
		if o.ReservationAccepted {
			cal.Bookings = append(cal.Bookings, occ)
		} else {
			cal.PreBookings = append(cal.PreBookings, occ)
		}
	}
	for _, b := range blocked {
		cal := byRoom[b.RoomID]
		if cal == nil {
			continue
		}
		cal.BlockedRooms = append(cal.BlockedRooms, booking.BlockedRoom{
			ID:              b.ID,
			BlockingID:      b.BlockingID,
			RoomID:          b.RoomID,
			State:           booking.BlockedRoomState(b.State),
			RejectionReason: b.RejectionReason,
			Blocking: booking.Blocking{
				ID:          b.BlockingID,
				CreatedByID: b.CreatedByID,
				StartDate:   b.StartDate,
				EndDate:     b.EndDate,
				Reason:      b.Reason,
				Allowed:     allowLists[b.BlockingID],
			},
		})
	}

	return calendars, nil
}

func (s *Store) loadAllowLists(ctx context.Context, blocked []store.BlockedRoomWithBlocking) (map[int64][]principal.Principal, error) {
	lists := make(map[int64][]principal.Principal)
	for _, b := range blocked {
		if _, done := lists[b.BlockingID]; done {
			continue
		}
		allowed, err := s.AllowList(ctx, b.BlockingID)
		if err != nil {
			return nil, err
		}
		lists[b.BlockingID] = allowed
	}
	return lists, nil
}

// AllowList loads a blocking's allow-list and resolves group and role
// entries through the configured resolver.
func (s *Store) AllowList(ctx context.Context, blockingID int64) ([]principal.Principal, error) {
	rows, err := s.q.ListBlockingAllowed(ctx, blockingID)
	if err != nil {
		return nil, fmt.Errorf("list blocking allow-list: %w", err)
	}
	return s.principals(rows), nil
}

func (s *Store) principals(rows []store.BlockingAllowed) []principal.Principal {
	var out []principal.Principal
	for _, row := range rows {
		switch row.PrincipalKind {
		case "user":
			id, err := strconv.ParseInt(row.PrincipalRef, 10, 64)
			if err != nil {
				continue
			}
			out = append(out, principal.User{ID: id})
		default:
			if s.resolve == nil {
				continue
			}
			if p := s.resolve(row.PrincipalKind, row.PrincipalRef); p != nil {
				out = append(out, p)
			}
		}
	}
	return out
}

func roomFromStore(r store.Room) booking.Room {
	return booking.Room{
		ID:                           r.ID,
		Name:                         r.Name,
		OwnerID:                      r.OwnerID,
		ContactPhone:                 r.ContactPhone,
		Timezone:                     r.Timezone,
		IsReservable:                 r.IsReservable,
		ReservationsNeedConfirmation: r.ReservationsNeedConfirmation,
		BookingLimitDays:             r.BookingLimitDays,
		MaxAdvanceDays:               r.MaxAdvanceDays,
		IsActive:                     r.IsActive,
	}
}

func hoursFromStore(h store.RoomBookableHour) booking.BookableHours {
	window := booking.BookableHours{
		RoomID:      h.RoomID,
		StartMinute: int(h.StartMinute),
		EndMinute:   int(h.EndMinute),
	}
	if h.Weekday.Valid {
		day := time.Weekday(h.Weekday.Int64)
		window.Weekday = &day
	}
	return window
}

func occurrenceFromStore(o store.OccurrenceWithReservation) booking.Occurrence {
	return booking.Occurrence{
		ID:                  o.ID,
		ReservationID:       o.ReservationID,
		Start:               o.StartAt,
		End:                 o.EndAt,
		IsCancelled:         o.IsCancelled,
		IsRejected:          o.IsRejected,
		RejectionReason:     o.RejectionReason,
		RoomID:              o.RoomID,
		ReservationOwnerID:  o.BookedByID,
		ReservationAccepted: o.ReservationAccepted,
	}
}
