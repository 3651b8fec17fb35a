package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/conferia/roombook/internal/authz"
	"github.com/conferia/roombook/internal/booking"
	"github.com/conferia/roombook/internal/booking/recurrence"
)

type fakeSource struct {
	calendars []booking.RoomCalendar
	err       error

	gotRoomIDs []int64
	gotStart   time.Time
	gotEnd     time.Time
	calls      int
}

func (f *fakeSource) RoomCalendars(_ context.Context, roomIDs []int64, start, end time.Time) ([]booking.RoomCalendar, error) {
	f.calls++
	f.gotRoomIDs = roomIDs
	f.gotStart = start
	f.gotEnd = end
	return f.calendars, f.err
}

func dt(day, hour, minute int) time.Time {
	return time.Date(2024, time.March, day, hour, minute, 0, 0, time.UTC)
}

func fixedNow() time.Time { return dt(1, 8, 0) }

func activeRoom(id int64) booking.Room {
	return booking.Room{ID: id, OwnerID: 100, IsReservable: true, IsActive: true}
}

func TestAvailabilitySingleFreeRoom(t *testing.T) {
	source := &fakeSource{calendars: []booking.RoomCalendar{{Room: activeRoom(1)}}}
	agg := New(source, fixedNow)

	result, err := agg.Availability(context.Background(), authz.Actor{UserID: 7}, Request{
		RoomIDs:   []int64{1},
		Start:     dt(5, 10, 0),
		End:       dt(5, 11, 0),
		Frequency: recurrence.FrequencyNever,
	})
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if source.calls != 1 {
		t.Fatalf("calendar fetched %d times", source.calls)
	}
	if len(result.Candidates) != 1 || len(result.Rooms) != 1 {
		t.Fatalf("result: %+v", result)
	}
	room := result.Rooms[0]
	if !room.Bookable || !room.AllDaysAvailable || room.ConflictingDayCount != 0 {
		t.Fatalf("room summary: %+v", room)
	}
}

func TestAvailabilityFullyConflictingRoomStillReturned(t *testing.T) {
	cal := booking.RoomCalendar{
		Room: activeRoom(1),
		Bookings: []booking.Occurrence{{
			ID: 1, ReservationID: 2, Start: dt(5, 10, 0), End: dt(5, 11, 0),
			ReservationAccepted: true,
		}},
	}
	agg := New(&fakeSource{calendars: []booking.RoomCalendar{cal}}, fixedNow)

	result, err := agg.Availability(context.Background(), authz.Actor{UserID: 7}, Request{
		RoomIDs:   []int64{1},
		Start:     dt(5, 10, 0),
		End:       dt(5, 11, 0),
		Frequency: recurrence.FrequencyNever,
	})
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	room := result.Rooms[0]
	if room.Skipped {
		t.Fatal("conflicting rooms must not be dropped")
	}
	if room.Bookable || room.ConflictingDayCount != 1 || room.AllDaysAvailable {
		t.Fatalf("room summary: %+v", room)
	}
}

func TestAvailabilityValidation(t *testing.T) {
	agg := New(&fakeSource{}, fixedNow)

	tests := []struct {
		name string
		req  Request
	}{
		{"no rooms", Request{Start: dt(5, 10, 0), End: dt(5, 11, 0)}},
		{"end before start", Request{RoomIDs: []int64{1}, Start: dt(5, 11, 0), End: dt(5, 10, 0)}},
		{"series beyond cap", Request{
			RoomIDs: []int64{1}, Start: dt(1, 10, 0), End: dt(1, 11, 0).AddDate(0, 0, 200),
			Frequency: recurrence.FrequencyDay, Interval: 1,
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := agg.Availability(context.Background(), authz.Actor{UserID: 7}, tc.req)
			var verr booking.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestAvailabilityRoomLimits(t *testing.T) {
	limited := activeRoom(1)
	limited.BookingLimitDays = 1

	farFuture := activeRoom(2)
	farFuture.MaxAdvanceDays = 7

	inactive := activeRoom(3)
	inactive.IsActive = false

	source := &fakeSource{calendars: []booking.RoomCalendar{
		{Room: limited}, {Room: farFuture}, {Room: inactive},
	}}
	agg := New(source, fixedNow)

	// A three-day booking, 30 days out.
	result, err := agg.Availability(context.Background(), authz.Actor{UserID: 7}, Request{
		RoomIDs:   []int64{1, 2, 3},
		Start:     dt(30, 10, 0),
		End:       dt(30, 10, 0).AddDate(0, 0, 2).Add(time.Hour),
		Frequency: recurrence.FrequencyNever,
	})
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if len(result.Rooms) != 3 {
		t.Fatalf("rooms: %d", len(result.Rooms))
	}
	for _, room := range result.Rooms {
		if !room.Skipped || room.SkipReason == "" {
			t.Fatalf("room %d should be skipped with a reason: %+v", room.RoomID, room)
		}
	}
}

func TestAvailabilityMaxAdvanceBypassForManager(t *testing.T) {
	room := activeRoom(1)
	room.MaxAdvanceDays = 7
	agg := New(&fakeSource{calendars: []booking.RoomCalendar{{Room: room}}}, fixedNow)

	result, err := agg.Availability(context.Background(), authz.Actor{UserID: 100}, Request{
		RoomIDs:   []int64{1},
		Start:     dt(30, 10, 0),
		End:       dt(30, 11, 0),
		Frequency: recurrence.FrequencyNever,
	})
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if result.Rooms[0].Skipped {
		t.Fatalf("room owner bypasses max-advance: %+v", result.Rooms[0])
	}
}

func TestAvailabilityWindowCoversWholeDays(t *testing.T) {
	source := &fakeSource{calendars: []booking.RoomCalendar{{Room: activeRoom(1)}}}
	agg := New(source, fixedNow)

	if _, err := agg.Availability(context.Background(), authz.Actor{UserID: 7}, Request{
		RoomIDs:   []int64{1},
		Start:     dt(5, 10, 0),
		End:       dt(6, 11, 0),
		Frequency: recurrence.FrequencyNever,
	}); err != nil {
		t.Fatalf("availability: %v", err)
	}
	if source.gotStart.Hour() != 0 || source.gotStart.Day() != 5 {
		t.Fatalf("window start: %v", source.gotStart)
	}
	if source.gotEnd.Hour() != 23 || source.gotEnd.Day() != 6 {
		t.Fatalf("window end: %v", source.gotEnd)
	}
}
