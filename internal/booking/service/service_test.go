package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/conferia/roombook/internal/authz"
	"github.com/conferia/roombook/internal/booking"
	"github.com/conferia/roombook/internal/booking/calendar"
	"github.com/conferia/roombook/internal/booking/recurrence"
	"github.com/conferia/roombook/internal/db"
	"github.com/conferia/roombook/internal/db/store"
	"github.com/conferia/roombook/internal/testutil"
)

func dt(day, hour, minute int) time.Time {
	return time.Date(2024, time.March, day, hour, minute, 0, 0, time.UTC)
}

func newService(t *testing.T, now time.Time) (*Service, *db.DB) {
	t.Helper()
	database := testutil.NewTestDB(t)
	calendars := calendar.New(database.Queries, nil)
	svc := New(database, calendars, nil, func() time.Time { return now })
	return svc, database
}

func seedUser(t *testing.T, database *db.DB, email string, admin bool) store.User {
	t.Helper()
	user, err := database.Queries.CreateUser(context.Background(), store.CreateUserParams{
		Email:   email,
		Name:    email,
		IsAdmin: admin,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func seedRoom(t *testing.T, database *db.DB, ownerID int64, needsConfirmation bool) store.Room {
	t.Helper()
	room, err := database.Queries.CreateRoom(context.Background(), store.CreateRoomParams{
		Name:                         "1/2-017",
		OwnerID:                      ownerID,
		Timezone:                     "UTC",
		IsReservable:                 true,
		ReservationsNeedConfirmation: needsConfirmation,
		IsActive:                     true,
	})
	if err != nil {
		t.Fatalf("seed room: %v", err)
	}
	return room
}

func singleRequest(roomID int64, start, end time.Time) CreateRequest {
	return CreateRequest{
		RoomID:    roomID,
		Start:     start,
		End:       end,
		Frequency: recurrence.FrequencyNever,
		Reason:    "Project sync",
	}
}

func TestCreateSingleBooking(t *testing.T) {
	svc, database := newService(t, dt(1, 8, 0))
	owner := seedUser(t, database, "owner@example.com", false)
	booker := seedUser(t, database, "booker@example.com", false)
	room := seedRoom(t, database, owner.ID, false)

	result, err := svc.Create(context.Background(), authz.Actor{UserID: booker.ID},
		singleRequest(room.ID, dt(5, 10, 0), dt(5, 11, 0)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !result.Reservation.IsAccepted {
		t.Fatal("booking in a no-confirmation room should be accepted immediately")
	}
	if len(result.Occurrences) != 1 {
		t.Fatalf("occurrences: %d", len(result.Occurrences))
	}

	stored, err := database.Queries.GetReservation(context.Background(), result.Reservation.ID)
	if err != nil {
		t.Fatalf("load reservation: %v", err)
	}
	if !stored.StartAt.Equal(dt(5, 10, 0)) || !stored.EndAt.Equal(dt(5, 11, 0)) {
		t.Fatalf("stored period: %v - %v", stored.StartAt, stored.EndAt)
	}
}

func TestCreatePreBookingWhenConfirmationRequired(t *testing.T) {
	svc, database := newService(t, dt(1, 8, 0))
	owner := seedUser(t, database, "owner@example.com", false)
	booker := seedUser(t, database, "booker@example.com", false)
	room := seedRoom(t, database, owner.ID, true)

	result, err := svc.Create(context.Background(), authz.Actor{UserID: booker.ID},
		singleRequest(room.ID, dt(5, 10, 0), dt(5, 11, 0)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.Reservation.IsAccepted {
		t.Fatal("non-manager booking should land as a pre-booking")
	}

	// The room owner books directly even here.
	ownerResult, err := svc.Create(context.Background(), authz.Actor{UserID: owner.ID},
		singleRequest(room.ID, dt(6, 10, 0), dt(6, 11, 0)))
	if err != nil {
		t.Fatalf("owner create: %v", err)
	}
	if !ownerResult.Reservation.IsAccepted {
		t.Fatal("manager booking should skip confirmation")
	}
}

func TestCreatePrebookFlagForcesPending(t *testing.T) {
	svc, database := newService(t, dt(1, 8, 0))
	owner := seedUser(t, database, "owner@example.com", false)
	booker := seedUser(t, database, "booker@example.com", false)
	room := seedRoom(t, database, owner.ID, false)

	req := singleRequest(room.ID, dt(5, 10, 0), dt(5, 11, 0))
	req.Prebook = true
	result, err := svc.Create(context.Background(), authz.Actor{UserID: booker.ID}, req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.Reservation.IsAccepted {
		t.Fatal("an explicitly requested pre-booking must stay pending")
	}
}

func TestCreateConflictReturnsSuggestions(t *testing.T) {
	svc, database := newService(t, dt(1, 8, 0))
	owner := seedUser(t, database, "owner@example.com", false)
	booker := seedUser(t, database, "booker@example.com", false)
	room := seedRoom(t, database, owner.ID, false)

	if _, err := svc.Create(context.Background(), authz.Actor{UserID: owner.ID},
		singleRequest(room.ID, dt(5, 10, 0), dt(5, 11, 0))); err != nil {
		t.Fatalf("seed booking: %v", err)
	}

	_, err := svc.Create(context.Background(), authz.Actor{UserID: booker.ID},
		singleRequest(room.ID, dt(5, 10, 30), dt(5, 11, 30)))
	var conflictErr *ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if len(conflictErr.Conflicts) != 1 {
		t.Fatalf("conflicts: %+v", conflictErr.Conflicts)
	}
	if len(conflictErr.Suggestions) == 0 {
		t.Fatal("expected at least one suggestion")
	}
}

func TestCreateConfirmedBookingRejectsOverlappingPreBookings(t *testing.T) {
	svc, database := newService(t, dt(1, 8, 0))
	owner := seedUser(t, database, "owner@example.com", false)
	booker := seedUser(t, database, "booker@example.com", false)
	room := seedRoom(t, database, owner.ID, true)

	pre, err := svc.Create(context.Background(), authz.Actor{UserID: booker.ID},
		singleRequest(room.ID, dt(5, 10, 0), dt(5, 11, 0)))
	if err != nil {
		t.Fatalf("seed pre-booking: %v", err)
	}

	// The manager books the same slot directly; the pre-booking loses.
	if _, err := svc.Create(context.Background(), authz.Actor{UserID: owner.ID},
		singleRequest(room.ID, dt(5, 10, 0), dt(5, 11, 0))); err != nil {
		t.Fatalf("manager create: %v", err)
	}

	occ, err := database.Queries.GetOccurrence(context.Background(), pre.Occurrences[0].ID)
	if err != nil {
		t.Fatalf("load occurrence: %v", err)
	}
	if !occ.IsRejected {
		t.Fatal("overlapped pre-booking occurrence should be rejected")
	}
}

func TestConcurrentCreateNeverDoubleBooks(t *testing.T) {
	svc, database := newService(t, dt(1, 8, 0))
	owner := seedUser(t, database, "owner@example.com", false)
	alice := seedUser(t, database, "alice@example.com", false)
	bob := seedUser(t, database, "bob@example.com", false)
	room := seedRoom(t, database, owner.ID, false)

	req := singleRequest(room.ID, dt(5, 10, 0), dt(5, 11, 0))
	actors := []authz.Actor{{UserID: alice.ID}, {UserID: bob.ID}}
	errs := make([]error, len(actors))

	var wg sync.WaitGroup
	for i, actor := range actors {
		wg.Add(1)
		go func(i int, actor authz.Actor) {
			defer wg.Done()
			_, errs[i] = svc.Create(context.Background(), actor, req)
		}(i, actor)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err == nil {
			continue
		}
		failures++
		var conflictErr *ConflictError
		if !errors.As(err, &conflictErr) && !errors.Is(err, booking.ErrConcurrencyConflict) {
			t.Fatalf("unexpected failure mode: %v", err)
		}
	}
	if failures != 1 {
		t.Fatalf("exactly one writer must lose, got %d failures", failures)
	}

	live, err := database.Queries.ListOccurrencesInWindow(context.Background(),
		[]int64{room.ID}, dt(5, 0, 0), dt(6, 0, 0))
	if err != nil {
		t.Fatalf("list occurrences: %v", err)
	}
	if len(live) != 1 {
		t.Fatalf("the slot must hold exactly one occurrence, got %d", len(live))
	}
}

func TestModifyMetadataOnly(t *testing.T) {
	svc, database := newService(t, dt(1, 8, 0))
	owner := seedUser(t, database, "owner@example.com", false)
	room := seedRoom(t, database, owner.ID, false)

	created, err := svc.Create(context.Background(), authz.Actor{UserID: owner.ID},
		singleRequest(room.ID, dt(5, 10, 0), dt(5, 11, 0)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := svc.Modify(context.Background(), authz.Actor{UserID: owner.ID}, ModifyRequest{
		ReservationID: created.Reservation.ID,
		BookedForName: "Ada Lovelace",
		Reason:        "Weekly review",
		Start:         dt(5, 10, 0),
		End:           dt(5, 11, 0),
		Frequency:     recurrence.FrequencyNever,
	})
	if err != nil {
		t.Fatalf("modify: %v", err)
	}
	if result.Split {
		t.Fatal("metadata change must not split")
	}
	if result.Reservation.BookedForName != "Ada Lovelace" {
		t.Fatalf("booked for: %q", result.Reservation.BookedForName)
	}
}

func TestModifyUpcomingSeriesRewritesInPlace(t *testing.T) {
	svc, database := newService(t, dt(1, 8, 0))
	owner := seedUser(t, database, "owner@example.com", false)
	room := seedRoom(t, database, owner.ID, false)

	created, err := svc.Create(context.Background(), authz.Actor{UserID: owner.ID}, CreateRequest{
		RoomID:    room.ID,
		Start:     dt(5, 10, 0),
		End:       dt(7, 11, 0),
		Frequency: recurrence.FrequencyDay,
		Interval:  1,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(created.Occurrences) != 3 {
		t.Fatalf("occurrences: %d", len(created.Occurrences))
	}

	result, err := svc.Modify(context.Background(), authz.Actor{UserID: owner.ID}, ModifyRequest{
		ReservationID: created.Reservation.ID,
		Start:         dt(5, 14, 0),
		End:           dt(7, 15, 0),
		Frequency:     recurrence.FrequencyDay,
		Interval:      1,
	})
	if err != nil {
		t.Fatalf("modify: %v", err)
	}
	if result.Split {
		t.Fatal("a series that has not started yet must not split")
	}

	occurrences, err := database.Queries.ListOccurrencesByReservation(context.Background(), created.Reservation.ID)
	if err != nil {
		t.Fatalf("list occurrences: %v", err)
	}
	if len(occurrences) != 3 {
		t.Fatalf("occurrences after rewrite: %d", len(occurrences))
	}
	if occurrences[0].StartAt.Hour() != 14 {
		t.Fatalf("first occurrence start: %v", occurrences[0].StartAt)
	}
}

func TestModifyOngoingSeriesSplits(t *testing.T) {
	// Daily series Mar 1-10; the clock stands mid-series on Mar 5. Moving
	// the time must keep the past as booked and move only the future.
	now := time.Date(2024, time.March, 5, 8, 0, 0, 0, time.UTC)
	svc, database := newService(t, now)
	owner := seedUser(t, database, "owner@example.com", false)
	room := seedRoom(t, database, owner.ID, false)

	created, err := svc.Create(context.Background(), authz.Actor{UserID: owner.ID}, CreateRequest{
		RoomID:    room.ID,
		Start:     dt(1, 10, 0),
		End:       dt(10, 11, 0),
		Frequency: recurrence.FrequencyDay,
		Interval:  1,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(created.Occurrences) != 10 {
		t.Fatalf("occurrences: %d", len(created.Occurrences))
	}

	result, err := svc.Modify(context.Background(), authz.Actor{UserID: owner.ID}, ModifyRequest{
		ReservationID: created.Reservation.ID,
		Start:         dt(1, 14, 0),
		End:           dt(10, 15, 0),
		Frequency:     recurrence.FrequencyDay,
		Interval:      1,
	})
	if err != nil {
		t.Fatalf("modify: %v", err)
	}
	if !result.Split || result.NewReservation == nil {
		t.Fatalf("expected a split: %+v", result)
	}
	if result.NewReservation.SplitFromID == nil || *result.NewReservation.SplitFromID != created.Reservation.ID {
		t.Fatalf("split link: %+v", result.NewReservation)
	}

	// Original keeps Mar 1-4 live, Mar 5-10 cancelled.
	original, err := database.Queries.ListOccurrencesByReservation(context.Background(), created.Reservation.ID)
	if err != nil {
		t.Fatalf("list original occurrences: %v", err)
	}
	liveOriginal := 0
	for _, occ := range original {
		if !occ.IsCancelled {
			liveOriginal++
			if !occ.StartAt.Before(now) {
				t.Fatalf("future occurrence left live on original: %v", occ.StartAt)
			}
		}
	}
	if liveOriginal != 4 {
		t.Fatalf("live original occurrences: %d", liveOriginal)
	}

	// The new reservation carries Mar 5-10 at the new time.
	moved, err := database.Queries.ListOccurrencesByReservation(context.Background(), result.NewReservation.ID)
	if err != nil {
		t.Fatalf("list moved occurrences: %v", err)
	}
	if len(moved) != 6 {
		t.Fatalf("moved occurrences: %d", len(moved))
	}
	if moved[0].StartAt.Hour() != 14 {
		t.Fatalf("moved start: %v", moved[0].StartAt)
	}

	// Re-applying the same target state to the new reservation changes
	// nothing further.
	again, err := svc.Modify(context.Background(), authz.Actor{UserID: owner.ID}, ModifyRequest{
		ReservationID: result.NewReservation.ID,
		Start:         result.NewReservation.Start,
		End:           result.NewReservation.End,
		Frequency:     recurrence.FrequencyDay,
		Interval:      1,
	})
	if err != nil {
		t.Fatalf("repeat modify: %v", err)
	}
	if again.Split {
		t.Fatal("identical target state must not split again")
	}
}

func TestModifyOngoingSeriesEndDateChangeInPlace(t *testing.T) {
	// Daily series Mar 1-8; the clock stands mid-series on Mar 5.
	// Changing only the end date adds or removes occurrences without a
	// split.
	now := time.Date(2024, time.March, 5, 8, 0, 0, 0, time.UTC)
	svc, database := newService(t, now)
	owner := seedUser(t, database, "owner@example.com", false)
	room := seedRoom(t, database, owner.ID, false)

	created, err := svc.Create(context.Background(), authz.Actor{UserID: owner.ID}, CreateRequest{
		RoomID:    room.ID,
		Start:     dt(1, 10, 0),
		End:       dt(8, 11, 0),
		Frequency: recurrence.FrequencyDay,
		Interval:  1,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	firstOccID := created.Occurrences[0].ID

	result, err := svc.Modify(context.Background(), authz.Actor{UserID: owner.ID}, ModifyRequest{
		ReservationID: created.Reservation.ID,
		Start:         dt(1, 10, 0),
		End:           dt(10, 11, 0),
		Frequency:     recurrence.FrequencyDay,
		Interval:      1,
	})
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if result.Split || result.NewReservation != nil {
		t.Fatalf("end-date-only extension must not split: %+v", result)
	}

	occurrences, err := database.Queries.ListOccurrencesByReservation(context.Background(), created.Reservation.ID)
	if err != nil {
		t.Fatalf("list occurrences: %v", err)
	}
	if len(occurrences) != 10 {
		t.Fatalf("occurrences after extension: %d", len(occurrences))
	}
	for _, occ := range occurrences {
		if occ.IsCancelled || occ.IsRejected {
			t.Fatalf("extension must keep every occurrence live: %v", occ.StartAt)
		}
	}

	// Past occurrences stay in place rather than being recreated.
	if _, err := database.Queries.GetOccurrence(context.Background(), firstOccID); err != nil {
		t.Fatalf("first occurrence should survive the rewrite: %v", err)
	}

	// Shrinking the end removes future occurrences the same way.
	result, err = svc.Modify(context.Background(), authz.Actor{UserID: owner.ID}, ModifyRequest{
		ReservationID: created.Reservation.ID,
		Start:         dt(1, 10, 0),
		End:           dt(6, 11, 0),
		Frequency:     recurrence.FrequencyDay,
		Interval:      1,
	})
	if err != nil {
		t.Fatalf("shrink: %v", err)
	}
	if result.Split {
		t.Fatal("end-date-only shrink must not split")
	}
	occurrences, err = database.Queries.ListOccurrencesByReservation(context.Background(), created.Reservation.ID)
	if err != nil {
		t.Fatalf("list occurrences: %v", err)
	}
	if len(occurrences) != 6 {
		t.Fatalf("occurrences after shrink: %d", len(occurrences))
	}
}

func TestCancelReservation(t *testing.T) {
	svc, database := newService(t, dt(1, 8, 0))
	owner := seedUser(t, database, "owner@example.com", false)
	booker := seedUser(t, database, "booker@example.com", false)
	stranger := seedUser(t, database, "stranger@example.com", false)
	room := seedRoom(t, database, owner.ID, false)

	created, err := svc.Create(context.Background(), authz.Actor{UserID: booker.ID},
		singleRequest(room.ID, dt(5, 10, 0), dt(5, 11, 0)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	err = svc.Cancel(context.Background(), authz.Actor{UserID: stranger.ID}, created.Reservation.ID)
	var permErr booking.PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected PermissionError, got %v", err)
	}

	if err := svc.Cancel(context.Background(), authz.Actor{UserID: booker.ID}, created.Reservation.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	live, err := database.Queries.ListOccurrencesInWindow(context.Background(),
		[]int64{room.ID}, dt(5, 0, 0), dt(6, 0, 0))
	if err != nil {
		t.Fatalf("list occurrences: %v", err)
	}
	if len(live) != 0 {
		t.Fatalf("cancelled booking still occupies the calendar: %+v", live)
	}
}

func TestApprovePreBooking(t *testing.T) {
	svc, database := newService(t, dt(1, 8, 0))
	owner := seedUser(t, database, "owner@example.com", false)
	alice := seedUser(t, database, "alice@example.com", false)
	bob := seedUser(t, database, "bob@example.com", false)
	room := seedRoom(t, database, owner.ID, true)

	first, err := svc.Create(context.Background(), authz.Actor{UserID: alice.ID},
		singleRequest(room.ID, dt(5, 10, 0), dt(5, 11, 0)))
	if err != nil {
		t.Fatalf("first pre-booking: %v", err)
	}
	second, err := svc.Create(context.Background(), authz.Actor{UserID: bob.ID},
		singleRequest(room.ID, dt(5, 10, 30), dt(5, 11, 30)))
	if err != nil {
		t.Fatalf("second pre-booking: %v", err)
	}

	err = svc.Approve(context.Background(), authz.Actor{UserID: alice.ID}, first.Reservation.ID)
	var permErr booking.PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("non-manager approval should fail with PermissionError, got %v", err)
	}

	if err := svc.Approve(context.Background(), authz.Actor{UserID: owner.ID}, first.Reservation.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	approved, err := database.Queries.GetReservation(context.Background(), first.Reservation.ID)
	if err != nil {
		t.Fatalf("load approved: %v", err)
	}
	if !approved.IsAccepted {
		t.Fatal("approval did not stick")
	}

	// Bob's overlapping pre-booking occurrence was pushed out.
	occ, err := database.Queries.GetOccurrence(context.Background(), second.Occurrences[0].ID)
	if err != nil {
		t.Fatalf("load competing occurrence: %v", err)
	}
	if !occ.IsRejected {
		t.Fatal("competing pre-booking occurrence should be rejected")
	}
}

func TestRejectReservation(t *testing.T) {
	svc, database := newService(t, dt(1, 8, 0))
	owner := seedUser(t, database, "owner@example.com", false)
	booker := seedUser(t, database, "booker@example.com", false)
	room := seedRoom(t, database, owner.ID, true)

	created, err := svc.Create(context.Background(), authz.Actor{UserID: booker.ID},
		singleRequest(room.ID, dt(5, 10, 0), dt(5, 11, 0)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Reject(context.Background(), authz.Actor{UserID: owner.ID}, created.Reservation.ID, "room needed"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	rejected, err := database.Queries.GetReservation(context.Background(), created.Reservation.ID)
	if err != nil {
		t.Fatalf("load rejected: %v", err)
	}
	if !rejected.IsRejected || rejected.RejectionReason != "room needed" {
		t.Fatalf("rejection state: %+v", rejected)
	}
}

func TestCreateBlockingCascades(t *testing.T) {
	svc, database := newService(t, dt(1, 8, 0))
	owner := seedUser(t, database, "owner@example.com", false)
	booker := seedUser(t, database, "booker@example.com", false)
	room := seedRoom(t, database, owner.ID, false)

	victim, err := svc.Create(context.Background(), authz.Actor{UserID: booker.ID},
		singleRequest(room.ID, dt(5, 10, 0), dt(5, 11, 0)))
	if err != nil {
		t.Fatalf("victim booking: %v", err)
	}
	ownBooking, err := svc.Create(context.Background(), authz.Actor{UserID: owner.ID},
		singleRequest(room.ID, dt(5, 14, 0), dt(5, 15, 0)))
	if err != nil {
		t.Fatalf("owner booking: %v", err)
	}

	result, err := svc.CreateBlocking(context.Background(), authz.Actor{UserID: owner.ID}, CreateBlockingRequest{
		StartDate: dt(4, 0, 0),
		EndDate:   dt(6, 0, 0),
		Reason:    "maintenance",
		RoomIDs:   []int64{room.ID},
	})
	if err != nil {
		t.Fatalf("create blocking: %v", err)
	}
	if result.States[room.ID] != booking.BlockedRoomAccepted {
		t.Fatalf("manager blocking should auto-accept: %v", result.States[room.ID])
	}

	victimOcc, err := database.Queries.GetOccurrence(context.Background(), victim.Occurrences[0].ID)
	if err != nil {
		t.Fatalf("load victim occurrence: %v", err)
	}
	if !victimOcc.IsRejected {
		t.Fatal("blocked occurrence should be rejected")
	}

	ownOcc, err := database.Queries.GetOccurrence(context.Background(), ownBooking.Occurrences[0].ID)
	if err != nil {
		t.Fatalf("load owner occurrence: %v", err)
	}
	if ownOcc.IsRejected {
		t.Fatal("the blocking creator's own booking must survive")
	}
}

func TestBlockingCascadeSparesRoomOwnerBookings(t *testing.T) {
	// An admin blocks a room they do not own. The room owner could book
	// through the blocking, so the owner's confirmed booking survives the
	// cascade; a plain booker's does not.
	svc, database := newService(t, dt(1, 8, 0))
	admin := seedUser(t, database, "admin@example.com", true)
	owner := seedUser(t, database, "owner@example.com", false)
	booker := seedUser(t, database, "booker@example.com", false)
	room := seedRoom(t, database, owner.ID, false)

	ownerBooking, err := svc.Create(context.Background(), authz.Actor{UserID: owner.ID},
		singleRequest(room.ID, dt(5, 10, 0), dt(5, 11, 0)))
	if err != nil {
		t.Fatalf("owner booking: %v", err)
	}
	victim, err := svc.Create(context.Background(), authz.Actor{UserID: booker.ID},
		singleRequest(room.ID, dt(5, 14, 0), dt(5, 15, 0)))
	if err != nil {
		t.Fatalf("victim booking: %v", err)
	}

	result, err := svc.CreateBlocking(context.Background(), authz.Actor{UserID: admin.ID}, CreateBlockingRequest{
		StartDate: dt(4, 0, 0),
		EndDate:   dt(6, 0, 0),
		Reason:    "inspection",
		RoomIDs:   []int64{room.ID},
	})
	if err != nil {
		t.Fatalf("create blocking: %v", err)
	}
	if result.States[room.ID] != booking.BlockedRoomAccepted {
		t.Fatalf("admin blocking should auto-accept: %v", result.States[room.ID])
	}

	ownerOcc, err := database.Queries.GetOccurrence(context.Background(), ownerBooking.Occurrences[0].ID)
	if err != nil {
		t.Fatalf("load owner occurrence: %v", err)
	}
	if ownerOcc.IsRejected {
		t.Fatal("the room owner's booking must survive the cascade")
	}

	victimOcc, err := database.Queries.GetOccurrence(context.Background(), victim.Occurrences[0].ID)
	if err != nil {
		t.Fatalf("load victim occurrence: %v", err)
	}
	if !victimOcc.IsRejected {
		t.Fatal("a plain booker's occurrence should be rejected")
	}
}

func TestBlockingApprovalFlow(t *testing.T) {
	svc, database := newService(t, dt(1, 8, 0))
	owner := seedUser(t, database, "owner@example.com", false)
	requester := seedUser(t, database, "requester@example.com", false)
	room := seedRoom(t, database, owner.ID, false)

	result, err := svc.CreateBlocking(context.Background(), authz.Actor{UserID: requester.ID}, CreateBlockingRequest{
		StartDate: dt(4, 0, 0),
		EndDate:   dt(6, 0, 0),
		RoomIDs:   []int64{room.ID},
	})
	if err != nil {
		t.Fatalf("create blocking: %v", err)
	}
	if result.States[room.ID] != booking.BlockedRoomPending {
		t.Fatalf("non-manager blocking should wait for approval: %v", result.States[room.ID])
	}

	err = svc.ApproveBlockedRoom(context.Background(), authz.Actor{UserID: requester.ID}, result.Blocking.ID, room.ID)
	var permErr booking.PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("requester approval should fail, got %v", err)
	}

	if err := svc.ApproveBlockedRoom(context.Background(), authz.Actor{UserID: owner.ID}, result.Blocking.ID, room.ID); err != nil {
		t.Fatalf("approve blocked room: %v", err)
	}

	blocked, err := database.Queries.GetBlockedRoom(context.Background(), result.Blocking.ID, room.ID)
	if err != nil {
		t.Fatalf("load blocked room: %v", err)
	}
	if booking.BlockedRoomState(blocked.State) != booking.BlockedRoomAccepted {
		t.Fatalf("blocked room state: %v", blocked.State)
	}
}

func TestModifyBlockingWidensAndRecascades(t *testing.T) {
	svc, database := newService(t, dt(1, 8, 0))
	owner := seedUser(t, database, "owner@example.com", false)
	booker := seedUser(t, database, "booker@example.com", false)
	stranger := seedUser(t, database, "stranger@example.com", false)
	room := seedRoom(t, database, owner.ID, false)

	// A booking just past the original blocking window.
	outside, err := svc.Create(context.Background(), authz.Actor{UserID: booker.ID},
		singleRequest(room.ID, dt(7, 10, 0), dt(7, 11, 0)))
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}

	created, err := svc.CreateBlocking(context.Background(), authz.Actor{UserID: owner.ID}, CreateBlockingRequest{
		StartDate: dt(4, 0, 0),
		EndDate:   dt(5, 0, 0),
		Reason:    "maintenance",
		RoomIDs:   []int64{room.ID},
	})
	if err != nil {
		t.Fatalf("create blocking: %v", err)
	}

	occ, err := database.Queries.GetOccurrence(context.Background(), outside.Occurrences[0].ID)
	if err != nil {
		t.Fatalf("load occurrence: %v", err)
	}
	if occ.IsRejected {
		t.Fatal("booking outside the blocking window must survive creation")
	}

	_, err = svc.ModifyBlocking(context.Background(), authz.Actor{UserID: stranger.ID}, ModifyBlockingRequest{
		BlockingID: created.Blocking.ID,
		StartDate:  dt(4, 0, 0),
		EndDate:    dt(8, 0, 0),
		Reason:     "maintenance",
	})
	var permErr booking.PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("stranger modify should fail with PermissionError, got %v", err)
	}

	updated, err := svc.ModifyBlocking(context.Background(), authz.Actor{UserID: owner.ID}, ModifyBlockingRequest{
		BlockingID: created.Blocking.ID,
		StartDate:  dt(4, 0, 0),
		EndDate:    dt(8, 0, 0),
		Reason:     "maintenance extended",
	})
	if err != nil {
		t.Fatalf("modify blocking: %v", err)
	}
	if !updated.EndDate.Equal(dt(8, 0, 0)) || updated.Reason != "maintenance extended" {
		t.Fatalf("updated blocking: %+v", updated)
	}

	// Widening re-runs the cascade over the accepted room.
	occ, err = database.Queries.GetOccurrence(context.Background(), outside.Occurrences[0].ID)
	if err != nil {
		t.Fatalf("reload occurrence: %v", err)
	}
	if !occ.IsRejected {
		t.Fatal("booking swallowed by the widened window should be rejected")
	}
}

func TestModifyNotFound(t *testing.T) {
	svc, _ := newService(t, dt(1, 8, 0))

	_, err := svc.Modify(context.Background(), authz.Actor{UserID: 1}, ModifyRequest{
		ReservationID: 999,
		Start:         dt(5, 10, 0),
		End:           dt(5, 11, 0),
		Frequency:     recurrence.FrequencyNever,
	})
	if !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		t.Fatal("sql errors must not leak through the service")
	}
}
