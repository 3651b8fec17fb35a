package bookings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/conferia/roombook/internal/authz"
	"github.com/conferia/roombook/internal/booking/calendar"
	"github.com/conferia/roombook/internal/booking/service"
	"github.com/conferia/roombook/internal/db"
	"github.com/conferia/roombook/internal/db/store"
)

var testDB *db.DB

// TestMain wires the package-level handler state once; InitHandlers is
// a one-shot, so every test in this package shares the same database.
func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "bookings-test-*")
	if err != nil {
		panic(err)
	}

	testDB, err = db.New(filepath.Join(dir, "test.db"))
	if err != nil {
		panic(err)
	}

	calendars := calendar.New(testDB.Queries, nil)
	InitHandlers(service.New(testDB, calendars, nil, nil), testDB.Queries)

	code := m.Run()

	testDB.Close()
	os.RemoveAll(dir)
	os.Exit(code)
}

func seedUser(t *testing.T, email string) store.User {
	t.Helper()
	user, err := testDB.Queries.CreateUser(context.Background(), store.CreateUserParams{
		Email: email,
		Name:  email,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func seedRoom(t *testing.T, name string, ownerID int64, needsConfirmation bool) store.Room {
	t.Helper()
	room, err := testDB.Queries.CreateRoom(context.Background(), store.CreateRoomParams{
		Name:                         name,
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

func do(t *testing.T, handler http.HandlerFunc, method, path string, actor *authz.Actor, payload any, pathValues map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
	}
	r := httptest.NewRequest(method, path, bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	for key, value := range pathValues {
		r.SetPathValue(key, value)
	}
	if actor != nil {
		r = r.WithContext(authz.ContextWithActor(r.Context(), actor))
	}
	w := httptest.NewRecorder()
	handler(w, r)
	return w
}

func createBooking(t *testing.T, actor *authz.Actor, payload bookingPayload) reservationResponse {
	t.Helper()
	w := do(t, HandleCreateBooking, http.MethodPost, "/api/v1/bookings", actor, payload, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create booking status = %d, body %s", w.Code, w.Body.String())
	}
	var res reservationResponse
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode reservation: %v", err)
	}
	return res
}

func TestCreateAndGetBooking(t *testing.T) {
	owner := seedUser(t, "owner-create@example.com")
	booker := seedUser(t, "booker-create@example.com")
	room := seedRoom(t, "Create Room", owner.ID, false)
	actor := &authz.Actor{UserID: booker.ID}

	created := createBooking(t, actor, bookingPayload{
		RoomID:        room.ID,
		BookedForName: "Project sync",
		Start:         "2030-03-05T10:00",
		End:           "2030-03-05T11:00",
	})
	if created.State != "accepted" {
		t.Fatalf("state = %q, want accepted", created.State)
	}
	if len(created.Occurrences) != 1 {
		t.Fatalf("occurrences = %d, want 1", len(created.Occurrences))
	}

	w := do(t, HandleGetBooking, http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d", created.ID),
		actor, nil, map[string]string{"id": fmt.Sprint(created.ID)})
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, body %s", w.Code, w.Body.String())
	}
	var fetched reservationResponse
	if err := json.Unmarshal(w.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("decode reservation: %v", err)
	}
	if fetched.ID != created.ID || len(fetched.Occurrences) != 1 {
		t.Fatalf("fetched %+v", fetched)
	}
}

func TestCreateBookingPrebookingFlag(t *testing.T) {
	owner := seedUser(t, "owner-prebook@example.com")
	booker := seedUser(t, "booker-prebook@example.com")
	room := seedRoom(t, "Prebook Room", owner.ID, false)

	created := createBooking(t, &authz.Actor{UserID: booker.ID}, bookingPayload{
		RoomID:       room.ID,
		Start:        "2030-04-01T10:00",
		End:          "2030-04-01T11:00",
		IsPrebooking: true,
	})
	if created.State != "pending" {
		t.Fatalf("state = %q, want pending", created.State)
	}
}

func TestCreateBookingConflictResponse(t *testing.T) {
	owner := seedUser(t, "owner-conflict@example.com")
	booker := seedUser(t, "booker-conflict@example.com")
	room := seedRoom(t, "Conflict Room", owner.ID, false)

	createBooking(t, &authz.Actor{UserID: owner.ID}, bookingPayload{
		RoomID: room.ID,
		Start:  "2030-05-01T10:00",
		End:    "2030-05-01T11:00",
	})

	w := do(t, HandleCreateBooking, http.MethodPost, "/api/v1/bookings",
		&authz.Actor{UserID: booker.ID}, bookingPayload{
			RoomID: room.ID,
			Start:  "2030-05-01T10:30",
			End:    "2030-05-01T11:30",
		}, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Error       string `json:"error"`
		Conflicts   []any  `json:"conflicts"`
		Suggestions []any  `json:"suggestions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode conflict response: %v", err)
	}
	if len(resp.Conflicts) != 1 {
		t.Fatalf("conflicts = %d, want 1", len(resp.Conflicts))
	}
	if len(resp.Suggestions) == 0 {
		t.Fatal("expected suggestions alongside the conflict")
	}
}

func TestCreateBookingValidation(t *testing.T) {
	booker := seedUser(t, "booker-validate@example.com")
	actor := &authz.Actor{UserID: booker.ID}

	tests := []struct {
		name    string
		payload bookingPayload
	}{
		{"missing room", bookingPayload{Start: "2030-06-01T10:00", End: "2030-06-01T11:00"}},
		{"bad start", bookingPayload{RoomID: 1, Start: "yesterday", End: "2030-06-01T11:00"}},
		{"bad frequency", bookingPayload{RoomID: 1, Start: "2030-06-01T10:00", End: "2030-06-01T11:00", RepeatFrequency: "fortnightly"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, HandleCreateBooking, http.MethodPost, "/api/v1/bookings", actor, tt.payload, nil)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400, body %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestModifyBookingInPlace(t *testing.T) {
	owner := seedUser(t, "owner-modify@example.com")
	room := seedRoom(t, "Modify Room", owner.ID, false)
	actor := &authz.Actor{UserID: owner.ID}

	created := createBooking(t, actor, bookingPayload{
		RoomID: room.ID,
		Start:  "2030-07-01T10:00",
		End:    "2030-07-01T11:00",
	})

	w := do(t, HandleModifyBooking, http.MethodPatch, fmt.Sprintf("/api/v1/bookings/%d", created.ID),
		actor, bookingPayload{
			BookedForName: "Steering committee",
			Start:         "2030-07-01T14:00",
			End:           "2030-07-01T15:00",
		}, map[string]string{"id": fmt.Sprint(created.ID)})
	if w.Code != http.StatusOK {
		t.Fatalf("modify status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Reservation reservationResponse `json:"reservation"`
		Split       bool                `json:"split"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode modify response: %v", err)
	}
	if resp.Split {
		t.Fatal("future booking must be rewritten in place")
	}
	if resp.Reservation.BookedForName != "Steering committee" {
		t.Fatalf("booked for = %q", resp.Reservation.BookedForName)
	}
	if resp.Reservation.Start.Hour() != 14 {
		t.Fatalf("start = %v, want 14:00", resp.Reservation.Start)
	}
}

func TestCancelOccurrenceByDate(t *testing.T) {
	owner := seedUser(t, "owner-occ@example.com")
	room := seedRoom(t, "Occurrence Room", owner.ID, false)
	actor := &authz.Actor{UserID: owner.ID}

	created := createBooking(t, actor, bookingPayload{
		RoomID:          room.ID,
		Start:           "2030-08-05T10:00",
		End:             "2030-08-07T11:00",
		RepeatFrequency: "day",
	})
	if len(created.Occurrences) != 3 {
		t.Fatalf("occurrences = %d, want 3", len(created.Occurrences))
	}

	cancel := func(date string) *httptest.ResponseRecorder {
		return do(t, HandleCancelOccurrence, http.MethodPost,
			fmt.Sprintf("/api/v1/bookings/%d/occurrences/%s/cancel", created.ID, date),
			actor, nil, map[string]string{"id": fmt.Sprint(created.ID), "date": date})
	}

	if w := cancel("2030-08-06"); w.Code != http.StatusNoContent {
		t.Fatalf("cancel status = %d, body %s", w.Code, w.Body.String())
	}
	if w := cancel("2030-08-20"); w.Code != http.StatusNotFound {
		t.Fatalf("unknown date status = %d, want 404", w.Code)
	}
	if w := cancel("not-a-date"); w.Code != http.StatusBadRequest {
		t.Fatalf("bad date status = %d, want 400", w.Code)
	}

	occurrences, err := testDB.Queries.ListOccurrencesByReservation(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("list occurrences: %v", err)
	}
	cancelled := 0
	for _, occ := range occurrences {
		if occ.IsCancelled {
			cancelled++
			if occ.StartAt.Day() != 6 {
				t.Fatalf("wrong occurrence cancelled: %v", occ.StartAt)
			}
		}
	}
	if cancelled != 1 {
		t.Fatalf("cancelled = %d, want 1", cancelled)
	}
}

func TestRejectBookingRequiresReason(t *testing.T) {
	owner := seedUser(t, "owner-reject@example.com")
	booker := seedUser(t, "booker-reject@example.com")
	room := seedRoom(t, "Reject Room", owner.ID, true)

	created := createBooking(t, &authz.Actor{UserID: booker.ID}, bookingPayload{
		RoomID: room.ID,
		Start:  "2030-09-01T10:00",
		End:    "2030-09-01T11:00",
	})
	if created.State != "pending" {
		t.Fatalf("state = %q, want pending", created.State)
	}

	ownerActor := &authz.Actor{UserID: owner.ID}
	path := fmt.Sprintf("/api/v1/bookings/%d/reject", created.ID)
	values := map[string]string{"id": fmt.Sprint(created.ID)}

	if w := do(t, HandleRejectBooking, http.MethodPost, path, ownerActor, rejectRequest{}, values); w.Code != http.StatusBadRequest {
		t.Fatalf("empty reason status = %d, want 400", w.Code)
	}
	if w := do(t, HandleRejectBooking, http.MethodPost, path, ownerActor, rejectRequest{Reason: "room needed"}, values); w.Code != http.StatusNoContent {
		t.Fatalf("reject status = %d, body %s", w.Code, w.Body.String())
	}
}
