// internal/api/rooms/handlers.go
package rooms

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nyaruka/phonenumbers"
	"github.com/rs/zerolog/log"

	"github.com/conferia/roombook/internal/api/apiutil"
	"github.com/conferia/roombook/internal/authz"
	"github.com/conferia/roombook/internal/booking"
	"github.com/conferia/roombook/internal/db/store"
)

var (
	queries     *store.Queries
	queriesOnce sync.Once
)

const roomsQueryTimeout = 5 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(q *store.Queries) {
	if q == nil {
		return
	}
	queriesOnce.Do(func() {
		queries = q
	})
}

type roomPayload struct {
	Name                         string `json:"name"`
	OwnerID                      int64  `json:"owner_id,omitempty"`
	ContactPhone                 string `json:"contact_phone,omitempty"`
	Timezone                     string `json:"timezone,omitempty"`
	IsReservable                 *bool  `json:"is_reservable,omitempty"`
	ReservationsNeedConfirmation bool   `json:"reservations_need_confirmation,omitempty"`
	BookingLimitDays             int64  `json:"booking_limit_days,omitempty"`
	MaxAdvanceDays               int64  `json:"max_advance_days,omitempty"`
	IsActive                     *bool  `json:"is_active,omitempty"`
}

type roomResponse struct {
	ID                           int64  `json:"id"`
	Name                         string `json:"name"`
	OwnerID                      int64  `json:"owner_id"`
	ContactPhone                 string `json:"contact_phone,omitempty"`
	Timezone                     string `json:"timezone"`
	IsReservable                 bool   `json:"is_reservable"`
	ReservationsNeedConfirmation bool   `json:"reservations_need_confirmation"`
	BookingLimitDays             int64  `json:"booking_limit_days"`
	MaxAdvanceDays               int64  `json:"max_advance_days"`
	IsActive                     bool   `json:"is_active"`
}

func toResponse(r store.Room) roomResponse {
	return roomResponse{
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

// normalizePhone validates a contact number and stores it in E.164.
// Numbers without a country prefix are rejected rather than guessed.
func normalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	parsed, err := phonenumbers.Parse(raw, "")
	if err != nil {
		return "", apiutil.FieldError{Field: "contact_phone", Reason: "must include a country prefix, e.g. +41"}
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", apiutil.FieldError{Field: "contact_phone", Reason: "is not a valid phone number"}
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

func validateTimezone(tz string) (string, error) {
	if tz == "" {
		return "UTC", nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return "", apiutil.FieldError{Field: "timezone", Reason: "is not a known IANA zone"}
	}
	return tz, nil
}

// POST /api/v1/rooms
func HandleCreateRoom(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	actor, ok := apiutil.RequireActor(w, r)
	if !ok {
		return
	}
	if !actor.IsAdmin {
		apiutil.WriteError(w, r, authz.ErrForbidden)
		return
	}

	var req roomPayload
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "invalid request body", Err: err})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "name", Reason: "is required"})
		return
	}

	phone, err := normalizePhone(req.ContactPhone)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	tz, err := validateTimezone(req.Timezone)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ownerID := req.OwnerID
	if ownerID == 0 {
		ownerID = actor.UserID
	}

	reservable := true
	if req.IsReservable != nil {
		reservable = *req.IsReservable
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	ctx, cancel := context.WithTimeout(r.Context(), roomsQueryTimeout)
	defer cancel()

	room, err := queries.CreateRoom(ctx, store.CreateRoomParams{
		Name:                         req.Name,
		OwnerID:                      ownerID,
		ContactPhone:                 phone,
		Timezone:                     tz,
		IsReservable:                 reservable,
		ReservationsNeedConfirmation: req.ReservationsNeedConfirmation,
		BookingLimitDays:             req.BookingLimitDays,
		MaxAdvanceDays:               req.MaxAdvanceDays,
		IsActive:                     active,
	})
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	logger.Info().Int64("room_id", room.ID).Str("name", room.Name).Msg("Room created")
	apiutil.WriteJSON(w, http.StatusCreated, toResponse(room))
}

// GET /api/v1/rooms
func HandleListRooms(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), roomsQueryTimeout)
	defer cancel()

	rooms, err := queries.ListRooms(ctx)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	out := make([]roomResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, toResponse(room))
	}
	apiutil.WriteJSON(w, http.StatusOK, out)
}

// GET /api/v1/rooms/{id}
func HandleGetRoom(w http.ResponseWriter, r *http.Request) {
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), roomsQueryTimeout)
	defer cancel()

	room, err := queries.GetRoom(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, r, booking.ErrNotFound)
			return
		}
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, toResponse(room))
}

// PUT /api/v1/rooms/{id}
func HandleUpdateRoom(w http.ResponseWriter, r *http.Request) {
	actor, ok := apiutil.RequireActor(w, r)
	if !ok {
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), roomsQueryTimeout)
	defer cancel()

	current, err := queries.GetRoom(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, r, booking.ErrNotFound)
			return
		}
		apiutil.WriteError(w, r, err)
		return
	}
	if !actor.CanManage(bookingRoom(current)) {
		apiutil.WriteError(w, r, booking.PermissionError{Reason: "only the room owner or an admin may update a room"})
		return
	}

	// PUT carries the full target state. Omitted flags fall back to the
	// stored value; omitted limits mean "no limit".
	var req roomPayload
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "invalid request body", Err: err})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "name", Reason: "is required"})
		return
	}
	phone, err := normalizePhone(req.ContactPhone)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	tz := current.Timezone
	if req.Timezone != "" {
		if tz, err = validateTimezone(req.Timezone); err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
	}

	params := store.UpdateRoomParams{
		ID:                           current.ID,
		Name:                         name,
		ContactPhone:                 phone,
		Timezone:                     tz,
		IsReservable:                 current.IsReservable,
		ReservationsNeedConfirmation: req.ReservationsNeedConfirmation,
		BookingLimitDays:             req.BookingLimitDays,
		MaxAdvanceDays:               req.MaxAdvanceDays,
		IsActive:                     current.IsActive,
	}
	if req.IsReservable != nil {
		params.IsReservable = *req.IsReservable
	}
	if req.IsActive != nil {
		params.IsActive = *req.IsActive
	}

	room, err := queries.UpdateRoom(ctx, params)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, toResponse(room))
}

type bookableHourPayload struct {
	// Weekday 0..6 (Sunday..Saturday); null applies to every day.
	Weekday     *int64 `json:"weekday"`
	StartMinute int64  `json:"start_minute"`
	EndMinute   int64  `json:"end_minute"`
}

type bookableHoursRequest struct {
	Hours []bookableHourPayload `json:"hours"`
}

// PUT /api/v1/rooms/{id}/bookable-hours replaces the room's weekly
// bookable-hours grid.
func HandleSetBookableHours(w http.ResponseWriter, r *http.Request) {
	actor, ok := apiutil.RequireActor(w, r)
	if !ok {
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), roomsQueryTimeout)
	defer cancel()

	room, err := queries.GetRoom(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, r, booking.ErrNotFound)
			return
		}
		apiutil.WriteError(w, r, err)
		return
	}
	if !actor.CanManage(bookingRoom(room)) {
		apiutil.WriteError(w, r, booking.PermissionError{Reason: "only the room owner or an admin may set bookable hours"})
		return
	}

	var req bookableHoursRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "invalid request body", Err: err})
		return
	}
	for _, h := range req.Hours {
		if h.StartMinute < 0 || h.EndMinute > 24*60 || h.StartMinute >= h.EndMinute {
			apiutil.WriteError(w, r, apiutil.FieldError{Field: "hours", Reason: "start_minute must precede end_minute within a day"})
			return
		}
		if h.Weekday != nil && (*h.Weekday < 0 || *h.Weekday > 6) {
			apiutil.WriteError(w, r, apiutil.FieldError{Field: "weekday", Reason: "must be between 0 and 6"})
			return
		}
	}

	if err := queries.DeleteBookableHours(ctx, room.ID); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	for _, h := range req.Hours {
		if _, err := queries.CreateBookableHours(ctx, store.CreateBookableHoursParams{
			RoomID:      room.ID,
			Weekday:     apiutil.ToNullInt64(h.Weekday),
			StartMinute: h.StartMinute,
			EndMinute:   h.EndMinute,
		}); err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

type nonbookablePeriodRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// POST /api/v1/rooms/{id}/nonbookable-periods
func HandleCreateNonbookablePeriod(w http.ResponseWriter, r *http.Request) {
	actor, ok := apiutil.RequireActor(w, r)
	if !ok {
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), roomsQueryTimeout)
	defer cancel()

	room, err := queries.GetRoom(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, r, booking.ErrNotFound)
			return
		}
		apiutil.WriteError(w, r, err)
		return
	}
	if !actor.CanManage(bookingRoom(room)) {
		apiutil.WriteError(w, r, booking.PermissionError{Reason: "only the room owner or an admin may close a room"})
		return
	}

	var req nonbookablePeriodRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "invalid request body", Err: err})
		return
	}
	start, err := apiutil.ParseTimeField(req.Start, "start")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	end, err := apiutil.ParseTimeField(req.End, "end")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if !end.After(start) {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "end", Reason: "must be after start"})
		return
	}

	period, err := queries.CreateNonbookablePeriod(ctx, store.CreateNonbookablePeriodParams{
		RoomID:  room.ID,
		StartAt: start,
		EndAt:   end,
	})
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusCreated, map[string]any{
		"id":      period.ID,
		"room_id": period.RoomID,
		"start":   period.StartAt,
		"end":     period.EndAt,
	})
}

func bookingRoom(r store.Room) booking.Room {
	return booking.Room{
		ID:      r.ID,
		Name:    r.Name,
		OwnerID: r.OwnerID,
	}
}
