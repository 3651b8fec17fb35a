// internal/api/bookings/handlers.go
package bookings

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/conferia/roombook/internal/api/apiutil"
	"github.com/conferia/roombook/internal/booking"
	"github.com/conferia/roombook/internal/booking/recurrence"
	"github.com/conferia/roombook/internal/booking/service"
	"github.com/conferia/roombook/internal/db/store"
)

var (
	svc      *service.Service
	queries  *store.Queries
	initOnce sync.Once
)

const bookingsQueryTimeout = 5 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(s *service.Service, q *store.Queries) {
	if s == nil || q == nil {
		return
	}
	initOnce.Do(func() {
		svc = s
		queries = q
	})
}

type bookingPayload struct {
	RoomID        int64  `json:"room_id,omitempty"`
	BookedForName string `json:"booked_for_name"`
	Reason        string `json:"reason"`

	Start           string `json:"start"`
	End             string `json:"end"`
	RepeatFrequency string `json:"repeat_frequency,omitempty"`
	RepeatInterval  int    `json:"repeat_interval,omitempty"`
	MonthPattern    string `json:"month_pattern,omitempty"`

	IsPrebooking  bool `json:"is_prebooking,omitempty"`
	AdminOverride bool `json:"admin_override,omitempty"`
}

type occurrenceResponse struct {
	ID              int64     `json:"id"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	IsCancelled     bool      `json:"is_cancelled,omitempty"`
	IsRejected      bool      `json:"is_rejected,omitempty"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
}

type reservationResponse struct {
	ID            int64  `json:"id"`
	RoomID        int64  `json:"room_id"`
	BookedByID    int64  `json:"booked_by_id"`
	BookedForName string `json:"booked_for_name"`
	Reason        string `json:"reason,omitempty"`

	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	RepeatFrequency string    `json:"repeat_frequency"`
	RepeatInterval  int       `json:"repeat_interval,omitempty"`

	State           string `json:"state"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	SplitFromID     *int64 `json:"split_from_id,omitempty"`

	Occurrences []occurrenceResponse `json:"occurrences,omitempty"`
}

func reservationState(accepted, rejected, cancelled bool) string {
	switch {
	case cancelled:
		return "cancelled"
	case rejected:
		return "rejected"
	case accepted:
		return "accepted"
	default:
		return "pending"
	}
}

func toResponse(res booking.Reservation, occurrences []booking.Occurrence) reservationResponse {
	out := reservationResponse{
		ID:              res.ID,
		RoomID:          res.RoomID,
		BookedByID:      res.OwnerID,
		BookedForName:   res.BookedForName,
		Reason:          res.Reason,
		Start:           res.Start,
		End:             res.End,
		RepeatFrequency: res.Frequency.String(),
		RepeatInterval:  res.Interval,
		State:           reservationState(res.IsAccepted, res.IsRejected, res.IsCancelled),
		RejectionReason: res.RejectionReason,
		SplitFromID:     res.SplitFromID,
	}
	for _, occ := range occurrences {
		out.Occurrences = append(out.Occurrences, occurrenceResponse{
			ID:              occ.ID,
			Start:           occ.Start,
			End:             occ.End,
			IsCancelled:     occ.IsCancelled,
			IsRejected:      occ.IsRejected,
			RejectionReason: occ.RejectionReason,
		})
	}
	return out
}

func parseRecurrence(payload bookingPayload) (recurrence.Frequency, int, recurrence.MonthPattern, error) {
	freq := recurrence.FrequencyNever
	if payload.RepeatFrequency != "" {
		parsed, err := recurrence.ParseFrequency(payload.RepeatFrequency)
		if err != nil {
			return 0, 0, 0, apiutil.FieldError{Field: "repeat_frequency", Reason: err.Error()}
		}
		freq = parsed
	}

	interval := payload.RepeatInterval
	if freq != recurrence.FrequencyNever && interval == 0 {
		interval = 1
	}

	pattern := recurrence.PatternDayOfMonth
	switch strings.TrimSpace(payload.MonthPattern) {
	case "", "day_of_month":
	case "weekday_ordinal":
		pattern = recurrence.PatternWeekdayOrdinal
	default:
		return 0, 0, 0, apiutil.FieldError{Field: "month_pattern", Reason: "must be day_of_month or weekday_ordinal"}
	}

	return freq, interval, pattern, nil
}

// POST /api/v1/bookings
func HandleCreateBooking(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	actor, ok := apiutil.RequireActor(w, r)
	if !ok {
		return
	}

	var req bookingPayload
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "invalid request body", Err: err})
		return
	}
	if req.RoomID <= 0 {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "room_id", Reason: "is required"})
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
	freq, interval, pattern, err := parseRecurrence(req)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	result, err := svc.Create(r.Context(), actor, service.CreateRequest{
		RoomID:        req.RoomID,
		BookedForName: strings.TrimSpace(req.BookedForName),
		Reason:        strings.TrimSpace(req.Reason),
		Start:         start,
		End:           end,
		Frequency:     freq,
		Interval:      interval,
		Pattern:       pattern,
		Prebook:       req.IsPrebooking,
		AdminOverride: req.AdminOverride,
	})
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	logger.Info().
		Int64("reservation_id", result.Reservation.ID).
		Int64("room_id", req.RoomID).
		Int("occurrences", len(result.Occurrences)).
		Msg("Booking created")
	apiutil.WriteJSON(w, http.StatusCreated, toResponse(result.Reservation, result.Occurrences))
}

// GET /api/v1/bookings/{id}
func HandleGetBooking(w http.ResponseWriter, r *http.Request) {
	if _, ok := apiutil.RequireActor(w, r); !ok {
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingsQueryTimeout)
	defer cancel()

	res, err := queries.GetReservation(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, r, booking.ErrNotFound)
			return
		}
		apiutil.WriteError(w, r, err)
		return
	}
	occurrences, err := queries.ListOccurrencesByReservation(ctx, res.ID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, storeToResponse(res, occurrences))
}

// PATCH /api/v1/bookings/{id} carries the target state; omitted
// fields fall back to the stored reservation. The response names the
// split-off booking when the change forced a series split.
func HandleModifyBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := apiutil.RequireActor(w, r)
	if !ok {
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingsQueryTimeout)
	defer cancel()
	current, err := queries.GetReservation(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, r, booking.ErrNotFound)
			return
		}
		apiutil.WriteError(w, r, err)
		return
	}

	var req bookingPayload
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "invalid request body", Err: err})
		return
	}

	modify := service.ModifyRequest{
		ReservationID: current.ID,
		BookedForName: current.BookedForName,
		Reason:        current.Reason,
		Start:         current.StartAt,
		End:           current.EndAt,
		AdminOverride: req.AdminOverride,
	}
	modify.Frequency, _ = recurrence.ParseFrequency(current.RepeatFrequency)
	modify.Interval = int(current.RepeatInterval)
	modify.Pattern = recurrence.MonthPattern(current.MonthPattern)

	if name := strings.TrimSpace(req.BookedForName); name != "" {
		modify.BookedForName = name
	}
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		modify.Reason = reason
	}
	if req.Start != "" {
		if modify.Start, err = apiutil.ParseTimeField(req.Start, "start"); err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
	}
	if req.End != "" {
		if modify.End, err = apiutil.ParseTimeField(req.End, "end"); err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
	}
	if req.RepeatFrequency != "" || req.RepeatInterval != 0 || req.MonthPattern != "" {
		freq, interval, pattern, err := parseRecurrence(req)
		if err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
		modify.Frequency, modify.Interval, modify.Pattern = freq, interval, pattern
	}

	result, err := svc.Modify(r.Context(), actor, modify)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	payload := map[string]any{
		"reservation": toResponse(result.Reservation, nil),
		"split":       result.Split,
	}
	if result.NewReservation != nil {
		payload["new_reservation"] = toResponse(*result.NewReservation, nil)
	}
	apiutil.WriteJSON(w, http.StatusOK, payload)
}

// POST /api/v1/bookings/{id}/cancel
func HandleCancelBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := apiutil.RequireActor(w, r)
	if !ok {
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if err := svc.Cancel(r.Context(), actor, id); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/bookings/{id}/approve
func HandleApproveBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := apiutil.RequireActor(w, r)
	if !ok {
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if err := svc.Approve(r.Context(), actor, id); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// POST /api/v1/bookings/{id}/reject
func HandleRejectBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := apiutil.RequireActor(w, r)
	if !ok {
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	var req rejectRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "invalid request body", Err: err})
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "reason", Reason: "is required"})
		return
	}
	if err := svc.Reject(r.Context(), actor, id, req.Reason); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

const occurrenceDateLayout = "2006-01-02"

// occurrenceIDByDate resolves an occurrence within a reservation by the
// calendar day it starts on.
func occurrenceIDByDate(ctx context.Context, reservationID int64, rawDate string) (int64, error) {
	day, err := time.Parse(occurrenceDateLayout, rawDate)
	if err != nil {
		return 0, apiutil.FieldError{Field: "date", Reason: "must be a date like 2024-03-01"}
	}

	occurrences, err := queries.ListOccurrencesByReservation(ctx, reservationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, booking.ErrNotFound
		}
		return 0, err
	}
	for _, occ := range occurrences {
		start := occ.StartAt.UTC()
		if start.Year() == day.Year() && start.YearDay() == day.YearDay() {
			return occ.ID, nil
		}
	}
	return 0, booking.ErrNotFound
}

// POST /api/v1/bookings/{id}/occurrences/{date}/cancel
func HandleCancelOccurrence(w http.ResponseWriter, r *http.Request) {
	actor, ok := apiutil.RequireActor(w, r)
	if !ok {
		return
	}
	reservationID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingsQueryTimeout)
	defer cancel()
	occurrenceID, err := occurrenceIDByDate(ctx, reservationID, r.PathValue("date"))
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if err := svc.CancelOccurrence(r.Context(), actor, occurrenceID); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/bookings/{id}/occurrences/{date}/reject
func HandleRejectOccurrence(w http.ResponseWriter, r *http.Request) {
	actor, ok := apiutil.RequireActor(w, r)
	if !ok {
		return
	}
	reservationID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	var req rejectRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "invalid request body", Err: err})
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "reason", Reason: "is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingsQueryTimeout)
	defer cancel()
	occurrenceID, err := occurrenceIDByDate(ctx, reservationID, r.PathValue("date"))
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if err := svc.RejectOccurrence(r.Context(), actor, occurrenceID, req.Reason); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func storeToResponse(res store.Reservation, occurrences []store.ReservationOccurrence) reservationResponse {
	out := reservationResponse{
		ID:              res.ID,
		RoomID:          res.RoomID,
		BookedByID:      res.BookedByID,
		BookedForName:   res.BookedForName,
		Reason:          res.Reason,
		Start:           res.StartAt,
		End:             res.EndAt,
		RepeatFrequency: res.RepeatFrequency,
		RepeatInterval:  int(res.RepeatInterval),
		State:           reservationState(res.IsAccepted, res.IsRejected, res.IsCancelled),
		RejectionReason: res.RejectionReason,
		SplitFromID:     apiutil.FromNullInt64(res.SplitFromID),
	}
	for _, occ := range occurrences {
		out.Occurrences = append(out.Occurrences, occurrenceResponse{
			ID:              occ.ID,
			Start:           occ.StartAt,
			End:             occ.EndAt,
			IsCancelled:     occ.IsCancelled,
			IsRejected:      occ.IsRejected,
			RejectionReason: occ.RejectionReason,
		})
	}
	return out
}
