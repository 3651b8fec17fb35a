// internal/api/blockings/handlers.go
package blockings

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
	"github.com/conferia/roombook/internal/booking/service"
	"github.com/conferia/roombook/internal/db/store"
)

var (
	svc      *service.Service
	queries  *store.Queries
	initOnce sync.Once
)

const blockingsQueryTimeout = 5 * time.Second

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

type principalPayload struct {
	Kind string `json:"kind"`
	Ref  string `json:"ref"`
}

type createBlockingRequest struct {
	StartDate string             `json:"start_date"`
	EndDate   string             `json:"end_date"`
	Reason    string             `json:"reason"`
	RoomIDs   []int64            `json:"room_ids"`
	Allowed   []principalPayload `json:"allowed,omitempty"`
}

type blockedRoomJSON struct {
	RoomID          int64  `json:"room_id"`
	State           string `json:"state"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

type blockingResponse struct {
	ID          int64              `json:"id"`
	CreatedByID int64              `json:"created_by_id"`
	StartDate   string             `json:"start_date"`
	EndDate     string             `json:"end_date"`
	Reason      string             `json:"reason,omitempty"`
	Rooms       []blockedRoomJSON  `json:"rooms"`
	Allowed     []principalPayload `json:"allowed,omitempty"`
}

const dateLayout = "2006-01-02"

// parseDate reads a calendar date; blockings are day-granular.
func parseDate(raw, field string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, apiutil.FieldError{Field: field, Reason: "is required"}
	}
	parsed, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, apiutil.FieldError{Field: field, Reason: "must be a date like 2024-03-01"}
	}
	return parsed.UTC(), nil
}

// POST /api/v1/blockings
func HandleCreateBlocking(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	actor, ok := apiutil.RequireActor(w, r)
	if !ok {
		return
	}

	var req createBlockingRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "invalid request body", Err: err})
		return
	}

	startDate, err := parseDate(req.StartDate, "start_date")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	endDate, err := parseDate(req.EndDate, "end_date")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	allowed := make([]service.BlockingPrincipal, 0, len(req.Allowed))
	for _, p := range req.Allowed {
		allowed = append(allowed, service.BlockingPrincipal{Kind: p.Kind, Ref: p.Ref})
	}

	result, err := svc.CreateBlocking(r.Context(), actor, service.CreateBlockingRequest{
		StartDate: startDate,
		EndDate:   endDate,
		Reason:    strings.TrimSpace(req.Reason),
		RoomIDs:   req.RoomIDs,
		Allowed:   allowed,
	})
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	resp := blockingResponse{
		ID:          result.Blocking.ID,
		CreatedByID: result.Blocking.CreatedByID,
		StartDate:   result.Blocking.StartDate.Format(dateLayout),
		EndDate:     result.Blocking.EndDate.Format(dateLayout),
		Reason:      result.Blocking.Reason,
		Allowed:     req.Allowed,
	}
	for _, roomID := range req.RoomIDs {
		resp.Rooms = append(resp.Rooms, blockedRoomJSON{
			RoomID: roomID,
			State:  result.States[roomID].String(),
		})
	}

	logger.Info().
		Int64("blocking_id", result.Blocking.ID).
		Int("rooms", len(req.RoomIDs)).
		Msg("Blocking created")
	apiutil.WriteJSON(w, http.StatusCreated, resp)
}

// GET /api/v1/blockings/{id}
func HandleGetBlocking(w http.ResponseWriter, r *http.Request) {
	if _, ok := apiutil.RequireActor(w, r); !ok {
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), blockingsQueryTimeout)
	defer cancel()

	blocking, err := queries.GetBlocking(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, r, booking.ErrNotFound)
			return
		}
		apiutil.WriteError(w, r, err)
		return
	}
	rooms, err := queries.ListBlockedRoomsByBlocking(ctx, blocking.ID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	allowed, err := queries.ListBlockingAllowed(ctx, blocking.ID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	resp := blockingResponse{
		ID:          blocking.ID,
		CreatedByID: blocking.CreatedByID,
		StartDate:   blocking.StartDate.Format(dateLayout),
		EndDate:     blocking.EndDate.Format(dateLayout),
		Reason:      blocking.Reason,
	}
	for _, room := range rooms {
		resp.Rooms = append(resp.Rooms, blockedRoomJSON{
			RoomID:          room.RoomID,
			State:           booking.BlockedRoomState(room.State).String(),
			RejectionReason: room.RejectionReason,
		})
	}
	for _, entry := range allowed {
		resp.Allowed = append(resp.Allowed, principalPayload{Kind: entry.PrincipalKind, Ref: entry.PrincipalRef})
	}

	apiutil.WriteJSON(w, http.StatusOK, resp)
}

type patchBlockingRequest struct {
	StartDate string  `json:"start_date,omitempty"`
	EndDate   string  `json:"end_date,omitempty"`
	Reason    *string `json:"reason,omitempty"`
}

// PATCH /api/v1/blockings/{id} updates the window or reason; omitted
// fields keep their stored values. Widening the window re-applies the
// blocking cascade to accepted rooms.
func HandlePatchBlocking(w http.ResponseWriter, r *http.Request) {
	actor, ok := apiutil.RequireActor(w, r)
	if !ok {
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var req patchBlockingRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "invalid request body", Err: err})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), blockingsQueryTimeout)
	defer cancel()
	current, err := queries.GetBlocking(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, r, booking.ErrNotFound)
			return
		}
		apiutil.WriteError(w, r, err)
		return
	}

	modify := service.ModifyBlockingRequest{
		BlockingID: current.ID,
		StartDate:  current.StartDate,
		EndDate:    current.EndDate,
		Reason:     current.Reason,
	}
	if req.StartDate != "" {
		if modify.StartDate, err = parseDate(req.StartDate, "start_date"); err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
	}
	if req.EndDate != "" {
		if modify.EndDate, err = parseDate(req.EndDate, "end_date"); err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
	}
	if req.Reason != nil {
		modify.Reason = strings.TrimSpace(*req.Reason)
	}

	updated, err := svc.ModifyBlocking(r.Context(), actor, modify)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, blockingResponse{
		ID:          updated.ID,
		CreatedByID: updated.CreatedByID,
		StartDate:   updated.StartDate.Format(dateLayout),
		EndDate:     updated.EndDate.Format(dateLayout),
		Reason:      updated.Reason,
	})
}

// POST /api/v1/blockings/{id}/rooms/{roomID}/approve
func HandleApproveBlockedRoom(w http.ResponseWriter, r *http.Request) {
	actor, ok := apiutil.RequireActor(w, r)
	if !ok {
		return
	}
	blockingID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	roomID, err := apiutil.PathID(r, "roomID")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if err := svc.ApproveBlockedRoom(r.Context(), actor, blockingID, roomID); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rejectBlockedRoomRequest struct {
	Reason string `json:"reason"`
}

// POST /api/v1/blockings/{id}/rooms/{roomID}/reject
func HandleRejectBlockedRoom(w http.ResponseWriter, r *http.Request) {
	actor, ok := apiutil.RequireActor(w, r)
	if !ok {
		return
	}
	blockingID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	roomID, err := apiutil.PathID(r, "roomID")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	var req rejectBlockedRoomRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "invalid request body", Err: err})
		return
	}
	if err := svc.RejectBlockedRoom(r.Context(), actor, blockingID, roomID, strings.TrimSpace(req.Reason)); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
