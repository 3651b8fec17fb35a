// internal/api/availability/handlers.go
package availability

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/conferia/roombook/internal/api/apiutil"
	"github.com/conferia/roombook/internal/authz"
	"github.com/conferia/roombook/internal/booking/availability"
	"github.com/conferia/roombook/internal/booking/recurrence"
)

var (
	aggregator *availability.Aggregator
	initOnce   sync.Once
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(agg *availability.Aggregator) {
	if agg == nil {
		return
	}
	initOnce.Do(func() {
		aggregator = agg
	})
}

type spanJSON struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type roomAvailabilityJSON struct {
	RoomID   int64  `json:"room_id"`
	RoomName string `json:"room_name"`

	Skipped    bool   `json:"skipped,omitempty"`
	SkipReason string `json:"skip_reason,omitempty"`

	Conflicts    []apiutil.ConflictJSON `json:"conflicts"`
	PreConflicts []apiutil.ConflictJSON `json:"pre_conflicts,omitempty"`

	AllDaysAvailable    bool `json:"all_days_available"`
	ConflictingDayCount int  `json:"conflicting_day_count"`
	Bookable            bool `json:"bookable"`
}

type availabilityResponse struct {
	Candidates []spanJSON             `json:"candidates"`
	Rooms      []roomAvailabilityJSON `json:"rooms"`
}

// parseRoomIDs reads a comma-separated list of room IDs.
func parseRoomIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, apiutil.FieldError{Field: "room_ids", Reason: "must be a comma-separated list of room ids"}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GET /api/v1/availability answers "could this booking go through, and
// if not, why" for every requested room. Anonymous callers get the
// non-manager view.
//
// Query parameters: room_ids (comma-separated), start, end,
// repeat_frequency, repeat_interval, month_pattern,
// skip_reservation_id, admin_override, explicit_only.
func HandleCheckAvailability(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	var actor authz.Actor
	if a := authz.ActorFromContext(r.Context()); a != nil {
		actor = *a
	}

	params := r.URL.Query()

	roomIDs, err := parseRoomIDs(params.Get("room_ids"))
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	start, err := apiutil.ParseTimeField(params.Get("start"), "start")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	end, err := apiutil.ParseTimeField(params.Get("end"), "end")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	freq := recurrence.FrequencyNever
	if raw := params.Get("repeat_frequency"); raw != "" {
		if freq, err = recurrence.ParseFrequency(raw); err != nil {
			apiutil.WriteError(w, r, apiutil.FieldError{Field: "repeat_frequency", Reason: err.Error()})
			return
		}
	}
	interval := 0
	if raw := params.Get("repeat_interval"); raw != "" {
		if interval, err = strconv.Atoi(raw); err != nil || interval < 0 {
			apiutil.WriteError(w, r, apiutil.FieldError{Field: "repeat_interval", Reason: "must be a non-negative integer"})
			return
		}
	}
	if freq != recurrence.FrequencyNever && interval == 0 {
		interval = 1
	}
	pattern := recurrence.PatternDayOfMonth
	switch strings.TrimSpace(params.Get("month_pattern")) {
	case "", "day_of_month":
	case "weekday_ordinal":
		pattern = recurrence.PatternWeekdayOrdinal
	default:
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "month_pattern", Reason: "must be day_of_month or weekday_ordinal"})
		return
	}

	var skipReservationID int64
	if raw := params.Get("skip_reservation_id"); raw != "" {
		if skipReservationID, err = strconv.ParseInt(raw, 10, 64); err != nil || skipReservationID <= 0 {
			apiutil.WriteError(w, r, apiutil.FieldError{Field: "skip_reservation_id", Reason: "must be a positive integer"})
			return
		}
	}

	result, err := aggregator.Availability(r.Context(), actor, availability.Request{
		RoomIDs:           roomIDs,
		Start:             start,
		End:               end,
		Frequency:         freq,
		Interval:          interval,
		Pattern:           pattern,
		SkipReservationID: skipReservationID,
		AdminOverride:     params.Get("admin_override") == "true",
		ExplicitOnly:      params.Get("explicit_only") == "true",
	})
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	resp := availabilityResponse{
		Candidates: make([]spanJSON, 0, len(result.Candidates)),
		Rooms:      make([]roomAvailabilityJSON, 0, len(result.Rooms)),
	}
	for _, candidate := range result.Candidates {
		resp.Candidates = append(resp.Candidates, spanJSON{Start: candidate.Start, End: candidate.End})
	}
	for _, room := range result.Rooms {
		resp.Rooms = append(resp.Rooms, roomAvailabilityJSON{
			RoomID:              room.RoomID,
			RoomName:            room.Room.Name,
			Skipped:             room.Skipped,
			SkipReason:          room.SkipReason,
			Conflicts:           apiutil.ConflictsJSON(room.Conflicts),
			PreConflicts:        apiutil.ConflictsJSON(room.PreConflicts),
			AllDaysAvailable:    room.AllDaysAvailable,
			ConflictingDayCount: room.ConflictingDayCount,
			Bookable:            room.Bookable,
		})
	}

	logger.Debug().
		Int("rooms", len(resp.Rooms)).
		Int("candidates", len(resp.Candidates)).
		Msg("Availability computed")
	apiutil.WriteJSON(w, http.StatusOK, resp)
}
