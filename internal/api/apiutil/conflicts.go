package apiutil

import (
	"time"

	"github.com/conferia/roombook/internal/booking/conflict"
	"github.com/conferia/roombook/internal/booking/service"
	"github.com/conferia/roombook/internal/booking/suggest"
)

// ConflictJSON is the wire form of one calendar obstruction.
type ConflictJSON struct {
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Kind          string    `json:"kind"`
	ReservationID int64     `json:"reservation_id,omitempty"`
	OccurrenceID  int64     `json:"occurrence_id,omitempty"`
	BlockingID    int64     `json:"blocking_id,omitempty"`
}

// SuggestionJSON is the wire form of one conflict-avoiding adjustment.
type SuggestionJSON struct {
	NewStart        *time.Time `json:"new_start,omitempty"`
	ShortenByMins   int        `json:"shorten_by_minutes,omitempty"`
	SkipOccurrences int        `json:"skip_occurrences,omitempty"`
	Cost            float64    `json:"cost"`
}

type ConflictResponse struct {
	Error        string           `json:"error"`
	Conflicts    []ConflictJSON   `json:"conflicts"`
	PreConflicts []ConflictJSON   `json:"pre_conflicts,omitempty"`
	Suggestions  []SuggestionJSON `json:"suggestions,omitempty"`
}

func NewConflictResponse(err *service.ConflictError) ConflictResponse {
	return ConflictResponse{
		Error:        err.Error(),
		Conflicts:    ConflictsJSON(err.Conflicts),
		PreConflicts: ConflictsJSON(err.PreConflicts),
		Suggestions:  SuggestionsJSON(err.Suggestions),
	}
}

func ConflictsJSON(conflicts []conflict.Conflict) []ConflictJSON {
	out := make([]ConflictJSON, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, ConflictJSON{
			Start:         c.Span.Start,
			End:           c.Span.End,
			Kind:          c.Kind.String(),
			ReservationID: c.ReservationID,
			OccurrenceID:  c.OccurrenceID,
			BlockingID:    c.BlockingID,
		})
	}
	return out
}

func SuggestionsJSON(suggestions []suggest.Suggestion) []SuggestionJSON {
	out := make([]SuggestionJSON, 0, len(suggestions))
	for _, s := range suggestions {
		out = append(out, SuggestionJSON{
			NewStart:        s.NewStart,
			ShortenByMins:   int(s.ShortenBy / time.Minute),
			SkipOccurrences: s.SkipOccurrences,
			Cost:            s.Cost,
		})
	}
	return out
}
