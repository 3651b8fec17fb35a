// Package service implements the booking write path: create, modify,
// split, cancel, approval, and blockings. Every mutation re-checks the
// calendar inside its write transaction, so two racing requests can
// never both commit the same slot.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/conferia/roombook/internal/booking"
	"github.com/conferia/roombook/internal/booking/calendar"
	"github.com/conferia/roombook/internal/booking/conflict"
	"github.com/conferia/roombook/internal/booking/recurrence"
	"github.com/conferia/roombook/internal/booking/suggest"
	"github.com/conferia/roombook/internal/db"
	"github.com/conferia/roombook/internal/db/store"
	"github.com/conferia/roombook/internal/notify"
)

const notifyTimeout = 5 * time.Second

// ConflictError reports why a request could not be booked, along with
// the least disruptive adjustments that would make it fit.
type ConflictError struct {
	Conflicts    []conflict.Conflict
	PreConflicts []conflict.Conflict
	Suggestions  []suggest.Suggestion
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("booking conflicts with %d existing entries", len(e.Conflicts))
}

// Service is the booking mutator. All writes go through here.
type Service struct {
	db        *db.DB
	calendars *calendar.Store
	sender    notify.Sender
	now       func() time.Time

	locks roomLocks
}

func New(database *db.DB, calendars *calendar.Store, sender notify.Sender, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	if sender == nil {
		sender = notify.LogSender{}
	}
	return &Service{db: database, calendars: calendars, sender: sender, now: now}
}

// roomLocks serializes writers per room. The in-transaction re-check is
// the actual guarantee; the lock just keeps racing writers from burning
// a transaction each to discover the loss.
type roomLocks struct {
	mu sync.Mutex
	m  map[int64]*sync.Mutex
}

func (l *roomLocks) forRoom(id int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.m == nil {
		l.m = make(map[int64]*sync.Mutex)
	}
	lock, ok := l.m[id]
	if !ok {
		lock = &sync.Mutex{}
		l.m[id] = lock
	}
	return lock
}

// loadCalendar fetches one room's calendar over the day-extended window
// of the candidates.
func loadCalendar(ctx context.Context, src *calendar.Store, roomID int64, start, end time.Time) (booking.RoomCalendar, error) {
	cals, err := src.RoomCalendars(ctx, []int64{roomID}, startOfDay(start), endOfDay(end))
	if err != nil {
		return booking.RoomCalendar{}, err
	}
	if len(cals) == 0 {
		return booking.RoomCalendar{}, fmt.Errorf("room %d: %w", roomID, booking.ErrNotFound)
	}
	return cals[0], nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

// notifyAsync delivers a message off the request path, the same way
// reminder emails are sent. Failures are logged, never surfaced.
func (s *Service) notifyAsync(recipient string, msg notify.Message) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.sender.Send(ctx, recipient, msg.Subject, msg.Body); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject).Msg("Failed to send booking notification")
		}
	}()
}

func (s *Service) bookerEmail(ctx context.Context, userID int64) string {
	user, err := s.db.Queries.GetUserByID(ctx, userID)
	if err != nil {
		return ""
	}
	return user.Email
}

func reservationFromStore(r store.Reservation) booking.Reservation {
	freq, _ := recurrence.ParseFrequency(r.RepeatFrequency)
	res := booking.Reservation{
		ID:            r.ID,
		RoomID:        r.RoomID,
		OwnerID:       r.BookedByID,
		CreatedByID:   r.BookedByID,
		BookedForName: r.BookedForName,
		Start:         r.StartAt,
		End:           r.EndAt,
		Frequency:     freq,
		Interval:      int(r.RepeatInterval),
		Pattern:       recurrence.MonthPattern(r.MonthPattern),

		IsAccepted:  r.IsAccepted,
		IsRejected:  r.IsRejected,
		IsCancelled: r.IsCancelled,

		Reason:          r.Reason,
		RejectionReason: r.RejectionReason,
		CreatedAt:       r.CreatedAt,
	}
	if r.SplitFromID.Valid {
		id := r.SplitFromID.Int64
		res.SplitFromID = &id
	}
	return res
}

func occurrencesFromStore(rows []store.ReservationOccurrence, res store.Reservation) []booking.Occurrence {
	out := make([]booking.Occurrence, 0, len(rows))
	for _, row := range rows {
		out = append(out, booking.Occurrence{
			ID:                  row.ID,
			ReservationID:       row.ReservationID,
			Start:               row.StartAt,
			End:                 row.EndAt,
			IsCancelled:         row.IsCancelled,
			IsRejected:          row.IsRejected,
			RejectionReason:     row.RejectionReason,
			RoomID:              res.RoomID,
			ReservationOwnerID:  res.BookedByID,
			ReservationAccepted: res.IsAccepted,
		})
	}
	return out
}
