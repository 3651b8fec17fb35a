package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conferia/roombook/internal/authz"
	"github.com/conferia/roombook/internal/booking"
	"github.com/conferia/roombook/internal/booking/availability"
	"github.com/conferia/roombook/internal/booking/conflict"
	"github.com/conferia/roombook/internal/booking/recurrence"
	"github.com/conferia/roombook/internal/booking/suggest"
	"github.com/conferia/roombook/internal/db"
	"github.com/conferia/roombook/internal/db/store"
	"github.com/conferia/roombook/internal/notify"
)

const conflictRejectionReason = "conflict with a confirmed booking"

// CreateRequest describes a new booking or pre-booking. Whether it lands
// as one or the other depends on the room and on who is asking.
type CreateRequest struct {
	RoomID        int64
	BookedForName string
	Reason        string

	Start     time.Time
	End       time.Time
	Frequency recurrence.Frequency
	Interval  int
	Pattern   recurrence.MonthPattern

	// Prebook asks for a pre-booking even when the room would grant a
	// confirmed booking outright.
	Prebook       bool
	AdminOverride bool
}

func (r CreateRequest) rule() recurrence.Rule {
	return recurrence.Rule{Frequency: r.Frequency, Interval: r.Interval, Pattern: r.Pattern}
}

type CreateResult struct {
	Reservation booking.Reservation
	Occurrences []booking.Occurrence
}

// Create books a room. The calendar is checked twice: once up front to
// produce conflict reports and suggestions without holding locks, and
// once more inside the write transaction to close the race window. A
// request that loses the race is retried once from the availability
// check before the concurrency conflict is surfaced.
func (s *Service) Create(ctx context.Context, actor authz.Actor, req CreateRequest) (*CreateResult, error) {
	result, err := s.create(ctx, actor, req)
	if errors.Is(err, booking.ErrConcurrencyConflict) {
		result, err = s.create(ctx, actor, req)
	}
	return result, err
}

func (s *Service) create(ctx context.Context, actor authz.Actor, req CreateRequest) (*CreateResult, error) {
	if actor.UserID == 0 {
		return nil, authz.ErrUnauthenticated
	}

	candidates, err := recurrence.Generate(req.Start, req.End, req.rule())
	if err != nil {
		return nil, booking.ValidationError{Field: "period", Reason: err.Error()}
	}

	cal, err := loadCalendar(ctx, s.calendars, req.RoomID, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	if reason := availability.RoomRejectReason(actor, cal.Room, candidates, req.End, s.now()); reason != "" {
		return nil, booking.ValidationError{Field: "room", Reason: reason}
	}

	opts := conflict.Options{AdminOverride: req.AdminOverride}
	cls := conflict.Classify(candidates, cal, actor, opts)
	if !cls.Bookable() {
		return nil, &ConflictError{
			Conflicts:    cls.Conflicts,
			PreConflicts: cls.PreConflicts,
			Suggestions:  suggest.Suggestions(cal, actor, opts, cls),
		}
	}

	lock := s.locks.forRoom(req.RoomID)
	lock.Lock()
	defer lock.Unlock()

	var (
		created  store.Reservation
		occRows  []store.ReservationOccurrence
		accepted bool
	)
	err = s.db.RunInTx(ctx, func(tx *db.DB) error {
		txCal, err := loadCalendar(ctx, s.calendars.WithQueries(tx.Queries), req.RoomID, req.Start, req.End)
		if err != nil {
			return err
		}
		recls := conflict.Classify(candidates, txCal, actor, opts)
		if !recls.Bookable() {
			return booking.ErrConcurrencyConflict
		}

		accepted = !req.Prebook && (!txCal.Room.ReservationsNeedConfirmation || actor.CanManage(txCal.Room))
		created, err = tx.Queries.CreateReservation(ctx, store.CreateReservationParams{
			RoomID:          req.RoomID,
			BookedByID:      actor.UserID,
			BookedForName:   req.BookedForName,
			StartAt:         req.Start,
			EndAt:           req.End,
			RepeatFrequency: req.Frequency.String(),
			RepeatInterval:  int64(req.Interval),
			MonthPattern:    int64(req.Pattern),
			IsAccepted:      accepted,
			Reason:          req.Reason,
		})
		if err != nil {
			return fmt.Errorf("create reservation: %w", err)
		}

		for _, candidate := range candidates {
			occ, err := tx.Queries.CreateOccurrence(ctx, store.CreateOccurrenceParams{
				ReservationID: created.ID,
				StartAt:       candidate.Start,
				EndAt:         candidate.End,
			})
			if err != nil {
				return fmt.Errorf("create occurrence: %w", err)
			}
			occRows = append(occRows, occ)
		}

		// A confirmed booking pushes out the weaker pre-bookings it
		// overlaps with.
		if accepted {
			for _, pc := range recls.PreConflicts {
				if err := tx.Queries.RejectOccurrence(ctx, pc.OccurrenceID, conflictRejectionReason); err != nil {
					return fmt.Errorf("reject pre-booking occurrence: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sendCreateNotices(ctx, cal.Room, created, accepted)

	return &CreateResult{
		Reservation: reservationFromStore(created),
		Occurrences: occurrencesFromStore(occRows, created),
	}, nil
}

func (s *Service) sendCreateNotices(ctx context.Context, room booking.Room, res store.Reservation, accepted bool) {
	date, timeRange := notify.FormatDateTimeRange(res.StartAt, res.EndAt)
	details := notify.BookingDetails{
		RoomName:  room.Name,
		BookedFor: res.BookedForName,
		Date:      date,
		TimeRange: timeRange,
		Reason:    res.Reason,
	}
	booker := s.bookerEmail(ctx, res.BookedByID)
	if accepted {
		s.notifyAsync(booker, notify.BuildBookingConfirmation(details))
		return
	}
	s.notifyAsync(booker, notify.BuildPreBookingNotice(details))
	s.notifyAsync(s.bookerEmail(ctx, room.OwnerID), notify.BuildApprovalRequest(details))
}

// ModifyRequest carries the full target state of a reservation. Handlers
// fill unchanged fields from the stored row before calling Modify.
type ModifyRequest struct {
	ReservationID int64
	BookedForName string
	Reason        string

	Start     time.Time
	End       time.Time
	Frequency recurrence.Frequency
	Interval  int
	Pattern   recurrence.MonthPattern

	AdminOverride bool
}

type ModifyResult struct {
	Reservation booking.Reservation

	// Split is set when the change applied to an ongoing series: the
	// original keeps its past, NewReservation carries the future.
	Split          bool
	NewReservation *booking.Reservation
}

// Modify updates a reservation. Metadata changes apply in place, and so
// do end-date changes: extending or shrinking a running series only adds
// or removes occurrences. Changing the time of day or the repetition of
// a series that is already running splits it: past occurrences stay with
// the original row, a linked reservation takes over from now on.
// Applying the identical change twice is a no-op the second time.
func (s *Service) Modify(ctx context.Context, actor authz.Actor, req ModifyRequest) (*ModifyResult, error) {
	if actor.UserID == 0 {
		return nil, authz.ErrUnauthenticated
	}

	res, err := s.db.Queries.GetReservation(ctx, req.ReservationID)
	if err != nil {
		return nil, notFoundErr(err)
	}
	if res.IsCancelled || res.IsRejected {
		return nil, booking.ValidationError{Field: "reservation", Reason: "is no longer active"}
	}

	windowStart, windowEnd := unionWindow(res.StartAt, res.EndAt, req.Start, req.End)
	cal, err := loadCalendar(ctx, s.calendars, res.RoomID, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	if actor.UserID != res.BookedByID && !actor.CanManage(cal.Room) {
		return nil, booking.PermissionError{Reason: "only the booker or a room manager may modify a booking"}
	}

	if !periodChanged(res, req) {
		updated := res
		err = s.db.RunInTx(ctx, func(tx *db.DB) error {
			updated, err = tx.Queries.UpdateReservationDetails(ctx, store.UpdateReservationDetailsParams{
				ID:            res.ID,
				BookedForName: req.BookedForName,
				Reason:        req.Reason,
			})
			return err
		})
		if err != nil {
			return nil, err
		}
		reservation := reservationFromStore(updated)
		return &ModifyResult{Reservation: reservation}, nil
	}

	candidates, err := recurrence.Generate(req.Start, req.End, recurrence.Rule{
		Frequency: req.Frequency, Interval: req.Interval, Pattern: req.Pattern,
	})
	if err != nil {
		return nil, booking.ValidationError{Field: "period", Reason: err.Error()}
	}
	if reason := availability.RoomRejectReason(actor, cal.Room, candidates, req.End, s.now()); reason != "" {
		return nil, booking.ValidationError{Field: "room", Reason: reason}
	}

	opts := conflict.Options{AdminOverride: req.AdminOverride, SkipReservationID: res.ID}
	cls := conflict.Classify(candidates, cal, actor, opts)
	if !cls.Bookable() {
		return nil, &ConflictError{
			Conflicts:    cls.Conflicts,
			PreConflicts: cls.PreConflicts,
			Suggestions:  suggest.Suggestions(cal, actor, opts, cls),
		}
	}

	now := s.now()
	split := shouldSplit(res, req, now)

	lock := s.locks.forRoom(res.RoomID)
	lock.Lock()
	defer lock.Unlock()

	var (
		updated store.Reservation
		newRes  store.Reservation
	)
	err = s.db.RunInTx(ctx, func(tx *db.DB) error {
		txCal, err := loadCalendar(ctx, s.calendars.WithQueries(tx.Queries), res.RoomID, windowStart, windowEnd)
		if err != nil {
			return err
		}
		if !conflict.Classify(candidates, txCal, actor, opts).Bookable() {
			return booking.ErrConcurrencyConflict
		}

		if split {
			updated, newRes, err = s.splitReservation(ctx, tx, res, req, candidates, now)
			return err
		}

		updated, err = tx.Queries.UpdateReservationPeriod(ctx, store.UpdateReservationPeriodParams{
			ID:              res.ID,
			StartAt:         req.Start,
			EndAt:           req.End,
			RepeatFrequency: req.Frequency.String(),
			RepeatInterval:  int64(req.Interval),
			MonthPattern:    int64(req.Pattern),
		})
		if err != nil {
			return fmt.Errorf("update reservation period: %w", err)
		}

		// An ongoing series keeps its past occurrences untouched,
		// including individually cancelled ones; only the future is
		// rewritten.
		var cutoff time.Time
		if res.RepeatFrequency != recurrence.FrequencyNever.String() && res.StartAt.Before(now) {
			cutoff = now
		}
		if _, err := tx.Queries.DeleteOccurrencesFrom(ctx, res.ID, cutoff); err != nil {
			return fmt.Errorf("clear occurrences: %w", err)
		}
		for _, candidate := range candidates {
			if candidate.Start.Before(cutoff) {
				continue
			}
			if _, err := tx.Queries.CreateOccurrence(ctx, store.CreateOccurrenceParams{
				ReservationID: res.ID,
				StartAt:       candidate.Start,
				EndAt:         candidate.End,
			}); err != nil {
				return fmt.Errorf("create occurrence: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &ModifyResult{Reservation: reservationFromStore(updated)}
	if split {
		reservation := reservationFromStore(newRes)
		result.Split = true
		result.NewReservation = &reservation

		date, timeRange := notify.FormatDateTimeRange(newRes.StartAt, newRes.EndAt)
		s.notifyAsync(s.bookerEmail(ctx, res.BookedByID), notify.BuildSplitNotice(notify.BookingDetails{
			RoomName:  cal.Room.Name,
			BookedFor: newRes.BookedForName,
			Date:      date,
			TimeRange: timeRange,
			Reason:    newRes.Reason,
		}))
	}
	return result, nil
}

// splitReservation cancels the original's future occurrences and moves
// them to a fresh reservation linked back via split_from_id. Running it
// again with the same target state finds nothing left to cancel and
// recreates an identical future.
func (s *Service) splitReservation(ctx context.Context, tx *db.DB, res store.Reservation, req ModifyRequest, candidates []recurrence.Span, now time.Time) (store.Reservation, store.Reservation, error) {
	var zero store.Reservation

	future := candidates[:0:0]
	for _, candidate := range candidates {
		if !candidate.Start.Before(now) {
			future = append(future, candidate)
		}
	}
	if len(future) == 0 {
		return zero, zero, booking.ValidationError{Field: "period", Reason: "leaves no future occurrences to move"}
	}

	if _, err := tx.Queries.CancelOccurrencesFrom(ctx, res.ID, now); err != nil {
		return zero, zero, fmt.Errorf("cancel future occurrences: %w", err)
	}

	newRes, err := tx.Queries.CreateReservation(ctx, store.CreateReservationParams{
		RoomID:          res.RoomID,
		BookedByID:      res.BookedByID,
		BookedForName:   req.BookedForName,
		StartAt:         future[0].Start,
		EndAt:           req.End,
		RepeatFrequency: req.Frequency.String(),
		RepeatInterval:  int64(req.Interval),
		MonthPattern:    int64(req.Pattern),
		IsAccepted:      res.IsAccepted,
		Reason:          req.Reason,
		SplitFromID:     sql.NullInt64{Int64: res.ID, Valid: true},
	})
	if err != nil {
		return zero, zero, fmt.Errorf("create split reservation: %w", err)
	}

	for _, candidate := range future {
		if _, err := tx.Queries.CreateOccurrence(ctx, store.CreateOccurrenceParams{
			ReservationID: newRes.ID,
			StartAt:       candidate.Start,
			EndAt:         candidate.End,
		}); err != nil {
			return zero, zero, fmt.Errorf("create split occurrence: %w", err)
		}
	}
	return res, newRes, nil
}

// shouldSplit reports whether a period change must split the series
// instead of rewriting it: the series is repeating, already running, and
// the change touches the time of day or the repetition rule. Growing or
// shrinking the end date alone adds or removes occurrences in place.
func shouldSplit(res store.Reservation, req ModifyRequest, now time.Time) bool {
	if res.RepeatFrequency == recurrence.FrequencyNever.String() {
		return false
	}
	if !res.StartAt.Before(now) || !res.EndAt.After(now) {
		return false
	}
	return timeOfDayChanged(res.StartAt, req.Start) ||
		timeOfDayChanged(res.EndAt, req.End) ||
		res.RepeatFrequency != req.Frequency.String() ||
		res.RepeatInterval != int64(req.Interval) ||
		res.MonthPattern != int64(req.Pattern)
}

func timeOfDayChanged(a, b time.Time) bool {
	ah, am, as := a.Clock()
	bh, bm, bs := b.Clock()
	return ah != bh || am != bm || as != bs
}

func periodChanged(res store.Reservation, req ModifyRequest) bool {
	return !res.StartAt.Equal(req.Start) ||
		!res.EndAt.Equal(req.End) ||
		res.RepeatFrequency != req.Frequency.String() ||
		res.RepeatInterval != int64(req.Interval) ||
		res.MonthPattern != int64(req.Pattern)
}

func unionWindow(aStart, aEnd, bStart, bEnd time.Time) (time.Time, time.Time) {
	start, end := aStart, aEnd
	if bStart.Before(start) {
		start = bStart
	}
	if bEnd.After(end) {
		end = bEnd
	}
	return start, end
}

// Cancel withdraws a reservation and all of its remaining occurrences.
func (s *Service) Cancel(ctx context.Context, actor authz.Actor, reservationID int64) error {
	res, cal, err := s.loadReservationAndRoom(ctx, actor, reservationID)
	if err != nil {
		return err
	}
	if actor.UserID != res.BookedByID && !actor.CanManage(cal.Room) {
		return booking.PermissionError{Reason: "only the booker or a room manager may cancel a booking"}
	}
	if res.IsCancelled {
		return nil
	}

	err = s.db.RunInTx(ctx, func(tx *db.DB) error {
		if err := tx.Queries.CancelReservation(ctx, res.ID); err != nil {
			return err
		}
		_, err := tx.Queries.CancelOccurrencesFrom(ctx, res.ID, time.Time{})
		return err
	})
	if err != nil {
		return err
	}

	date, timeRange := notify.FormatDateTimeRange(res.StartAt, res.EndAt)
	s.notifyAsync(s.bookerEmail(ctx, res.BookedByID), notify.BuildCancellationNotice(notify.BookingDetails{
		RoomName:  cal.Room.Name,
		BookedFor: res.BookedForName,
		Date:      date,
		TimeRange: timeRange,
	}))
	return nil
}

// CancelOccurrence withdraws a single instance of a series.
func (s *Service) CancelOccurrence(ctx context.Context, actor authz.Actor, occurrenceID int64) error {
	occ, err := s.db.Queries.GetOccurrence(ctx, occurrenceID)
	if err != nil {
		return notFoundErr(err)
	}
	res, cal, err := s.loadReservationAndRoom(ctx, actor, occ.ReservationID)
	if err != nil {
		return err
	}
	if actor.UserID != res.BookedByID && !actor.CanManage(cal.Room) {
		return booking.PermissionError{Reason: "only the booker or a room manager may cancel an occurrence"}
	}
	if occ.IsCancelled {
		return nil
	}
	return s.db.RunInTx(ctx, func(tx *db.DB) error {
		return tx.Queries.CancelOccurrence(ctx, occ.ID)
	})
}

// Approve confirms a pre-booking. It fails with a ConflictError when a
// confirmed booking took the slot in the meantime, and pushes out other
// pending pre-bookings it overlaps with once confirmed.
func (s *Service) Approve(ctx context.Context, actor authz.Actor, reservationID int64) error {
	res, cal, err := s.loadReservationAndRoom(ctx, actor, reservationID)
	if err != nil {
		return err
	}
	if !actor.CanManage(cal.Room) {
		return booking.PermissionError{Reason: "only a room manager may approve bookings"}
	}
	if !pending(res) {
		return booking.ValidationError{Field: "reservation", Reason: "is not awaiting approval"}
	}

	lock := s.locks.forRoom(res.RoomID)
	lock.Lock()
	defer lock.Unlock()

	err = s.db.RunInTx(ctx, func(tx *db.DB) error {
		occurrences, err := tx.Queries.ListOccurrencesByReservation(ctx, res.ID)
		if err != nil {
			return err
		}
		var candidates []recurrence.Span
		for _, occ := range occurrences {
			if occ.IsCancelled || occ.IsRejected {
				continue
			}
			candidates = append(candidates, recurrence.Span{Start: occ.StartAt, End: occ.EndAt})
		}
		if len(candidates) == 0 {
			return booking.ValidationError{Field: "reservation", Reason: "has no remaining occurrences"}
		}

		txCal, err := loadCalendar(ctx, s.calendars.WithQueries(tx.Queries), res.RoomID, res.StartAt, res.EndAt)
		if err != nil {
			return err
		}
		opts := conflict.Options{SkipReservationID: res.ID}
		cls := conflict.Classify(candidates, txCal, actor, opts)
		if !cls.Bookable() {
			return &ConflictError{Conflicts: cls.Conflicts, PreConflicts: cls.PreConflicts}
		}

		if err := tx.Queries.AcceptReservation(ctx, res.ID); err != nil {
			return err
		}
		for _, pc := range cls.PreConflicts {
			if err := tx.Queries.RejectOccurrence(ctx, pc.OccurrenceID, conflictRejectionReason); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	date, timeRange := notify.FormatDateTimeRange(res.StartAt, res.EndAt)
	s.notifyAsync(s.bookerEmail(ctx, res.BookedByID), notify.BuildBookingConfirmation(notify.BookingDetails{
		RoomName:  cal.Room.Name,
		BookedFor: res.BookedForName,
		Date:      date,
		TimeRange: timeRange,
		Reason:    res.Reason,
	}))
	return nil
}

// Reject turns down a reservation, pending or confirmed.
func (s *Service) Reject(ctx context.Context, actor authz.Actor, reservationID int64, reason string) error {
	res, cal, err := s.loadReservationAndRoom(ctx, actor, reservationID)
	if err != nil {
		return err
	}
	if !actor.CanManage(cal.Room) {
		return booking.PermissionError{Reason: "only a room manager may reject bookings"}
	}
	if res.IsRejected || res.IsCancelled {
		return booking.ValidationError{Field: "reservation", Reason: "is no longer active"}
	}

	err = s.db.RunInTx(ctx, func(tx *db.DB) error {
		return tx.Queries.RejectReservation(ctx, res.ID, reason)
	})
	if err != nil {
		return err
	}

	date, timeRange := notify.FormatDateTimeRange(res.StartAt, res.EndAt)
	s.notifyAsync(s.bookerEmail(ctx, res.BookedByID), notify.BuildRejectionNotice(notify.RejectionDetails{
		BookingDetails: notify.BookingDetails{
			RoomName:  cal.Room.Name,
			BookedFor: res.BookedForName,
			Date:      date,
			TimeRange: timeRange,
		},
		RejectionReason: reason,
	}))
	return nil
}

// RejectOccurrence turns down a single instance of a series.
func (s *Service) RejectOccurrence(ctx context.Context, actor authz.Actor, occurrenceID int64, reason string) error {
	occ, err := s.db.Queries.GetOccurrence(ctx, occurrenceID)
	if err != nil {
		return notFoundErr(err)
	}
	_, cal, err := s.loadReservationAndRoom(ctx, actor, occ.ReservationID)
	if err != nil {
		return err
	}
	if !actor.CanManage(cal.Room) {
		return booking.PermissionError{Reason: "only a room manager may reject occurrences"}
	}
	return s.db.RunInTx(ctx, func(tx *db.DB) error {
		return tx.Queries.RejectOccurrence(ctx, occ.ID, reason)
	})
}

func (s *Service) loadReservationAndRoom(ctx context.Context, actor authz.Actor, reservationID int64) (store.Reservation, booking.RoomCalendar, error) {
	if actor.UserID == 0 {
		return store.Reservation{}, booking.RoomCalendar{}, authz.ErrUnauthenticated
	}
	res, err := s.db.Queries.GetReservation(ctx, reservationID)
	if err != nil {
		return store.Reservation{}, booking.RoomCalendar{}, notFoundErr(err)
	}
	cal, err := loadCalendar(ctx, s.calendars, res.RoomID, res.StartAt, res.EndAt)
	if err != nil {
		return store.Reservation{}, booking.RoomCalendar{}, err
	}
	return res, cal, nil
}

func pending(res store.Reservation) bool {
	return !res.IsAccepted && !res.IsRejected && !res.IsCancelled
}

func notFoundErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return booking.ErrNotFound
	}
	return err
}
