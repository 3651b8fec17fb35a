package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const reservationColumns = `id, room_id, booked_by_id, booked_for_name, start_at, end_at,
repeat_frequency, repeat_interval, month_pattern, is_accepted, is_rejected, is_cancelled,
reason, rejection_reason, split_from_id, created_at`

func scanReservation(row interface{ Scan(...interface{}) error }) (Reservation, error) {
	var r Reservation
	err := row.Scan(
		&r.ID, &r.RoomID, &r.BookedByID, &r.BookedForName, &r.StartAt, &r.EndAt,
		&r.RepeatFrequency, &r.RepeatInterval, &r.MonthPattern, &r.IsAccepted,
		&r.IsRejected, &r.IsCancelled, &r.Reason, &r.RejectionReason,
		&r.SplitFromID, &r.CreatedAt,
	)
	return r, err
}

const createReservation = `-- name: CreateReservation :one
INSERT INTO reservations (
    room_id, booked_by_id, booked_for_name, start_at, end_at,
    repeat_frequency, repeat_interval, month_pattern, is_accepted, reason, split_from_id
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + reservationColumns

type CreateReservationParams struct {
	RoomID          int64
	BookedByID      int64
	BookedForName   string
	StartAt         time.Time
	EndAt           time.Time
	RepeatFrequency string
	RepeatInterval  int64
	MonthPattern    int64
	IsAccepted      bool
	Reason          string
	SplitFromID     sql.NullInt64
}

func (q *Queries) CreateReservation(ctx context.Context, arg CreateReservationParams) (Reservation, error) {
	row := q.db.QueryRowContext(ctx, createReservation,
		arg.RoomID, arg.BookedByID, arg.BookedForName, arg.StartAt, arg.EndAt,
		arg.RepeatFrequency, arg.RepeatInterval, arg.MonthPattern, arg.IsAccepted,
		arg.Reason, arg.SplitFromID,
	)
	return scanReservation(row)
}

const getReservation = `-- name: GetReservation :one
SELECT ` + reservationColumns + `
FROM reservations
WHERE id = ?
`

func (q *Queries) GetReservation(ctx context.Context, id int64) (Reservation, error) {
	return scanReservation(q.db.QueryRowContext(ctx, getReservation, id))
}

const updateReservationPeriod = `-- name: UpdateReservationPeriod :one
UPDATE reservations
SET start_at = ?, end_at = ?, repeat_frequency = ?, repeat_interval = ?, month_pattern = ?
WHERE id = ?
RETURNING ` + reservationColumns

type UpdateReservationPeriodParams struct {
	ID              int64
	StartAt         time.Time
	EndAt           time.Time
	RepeatFrequency string
	RepeatInterval  int64
	MonthPattern    int64
}

func (q *Queries) UpdateReservationPeriod(ctx context.Context, arg UpdateReservationPeriodParams) (Reservation, error) {
	row := q.db.QueryRowContext(ctx, updateReservationPeriod,
		arg.StartAt, arg.EndAt, arg.RepeatFrequency, arg.RepeatInterval, arg.MonthPattern, arg.ID,
	)
	return scanReservation(row)
}

const updateReservationDetails = `-- name: UpdateReservationDetails :one
UPDATE reservations
SET booked_for_name = ?, reason = ?
WHERE id = ?
RETURNING ` + reservationColumns

type UpdateReservationDetailsParams struct {
	ID            int64
	BookedForName string
	Reason        string
}

func (q *Queries) UpdateReservationDetails(ctx context.Context, arg UpdateReservationDetailsParams) (Reservation, error) {
	row := q.db.QueryRowContext(ctx, updateReservationDetails, arg.BookedForName, arg.Reason, arg.ID)
	return scanReservation(row)
}

const acceptReservation = `-- name: AcceptReservation :exec
UPDATE reservations SET is_accepted = TRUE WHERE id = ?
`

func (q *Queries) AcceptReservation(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, acceptReservation, id)
	return err
}

const rejectReservation = `-- name: RejectReservation :exec
UPDATE reservations SET is_rejected = TRUE, rejection_reason = ? WHERE id = ?
`

func (q *Queries) RejectReservation(ctx context.Context, id int64, reason string) error {
	_, err := q.db.ExecContext(ctx, rejectReservation, reason, id)
	return err
}

const cancelReservation = `-- name: CancelReservation :exec
UPDATE reservations SET is_cancelled = TRUE WHERE id = ?
`

func (q *Queries) CancelReservation(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, cancelReservation, id)
	return err
}

const createOccurrence = `-- name: CreateOccurrence :one
INSERT INTO reservation_occurrences (reservation_id, start_at, end_at)
VALUES (?, ?, ?)
RETURNING id, reservation_id, start_at, end_at, is_cancelled, is_rejected, rejection_reason, notification_sent
`

type CreateOccurrenceParams struct {
	ReservationID int64
	StartAt       time.Time
	EndAt         time.Time
}

func scanOccurrence(row interface{ Scan(...interface{}) error }) (ReservationOccurrence, error) {
	var o ReservationOccurrence
	err := row.Scan(
		&o.ID, &o.ReservationID, &o.StartAt, &o.EndAt,
		&o.IsCancelled, &o.IsRejected, &o.RejectionReason, &o.NotificationSent,
	)
	return o, err
}

func (q *Queries) CreateOccurrence(ctx context.Context, arg CreateOccurrenceParams) (ReservationOccurrence, error) {
	row := q.db.QueryRowContext(ctx, createOccurrence, arg.ReservationID, arg.StartAt, arg.EndAt)
	return scanOccurrence(row)
}

const getOccurrence = `-- name: GetOccurrence :one
SELECT id, reservation_id, start_at, end_at, is_cancelled, is_rejected, rejection_reason, notification_sent
FROM reservation_occurrences
WHERE id = ?
`

func (q *Queries) GetOccurrence(ctx context.Context, id int64) (ReservationOccurrence, error) {
	return scanOccurrence(q.db.QueryRowContext(ctx, getOccurrence, id))
}

const listOccurrencesByReservation = `-- name: ListOccurrencesByReservation :many
SELECT id, reservation_id, start_at, end_at, is_cancelled, is_rejected, rejection_reason, notification_sent
FROM reservation_occurrences
WHERE reservation_id = ?
ORDER BY start_at
`

func (q *Queries) ListOccurrencesByReservation(ctx context.Context, reservationID int64) ([]ReservationOccurrence, error) {
	rows, err := q.db.QueryContext(ctx, listOccurrencesByReservation, reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var occurrences []ReservationOccurrence
	for rows.Next() {
		o, err := scanOccurrence(rows)
		if err != nil {
			return nil, err
		}
		occurrences = append(occurrences, o)
	}
	return occurrences, rows.Err()
}

// ListOccurrencesInWindow returns every live occurrence touching
// [start, end) in the given rooms, with the reservation fields the
// conflict checks need. Cancelled and rejected rows are filtered here so
// callers only see slots that actually occupy the calendar.
func (q *Queries) ListOccurrencesInWindow(ctx context.Context, roomIDs []int64, start, end time.Time) ([]OccurrenceWithReservation, error) {
	marks, args := placeholders(roomIDs)
	query := fmt.Sprintf(`SELECT
    o.id, o.reservation_id, o.start_at, o.end_at,
    o.is_cancelled, o.is_rejected, o.rejection_reason, o.notification_sent,
    r.room_id, r.booked_by_id, r.is_accepted,
    (NOT r.is_accepted AND NOT r.is_rejected AND NOT r.is_cancelled) AS is_pending
FROM reservation_occurrences o
JOIN reservations r ON r.id = o.reservation_id
WHERE r.room_id IN (%s)
  AND NOT r.is_rejected AND NOT r.is_cancelled
  AND NOT o.is_rejected AND NOT o.is_cancelled
  AND o.start_at < ? AND o.end_at > ?
ORDER BY o.start_at`, marks)
	args = append(args, end, start)
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var occurrences []OccurrenceWithReservation
	for rows.Next() {
		var o OccurrenceWithReservation
		if err := rows.Scan(
			&o.ID, &o.ReservationID, &o.StartAt, &o.EndAt,
			&o.IsCancelled, &o.IsRejected, &o.RejectionReason, &o.NotificationSent,
			&o.RoomID, &o.BookedByID, &o.ReservationAccepted, &o.ReservationPending,
		); err != nil {
			return nil, err
		}
		occurrences = append(occurrences, o)
	}
	return occurrences, rows.Err()
}

const cancelOccurrence = `-- name: CancelOccurrence :exec
UPDATE reservation_occurrences SET is_cancelled = TRUE WHERE id = ?
`

func (q *Queries) CancelOccurrence(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, cancelOccurrence, id)
	return err
}

const rejectOccurrence = `-- name: RejectOccurrence :exec
UPDATE reservation_occurrences SET is_rejected = TRUE, rejection_reason = ? WHERE id = ?
`

func (q *Queries) RejectOccurrence(ctx context.Context, id int64, reason string) error {
	_, err := q.db.ExecContext(ctx, rejectOccurrence, reason, id)
	return err
}

const cancelOccurrencesFrom = `-- name: CancelOccurrencesFrom :execrows
UPDATE reservation_occurrences
SET is_cancelled = TRUE
WHERE reservation_id = ? AND start_at >= ? AND NOT is_cancelled AND NOT is_rejected
`

// CancelOccurrencesFrom cancels the occurrences of a reservation starting
// at or after cutoff. Used when a series is split.
func (q *Queries) CancelOccurrencesFrom(ctx context.Context, reservationID int64, cutoff time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, cancelOccurrencesFrom, reservationID, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteOccurrencesFrom = `-- name: DeleteOccurrencesFrom :execrows
DELETE FROM reservation_occurrences
WHERE reservation_id = ? AND start_at >= ?
`

func (q *Queries) DeleteOccurrencesFrom(ctx context.Context, reservationID int64, cutoff time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteOccurrencesFrom, reservationID, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ListPendingReservationsStartedBefore returns unconfirmed reservations
// whose period began before the cutoff. The expiry job rejects them.
func (q *Queries) ListPendingReservationsStartedBefore(ctx context.Context, cutoff time.Time) ([]Reservation, error) {
	const query = `SELECT ` + reservationColumns + `
FROM reservations
WHERE NOT is_accepted AND NOT is_rejected AND NOT is_cancelled AND start_at < ?
ORDER BY id`
	rows, err := q.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, r)
	}
	return reservations, rows.Err()
}

// ListOccurrencesNeedingReminder returns live occurrences starting inside
// [from, to) that have not been notified yet, joined with enough context
// to address the reminder.
type OccurrenceReminder struct {
	OccurrenceID int64
	StartAt      time.Time
	EndAt        time.Time
	RoomName     string
	UserEmail    string
	UserName     string
}

func (q *Queries) ListOccurrencesNeedingReminder(ctx context.Context, from, to time.Time) ([]OccurrenceReminder, error) {
	const query = `SELECT o.id, o.start_at, o.end_at, rm.name, u.email, u.name
FROM reservation_occurrences o
JOIN reservations r ON r.id = o.reservation_id
JOIN rooms rm ON rm.id = r.room_id
JOIN users u ON u.id = r.booked_by_id
WHERE r.is_accepted AND NOT r.is_rejected AND NOT r.is_cancelled
  AND NOT o.is_rejected AND NOT o.is_cancelled AND NOT o.notification_sent
  AND o.start_at >= ? AND o.start_at < ?
ORDER BY o.start_at`
	rows, err := q.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []OccurrenceReminder
	for rows.Next() {
		var r OccurrenceReminder
		if err := rows.Scan(&r.OccurrenceID, &r.StartAt, &r.EndAt, &r.RoomName, &r.UserEmail, &r.UserName); err != nil {
			return nil, err
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

const markOccurrenceNotified = `-- name: MarkOccurrenceNotified :exec
UPDATE reservation_occurrences SET notification_sent = TRUE WHERE id = ?
`

func (q *Queries) MarkOccurrenceNotified(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, markOccurrenceNotified, id)
	return err
}
