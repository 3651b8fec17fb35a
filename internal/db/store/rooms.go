package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const roomColumns = `id, name, owner_id, contact_phone, timezone, is_reservable,
reservations_need_confirmation, booking_limit_days, max_advance_days, is_active, created_at`

func scanRoom(row interface{ Scan(...interface{}) error }) (Room, error) {
	var r Room
	err := row.Scan(
		&r.ID, &r.Name, &r.OwnerID, &r.ContactPhone, &r.Timezone, &r.IsReservable,
		&r.ReservationsNeedConfirmation, &r.BookingLimitDays, &r.MaxAdvanceDays,
		&r.IsActive, &r.CreatedAt,
	)
	return r, err
}

const createRoom = `-- name: CreateRoom :one
INSERT INTO rooms (
    name, owner_id, contact_phone, timezone, is_reservable,
    reservations_need_confirmation, booking_limit_days, max_advance_days, is_active
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + roomColumns

type CreateRoomParams struct {
	Name                         string
	OwnerID                      int64
	ContactPhone                 string
	Timezone                     string
	IsReservable                 bool
	ReservationsNeedConfirmation bool
	BookingLimitDays             int64
	MaxAdvanceDays               int64
	IsActive                     bool
}

func (q *Queries) CreateRoom(ctx context.Context, arg CreateRoomParams) (Room, error) {
	row := q.db.QueryRowContext(ctx, createRoom,
		arg.Name, arg.OwnerID, arg.ContactPhone, arg.Timezone, arg.IsReservable,
		arg.ReservationsNeedConfirmation, arg.BookingLimitDays, arg.MaxAdvanceDays, arg.IsActive,
	)
	return scanRoom(row)
}

const getRoom = `-- name: GetRoom :one
SELECT ` + roomColumns + `
FROM rooms
WHERE id = ?
`

func (q *Queries) GetRoom(ctx context.Context, id int64) (Room, error) {
	return scanRoom(q.db.QueryRowContext(ctx, getRoom, id))
}

const listRooms = `-- name: ListRooms :many
SELECT ` + roomColumns + `
FROM rooms
ORDER BY name
`

func (q *Queries) ListRooms(ctx context.Context) ([]Room, error) {
	rows, err := q.db.QueryContext(ctx, listRooms)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

func (q *Queries) ListRoomsByIDs(ctx context.Context, ids []int64) ([]Room, error) {
	marks, args := placeholders(ids)
	query := fmt.Sprintf(`SELECT %s FROM rooms WHERE id IN (%s) ORDER BY id`, roomColumns, marks)
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

const updateRoom = `-- name: UpdateRoom :one
UPDATE rooms
SET name = ?, contact_phone = ?, timezone = ?, is_reservable = ?,
    reservations_need_confirmation = ?, booking_limit_days = ?,
    max_advance_days = ?, is_active = ?
WHERE id = ?
RETURNING ` + roomColumns

type UpdateRoomParams struct {
	ID                           int64
	Name                         string
	ContactPhone                 string
	Timezone                     string
	IsReservable                 bool
	ReservationsNeedConfirmation bool
	BookingLimitDays             int64
	MaxAdvanceDays               int64
	IsActive                     bool
}

func (q *Queries) UpdateRoom(ctx context.Context, arg UpdateRoomParams) (Room, error) {
	row := q.db.QueryRowContext(ctx, updateRoom,
		arg.Name, arg.ContactPhone, arg.Timezone, arg.IsReservable,
		arg.ReservationsNeedConfirmation, arg.BookingLimitDays,
		arg.MaxAdvanceDays, arg.IsActive, arg.ID,
	)
	return scanRoom(row)
}

const createBookableHours = `-- name: CreateBookableHours :one
INSERT INTO room_bookable_hours (room_id, weekday, start_minute, end_minute)
VALUES (?, ?, ?, ?)
RETURNING id, room_id, weekday, start_minute, end_minute
`

type CreateBookableHoursParams struct {
	RoomID      int64
	Weekday     sql.NullInt64
	StartMinute int64
	EndMinute   int64
}

func (q *Queries) CreateBookableHours(ctx context.Context, arg CreateBookableHoursParams) (RoomBookableHour, error) {
	row := q.db.QueryRowContext(ctx, createBookableHours, arg.RoomID, arg.Weekday, arg.StartMinute, arg.EndMinute)
	var h RoomBookableHour
	err := row.Scan(&h.ID, &h.RoomID, &h.Weekday, &h.StartMinute, &h.EndMinute)
	return h, err
}

const deleteBookableHours = `-- name: DeleteBookableHours :exec
DELETE FROM room_bookable_hours WHERE room_id = ?
`

func (q *Queries) DeleteBookableHours(ctx context.Context, roomID int64) error {
	_, err := q.db.ExecContext(ctx, deleteBookableHours, roomID)
	return err
}

func (q *Queries) ListBookableHoursByRooms(ctx context.Context, roomIDs []int64) ([]RoomBookableHour, error) {
	marks, args := placeholders(roomIDs)
	query := fmt.Sprintf(`SELECT id, room_id, weekday, start_minute, end_minute
FROM room_bookable_hours WHERE room_id IN (%s) ORDER BY room_id, start_minute`, marks)
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hours []RoomBookableHour
	for rows.Next() {
		var h RoomBookableHour
		if err := rows.Scan(&h.ID, &h.RoomID, &h.Weekday, &h.StartMinute, &h.EndMinute); err != nil {
			return nil, err
		}
		hours = append(hours, h)
	}
	return hours, rows.Err()
}

const createNonbookablePeriod = `-- name: CreateNonbookablePeriod :one
INSERT INTO room_nonbookable_periods (room_id, start_at, end_at)
VALUES (?, ?, ?)
RETURNING id, room_id, start_at, end_at
`

type CreateNonbookablePeriodParams struct {
	RoomID  int64
	StartAt time.Time
	EndAt   time.Time
}

func (q *Queries) CreateNonbookablePeriod(ctx context.Context, arg CreateNonbookablePeriodParams) (RoomNonbookablePeriod, error) {
	row := q.db.QueryRowContext(ctx, createNonbookablePeriod, arg.RoomID, arg.StartAt, arg.EndAt)
	var p RoomNonbookablePeriod
	err := row.Scan(&p.ID, &p.RoomID, &p.StartAt, &p.EndAt)
	return p, err
}

// ListNonbookablePeriodsByRooms returns the closures of the given rooms
// overlapping [start, end).
func (q *Queries) ListNonbookablePeriodsByRooms(ctx context.Context, roomIDs []int64, start, end time.Time) ([]RoomNonbookablePeriod, error) {
	marks, args := placeholders(roomIDs)
	query := fmt.Sprintf(`SELECT id, room_id, start_at, end_at
FROM room_nonbookable_periods
WHERE room_id IN (%s) AND start_at < ? AND end_at > ?
ORDER BY room_id, start_at`, marks)
	args = append(args, end, start)
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []RoomNonbookablePeriod
	for rows.Next() {
		var p RoomNonbookablePeriod
		if err := rows.Scan(&p.ID, &p.RoomID, &p.StartAt, &p.EndAt); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}
