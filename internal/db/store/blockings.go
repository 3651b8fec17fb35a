package store

import (
	"context"
	"fmt"
	"time"
)

const createBlocking = `-- name: CreateBlocking :one
INSERT INTO blockings (created_by_id, start_date, end_date, reason)
VALUES (?, ?, ?, ?)
RETURNING id, created_by_id, start_date, end_date, reason, created_at
`

type CreateBlockingParams struct {
	CreatedByID int64
	StartDate   time.Time
	EndDate     time.Time
	Reason      string
}

func scanBlocking(row interface{ Scan(...interface{}) error }) (Blocking, error) {
	var b Blocking
	err := row.Scan(&b.ID, &b.CreatedByID, &b.StartDate, &b.EndDate, &b.Reason, &b.CreatedAt)
	return b, err
}

func (q *Queries) CreateBlocking(ctx context.Context, arg CreateBlockingParams) (Blocking, error) {
	row := q.db.QueryRowContext(ctx, createBlocking, arg.CreatedByID, arg.StartDate, arg.EndDate, arg.Reason)
	return scanBlocking(row)
}

const getBlocking = `-- name: GetBlocking :one
SELECT id, created_by_id, start_date, end_date, reason, created_at
FROM blockings
WHERE id = ?
`

func (q *Queries) GetBlocking(ctx context.Context, id int64) (Blocking, error) {
	return scanBlocking(q.db.QueryRowContext(ctx, getBlocking, id))
}

const updateBlocking = `-- name: UpdateBlocking :one
UPDATE blockings
SET start_date = ?, end_date = ?, reason = ?
WHERE id = ?
RETURNING id, created_by_id, start_date, end_date, reason, created_at
`

type UpdateBlockingParams struct {
	ID        int64
	StartDate time.Time
	EndDate   time.Time
	Reason    string
}

func (q *Queries) UpdateBlocking(ctx context.Context, arg UpdateBlockingParams) (Blocking, error) {
	row := q.db.QueryRowContext(ctx, updateBlocking, arg.StartDate, arg.EndDate, arg.Reason, arg.ID)
	return scanBlocking(row)
}

const createBlockingAllowed = `-- name: CreateBlockingAllowed :exec
INSERT INTO blocking_allowed (blocking_id, principal_kind, principal_ref)
VALUES (?, ?, ?)
`

type CreateBlockingAllowedParams struct {
	BlockingID    int64
	PrincipalKind string
	PrincipalRef  string
}

func (q *Queries) CreateBlockingAllowed(ctx context.Context, arg CreateBlockingAllowedParams) error {
	_, err := q.db.ExecContext(ctx, createBlockingAllowed, arg.BlockingID, arg.PrincipalKind, arg.PrincipalRef)
	return err
}

const listBlockingAllowed = `-- name: ListBlockingAllowed :many
SELECT id, blocking_id, principal_kind, principal_ref
FROM blocking_allowed
WHERE blocking_id = ?
ORDER BY id
`

func (q *Queries) ListBlockingAllowed(ctx context.Context, blockingID int64) ([]BlockingAllowed, error) {
	rows, err := q.db.QueryContext(ctx, listBlockingAllowed, blockingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var allowed []BlockingAllowed
	for rows.Next() {
		var a BlockingAllowed
		if err := rows.Scan(&a.ID, &a.BlockingID, &a.PrincipalKind, &a.PrincipalRef); err != nil {
			return nil, err
		}
		allowed = append(allowed, a)
	}
	return allowed, rows.Err()
}

const createBlockedRoom = `-- name: CreateBlockedRoom :one
INSERT INTO blocked_rooms (blocking_id, room_id, state)
VALUES (?, ?, ?)
RETURNING id, blocking_id, room_id, state, rejection_reason
`

type CreateBlockedRoomParams struct {
	BlockingID int64
	RoomID     int64
	State      int64
}

func scanBlockedRoom(row interface{ Scan(...interface{}) error }) (BlockedRoom, error) {
	var b BlockedRoom
	err := row.Scan(&b.ID, &b.BlockingID, &b.RoomID, &b.State, &b.RejectionReason)
	return b, err
}

func (q *Queries) CreateBlockedRoom(ctx context.Context, arg CreateBlockedRoomParams) (BlockedRoom, error) {
	row := q.db.QueryRowContext(ctx, createBlockedRoom, arg.BlockingID, arg.RoomID, arg.State)
	return scanBlockedRoom(row)
}

const getBlockedRoom = `-- name: GetBlockedRoom :one
SELECT id, blocking_id, room_id, state, rejection_reason
FROM blocked_rooms
WHERE blocking_id = ? AND room_id = ?
`

func (q *Queries) GetBlockedRoom(ctx context.Context, blockingID, roomID int64) (BlockedRoom, error) {
	return scanBlockedRoom(q.db.QueryRowContext(ctx, getBlockedRoom, blockingID, roomID))
}

const setBlockedRoomState = `-- name: SetBlockedRoomState :exec
UPDATE blocked_rooms SET state = ?, rejection_reason = ? WHERE id = ?
`

type SetBlockedRoomStateParams struct {
	ID              int64
	State           int64
	RejectionReason string
}

func (q *Queries) SetBlockedRoomState(ctx context.Context, arg SetBlockedRoomStateParams) error {
	_, err := q.db.ExecContext(ctx, setBlockedRoomState, arg.State, arg.RejectionReason, arg.ID)
	return err
}

// BlockedRoomWithBlocking joins a blocked room with its blocking header.
type BlockedRoomWithBlocking struct {
	BlockedRoom
	CreatedByID int64
	StartDate   time.Time
	EndDate     time.Time
	Reason      string
}

// ListBlockedRoomsByRooms returns the blocked-room rows of the given
// rooms whose blocking window overlaps [start, end]. All states are
// returned; the conflict engine ignores non-accepted ones itself.
func (q *Queries) ListBlockedRoomsByRooms(ctx context.Context, roomIDs []int64, start, end time.Time) ([]BlockedRoomWithBlocking, error) {
	marks, args := placeholders(roomIDs)
	query := fmt.Sprintf(`SELECT
    br.id, br.blocking_id, br.room_id, br.state, br.rejection_reason,
    b.created_by_id, b.start_date, b.end_date, b.reason
FROM blocked_rooms br
JOIN blockings b ON b.id = br.blocking_id
WHERE br.room_id IN (%s) AND b.start_date <= ? AND b.end_date >= ?
ORDER BY br.room_id, b.start_date`, marks)
	args = append(args, end, start)
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocked []BlockedRoomWithBlocking
	for rows.Next() {
		var b BlockedRoomWithBlocking
		if err := rows.Scan(
			&b.ID, &b.BlockingID, &b.RoomID, &b.State, &b.RejectionReason,
			&b.CreatedByID, &b.StartDate, &b.EndDate, &b.Reason,
		); err != nil {
			return nil, err
		}
		blocked = append(blocked, b)
	}
	return blocked, rows.Err()
}

const listBlockedRoomsByBlocking = `-- name: ListBlockedRoomsByBlocking :many
SELECT id, blocking_id, room_id, state, rejection_reason
FROM blocked_rooms
WHERE blocking_id = ?
ORDER BY room_id
`

func (q *Queries) ListBlockedRoomsByBlocking(ctx context.Context, blockingID int64) ([]BlockedRoom, error) {
	rows, err := q.db.QueryContext(ctx, listBlockedRoomsByBlocking, blockingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocked []BlockedRoom
	for rows.Next() {
		b, err := scanBlockedRoom(rows)
		if err != nil {
			return nil, err
		}
		blocked = append(blocked, b)
	}
	return blocked, rows.Err()
}
