package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/conferia/roombook/internal/authz"
	"github.com/conferia/roombook/internal/booking"
	"github.com/conferia/roombook/internal/db"
	"github.com/conferia/roombook/internal/db/store"
	"github.com/conferia/roombook/internal/notify"
)

const blockingRejectionReason = "room blocked for this period"

// BlockingPrincipal names one allow-list entry of a blocking. Kind is
// "user", "group", or "role"; Ref is the user id or the group/role name.
type BlockingPrincipal struct {
	Kind string
	Ref  string
}

type CreateBlockingRequest struct {
	StartDate time.Time
	EndDate   time.Time
	Reason    string
	RoomIDs   []int64
	Allowed   []BlockingPrincipal
}

type CreateBlockingResult struct {
	Blocking booking.Blocking
	// States maps room id to the per-room approval outcome.
	States map[int64]booking.BlockedRoomState
}

// CreateBlocking records an administrative hold over a set of rooms.
// Rooms the creator manages are blocked immediately; the rest wait for
// their own manager's approval. Accepting a room pushes out the
// occurrences of everyone who cannot override the blocking.
func (s *Service) CreateBlocking(ctx context.Context, actor authz.Actor, req CreateBlockingRequest) (*CreateBlockingResult, error) {
	if actor.UserID == 0 {
		return nil, authz.ErrUnauthenticated
	}
	if len(req.RoomIDs) == 0 {
		return nil, booking.ValidationError{Field: "room_ids", Reason: "must name at least one room"}
	}
	if req.EndDate.Before(req.StartDate) {
		return nil, booking.ValidationError{Field: "end_date", Reason: "must not precede start_date"}
	}
	for _, p := range req.Allowed {
		if err := validatePrincipal(p); err != nil {
			return nil, err
		}
	}

	rooms, err := s.db.Queries.ListRoomsByIDs(ctx, req.RoomIDs)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	if len(rooms) != len(req.RoomIDs) {
		return nil, fmt.Errorf("blocking names unknown rooms: %w", booking.ErrNotFound)
	}

	var (
		created store.Blocking
		states  = make(map[int64]booking.BlockedRoomState, len(rooms))
	)
	err = s.db.RunInTx(ctx, func(tx *db.DB) error {
		created, err = tx.Queries.CreateBlocking(ctx, store.CreateBlockingParams{
			CreatedByID: actor.UserID,
			StartDate:   req.StartDate,
			EndDate:     req.EndDate,
			Reason:      req.Reason,
		})
		if err != nil {
			return fmt.Errorf("create blocking: %w", err)
		}

		for _, p := range req.Allowed {
			if err := tx.Queries.CreateBlockingAllowed(ctx, store.CreateBlockingAllowedParams{
				BlockingID:    created.ID,
				PrincipalKind: p.Kind,
				PrincipalRef:  p.Ref,
			}); err != nil {
				return fmt.Errorf("create blocking allow-list entry: %w", err)
			}
		}

		for _, room := range rooms {
			state := booking.BlockedRoomPending
			if actor.CanManage(roomFromStore(room)) {
				state = booking.BlockedRoomAccepted
			}
			if _, err := tx.Queries.CreateBlockedRoom(ctx, store.CreateBlockedRoomParams{
				BlockingID: created.ID,
				RoomID:     room.ID,
				State:      int64(state),
			}); err != nil {
				return fmt.Errorf("create blocked room: %w", err)
			}
			states[room.ID] = state

			if state == booking.BlockedRoomAccepted {
				if err := s.cascadeBlocking(ctx, tx, created, roomFromStore(room)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &CreateBlockingResult{
		Blocking: booking.Blocking{
			ID:          created.ID,
			CreatedByID: created.CreatedByID,
			StartDate:   created.StartDate,
			EndDate:     created.EndDate,
			Reason:      created.Reason,
		},
		States: states,
	}, nil
}

type ModifyBlockingRequest struct {
	BlockingID int64
	StartDate  time.Time
	EndDate    time.Time
	Reason     string
}

// ModifyBlocking updates a blocking's dates and reason. Only the
// creator or an admin may edit. Rooms already accepted get the cascade
// re-applied over the new window, so a widened blocking pushes out the
// newly covered occurrences too.
func (s *Service) ModifyBlocking(ctx context.Context, actor authz.Actor, req ModifyBlockingRequest) (booking.Blocking, error) {
	var zero booking.Blocking
	if actor.UserID == 0 {
		return zero, authz.ErrUnauthenticated
	}
	if req.EndDate.Before(req.StartDate) {
		return zero, booking.ValidationError{Field: "end_date", Reason: "must not precede start_date"}
	}

	blocking, err := s.db.Queries.GetBlocking(ctx, req.BlockingID)
	if err != nil {
		return zero, notFoundErr(err)
	}
	if actor.UserID != blocking.CreatedByID && !actor.IsAdmin {
		return zero, booking.PermissionError{Reason: "only the blocking creator or an admin may edit a blocking"}
	}

	var updated store.Blocking
	err = s.db.RunInTx(ctx, func(tx *db.DB) error {
		updated, err = tx.Queries.UpdateBlocking(ctx, store.UpdateBlockingParams{
			ID:        blocking.ID,
			StartDate: req.StartDate,
			EndDate:   req.EndDate,
			Reason:    req.Reason,
		})
		if err != nil {
			return fmt.Errorf("update blocking: %w", err)
		}

		rooms, err := tx.Queries.ListBlockedRoomsByBlocking(ctx, blocking.ID)
		if err != nil {
			return fmt.Errorf("list blocked rooms: %w", err)
		}
		for _, blocked := range rooms {
			if booking.BlockedRoomState(blocked.State) != booking.BlockedRoomAccepted {
				continue
			}
			room, err := tx.Queries.GetRoom(ctx, blocked.RoomID)
			if err != nil {
				return fmt.Errorf("load blocked room: %w", err)
			}
			if err := s.cascadeBlocking(ctx, tx, updated, roomFromStore(room)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return zero, err
	}

	return booking.Blocking{
		ID:          updated.ID,
		CreatedByID: updated.CreatedByID,
		StartDate:   updated.StartDate,
		EndDate:     updated.EndDate,
		Reason:      updated.Reason,
	}, nil
}

// ApproveBlockedRoom accepts a pending blocking for one room and pushes
// out the occurrences it collides with.
func (s *Service) ApproveBlockedRoom(ctx context.Context, actor authz.Actor, blockingID, roomID int64) error {
	blocked, blocking, room, err := s.loadBlockedRoom(ctx, actor, blockingID, roomID)
	if err != nil {
		return err
	}
	if !actor.CanManage(room) {
		return booking.PermissionError{Reason: "only a room manager may approve a blocking"}
	}
	if booking.BlockedRoomState(blocked.State) == booking.BlockedRoomAccepted {
		return nil
	}

	err = s.db.RunInTx(ctx, func(tx *db.DB) error {
		if err := tx.Queries.SetBlockedRoomState(ctx, store.SetBlockedRoomStateParams{
			ID:    blocked.ID,
			State: int64(booking.BlockedRoomAccepted),
		}); err != nil {
			return err
		}
		return s.cascadeBlocking(ctx, tx, blocking, room)
	})
	if err != nil {
		return err
	}

	s.notifyAsync(s.bookerEmail(ctx, blocking.CreatedByID), notify.BuildBlockingNotice(notify.BlockingDetails{
		RoomName:  room.Name,
		DateRange: formatDateRange(blocking.StartDate, blocking.EndDate),
		Reason:    blocking.Reason,
	}))
	return nil
}

// RejectBlockedRoom declines a pending blocking for one room.
func (s *Service) RejectBlockedRoom(ctx context.Context, actor authz.Actor, blockingID, roomID int64, reason string) error {
	blocked, _, room, err := s.loadBlockedRoom(ctx, actor, blockingID, roomID)
	if err != nil {
		return err
	}
	if !actor.CanManage(room) {
		return booking.PermissionError{Reason: "only a room manager may reject a blocking"}
	}
	if booking.BlockedRoomState(blocked.State) == booking.BlockedRoomAccepted {
		return booking.ValidationError{Field: "blocking", Reason: "is already accepted for this room"}
	}

	return s.db.RunInTx(ctx, func(tx *db.DB) error {
		return tx.Queries.SetBlockedRoomState(ctx, store.SetBlockedRoomStateParams{
			ID:              blocked.ID,
			State:           int64(booking.BlockedRoomRejected),
			RejectionReason: reason,
		})
	})
}

// cascadeBlocking rejects the live occurrences that fall inside a newly
// accepted blocking. An occurrence survives when its owner could book
// through the blocking anyway: the creator, allow-listed principals, and
// the room's managers.
func (s *Service) cascadeBlocking(ctx context.Context, tx *db.DB, blocked store.Blocking, room booking.Room) error {
	allowed, err := s.calendars.WithQueries(tx.Queries).AllowList(ctx, blocked.ID)
	if err != nil {
		return err
	}
	blocking := booking.Blocking{
		ID:          blocked.ID,
		CreatedByID: blocked.CreatedByID,
		StartDate:   blocked.StartDate,
		EndDate:     blocked.EndDate,
		Reason:      blocked.Reason,
		Allowed:     allowed,
	}

	start := startOfDay(blocked.StartDate)
	end := endOfDay(blocked.EndDate)
	occurrences, err := tx.Queries.ListOccurrencesInWindow(ctx, []int64{room.ID}, start, end)
	if err != nil {
		return fmt.Errorf("list blocked occurrences: %w", err)
	}

	admins := make(map[int64]bool)
	for _, occ := range occurrences {
		owner := occ.BookedByID
		isAdmin, seen := admins[owner]
		if !seen {
			user, err := tx.Queries.GetUserByID(ctx, owner)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("load occurrence owner: %w", err)
			}
			isAdmin = err == nil && user.IsAdmin
			admins[owner] = isAdmin
		}
		if blocking.CanOverride(owner, room, isAdmin, false) {
			continue
		}
		if err := tx.Queries.RejectOccurrence(ctx, occ.ID, blockingRejectionReason); err != nil {
			return fmt.Errorf("reject blocked occurrence: %w", err)
		}
	}
	return nil
}

func (s *Service) loadBlockedRoom(ctx context.Context, actor authz.Actor, blockingID, roomID int64) (store.BlockedRoom, store.Blocking, booking.Room, error) {
	var (
		zeroBR store.BlockedRoom
		zeroB  store.Blocking
		zeroR  booking.Room
	)
	if actor.UserID == 0 {
		return zeroBR, zeroB, zeroR, authz.ErrUnauthenticated
	}
	blocked, err := s.db.Queries.GetBlockedRoom(ctx, blockingID, roomID)
	if err != nil {
		return zeroBR, zeroB, zeroR, notFoundErr(err)
	}
	blocking, err := s.db.Queries.GetBlocking(ctx, blockingID)
	if err != nil {
		return zeroBR, zeroB, zeroR, notFoundErr(err)
	}
	room, err := s.db.Queries.GetRoom(ctx, roomID)
	if err != nil {
		return zeroBR, zeroB, zeroR, notFoundErr(err)
	}
	return blocked, blocking, roomFromStore(room), nil
}

func validatePrincipal(p BlockingPrincipal) error {
	switch p.Kind {
	case "user":
		if _, err := strconv.ParseInt(p.Ref, 10, 64); err != nil {
			return booking.ValidationError{Field: "allowed", Reason: "user principal ref must be a user id"}
		}
	case "group", "role":
		if p.Ref == "" {
			return booking.ValidationError{Field: "allowed", Reason: "principal ref is required"}
		}
	default:
		return booking.ValidationError{Field: "allowed", Reason: fmt.Sprintf("unknown principal kind %q", p.Kind)}
	}
	return nil
}

func roomFromStore(r store.Room) booking.Room {
	return booking.Room{
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

func formatDateRange(start, end time.Time) string {
	const layout = "Jan 2, 2006"
	if start.Equal(end) {
		return start.Format(layout)
	}
	return start.Format(layout) + " - " + end.Format(layout)
}
