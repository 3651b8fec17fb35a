// Package booking holds the domain model shared by the availability,
// conflict, and mutation layers.
package booking

import (
	"time"

	"github.com/conferia/roombook/internal/booking/recurrence"
	"github.com/conferia/roombook/internal/principal"
)

// Room is a bookable resource. Rooms are never deleted, only deactivated.
type Room struct {
	ID           int64
	Name         string
	OwnerID      int64
	ContactPhone string
	Timezone     string

	IsReservable                 bool
	ReservationsNeedConfirmation bool

	// BookingLimitDays caps the span of a single booking in days;
	// MaxAdvanceDays caps how far ahead a booking may start.
	// Zero means unlimited.
	BookingLimitDays int64
	MaxAdvanceDays   int64

	IsActive bool
}

// Location resolves the room's time zone, defaulting to UTC. All interval
// comparisons for a room happen in this single zone.
func (r Room) Location() *time.Location {
	if r.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// BookableHours is one time-of-day window during which a room accepts
// bookings. Weekday of nil applies the window to every day.
type BookableHours struct {
	RoomID  int64
	Weekday *time.Weekday
	// Minutes since midnight, EndMinute exclusive upper bound of the window.
	StartMinute int
	EndMinute   int
}

// AppliesOn reports whether the window is in effect on the given weekday.
func (h BookableHours) AppliesOn(day time.Weekday) bool {
	return h.Weekday == nil || *h.Weekday == day
}

// NonBookablePeriod is an absolute closed range during which no
// occurrence may be scheduled (maintenance, closure).
type NonBookablePeriod struct {
	ID     int64
	RoomID int64
	Start  time.Time
	End    time.Time
	Reason string
}

// Reservation is a user-facing booking, possibly recurring. It owns its
// occurrences.
type Reservation struct {
	ID          int64
	RoomID      int64
	OwnerID     int64
	CreatedByID int64

	// BookedForName labels who the room is occupied for; it may differ
	// from the owner when booking on someone's behalf.
	BookedForName string

	Start     time.Time
	End       time.Time
	Frequency recurrence.Frequency
	Interval  int
	Pattern   recurrence.MonthPattern

	IsAccepted  bool
	IsRejected  bool
	IsCancelled bool

	Reason          string
	RejectionReason string

	// SplitFromID links a forward-looking reservation to the booking it
	// was split off from.
	SplitFromID *int64

	CreatedAt time.Time
}

// IsPending reports whether the reservation is an unconfirmed pre-booking.
func (r Reservation) IsPending() bool {
	return !r.IsAccepted && !r.IsRejected && !r.IsCancelled
}

// IsValid reports whether the reservation still counts against the calendar.
func (r Reservation) IsValid() bool {
	return !r.IsRejected && !r.IsCancelled
}

// Rule returns the reservation's recurrence rule.
func (r Reservation) Rule() recurrence.Rule {
	return recurrence.Rule{Frequency: r.Frequency, Interval: r.Interval, Pattern: r.Pattern}
}

// Occurrence is one dated instance of a reservation. Occurrences are
// individually cancellable without affecting their siblings.
type Occurrence struct {
	ID            int64
	ReservationID int64
	Start         time.Time
	End           time.Time

	IsCancelled     bool
	IsRejected      bool
	RejectionReason string

	// Denormalized from the parent reservation by calendar queries.
	RoomID              int64
	ReservationOwnerID  int64
	ReservationAccepted bool
}

// IsValid reports whether the occurrence still occupies its slot.
func (o Occurrence) IsValid() bool {
	return !o.IsCancelled && !o.IsRejected
}

// BlockedRoomState tracks per-room approval of a blocking.
type BlockedRoomState int

const (
	BlockedRoomPending BlockedRoomState = iota
	BlockedRoomAccepted
	BlockedRoomRejected
)

func (s BlockedRoomState) String() string {
	switch s {
	case BlockedRoomPending:
		return "pending"
	case BlockedRoomAccepted:
		return "accepted"
	case BlockedRoomRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Blocking is an administrative hold over one or more rooms for a date
// range (day granularity, inclusive).
type Blocking struct {
	ID          int64
	CreatedByID int64
	StartDate   time.Time
	EndDate     time.Time
	Reason      string

	// Allowed principals may book despite the blocking.
	Allowed []principal.Principal
}

// ContainsDate reports whether the given day falls inside the blocking.
func (b Blocking) ContainsDate(t time.Time) bool {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	start := time.Date(b.StartDate.Year(), b.StartDate.Month(), b.StartDate.Day(), 0, 0, 0, 0, t.Location())
	end := time.Date(b.EndDate.Year(), b.EndDate.Month(), b.EndDate.Day(), 0, 0, 0, 0, t.Location())
	return !day.Before(start) && !day.After(end)
}

// CanOverride reports whether the user may book through this blocking.
// The creator and allow-listed principals always may; a room manager may
// unless explicitOnly restricts the check to the allow-list.
func (b Blocking) CanOverride(userID int64, room Room, isAdmin, explicitOnly bool) bool {
	if userID == b.CreatedByID {
		return true
	}
	if principal.AnyContains(b.Allowed, userID) {
		return true
	}
	if explicitOnly {
		return false
	}
	return isAdmin || room.OwnerID == userID
}

// BlockedRoom is the per-room entry of a blocking, approved or rejected
// independently by each room's owner.
type BlockedRoom struct {
	ID              int64
	BlockingID      int64
	RoomID          int64
	State           BlockedRoomState
	RejectionReason string

	// Blocking carries the parent row when loaded by calendar queries.
	Blocking Blocking
}

// User is the thin local identity record; identity management itself is
// an external concern.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	IsAdmin      bool
}
