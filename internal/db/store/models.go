package store

import (
	"database/sql"
	"time"
)

type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
}

type Session struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

type Room struct {
	ID                           int64
	Name                         string
	OwnerID                      int64
	ContactPhone                 string
	Timezone                     string
	IsReservable                 bool
	ReservationsNeedConfirmation bool
	BookingLimitDays             int64
	MaxAdvanceDays               int64
	IsActive                     bool
	CreatedAt                    time.Time
}

type RoomBookableHour struct {
	ID          int64
	RoomID      int64
	Weekday     sql.NullInt64
	StartMinute int64
	EndMinute   int64
}

type RoomNonbookablePeriod struct {
	ID      int64
	RoomID  int64
	StartAt time.Time
	EndAt   time.Time
}

type Reservation struct {
	ID              int64
	RoomID          int64
	BookedByID      int64
	BookedForName   string
	StartAt         time.Time
	EndAt           time.Time
	RepeatFrequency string
	RepeatInterval  int64
	MonthPattern    int64
	IsAccepted      bool
	IsRejected      bool
	IsCancelled     bool
	Reason          string
	RejectionReason string
	SplitFromID     sql.NullInt64
	CreatedAt       time.Time
}

type ReservationOccurrence struct {
	ID               int64
	ReservationID    int64
	StartAt          time.Time
	EndAt            time.Time
	IsCancelled      bool
	IsRejected       bool
	RejectionReason  string
	NotificationSent bool
}

// OccurrenceWithReservation joins an occurrence with the reservation
// fields the conflict checks need.
type OccurrenceWithReservation struct {
	ReservationOccurrence
	RoomID              int64
	BookedByID          int64
	ReservationAccepted bool
	ReservationPending  bool
}

type Blocking struct {
	ID          int64
	CreatedByID int64
	StartDate   time.Time
	EndDate     time.Time
	Reason      string
	CreatedAt   time.Time
}

type BlockingAllowed struct {
	ID            int64
	BlockingID    int64
	PrincipalKind string
	PrincipalRef  string
}

type BlockedRoom struct {
	ID              int64
	BlockingID      int64
	RoomID          int64
	State           int64
	RejectionReason string
}
