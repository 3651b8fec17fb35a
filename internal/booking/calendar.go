package booking

// RoomCalendar is the read-only projection of everything occupying a
// room over a date range: confirmed bookings, provisional pre-bookings,
// accepted blockings, closures, and the bookable-hours windows.
type RoomCalendar struct {
	Room Room

	// Bookings holds valid occurrences of accepted reservations,
	// PreBookings those of reservations still awaiting confirmation.
	Bookings    []Occurrence
	PreBookings []Occurrence

	// BlockedRooms carries only entries in the accepted state, each with
	// its parent Blocking loaded.
	BlockedRooms []BlockedRoom

	NonBookable []NonBookablePeriod
	Hours       []BookableHours
}
