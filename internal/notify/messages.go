package notify

import (
	"fmt"
	"strings"
	"time"
)

type Message struct {
	Subject string
	Body    string
}

type BookingDetails struct {
	RoomName  string
	BookedFor string
	Date      string
	TimeRange string
	Reason    string
}

func FormatDateTimeRange(start, end time.Time) (string, string) {
	date := start.Format("Monday, Jan 2, 2006")
	timeRange := fmt.Sprintf("%s - %s %s", start.Format("3:04 PM"), end.Format("3:04 PM"), start.Format("MST"))
	return date, timeRange
}

func BuildBookingConfirmation(details BookingDetails) Message {
	return buildBookingMessage("Booking Confirmed", "Your room booking is confirmed.", details)
}

func BuildPreBookingNotice(details BookingDetails) Message {
	return buildBookingMessage("Booking Awaiting Approval",
		"Your room booking was recorded and is waiting for the room manager's approval.", details)
}

func BuildApprovalRequest(details BookingDetails) Message {
	return buildBookingMessage("Booking Needs Your Approval",
		"A booking for a room you manage is waiting for approval.", details)
}

type RejectionDetails struct {
	BookingDetails
	RejectionReason string
}

func BuildRejectionNotice(details RejectionDetails) Message {
	msg := buildBookingMessage("Booking Rejected", "Your room booking has been rejected.", details.BookingDetails)
	reason := strings.TrimSpace(details.RejectionReason)
	if reason != "" {
		msg.Body = msg.Body + "\n" + fmt.Sprintf("Rejection reason: %s", reason)
	}
	return msg
}

func BuildCancellationNotice(details BookingDetails) Message {
	return buildBookingMessage("Booking Cancelled", "Your room booking has been cancelled.", details)
}

// BuildSplitNotice announces that the future part of an ongoing series
// was moved to a new booking.
func BuildSplitNotice(details BookingDetails) Message {
	return buildBookingMessage("Booking Series Updated",
		"The upcoming occurrences of your recurring booking were moved to an updated booking.", details)
}

func BuildReminder(details BookingDetails) Message {
	return buildBookingMessage("Upcoming Booking Reminder", "Reminder: your room booking is coming up.", details)
}

type BlockingDetails struct {
	RoomName  string
	DateRange string
	Reason    string
}

func BuildBlockingNotice(details BlockingDetails) Message {
	roomName := strings.TrimSpace(details.RoomName)
	if roomName == "" {
		roomName = "a room you use"
	}
	lines := []string{
		fmt.Sprintf("%s has been blocked for bookings.", roomName),
		"",
		fmt.Sprintf("Room: %s", roomName),
		fmt.Sprintf("Period: %s", strings.TrimSpace(details.DateRange)),
	}
	if reason := strings.TrimSpace(details.Reason); reason != "" {
		lines = append(lines, fmt.Sprintf("Reason: %s", reason))
	}
	return Message{
		Subject: fmt.Sprintf("Room Blocked - %s", roomName),
		Body:    strings.Join(lines, "\n"),
	}
}

func buildBookingMessage(subjectPrefix, lead string, details BookingDetails) Message {
	roomName := strings.TrimSpace(details.RoomName)
	if roomName == "" {
		roomName = "your room"
	}
	date := strings.TrimSpace(details.Date)
	if date == "" {
		date = "TBD"
	}
	timeRange := strings.TrimSpace(details.TimeRange)
	if timeRange == "" {
		timeRange = "TBD"
	}

	subject := fmt.Sprintf("%s - %s", subjectPrefix, roomName)

	lines := []string{
		lead,
		"",
		fmt.Sprintf("Room: %s", roomName),
		fmt.Sprintf("Date: %s", date),
		fmt.Sprintf("Time: %s", timeRange),
	}
	if bookedFor := strings.TrimSpace(details.BookedFor); bookedFor != "" {
		lines = append(lines, fmt.Sprintf("Booked for: %s", bookedFor))
	}
	if reason := strings.TrimSpace(details.Reason); reason != "" {
		lines = append(lines, fmt.Sprintf("Reason: %s", reason))
	}

	return Message{
		Subject: subject,
		Body:    strings.Join(lines, "\n"),
	}
}
