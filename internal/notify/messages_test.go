package notify

import (
	"strings"
	"testing"
	"time"
)

func TestFormatDateTimeRange(t *testing.T) {
	start := time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Minute)

	date, timeRange := FormatDateTimeRange(start, end)
	if date != "Tuesday, Mar 5, 2024" {
		t.Fatalf("date: %q", date)
	}
	if timeRange != "10:00 AM - 11:30 AM UTC" {
		t.Fatalf("time range: %q", timeRange)
	}
}

func TestBuildBookingConfirmation(t *testing.T) {
	msg := BuildBookingConfirmation(BookingDetails{
		RoomName:  "1/2-017",
		BookedFor: "Ada Lovelace",
		Date:      "Tuesday, Mar 5, 2024",
		TimeRange: "10:00 AM - 11:30 AM UTC",
		Reason:    "Project sync",
	})

	if msg.Subject != "Booking Confirmed - 1/2-017" {
		t.Fatalf("subject: %q", msg.Subject)
	}
	for _, want := range []string{"Room: 1/2-017", "Booked for: Ada Lovelace", "Reason: Project sync"} {
		if !strings.Contains(msg.Body, want) {
			t.Fatalf("body missing %q:\n%s", want, msg.Body)
		}
	}
}

func TestBuildRejectionNoticeIncludesReason(t *testing.T) {
	msg := BuildRejectionNotice(RejectionDetails{
		BookingDetails:  BookingDetails{RoomName: "1/2-017"},
		RejectionReason: "Room blocked for maintenance",
	})
	if !strings.Contains(msg.Body, "Rejection reason: Room blocked for maintenance") {
		t.Fatalf("body missing reason:\n%s", msg.Body)
	}
}

func TestBuildBookingMessageDefaults(t *testing.T) {
	msg := BuildPreBookingNotice(BookingDetails{})
	if !strings.Contains(msg.Body, "Date: TBD") || !strings.Contains(msg.Body, "Time: TBD") {
		t.Fatalf("defaults missing:\n%s", msg.Body)
	}
}
