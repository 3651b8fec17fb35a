// Package notify builds and delivers the booking lifecycle emails.
package notify

import "context"

// Sender provides a testable abstraction over SES delivery.
type Sender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}
