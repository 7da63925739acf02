package notify

import (
	"context"
	"time"
)

// Content is the payload handed to the notification port for one reminder.
type Content struct {
	Title          string `json:"title"`
	Body           string `json:"body"`
	SubscriptionID string `json:"subscriptionId"`
}

// Port is the outbound notification adapter. Implementations may fail or
// drop calls; the scheduler treats every error as "no reminder" and never
// surfaces it to the mutation that triggered the call.
type Port interface {
	// Schedule registers a notification to fire at the given time and
	// returns an opaque handle for later cancellation.
	Schedule(ctx context.Context, content Content, fireAt time.Time) (string, error)

	// Cancel revokes a previously scheduled notification.
	Cancel(ctx context.Context, handle string) error

	// CancelAll revokes every scheduled notification.
	CancelAll(ctx context.Context) error

	// HasPermission reports whether the system-level notification
	// permission is granted.
	HasPermission(ctx context.Context) bool
}
