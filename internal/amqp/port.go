package amqp

import (
	"context"
	"time"

	"github.com/google/uuid"

	"subtrack/internal/notify"
)

// NotifyPort adapts the AMQP client to the notification port: scheduling
// publishes a message for the reminder worker and the generated handle
// doubles as the worker-side reminder key.
type NotifyPort struct {
	client *Client
}

func NewNotifyPort(client *Client) *NotifyPort {
	return &NotifyPort{client: client}
}

func (p *NotifyPort) Schedule(ctx context.Context, content notify.Content, fireAt time.Time) (string, error) {
	handle := uuid.NewString()
	msg := NewReminderScheduleMessage(handle, content.SubscriptionID, content.Title, content.Body, fireAt)
	if err := p.client.PublishSchedule(ctx, msg); err != nil {
		return "", err
	}
	return handle, nil
}

func (p *NotifyPort) Cancel(ctx context.Context, handle string) error {
	return p.client.PublishCancel(ctx, NewReminderCancelMessage(handle))
}

func (p *NotifyPort) CancelAll(ctx context.Context) error {
	return p.client.PublishCancel(ctx, NewReminderCancelAllMessage())
}

// HasPermission reports whether the broker connection is usable. A dead
// connection means reminders cannot be delivered, which reads the same as a
// denied notification permission.
func (p *NotifyPort) HasPermission(_ context.Context) bool {
	return p.client.Connected()
}
