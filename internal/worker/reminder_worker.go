// Package worker implements the reminder worker: it consumes schedule and
// cancel messages from AMQP, keeps the pending-reminder table in sync, and
// periodically delivers reminders whose fire time has passed.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"subtrack/internal/amqp"
	"subtrack/internal/storage"
)

// ReminderStore is the slice of the storage layer the worker needs.
type ReminderStore interface {
	UpsertPendingReminder(ctx context.Context, rem storage.PendingReminder) error
	DeletePendingReminder(ctx context.Context, handle string) error
	DeleteAllPendingReminders(ctx context.Context) error
	DuePendingReminders(ctx context.Context, now time.Time, limit int) ([]storage.PendingReminder, error)
}

// Notifier delivers a due reminder to the user.
type Notifier interface {
	Deliver(ctx context.Context, rem storage.PendingReminder) error
}

// LogNotifier writes reminders to the log. It stands in wherever no real
// delivery channel is configured.
type LogNotifier struct{}

func (LogNotifier) Deliver(ctx context.Context, rem storage.PendingReminder) error {
	slog.InfoContext(ctx, "Reminder delivered",
		"handle", rem.Handle,
		"subscription_id", rem.SubscriptionID,
		"title", rem.Title,
		"body", rem.Body)
	return nil
}

// ReminderWorker keeps pending reminders in step with the message stream and
// fires the due ones.
type ReminderWorker struct {
	store     ReminderStore
	notifier  Notifier
	batchSize int
	now       func() time.Time
}

func NewReminderWorker(store ReminderStore, notifier Notifier, batchSize int, clock func() time.Time) *ReminderWorker {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	if clock == nil {
		clock = time.Now
	}
	return &ReminderWorker{
		store:     store,
		notifier:  notifier,
		batchSize: batchSize,
		now:       clock,
	}
}

// HandleScheduleMessage registers a pending reminder. Schedule messages are
// idempotent per handle, so broker redelivery is harmless.
func (w *ReminderWorker) HandleScheduleMessage(ctx context.Context, msg *amqp.ReminderScheduleMessage) error {
	if msg.Handle == "" {
		return fmt.Errorf("schedule message without handle")
	}

	err := w.store.UpsertPendingReminder(ctx, storage.PendingReminder{
		Handle:         msg.Handle,
		SubscriptionID: msg.SubscriptionID,
		Title:          msg.Title,
		Body:           msg.Body,
		FireAt:         msg.FireAt,
	})
	if err != nil {
		return fmt.Errorf("register pending reminder: %w", err)
	}

	slog.InfoContext(ctx, "Reminder registered",
		"handle", msg.Handle,
		"subscription_id", msg.SubscriptionID,
		"fire_at", msg.FireAt)
	return nil
}

// HandleCancelMessage drops one pending reminder, or all of them when the
// message says so. Cancelling a handle that already fired is a no-op.
func (w *ReminderWorker) HandleCancelMessage(ctx context.Context, msg *amqp.ReminderCancelMessage) error {
	if msg.All {
		if err := w.store.DeleteAllPendingReminders(ctx); err != nil {
			return fmt.Errorf("cancel all pending reminders: %w", err)
		}
		slog.InfoContext(ctx, "All pending reminders cancelled")
		return nil
	}

	if msg.Handle == "" {
		return fmt.Errorf("cancel message without handle")
	}
	if err := w.store.DeletePendingReminder(ctx, msg.Handle); err != nil {
		return fmt.Errorf("cancel pending reminder: %w", err)
	}

	slog.InfoContext(ctx, "Pending reminder cancelled", "handle", msg.Handle)
	return nil
}

// DispatchDue delivers every reminder whose fire time has passed and removes
// it. A failed delivery keeps the reminder pending for the next tick.
func (w *ReminderWorker) DispatchDue(ctx context.Context) error {
	due, err := w.store.DuePendingReminders(ctx, w.now(), w.batchSize)
	if err != nil {
		return fmt.Errorf("load due reminders: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Dispatching due reminders", "count", len(due))

	delivered := 0
	for _, rem := range due {
		if err := w.notifier.Deliver(ctx, rem); err != nil {
			slog.ErrorContext(ctx, "Failed to deliver reminder",
				"handle", rem.Handle,
				"subscription_id", rem.SubscriptionID,
				"error", err)
			continue
		}
		if err := w.store.DeletePendingReminder(ctx, rem.Handle); err != nil {
			slog.ErrorContext(ctx, "Failed to remove delivered reminder",
				"handle", rem.Handle,
				"error", err)
			continue
		}
		delivered++
	}

	slog.InfoContext(ctx, "Dispatch completed",
		"due", len(due),
		"delivered", delivered)
	return nil
}

// Run dispatches due reminders on a fixed interval until ctx is cancelled.
func (w *ReminderWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// One pass right away so a restart catches up on missed reminders.
	if err := w.DispatchDue(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup dispatch failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Reminder dispatch loop stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if err := w.DispatchDue(ctx); err != nil {
				slog.ErrorContext(ctx, "Dispatch failed", "error", err)
			}
		}
	}
}
