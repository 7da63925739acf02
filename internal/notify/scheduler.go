package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"subtrack/internal/core"
)

// Scheduler owns the one-reminder-per-subscription invariant. It decides
// whether a reminder is worth scheduling, keeps handle lifecycles in lockstep
// with record mutations, and degrades every port failure to "no reminder".
type Scheduler struct {
	port Port
}

func NewScheduler(port Port) *Scheduler {
	return &Scheduler{port: port}
}

// FireDate is the reminder fire date: the renewal date minus the lead time.
func FireDate(nextRenewal time.Time, reminderDays int) time.Time {
	return nextRenewal.AddDate(0, 0, -reminderDays)
}

// canNotify gates scheduling on both the user preference flag and the
// system-level permission reported by the port.
func (s *Scheduler) canNotify(ctx context.Context, prefs core.Preferences) bool {
	return prefs.Notifications && s.port.HasPermission(ctx)
}

// Schedule registers a reminder for the subscription and returns the new
// handle, or "" when scheduling is skipped or fails.
//
// Skips when: notifications are disabled (either flag), there is no renewal
// date, the renewal is already past, or there are not enough days left for
// the reminder to fire meaningfully earlier than the renewal itself
// (daysUntil <= ReminderDays).
func (s *Scheduler) Schedule(ctx context.Context, sub core.Subscription, prefs core.Preferences, now time.Time) string {
	if !sub.HasRenewal() {
		slog.DebugContext(ctx, "No renewal date set, skipping reminder",
			"subscription_id", sub.ID)
		return ""
	}
	if !s.canNotify(ctx, prefs) {
		return ""
	}

	days := core.DaysUntilRenewal(sub.NextRenewal, now)
	if days <= sub.ReminderDays {
		slog.DebugContext(ctx, "Not enough lead time, skipping reminder",
			"subscription_id", sub.ID,
			"days_until_renewal", days,
			"reminder_days", sub.ReminderDays)
		return ""
	}

	content := Content{
		Title:          "Subscription renewal reminder",
		Body:           fmt.Sprintf("Your subscription for %s will renew in %d days", sub.Label, sub.ReminderDays),
		SubscriptionID: sub.ID,
	}

	handle, err := s.port.Schedule(ctx, content, FireDate(sub.NextRenewal.Time, sub.ReminderDays))
	if err != nil {
		slog.ErrorContext(ctx, "Failed to schedule reminder",
			"error", err,
			"subscription_id", sub.ID,
			"label", sub.Label)
		return ""
	}

	slog.InfoContext(ctx, "Reminder scheduled",
		"subscription_id", sub.ID,
		"handle", handle,
		"fire_at", FireDate(sub.NextRenewal.Time, sub.ReminderDays))
	return handle
}

// Reschedule cancels the subscription's live reminder, if any, and schedules
// a fresh one. When the intended fire date is unchanged from prevFireAt the
// existing handle is kept untouched to avoid needless cancel/schedule churn.
// Returns the handle now live for the subscription, or "".
func (s *Scheduler) Reschedule(ctx context.Context, sub core.Subscription, prefs core.Preferences, prevFireAt time.Time, now time.Time) string {
	var newFireAt time.Time
	if sub.HasRenewal() {
		newFireAt = FireDate(sub.NextRenewal.Time, sub.ReminderDays)
	}

	if sub.NotificationID != "" && !prevFireAt.IsZero() && prevFireAt.Equal(newFireAt) {
		return sub.NotificationID
	}

	s.Cancel(ctx, sub)
	sub.NotificationID = ""
	return s.Schedule(ctx, sub, prefs, now)
}

// Cancel revokes the subscription's reminder if one is live. Cancellation is
// best-effort: port errors are logged and otherwise ignored, and the caller
// clears the stored handle regardless.
func (s *Scheduler) Cancel(ctx context.Context, sub core.Subscription) {
	if sub.NotificationID == "" {
		return
	}
	if err := s.port.Cancel(ctx, sub.NotificationID); err != nil {
		slog.ErrorContext(ctx, "Failed to cancel reminder",
			"error", err,
			"subscription_id", sub.ID,
			"handle", sub.NotificationID)
	}
}

// CancelAll revokes every scheduled reminder, best-effort.
func (s *Scheduler) CancelAll(ctx context.Context) {
	if err := s.port.CancelAll(ctx); err != nil {
		slog.ErrorContext(ctx, "Failed to cancel all reminders", "error", err)
	}
}

// RescheduleAll cancels everything and re-derives each subscription's
// reminder from scratch. Used when the reminder lead time preference changes
// or notifications are re-enabled. Returns subscription id -> new handle for
// every reminder that was actually scheduled.
func (s *Scheduler) RescheduleAll(ctx context.Context, subs []core.Subscription, prefs core.Preferences, now time.Time) map[string]string {
	s.CancelAll(ctx)

	handles := make(map[string]string)
	for _, sub := range subs {
		sub.NotificationID = ""
		if handle := s.Schedule(ctx, sub, prefs, now); handle != "" {
			handles[sub.ID] = handle
		}
	}
	return handles
}
