// Package services provides business logic and orchestration.
//
// SubscriptionService wires the collection store and the reminder scheduler
// together around each create/update/delete, keeping notification handles in
// lockstep with record mutations. Store failures propagate; notification
// failures never do.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"subtrack/internal/backup"
	"subtrack/internal/core"
	"subtrack/internal/notify"
	"subtrack/internal/store"
)

// Overview is the home-screen aggregate bundle.
type Overview struct {
	TotalMonthly   float64             `json:"totalMonthly"`
	TotalYearly    float64             `json:"totalYearly"`
	AverageMonthly float64             `json:"averageMonthly"`
	MostExpensive  *core.Subscription  `json:"mostExpensive"`
	Counts         core.IntervalCounts `json:"countsByInterval"`
	Subscriptions  int                 `json:"subscriptions"`
}

type SubscriptionService struct {
	subs      store.SubscriptionStore
	prefs     store.PreferencesStore
	reminders *notify.Scheduler
	now       func() time.Time
}

// NewSubscriptionService builds the service. A nil clock means wall time;
// tests inject a fixed one.
func NewSubscriptionService(subs store.SubscriptionStore, prefs store.PreferencesStore, reminders *notify.Scheduler, clock func() time.Time) *SubscriptionService {
	if clock == nil {
		clock = time.Now
	}
	return &SubscriptionService{
		subs:      subs,
		prefs:     prefs,
		reminders: reminders,
		now:       clock,
	}
}

// Create validates and stores a new subscription, then schedules its
// reminder. A negative ReminderDays means "use the preference default"; an
// empty currency falls back to the default currency. The record mutation
// succeeds even when reminder scheduling does not.
func (s *SubscriptionService) Create(ctx context.Context, sub core.Subscription) (core.Subscription, error) {
	prefs, err := s.prefs.Preferences(ctx)
	if err != nil {
		return core.Subscription{}, fmt.Errorf("load preferences: %w", err)
	}

	sub.ID = uuid.NewString()
	sub.NotificationID = ""
	if sub.Currency == "" {
		sub.Currency = prefs.DefaultCurrency
	}
	if sub.ReminderDays < 0 {
		sub.ReminderDays = prefs.ReminderDays
	}

	if err := sub.Validate(); err != nil {
		return core.Subscription{}, err
	}
	if err := s.subs.Append(ctx, sub); err != nil {
		return core.Subscription{}, fmt.Errorf("save subscription: %w", err)
	}

	if handle := s.reminders.Schedule(ctx, sub, prefs, s.now()); handle != "" {
		sub.NotificationID = handle
		if err := s.subs.Update(ctx, sub); err != nil {
			slog.ErrorContext(ctx, "Failed to persist notification handle",
				"error", err,
				"subscription_id", sub.ID,
				"handle", handle)
		}
	}

	slog.InfoContext(ctx, "Subscription created",
		"subscription_id", sub.ID,
		"label", sub.Label,
		"amount", sub.Amount,
		"interval", sub.Interval)
	return sub, nil
}

// Update replaces an existing record and reschedules its reminder whenever
// the intended fire date moved. The previous fire date is derived from the
// stored record so an unchanged target short-circuits the cancel/schedule
// round trip.
func (s *SubscriptionService) Update(ctx context.Context, sub core.Subscription) (core.Subscription, error) {
	prev, err := s.subs.Get(ctx, sub.ID)
	if err != nil {
		return core.Subscription{}, err
	}
	sub.NotificationID = prev.NotificationID
	if sub.ReminderDays < 0 {
		sub.ReminderDays = prev.ReminderDays
	}

	if err := sub.Validate(); err != nil {
		return core.Subscription{}, err
	}

	prefs, err := s.prefs.Preferences(ctx)
	if err != nil {
		return core.Subscription{}, fmt.Errorf("load preferences: %w", err)
	}

	var prevFireAt time.Time
	if prev.HasRenewal() {
		prevFireAt = notify.FireDate(prev.NextRenewal.Time, prev.ReminderDays)
	}
	sub.NotificationID = s.reminders.Reschedule(ctx, sub, prefs, prevFireAt, s.now())

	if err := s.subs.Update(ctx, sub); err != nil {
		return core.Subscription{}, fmt.Errorf("update subscription: %w", err)
	}

	slog.InfoContext(ctx, "Subscription updated",
		"subscription_id", sub.ID,
		"label", sub.Label)
	return sub, nil
}

// Delete cancels any live reminder first, then removes the record. The
// cancellation is best-effort; deletion proceeds regardless.
func (s *SubscriptionService) Delete(ctx context.Context, id string) error {
	prev, err := s.subs.Get(ctx, id)
	if err != nil {
		return err
	}

	s.reminders.Cancel(ctx, prev)

	if err := s.subs.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}

	slog.InfoContext(ctx, "Subscription deleted", "subscription_id", id)
	return nil
}

func (s *SubscriptionService) Get(ctx context.Context, id string) (core.Subscription, error) {
	return s.subs.Get(ctx, id)
}

func (s *SubscriptionService) List(ctx context.Context) ([]core.Subscription, error) {
	return s.subs.List(ctx)
}

// Sorted returns the list ordered by the given criterion.
func (s *SubscriptionService) Sorted(ctx context.Context, criterion core.SortCriterion) ([]core.Subscription, error) {
	subs, err := s.subs.List(ctx)
	if err != nil {
		return nil, err
	}
	return core.SortByCriterion(subs, criterion, s.now()), nil
}

// Overview computes the aggregate dashboard figures in a single pass over
// the current list.
func (s *SubscriptionService) Overview(ctx context.Context) (Overview, error) {
	subs, err := s.subs.List(ctx)
	if err != nil {
		return Overview{}, err
	}
	now := s.now()
	return Overview{
		TotalMonthly:   core.TotalMonthlySpend(subs, now),
		TotalYearly:    core.TotalYearlySpend(subs),
		AverageMonthly: core.AverageMonthlySpend(subs),
		MostExpensive:  core.MostExpensive(subs),
		Counts:         core.CountByInterval(subs),
		Subscriptions:  len(subs),
	}, nil
}

// Trend returns the trailing six-month spend series.
func (s *SubscriptionService) Trend(ctx context.Context) (core.Trend, error) {
	subs, err := s.subs.List(ctx)
	if err != nil {
		return core.Trend{}, err
	}
	return core.SixMonthTrend(subs, s.now()), nil
}

// Upcoming returns subscriptions renewing within the next windowDays days.
func (s *SubscriptionService) Upcoming(ctx context.Context, windowDays int) ([]core.Subscription, error) {
	subs, err := s.subs.List(ctx)
	if err != nil {
		return nil, err
	}
	return core.UpcomingWithinDays(subs, windowDays, s.now()), nil
}

// Timeline returns the forward monthly renewal grouping.
func (s *SubscriptionService) Timeline(ctx context.Context, monthsAhead int) ([]core.RenewalGroup, error) {
	subs, err := s.subs.List(ctx)
	if err != nil {
		return nil, err
	}
	return core.MonthlyRenewalGroups(subs, monthsAhead, s.now()), nil
}

func (s *SubscriptionService) Preferences(ctx context.Context) (core.Preferences, error) {
	return s.prefs.Preferences(ctx)
}

// UpdatePreferences persists the settings singleton and reconciles reminder
// state with it: turning notifications off cancels everything; turning them
// on, or changing the reminder lead time, re-derives every reminder from
// scratch. A lead-time change is written through to each record.
func (s *SubscriptionService) UpdatePreferences(ctx context.Context, prefs core.Preferences) error {
	if err := prefs.Validate(); err != nil {
		return err
	}

	old, err := s.prefs.Preferences(ctx)
	if err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}
	if err := s.prefs.SavePreferences(ctx, prefs); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}

	switch {
	case old.Notifications && !prefs.Notifications:
		s.reminders.CancelAll(ctx)
		if err := s.clearHandles(ctx); err != nil {
			slog.ErrorContext(ctx, "Failed to clear notification handles", "error", err)
		}
	case prefs.ReminderDays != old.ReminderDays || (!old.Notifications && prefs.Notifications):
		if err := s.rescheduleEverything(ctx, prefs, prefs.ReminderDays != old.ReminderDays); err != nil {
			slog.ErrorContext(ctx, "Failed to reschedule reminders", "error", err)
		}
	}

	slog.InfoContext(ctx, "Preferences updated",
		"notifications", prefs.Notifications,
		"reminder_days", prefs.ReminderDays)
	return nil
}

// Export serializes the current list into a backup document.
func (s *SubscriptionService) Export(ctx context.Context) ([]byte, error) {
	subs, err := s.subs.List(ctx)
	if err != nil {
		return nil, err
	}
	return backup.Export(subs, s.now())
}

// Import replaces the whole collection with the document's records and
// re-derives every reminder. Returns the number of records imported.
func (s *SubscriptionService) Import(ctx context.Context, data []byte) (int, error) {
	subs, err := backup.Parse(data)
	if err != nil {
		return 0, err
	}
	if err := s.subs.ReplaceAll(ctx, subs); err != nil {
		return 0, fmt.Errorf("replace subscriptions: %w", err)
	}

	prefs, err := s.prefs.Preferences(ctx)
	if err != nil {
		return 0, fmt.Errorf("load preferences: %w", err)
	}
	if err := s.applyHandles(ctx, s.reminders.RescheduleAll(ctx, subs, prefs, s.now())); err != nil {
		slog.ErrorContext(ctx, "Failed to persist notification handles after import", "error", err)
	}

	slog.InfoContext(ctx, "Subscriptions imported", "count", len(subs))
	return len(subs), nil
}

// rescheduleEverything cancels all reminders and schedules them anew,
// optionally rewriting each record's lead time to the new preference first.
func (s *SubscriptionService) rescheduleEverything(ctx context.Context, prefs core.Preferences, rewriteLead bool) error {
	subs, err := s.subs.List(ctx)
	if err != nil {
		return err
	}
	if rewriteLead {
		for i := range subs {
			subs[i].ReminderDays = prefs.ReminderDays
		}
	}

	handles := s.reminders.RescheduleAll(ctx, subs, prefs, s.now())

	for _, sub := range subs {
		sub.NotificationID = handles[sub.ID]
		if err := s.subs.Update(ctx, sub); err != nil {
			return fmt.Errorf("update subscription %s: %w", sub.ID, err)
		}
	}
	return nil
}

// clearHandles drops the stored notification handle on every record.
func (s *SubscriptionService) clearHandles(ctx context.Context) error {
	subs, err := s.subs.List(ctx)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if sub.NotificationID == "" {
			continue
		}
		sub.NotificationID = ""
		if err := s.subs.Update(ctx, sub); err != nil {
			return fmt.Errorf("update subscription %s: %w", sub.ID, err)
		}
	}
	return nil
}

// applyHandles writes freshly issued handles back onto their records.
func (s *SubscriptionService) applyHandles(ctx context.Context, handles map[string]string) error {
	if len(handles) == 0 {
		return nil
	}
	subs, err := s.subs.List(ctx)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		handle, ok := handles[sub.ID]
		if !ok || sub.NotificationID == handle {
			continue
		}
		sub.NotificationID = handle
		if err := s.subs.Update(ctx, sub); err != nil {
			return fmt.Errorf("update subscription %s: %w", sub.ID, err)
		}
	}
	return nil
}
