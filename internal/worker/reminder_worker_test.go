package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"subtrack/internal/amqp"
	"subtrack/internal/storage"
)

type fakeStore struct {
	mu      sync.Mutex
	pending map[string]storage.PendingReminder
}

func newFakeStore() *fakeStore {
	return &fakeStore{pending: make(map[string]storage.PendingReminder)}
}

func (s *fakeStore) UpsertPendingReminder(_ context.Context, rem storage.PendingReminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[rem.Handle] = rem
	return nil
}

func (s *fakeStore) DeletePendingReminder(_ context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, handle)
	return nil
}

func (s *fakeStore) DeleteAllPendingReminders(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make(map[string]storage.PendingReminder)
	return nil
}

func (s *fakeStore) DuePendingReminders(_ context.Context, now time.Time, limit int) ([]storage.PendingReminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []storage.PendingReminder
	for _, rem := range s.pending {
		if !rem.FireAt.After(now) {
			due = append(due, rem)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].FireAt.Before(due[j].FireAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

type recordingNotifier struct {
	delivered []string
	failWith  error
}

func (n *recordingNotifier) Deliver(_ context.Context, rem storage.PendingReminder) error {
	if n.failWith != nil {
		return n.failWith
	}
	n.delivered = append(n.delivered, rem.Handle)
	return nil
}

func TestHandleScheduleMessage(t *testing.T) {
	store := newFakeStore()
	w := NewReminderWorker(store, nil, 10, nil)
	ctx := context.Background()

	msg := amqp.NewReminderScheduleMessage("h-1", "sub-1", "Renewal reminder: Music", "renews in 7 days",
		time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC))
	if err := w.HandleScheduleMessage(ctx, msg); err != nil {
		t.Fatalf("HandleScheduleMessage() error = %v", err)
	}
	if store.count() != 1 {
		t.Errorf("pending count = %d, want 1", store.count())
	}

	// Redelivery of the same handle is idempotent.
	if err := w.HandleScheduleMessage(ctx, msg); err != nil {
		t.Fatalf("HandleScheduleMessage() redelivery error = %v", err)
	}
	if store.count() != 1 {
		t.Errorf("pending count after redelivery = %d, want 1", store.count())
	}

	if err := w.HandleScheduleMessage(ctx, &amqp.ReminderScheduleMessage{}); err == nil {
		t.Error("HandleScheduleMessage() accepted a message without handle")
	}
}

func TestHandleCancelMessage(t *testing.T) {
	store := newFakeStore()
	w := NewReminderWorker(store, nil, 10, nil)
	ctx := context.Background()

	fireAt := time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC)
	for _, handle := range []string{"h-1", "h-2", "h-3"} {
		_ = w.HandleScheduleMessage(ctx, amqp.NewReminderScheduleMessage(handle, "sub", "t", "b", fireAt))
	}

	if err := w.HandleCancelMessage(ctx, amqp.NewReminderCancelMessage("h-2")); err != nil {
		t.Fatalf("HandleCancelMessage() error = %v", err)
	}
	if store.count() != 2 {
		t.Errorf("pending count = %d, want 2", store.count())
	}

	// Cancelling an unknown handle is a no-op.
	if err := w.HandleCancelMessage(ctx, amqp.NewReminderCancelMessage("h-2")); err != nil {
		t.Errorf("HandleCancelMessage() repeat error = %v", err)
	}

	if err := w.HandleCancelMessage(ctx, amqp.NewReminderCancelAllMessage()); err != nil {
		t.Fatalf("HandleCancelMessage(all) error = %v", err)
	}
	if store.count() != 0 {
		t.Errorf("pending count after cancel-all = %d, want 0", store.count())
	}

	if err := w.HandleCancelMessage(ctx, &amqp.ReminderCancelMessage{}); err == nil {
		t.Error("HandleCancelMessage() accepted a message without handle")
	}
}

func TestDispatchDue(t *testing.T) {
	now := time.Date(2025, 6, 18, 9, 0, 0, 0, time.UTC)
	store := newFakeStore()
	notifier := &recordingNotifier{}
	w := NewReminderWorker(store, notifier, 10, func() time.Time { return now })
	ctx := context.Background()

	_ = w.HandleScheduleMessage(ctx, amqp.NewReminderScheduleMessage("past", "sub-1", "t", "b",
		now.Add(-24*time.Hour)))
	_ = w.HandleScheduleMessage(ctx, amqp.NewReminderScheduleMessage("now", "sub-2", "t", "b", now))
	_ = w.HandleScheduleMessage(ctx, amqp.NewReminderScheduleMessage("future", "sub-3", "t", "b",
		now.Add(24*time.Hour)))

	if err := w.DispatchDue(ctx); err != nil {
		t.Fatalf("DispatchDue() error = %v", err)
	}

	if len(notifier.delivered) != 2 {
		t.Fatalf("delivered = %v, want past and now", notifier.delivered)
	}
	if notifier.delivered[0] != "past" || notifier.delivered[1] != "now" {
		t.Errorf("delivery order = %v, want oldest first", notifier.delivered)
	}
	if store.count() != 1 {
		t.Errorf("pending count = %d, want only the future reminder", store.count())
	}
}

func TestDispatchDueKeepsReminderOnDeliveryFailure(t *testing.T) {
	now := time.Date(2025, 6, 18, 9, 0, 0, 0, time.UTC)
	store := newFakeStore()
	notifier := &recordingNotifier{failWith: errors.New("delivery channel down")}
	w := NewReminderWorker(store, notifier, 10, func() time.Time { return now })
	ctx := context.Background()

	_ = w.HandleScheduleMessage(ctx, amqp.NewReminderScheduleMessage("h-1", "sub-1", "t", "b",
		now.Add(-time.Hour)))

	if err := w.DispatchDue(ctx); err != nil {
		t.Fatalf("DispatchDue() error = %v", err)
	}
	if store.count() != 1 {
		t.Errorf("pending count = %d, want reminder retained for retry", store.count())
	}

	// Next tick succeeds and clears it.
	notifier.failWith = nil
	if err := w.DispatchDue(ctx); err != nil {
		t.Fatalf("DispatchDue() retry error = %v", err)
	}
	if store.count() != 0 {
		t.Errorf("pending count after retry = %d, want 0", store.count())
	}
}

func TestDispatchDueRespectsBatchSize(t *testing.T) {
	now := time.Date(2025, 6, 18, 9, 0, 0, 0, time.UTC)
	store := newFakeStore()
	notifier := &recordingNotifier{}
	w := NewReminderWorker(store, notifier, 2, func() time.Time { return now })
	ctx := context.Background()

	for i, handle := range []string{"h-1", "h-2", "h-3"} {
		_ = w.HandleScheduleMessage(ctx, amqp.NewReminderScheduleMessage(handle, "sub", "t", "b",
			now.Add(-time.Duration(i+1)*time.Hour)))
	}

	if err := w.DispatchDue(ctx); err != nil {
		t.Fatalf("DispatchDue() error = %v", err)
	}
	if len(notifier.delivered) != 2 {
		t.Errorf("delivered = %d, want batch of 2", len(notifier.delivered))
	}
	if store.count() != 1 {
		t.Errorf("pending count = %d, want 1 left for next tick", store.count())
	}
}
