package memory

import (
	"context"
	"sync"

	"subtrack/internal/core"
	"subtrack/internal/store"
)

// Store is an in-memory subscription and preferences store. New records are
// prepended so the most recently added subscription lists first.
type Store struct {
	mu    sync.Mutex
	items []core.Subscription
	prefs core.Preferences
}

func New() *Store {
	return &Store{prefs: core.DefaultPreferences()}
}

func (s *Store) List(_ context.Context) ([]core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Subscription(nil), s.items...), nil
}

func (s *Store) Get(_ context.Context, id string) (core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.items {
		if sub.ID == id {
			return sub, nil
		}
	}
	return core.Subscription{}, store.ErrNotFound
}

func (s *Store) Append(_ context.Context, sub core.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]core.Subscription{sub}, s.items...)
	return nil
}

func (s *Store) Update(_ context.Context, sub core.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == sub.ID {
			s.items[i] = sub
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) ReplaceAll(_ context.Context, subs []core.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]core.Subscription(nil), subs...)
	return nil
}

func (s *Store) Preferences(_ context.Context) (core.Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs, nil
}

func (s *Store) SavePreferences(_ context.Context, prefs core.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs = prefs
	return nil
}
