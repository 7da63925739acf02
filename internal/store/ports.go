package store

import (
	"context"
	"errors"

	"subtrack/internal/core"
)

// ErrNotFound is returned when no subscription exists for an id.
var ErrNotFound = errors.New("subscription not found")

// Ports for the collection store. The engine never persists directly; it
// reads the current list, computes, and hands replacement records back
// through these interfaces.
type (
	SubscriptionStore interface {
		// List returns the current ordered subscription list.
		List(ctx context.Context) ([]core.Subscription, error)

		// Get returns a single subscription by id, or ErrNotFound.
		Get(ctx context.Context, id string) (core.Subscription, error)

		// Append adds a new record.
		Append(ctx context.Context, sub core.Subscription) error

		// Update replaces the record with the same id, or ErrNotFound.
		Update(ctx context.Context, sub core.Subscription) error

		// Delete removes the record by id, or ErrNotFound.
		Delete(ctx context.Context, id string) error

		// ReplaceAll swaps the whole collection, used by import.
		ReplaceAll(ctx context.Context, subs []core.Subscription) error
	}

	PreferencesStore interface {
		// Preferences returns the settings singleton, falling back to
		// defaults when none have been saved yet.
		Preferences(ctx context.Context) (core.Preferences, error)

		// SavePreferences persists the settings singleton.
		SavePreferences(ctx context.Context, prefs core.Preferences) error
	}
)
