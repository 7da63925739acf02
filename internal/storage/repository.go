// Package storage is the SQLite persistence layer. One repository serves the
// subscription collection, the preferences singleton and the reminder
// worker's pending-reminder table.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"subtrack/internal/core"
	"subtrack/internal/store"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const subscriptionColumns = "id, label, amount, interval, currency, next_renewal, reminder_days, notification_id"

func (r *SQLiteRepository) List(ctx context.Context) ([]core.Subscription, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+subscriptionColumns+" FROM subscriptions ORDER BY position ASC")
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []core.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (core.Subscription, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+subscriptionColumns+" FROM subscriptions WHERE id = ?", id)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Subscription{}, store.ErrNotFound
	}
	return sub, err
}

// Append inserts the record at the head of the list so the newest
// subscription lists first.
func (r *SQLiteRepository) Append(ctx context.Context, sub core.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, label, amount, interval, currency, next_renewal, reminder_days, notification_id, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MIN(position), 0) - 1 FROM subscriptions))`,
		sub.ID, sub.Label, sub.Amount, string(sub.Interval), string(sub.Currency),
		renewalValue(sub.NextRenewal), sub.ReminderDays, sub.NotificationID)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}

	slog.InfoContext(ctx, "Subscription saved to SQLite",
		"id", sub.ID,
		"label", sub.Label,
		"amount", sub.Amount,
		"interval", sub.Interval)
	return nil
}

func (r *SQLiteRepository) Update(ctx context.Context, sub core.Subscription) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET label = ?, amount = ?, interval = ?, currency = ?, next_renewal = ?, reminder_days = ?, notification_id = ?
		WHERE id = ?`,
		sub.Label, sub.Amount, string(sub.Interval), string(sub.Currency),
		renewalValue(sub.NextRenewal), sub.ReminderDays, sub.NotificationID, sub.ID)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM subscriptions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ReplaceAll swaps the whole collection in one transaction, preserving the
// incoming order.
func (r *SQLiteRepository) ReplaceAll(ctx context.Context, subs []core.Subscription) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM subscriptions"); err != nil {
		return fmt.Errorf("clear subscriptions: %w", err)
	}
	for i, sub := range subs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO subscriptions (id, label, amount, interval, currency, next_renewal, reminder_days, notification_id, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sub.ID, sub.Label, sub.Amount, string(sub.Interval), string(sub.Currency),
			renewalValue(sub.NextRenewal), sub.ReminderDays, sub.NotificationID, i)
		if err != nil {
			return fmt.Errorf("insert subscription %s: %w", sub.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	slog.InfoContext(ctx, "Subscription collection replaced", "count", len(subs))
	return nil
}

func (r *SQLiteRepository) Preferences(ctx context.Context) (core.Preferences, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT default_currency, notifications, reminder_days FROM preferences WHERE id = 1")

	var prefs core.Preferences
	var currency string
	err := row.Scan(&currency, &prefs.Notifications, &prefs.ReminderDays)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DefaultPreferences(), nil
	}
	if err != nil {
		return core.Preferences{}, fmt.Errorf("load preferences: %w", err)
	}
	prefs.DefaultCurrency = core.Currency(currency)
	return prefs, nil
}

func (r *SQLiteRepository) SavePreferences(ctx context.Context, prefs core.Preferences) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO preferences (id, default_currency, notifications, reminder_days)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			default_currency = excluded.default_currency,
			notifications = excluded.notifications,
			reminder_days = excluded.reminder_days`,
		string(prefs.DefaultCurrency), prefs.Notifications, prefs.ReminderDays)
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

// PendingReminder is a reminder registered with the worker, waiting to fire.
type PendingReminder struct {
	Handle         string
	SubscriptionID string
	Title          string
	Body           string
	FireAt         time.Time
}

// UpsertPendingReminder registers or refreshes a pending reminder keyed by
// handle. Redelivered schedule messages land here twice; the second write is
// a no-op.
func (r *SQLiteRepository) UpsertPendingReminder(ctx context.Context, rem PendingReminder) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_reminders (handle, subscription_id, title, body, fire_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(handle) DO UPDATE SET
			subscription_id = excluded.subscription_id,
			title = excluded.title,
			body = excluded.body,
			fire_at = excluded.fire_at`,
		rem.Handle, rem.SubscriptionID, rem.Title, rem.Body, rem.FireAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert pending reminder: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeletePendingReminder(ctx context.Context, handle string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM pending_reminders WHERE handle = ?", handle); err != nil {
		return fmt.Errorf("delete pending reminder: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteAllPendingReminders(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM pending_reminders"); err != nil {
		return fmt.Errorf("delete all pending reminders: %w", err)
	}
	return nil
}

// DuePendingReminders returns reminders whose fire time has passed, oldest
// first.
func (r *SQLiteRepository) DuePendingReminders(ctx context.Context, now time.Time, limit int) ([]PendingReminder, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT handle, subscription_id, title, body, fire_at
		FROM pending_reminders
		WHERE fire_at <= ?
		ORDER BY fire_at ASC
		LIMIT ?`,
		now.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, fmt.Errorf("query due reminders: %w", err)
	}
	defer rows.Close()

	var due []PendingReminder
	for rows.Next() {
		var rem PendingReminder
		var fireAt string
		if err := rows.Scan(&rem.Handle, &rem.SubscriptionID, &rem.Title, &rem.Body, &fireAt); err != nil {
			return nil, fmt.Errorf("scan pending reminder: %w", err)
		}
		rem.FireAt, err = time.Parse(time.RFC3339, fireAt)
		if err != nil {
			return nil, fmt.Errorf("parse fire_at %q: %w", fireAt, err)
		}
		due = append(due, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query due reminders: %w", err)
	}
	return due, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (core.Subscription, error) {
	var sub core.Subscription
	var interval, currency string
	var renewal sql.NullString

	err := row.Scan(&sub.ID, &sub.Label, &sub.Amount, &interval, &currency,
		&renewal, &sub.ReminderDays, &sub.NotificationID)
	if err != nil {
		return core.Subscription{}, err
	}

	sub.Interval = core.Interval(interval)
	sub.Currency = core.Currency(currency)
	if renewal.Valid {
		t, err := time.Parse(time.RFC3339, renewal.String)
		if err != nil {
			return core.Subscription{}, fmt.Errorf("parse next_renewal %q: %w", renewal.String, err)
		}
		sub.NextRenewal = core.Date{Time: t}
	}
	return sub, nil
}

// renewalValue maps an absent renewal date to NULL.
func renewalValue(d core.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.UTC().Format(time.RFC3339)
}
