package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Monthly   Interval = "monthly"
	Quarterly Interval = "quarterly"
	Yearly    Interval = "yearly"
)

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	CAD Currency = "CAD"
	AUD Currency = "AUD"
)

type (
	// Interval is the billing cadence of a subscription.
	Interval string

	// Currency is a display currency code. No conversion is performed anywhere.
	Currency string

	// Date is a calendar date. The zero value means "no date set"; a
	// subscription without a scheduled renewal carries a zero Date.
	Date struct {
		time.Time
	}

	// Subscription is a single recurring expense on record. NextRenewal is the
	// anchor date: for quarterly subscriptions it fixes which four months of
	// the year the charge lands in. NotificationID is the handle of the one
	// reminder notification currently scheduled for this record, empty when
	// there is none.
	Subscription struct {
		ID             string   `json:"id"`
		Label          string   `json:"label"`
		Amount         float64  `json:"amount"`
		Interval       Interval `json:"interval"`
		Currency       Currency `json:"currency"`
		NextRenewal    Date     `json:"nextRenewal"`
		ReminderDays   int      `json:"reminderDays"`
		NotificationID string   `json:"notificationId,omitempty"`
	}

	// Preferences is the per-install settings singleton. ReminderDays is the
	// default lead time applied to new subscriptions; Notifications gates all
	// reminder scheduling.
	Preferences struct {
		DefaultCurrency Currency `json:"defaultCurrency"`
		Notifications   bool     `json:"notifications"`
		ReminderDays    int      `json:"reminderDays"`
	}
)

var (
	ErrEmptyLabel          = errors.New("empty label")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidInterval     = errors.New("invalid interval")
	ErrInvalidCurrency     = errors.New("invalid currency")
	ErrInvalidReminderDays = errors.New("invalid reminder days")
)

// ParseInterval normalizes a case-insensitive interval string.
func ParseInterval(s string) (Interval, error) {
	switch Interval(strings.ToLower(strings.TrimSpace(s))) {
	case Monthly:
		return Monthly, nil
	case Quarterly:
		return Quarterly, nil
	case Yearly:
		return Yearly, nil
	}
	return "", ErrInvalidInterval
}

// Norm lowercases the interval so comparisons are case-insensitive, matching
// how intervals are treated everywhere amounts are normalized.
func (i Interval) Norm() Interval {
	return Interval(strings.ToLower(string(i)))
}

func (i Interval) IsValid() bool {
	switch i.Norm() {
	case Monthly, Quarterly, Yearly:
		return true
	}
	return false
}

func (c Currency) IsValid() bool {
	switch c {
	case USD, EUR, GBP, CAD, AUD:
		return true
	}
	return false
}

// NewDate creates a Date at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// MarshalJSON encodes the date as RFC 3339, or null when unset.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(time.RFC3339) + `"`), nil
}

// UnmarshalJSON accepts null, RFC 3339 timestamps and plain YYYY-MM-DD dates.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		d.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// HasRenewal reports whether a renewal date is on record.
func (s Subscription) HasRenewal() bool {
	return !s.NextRenewal.IsZero()
}

// Validate enforces the add/edit boundary invariants. Records that fail
// validation are never stored.
func (s Subscription) Validate() error {
	if strings.TrimSpace(s.Label) == "" {
		return ErrEmptyLabel
	}
	if s.Amount <= 0 {
		return ErrInvalidAmount
	}
	if !s.Interval.IsValid() {
		return ErrInvalidInterval
	}
	if !s.Currency.IsValid() {
		return ErrInvalidCurrency
	}
	if s.ReminderDays < 0 {
		return ErrInvalidReminderDays
	}
	return nil
}

func (p Preferences) Validate() error {
	if !p.DefaultCurrency.IsValid() {
		return ErrInvalidCurrency
	}
	if p.ReminderDays < 0 {
		return ErrInvalidReminderDays
	}
	return nil
}

// DefaultPreferences mirrors the out-of-the-box install settings.
func DefaultPreferences() Preferences {
	return Preferences{
		DefaultCurrency: EUR,
		Notifications:   false,
		ReminderDays:    7,
	}
}
