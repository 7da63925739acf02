// Package backup implements the subscription backup file format: a JSON
// document carrying the full subscription list, the export timestamp and a
// format version. Import is all-or-nothing; a single bad record rejects the
// whole document.
package backup

import (
	"encoding/json"
	"fmt"
	"time"

	"subtrack/internal/core"
)

// Version is the current backup document format version.
const Version = "1.0.0"

// Document is the on-disk backup format.
type Document struct {
	Subscriptions []core.Subscription `json:"subscriptions"`
	ExportDate    time.Time           `json:"exportDate"`
	Version       string              `json:"version"`
}

// Export serializes the subscription list into a backup document.
func Export(subs []core.Subscription, now time.Time) ([]byte, error) {
	doc := Document{
		Subscriptions: subs,
		ExportDate:    now,
		Version:       Version,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal backup document: %w", err)
	}
	return data, nil
}

// Parse decodes and validates a backup document, returning the subscription
// list ready for a bulk replace. Notification handles are reset: reminders
// are re-derived after import, never restored from the file.
//
// Every record must carry a string id and label, a numeric amount, and an
// interval from the allowed set (case-insensitive); a present renewal date
// must parse. Any violation rejects the document wholesale.
func Parse(data []byte) ([]core.Subscription, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid file format: %w", err)
	}
	if doc.Subscriptions == nil {
		return nil, fmt.Errorf("invalid file format: missing subscriptions array")
	}

	for i, sub := range doc.Subscriptions {
		if err := validateRecord(sub); err != nil {
			return nil, fmt.Errorf("invalid subscription data at index %d: %w", i, err)
		}
	}

	subs := make([]core.Subscription, len(doc.Subscriptions))
	for i, sub := range doc.Subscriptions {
		sub.NotificationID = ""
		subs[i] = sub
	}
	return subs, nil
}

func validateRecord(sub core.Subscription) error {
	if sub.ID == "" {
		return fmt.Errorf("missing id")
	}
	if sub.Label == "" {
		return fmt.Errorf("missing label")
	}
	if !sub.Interval.IsValid() {
		return fmt.Errorf("interval %q not in allowed set", sub.Interval)
	}
	return nil
}
