package amqp

import (
	"encoding/json"
	"time"
)

// ReminderScheduleMessage asks the reminder worker to register a pending
// reminder. It carries the full notification content so the worker can fire
// it without reading the subscription store.
type ReminderScheduleMessage struct {
	Handle         string    `json:"handle"`
	SubscriptionID string    `json:"subscriptionId"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	FireAt         time.Time `json:"fireAt"`
	Timestamp      time.Time `json:"timestamp"`
}

// ReminderCancelMessage asks the reminder worker to drop a pending reminder.
// All=true drops every pending reminder and Handle is ignored.
type ReminderCancelMessage struct {
	Handle    string    `json:"handle,omitempty"`
	All       bool      `json:"all,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewReminderScheduleMessage(handle, subscriptionID, title, body string, fireAt time.Time) *ReminderScheduleMessage {
	return &ReminderScheduleMessage{
		Handle:         handle,
		SubscriptionID: subscriptionID,
		Title:          title,
		Body:           body,
		FireAt:         fireAt,
		Timestamp:      time.Now(),
	}
}

func NewReminderCancelMessage(handle string) *ReminderCancelMessage {
	return &ReminderCancelMessage{
		Handle:    handle,
		Timestamp: time.Now(),
	}
}

func NewReminderCancelAllMessage() *ReminderCancelMessage {
	return &ReminderCancelMessage{
		All:       true,
		Timestamp: time.Now(),
	}
}

func (m *ReminderScheduleMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ReminderScheduleMessageFromJSON(data []byte) (*ReminderScheduleMessage, error) {
	var msg ReminderScheduleMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (m *ReminderCancelMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ReminderCancelMessageFromJSON(data []byte) (*ReminderCancelMessage, error) {
	var msg ReminderCancelMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
