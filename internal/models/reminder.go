package models

import (
	"time"

	"github.com/google/uuid"
)

// ReminderType distinguishes the scheduled reminders of an event.
type ReminderType string

const (
	ReminderFirst  ReminderType = "first"
	ReminderSecond ReminderType = "second"
)

// RecipientFilter selects who a reminder mentions by their current response.
type RecipientFilter struct {
	Accepted   bool `json:"notify_accepted"`
	Tentative  bool `json:"notify_tentative"`
	Declined   bool `json:"notify_declined"`
	NoResponse bool `json:"notify_no_response"`
}

// Any reports whether at least one filter is enabled.
func (f RecipientFilter) Any() bool {
	return f.Accepted || f.Tentative || f.Declined || f.NoResponse
}

// Matches reports whether a response value is selected by the filter.
func (f RecipientFilter) Matches(r Response) bool {
	switch r {
	case ResponseAccepted:
		return f.Accepted
	case ResponseTentative:
		return f.Tentative
	case ResponseDeclined:
		return f.Declined
	case ResponseNone:
		return f.NoResponse
	}
	return false
}

// ReminderJob is an at-most-once scheduled notification for an event.
type ReminderJob struct {
	ID        uuid.UUID       `json:"id"`
	EventID   uuid.UUID       `json:"event_id"`
	Type      ReminderType    `json:"type"`
	FireAt    time.Time       `json:"fire_at"`
	Sent      bool            `json:"sent"`
	Filter    RecipientFilter `json:"filter"`
	CreatedAt time.Time       `json:"created_at"`
}
