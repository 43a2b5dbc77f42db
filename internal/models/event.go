package models

import (
	"time"

	"github.com/google/uuid"
)

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	EventStatusScheduled EventStatus = "scheduled"
	EventStatusActive    EventStatus = "active"
	EventStatusConcluded EventStatus = "concluded"
)

// Default reminder offsets before the event start.
const (
	DefaultFirstReminderMinutes  = 24 * 60
	DefaultSecondReminderMinutes = 60
	// DefaultEventDuration is used for status transitions when an event has no end time.
	DefaultEventDuration = 2 * time.Hour
)

// EventSettings is the settings blob stored as JSONB on the event row.
type EventSettings struct {
	FirstReminderMinutes  int             `json:"first_reminder_minutes,omitempty"`
	SecondReminderMinutes int             `json:"second_reminder_minutes,omitempty"`
	DisableSecondReminder bool            `json:"disable_second_reminder,omitempty"`
	ThreadName            string          `json:"thread_name,omitempty"`
	Filter                RecipientFilter `json:"filter"`
}

// FirstOffset returns the first reminder offset before start.
func (s EventSettings) FirstOffset() time.Duration {
	if s.FirstReminderMinutes <= 0 {
		return DefaultFirstReminderMinutes * time.Minute
	}
	return time.Duration(s.FirstReminderMinutes) * time.Minute
}

// SecondOffset returns the second reminder offset before start.
func (s EventSettings) SecondOffset() time.Duration {
	if s.SecondReminderMinutes <= 0 {
		return DefaultSecondReminderMinutes * time.Minute
	}
	return time.Duration(s.SecondReminderMinutes) * time.Minute
}

// Event is a scheduled squadron occurrence, independent of its chat representation.
type Event struct {
	ID           uuid.UUID     `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	StartsAt     time.Time     `json:"starts_at"`
	EndsAt       *time.Time    `json:"ends_at,omitempty"`
	Status       EventStatus   `json:"status"`
	SquadronIDs  []uuid.UUID   `json:"squadron_ids"`
	Settings     EventSettings `json:"settings"`
	CreatedBy    string        `json:"created_by"`
	FinalizedAt  *time.Time    `json:"finalized_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Publications []Publication `json:"publications,omitempty"`
}

// EffectiveEnd returns EndsAt or StartsAt plus DefaultEventDuration.
func (e *Event) EffectiveEnd() time.Time {
	if e.EndsAt != nil {
		return *e.EndsAt
	}
	return e.StartsAt.Add(DefaultEventDuration)
}

// FirstPublication returns the canonical (oldest) publication, or nil.
func (e *Event) FirstPublication() *Publication {
	if len(e.Publications) == 0 {
		return nil
	}
	return &e.Publications[0]
}

// MessageIDs returns the message ids of every publication.
func (e *Event) MessageIDs() []string {
	ids := make([]string, 0, len(e.Publications))
	for _, p := range e.Publications {
		if p.MessageID != "" {
			ids = append(ids, p.MessageID)
		}
	}
	return ids
}

// ScheduledPublication is a deferred "announce this event" job.
type ScheduledPublication struct {
	ID        uuid.UUID  `json:"id"`
	EventID   uuid.UUID  `json:"event_id"`
	PublishAt time.Time  `json:"publish_at"`
	DoneAt    *time.Time `json:"done_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
