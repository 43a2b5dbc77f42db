package models

import (
	"time"

	"github.com/google/uuid"
)

// Response is a user's answer to an event.
type Response string

const (
	ResponseAccepted  Response = "accepted"
	ResponseTentative Response = "tentative"
	ResponseDeclined  Response = "declined"
	// ResponseNone marks a roster member who never answered. It is never stored.
	ResponseNone Response = "no_response"
)

// ParseResponse validates a stored or pressed response value.
func ParseResponse(s string) (Response, bool) {
	switch Response(s) {
	case ResponseAccepted, ResponseTentative, ResponseDeclined:
		return Response(s), true
	}
	return "", false
}

// AttendanceRecord is one append-only button press.
type AttendanceRecord struct {
	ID          uuid.UUID `json:"id"`
	EventID     uuid.UUID `json:"event_id"`
	MessageID   string    `json:"message_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Response    Response  `json:"response"`
	CreatedAt   time.Time `json:"created_at"`
}

// AttendanceSummary is the latest-wins view of an event's responses.
type AttendanceSummary struct {
	EventID   uuid.UUID          `json:"event_id"`
	Accepted  []AttendanceRecord `json:"accepted"`
	Tentative []AttendanceRecord `json:"tentative"`
	Declined  []AttendanceRecord `json:"declined"`
}
