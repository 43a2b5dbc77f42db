package models

import (
	"time"

	"github.com/google/uuid"
)

// Allowed thread auto-archive durations, in minutes.
const (
	ArchiveOneHour   = 60
	ArchiveOneDay    = 1440
	ArchiveThreeDays = 4320
	ArchiveOneWeek   = 10080
)

// NormalizeArchiveMinutes keeps only supported durations; anything else becomes one day.
func NormalizeArchiveMinutes(m int) int {
	switch m {
	case ArchiveOneHour, ArchiveOneDay, ArchiveThreeDays, ArchiveOneWeek:
		return m
	}
	return ArchiveOneDay
}

// Squadron is an organizational unit with its announcement destination and thread policy.
type Squadron struct {
	ID                   uuid.UUID `json:"id"`
	Name                 string    `json:"name"`
	GuildID              string    `json:"guild_id"`
	ChannelID            string    `json:"channel_id"`
	UseThreads           bool      `json:"use_threads"`
	ThreadArchiveMinutes int       `json:"thread_archive_minutes"`
}

// ArchiveMinutes returns the normalized auto-archive duration.
func (s *Squadron) ArchiveMinutes() int {
	return NormalizeArchiveMinutes(s.ThreadArchiveMinutes)
}

// RosterMember is a user on the roster with the activity of their current status.
type RosterMember struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	StatusName  string `json:"status_name"`
	Active      bool   `json:"active"`
}

// SquadronAssignment places a user in a squadron for a time window.
type SquadronAssignment struct {
	UserID     string     `json:"user_id"`
	SquadronID uuid.UUID  `json:"squadron_id"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}
