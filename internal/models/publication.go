package models

import (
	"time"

	"github.com/google/uuid"
)

// Publication is one announcement of an event into a (guild, channel) pair.
// At most one exists per (event, guild, channel).
type Publication struct {
	ID                 uuid.UUID   `json:"id"`
	EventID            uuid.UUID   `json:"event_id"`
	GuildID            string      `json:"guild_id"`
	ChannelID          string      `json:"channel_id"`
	MessageID          string      `json:"message_id"`
	Thread             ThreadRef   `json:"thread"`
	SquadronIDs        []uuid.UUID `json:"squadron_ids"`
	ReminderMessageIDs []string    `json:"reminder_message_ids,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
}

// ChannelKey identifies a (guild, channel) destination.
type ChannelKey struct {
	GuildID   string
	ChannelID string
}

// Key returns the publication's destination.
func (p *Publication) Key() ChannelKey {
	return ChannelKey{GuildID: p.GuildID, ChannelID: p.ChannelID}
}

// HasSquadron reports whether the squadron shares this publication.
func (p *Publication) HasSquadron(id uuid.UUID) bool {
	for _, s := range p.SquadronIDs {
		if s == id {
			return true
		}
	}
	return false
}
