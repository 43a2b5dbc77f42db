// Package chat defines the chat-platform contract used by the bot core and its Discord adapter.
package chat

import (
	"context"
	"strings"
)

// ButtonStyle is the visual style of an interaction button.
type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota + 1
	ButtonSecondary
	ButtonSuccess
	ButtonDanger
)

// Button is an interaction button attached below a message.
type Button struct {
	Label    string
	CustomID string
	Style    ButtonStyle
}

// Field is one embed field.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Message is an outbound message: plain content plus an optional embed and buttons.
type Message struct {
	Content     string
	Title       string
	Description string
	Color       int
	Fields      []Field
	Footer      string
	Buttons     []Button
	// Mentions are user ids allowed to be pinged by Content.
	Mentions []string
}

// Member is a guild member as seen by the platform.
type Member struct {
	UserID      string
	Username    string
	DisplayName string
	RoleIDs     []string
}

// Channel is a platform channel or thread.
type Channel struct {
	ID       string
	GuildID  string
	Name     string
	IsThread bool
	Archived bool
}

// Client is everything the core needs from the chat platform. Implementations return
// errors that match the sentinels in errors.go under errors.Is.
type Client interface {
	SendMessage(ctx context.Context, channelID string, msg Message) (messageID string, err error)
	EditMessage(ctx context.Context, channelID, messageID string, msg Message) error
	// DeleteMessage treats an already-deleted message as success.
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	CreateThread(ctx context.Context, channelID, messageID, name string, archiveMinutes int) (threadID string, err error)
	// MessageThread returns the thread anchored to a message, or ErrNotFound.
	MessageThread(ctx context.Context, channelID, messageID string) (threadID string, err error)
	PostToThread(ctx context.Context, threadID string, msg Message) (messageID string, err error)
	// DeleteThread treats an already-deleted thread as success.
	DeleteThread(ctx context.Context, threadID string) error
	Channel(ctx context.Context, channelID string) (*Channel, error)
	Member(ctx context.Context, guildID, userID string) (*Member, error)
}

// MentionList renders user mentions for message content.
func MentionList(userIDs []string) string {
	parts := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		parts = append(parts, "<@"+id+">")
	}
	return strings.Join(parts, " ")
}
