// Package chattest provides an in-memory chat.Client for tests.
package chattest

import (
	"context"
	"fmt"
	"sync"

	"github.com/squadron-ops/eventbot/internal/chat"
)

// Sent is one recorded outbound message.
type Sent struct {
	ChannelID string
	MessageID string
	Message   chat.Message
}

// Fake records every call. Error hooks, when set, are consulted before the default behavior.
type Fake struct {
	mu     sync.Mutex
	nextID int

	Sent           []Sent
	Edited         []Sent
	DeletedMsgs    []string
	DeletedThreads []string
	CreatedThreads []string
	ArchiveMinutes []int

	// threads maps anchor message id to thread id.
	threads  map[string]string
	messages map[string]bool
	members  map[string]*chat.Member

	SendErr         func(channelID string) error
	EditErr         func(messageID string) error
	DeleteErr       func(messageID string) error
	CreateThreadErr func(messageID string) error
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		threads:  make(map[string]string),
		messages: make(map[string]bool),
		members:  make(map[string]*chat.Member),
	}
}

func (f *Fake) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s%d", prefix, f.nextID)
}

// AddMessage registers an existing message so deletes and threads can find it.
func (f *Fake) AddMessage(messageID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[messageID] = true
}

// AddThread registers an existing thread anchored to messageID.
func (f *Fake) AddThread(messageID, threadID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads[messageID] = threadID
}

// AddMember registers a guild member.
func (f *Fake) AddMember(m chat.Member) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[m.UserID] = &m
}

func (f *Fake) SendMessage(_ context.Context, channelID string, msg chat.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		if err := f.SendErr(channelID); err != nil {
			return "", err
		}
	}
	id := f.id("m")
	f.messages[id] = true
	f.Sent = append(f.Sent, Sent{ChannelID: channelID, MessageID: id, Message: msg})
	return id, nil
}

func (f *Fake) EditMessage(_ context.Context, channelID, messageID string, msg chat.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EditErr != nil {
		if err := f.EditErr(messageID); err != nil {
			return err
		}
	}
	f.Edited = append(f.Edited, Sent{ChannelID: channelID, MessageID: messageID, Message: msg})
	return nil
}

func (f *Fake) DeleteMessage(_ context.Context, _, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		if err := chat.IgnoreGone(f.DeleteErr(messageID)); err != nil {
			return err
		}
	}
	delete(f.messages, messageID)
	f.DeletedMsgs = append(f.DeletedMsgs, messageID)
	return nil
}

func (f *Fake) CreateThread(_ context.Context, _, messageID, _ string, archiveMinutes int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateThreadErr != nil {
		if err := f.CreateThreadErr(messageID); err != nil {
			return "", err
		}
	}
	if _, ok := f.threads[messageID]; ok {
		return "", &chat.Error{Kind: chat.ErrThreadExists}
	}
	id := f.id("t")
	f.threads[messageID] = id
	f.CreatedThreads = append(f.CreatedThreads, id)
	f.ArchiveMinutes = append(f.ArchiveMinutes, archiveMinutes)
	return id, nil
}

func (f *Fake) MessageThread(_ context.Context, _, messageID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.threads[messageID]; ok {
		return id, nil
	}
	return "", &chat.Error{Kind: chat.ErrNotFound}
}

func (f *Fake) PostToThread(ctx context.Context, threadID string, msg chat.Message) (string, error) {
	return f.SendMessage(ctx, threadID, msg)
}

func (f *Fake) DeleteThread(_ context.Context, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for anchor, id := range f.threads {
		if id == threadID {
			delete(f.threads, anchor)
		}
	}
	f.DeletedThreads = append(f.DeletedThreads, threadID)
	return nil
}

func (f *Fake) Channel(_ context.Context, channelID string) (*chat.Channel, error) {
	return &chat.Channel{ID: channelID}, nil
}

func (f *Fake) Member(_ context.Context, _, userID string) (*chat.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.members[userID]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, &chat.Error{Kind: chat.ErrNotFound}
}

// SentTo returns the messages sent to a channel or thread.
func (f *Fake) SentTo(channelID string) []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Sent
	for _, s := range f.Sent {
		if s.ChannelID == channelID {
			out = append(out, s)
		}
	}
	return out
}
