// Package cache keeps open events in memory keyed by publication message id so button
// presses do not hit the database. It is a performance layer only: every miss falls
// through to the loader and the processor never reads from it.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/squadron-ops/eventbot/internal/models"
)

// DefaultRefresh is how often Run reloads every open event.
const DefaultRefresh = 5 * time.Minute

// Loader reads events from the store.
type Loader interface {
	// GetByMessageID returns nil, nil when no publication carries the message.
	GetByMessageID(ctx context.Context, messageID string) (*models.Event, error)
	ListOpen(ctx context.Context) ([]models.Event, error)
}

// Publisher broadcasts invalidations to other instances.
type Publisher interface {
	PublishInvalidation(ctx context.Context, eventID uuid.UUID) error
}

// EventCache is a read-through event cache.
type EventCache struct {
	loader Loader
	bus    Publisher
	logger *zap.Logger

	mu      sync.RWMutex
	byMsg   map[string]*models.Event
	byEvent map[uuid.UUID][]string
}

// New creates an EventCache. bus may be nil on a single instance.
func New(loader Loader, bus Publisher, logger *zap.Logger) *EventCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventCache{
		loader:  loader,
		bus:     bus,
		logger:  logger,
		byMsg:   make(map[string]*models.Event),
		byEvent: make(map[uuid.UUID][]string),
	}
}

// Get returns a private copy of the event owning messageID, loading it on a miss.
func (c *EventCache) Get(ctx context.Context, messageID string) (*models.Event, error) {
	c.mu.RLock()
	ev, ok := c.byMsg[messageID]
	c.mu.RUnlock()
	if ok {
		return clone(ev), nil
	}
	ev, err := c.loader.GetByMessageID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("load event for message %s: %w", messageID, err)
	}
	if ev == nil {
		return nil, nil
	}
	c.Set(ev)
	return clone(ev), nil
}

// Set stores ev under each of its publication message ids, replacing older entries.
func (c *EventCache) Set(ev *models.Event) {
	cp := clone(ev)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked(ev.ID)
	ids := cp.MessageIDs()
	for _, id := range ids {
		c.byMsg[id] = cp
	}
	c.byEvent[ev.ID] = ids
}

// Invalidate drops the event locally and tells peers to do the same.
func (c *EventCache) Invalidate(ctx context.Context, eventID uuid.UUID) {
	c.Drop(eventID)
	if c.bus == nil {
		return
	}
	if err := c.bus.PublishInvalidation(ctx, eventID); err != nil {
		c.logger.Warn("publish cache invalidation failed", zap.String("event_id", eventID.String()), zap.Error(err))
	}
}

// Drop removes the event locally without broadcasting.
func (c *EventCache) Drop(eventID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked(eventID)
}

func (c *EventCache) dropLocked(eventID uuid.UUID) {
	for _, id := range c.byEvent[eventID] {
		delete(c.byMsg, id)
	}
	delete(c.byEvent, eventID)
}

// ReloadAll replaces the cache contents with every open event.
func (c *EventCache) ReloadAll(ctx context.Context) error {
	events, err := c.loader.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("list open events: %w", err)
	}
	byMsg := make(map[string]*models.Event)
	byEvent := make(map[uuid.UUID][]string, len(events))
	for i := range events {
		cp := clone(&events[i])
		ids := cp.MessageIDs()
		for _, id := range ids {
			byMsg[id] = cp
		}
		byEvent[cp.ID] = ids
	}
	c.mu.Lock()
	c.byMsg, c.byEvent = byMsg, byEvent
	c.mu.Unlock()
	c.logger.Debug("event cache reloaded", zap.Int("events", len(events)))
	return nil
}

// Len returns the number of cached events.
func (c *EventCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byEvent)
}

// Run reloads the cache every interval until ctx is done.
func (c *EventCache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRefresh
	}
	if err := c.ReloadAll(ctx); err != nil {
		c.logger.Warn("initial cache load failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ReloadAll(ctx); err != nil {
				c.logger.Warn("cache refresh failed", zap.Error(err))
			}
		}
	}
}

func clone(ev *models.Event) *models.Event {
	cp := *ev
	cp.SquadronIDs = append([]uuid.UUID(nil), ev.SquadronIDs...)
	cp.Publications = make([]models.Publication, len(ev.Publications))
	for i, p := range ev.Publications {
		p.SquadronIDs = append([]uuid.UUID(nil), p.SquadronIDs...)
		p.ReminderMessageIDs = append([]string(nil), p.ReminderMessageIDs...)
		cp.Publications[i] = p
	}
	return &cp
}
