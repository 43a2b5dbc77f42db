package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// InvalidationChannel is the Redis channel carrying cache invalidations.
	InvalidationChannel = "eventcache:invalidate"
	publishTimeout      = 5 * time.Second
)

type invalidation struct {
	EventID uuid.UUID `json:"event_id"`
	Origin  string    `json:"origin"`
	At      int64     `json:"at"`
}

// RedisBus fans cache invalidations out to every instance over Redis pub/sub.
type RedisBus struct {
	client *redis.Client
	origin string
	logger *zap.Logger
}

// NewRedisBus creates an invalidation bus. Messages published by this bus are ignored by
// its own subscription.
func NewRedisBus(client *redis.Client, logger *zap.Logger) *RedisBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBus{client: client, origin: uuid.NewString(), logger: logger}
}

// PublishInvalidation announces that eventID changed.
func (b *RedisBus) PublishInvalidation(ctx context.Context, eventID uuid.UUID) error {
	body, err := json.Marshal(invalidation{EventID: eventID, Origin: b.origin, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return b.client.Publish(ctx, InvalidationChannel, body).Err()
}

// Subscribe drops peers' invalidated events from c until the returned cancel is called.
func (b *RedisBus) Subscribe(ctx context.Context, c *EventCache) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(ctx)
	pubsub := b.client.Subscribe(ctx, InvalidationChannel)
	if _, err = pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var inv invalidation
				if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
					b.logger.Warn("invalid cache invalidation payload", zap.String("raw", msg.Payload))
					continue
				}
				if inv.Origin == b.origin {
					continue
				}
				c.Drop(inv.EventID)
			}
		}
	}()
	return cancelCtx, nil
}
