package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisTTL bounds how long a crashed holder can block a job.
const DefaultRedisTTL = 5 * time.Minute

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX and a token-checked delete.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	prefix string

	mu     sync.Mutex
	tokens map[uuid.UUID]string
}

// NewRedisLocker creates a Redis-backed locker. A zero ttl uses DefaultRedisTTL.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisLocker{client: client, ttl: ttl, prefix: "lock:job:", tokens: make(map[uuid.UUID]string)}
}

func (l *RedisLocker) key(jobID uuid.UUID) string {
	return fmt.Sprintf("%s%d", l.prefix, KeyFor(jobID))
}

// TryAcquire sets the lock key if absent.
func (l *RedisLocker) TryAcquire(ctx context.Context, jobID uuid.UUID) (bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key(jobID), token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return false, nil
	}
	l.mu.Lock()
	l.tokens[jobID] = token
	l.mu.Unlock()
	return true, nil
}

// Release deletes the key only if this locker still owns it.
func (l *RedisLocker) Release(ctx context.Context, jobID uuid.UUID) error {
	l.mu.Lock()
	token, ok := l.tokens[jobID]
	delete(l.tokens, jobID)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client, []string{l.key(jobID)}, token).Err(); err != nil {
		return fmt.Errorf("redis release: %w", err)
	}
	return nil
}
