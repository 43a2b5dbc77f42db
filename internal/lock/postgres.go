package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PGLocker holds session-level Postgres advisory locks. Each held lock pins one pooled
// connection until Release, since the lock belongs to the session that took it.
type PGLocker struct {
	pool   *pgxpool.Pool
	logger *zap.Logger

	mu   sync.Mutex
	held map[uuid.UUID]*pgxpool.Conn
}

// NewPGLocker creates a Postgres advisory locker.
func NewPGLocker(pool *pgxpool.Pool, logger *zap.Logger) *PGLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PGLocker{pool: pool, logger: logger, held: make(map[uuid.UUID]*pgxpool.Conn)}
}

// TryAcquire takes the lock with pg_try_advisory_lock.
func (l *PGLocker) TryAcquire(ctx context.Context, jobID uuid.UUID) (bool, error) {
	l.mu.Lock()
	if _, ok := l.held[jobID]; ok {
		l.mu.Unlock()
		return false, nil
	}
	l.mu.Unlock()

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire conn: %w", err)
	}
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, KeyFor(jobID)).Scan(&ok); err != nil {
		conn.Release()
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return false, nil
	}

	l.mu.Lock()
	l.held[jobID] = conn
	l.mu.Unlock()
	return true, nil
}

// Release unlocks and returns the pinned connection to the pool.
func (l *PGLocker) Release(ctx context.Context, jobID uuid.UUID) error {
	l.mu.Lock()
	conn, ok := l.held[jobID]
	delete(l.held, jobID)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	return l.unlock(ctx, jobID, conn)
}

func (l *PGLocker) unlock(ctx context.Context, jobID uuid.UUID, conn *pgxpool.Conn) error {
	var released bool
	err := conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, KeyFor(jobID)).Scan(&released)
	if err != nil {
		// The session may still hold the lock; closing it is the only way to drop it.
		l.logger.Warn("advisory unlock failed, closing session", zap.String("job_id", jobID.String()), zap.Error(err))
		raw := conn.Hijack()
		_ = raw.Close(context.WithoutCancel(ctx))
		return fmt.Errorf("advisory unlock: %w", err)
	}
	conn.Release()
	if !released {
		l.logger.Warn("advisory lock was not held at release", zap.String("job_id", jobID.String()))
	}
	return nil
}
