// Package lock provides the per-job mutual exclusion used by the processor so that
// exactly one instance works a reminder, publication or event at a time.
package lock

import (
	"context"
	"encoding/binary"

	"github.com/google/uuid"
)

// Locker acquires and releases per-job locks without blocking.
type Locker interface {
	// TryAcquire returns false, nil when another holder owns the lock.
	TryAcquire(ctx context.Context, jobID uuid.UUID) (bool, error)
	Release(ctx context.Context, jobID uuid.UUID) error
}

// KeyFor derives the signed 64-bit advisory lock key for a job id: the first eight bytes
// read big-endian as an unsigned integer, wrapped into the signed range.
func KeyFor(id uuid.UUID) int64 {
	u := binary.BigEndian.Uint64(id[:8])
	if u > 1<<63-1 {
		return -int64(^u) - 1
	}
	return int64(u)
}
