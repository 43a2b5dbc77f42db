package lock

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryLocker is a process-local Locker for single-instance deployments and tests.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[uuid.UUID]struct{}
}

// NewMemoryLocker returns an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[uuid.UUID]struct{})}
}

func (l *MemoryLocker) TryAcquire(_ context.Context, jobID uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[jobID]; ok {
		return false, nil
	}
	l.held[jobID] = struct{}{}
	return true, nil
}

func (l *MemoryLocker) Release(_ context.Context, jobID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, jobID)
	return nil
}
