package ingestion

import (
	"context"
	"sync"
)

// resourceLocks serializes batches per (workspace, resource). Waiting for
// a lock honours context cancellation.
type resourceLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newResourceLocks() *resourceLocks {
	return &resourceLocks{slots: make(map[string]chan struct{})}
}

func lockKey(workspaceID, resourceID string) string {
	return workspaceID + "\x00" + resourceID
}

func (l *resourceLocks) acquire(ctx context.Context, key string) (release func(), err error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
