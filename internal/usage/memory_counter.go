package usage

import (
	"context"
	"sync"
	"time"
)

// MemoryCounter is an in-process Counter.
type MemoryCounter struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	count    int64
	expireAt time.Time
}

// NewMemoryCounter creates a MemoryCounter. A nil clock uses time.Now.
func NewMemoryCounter(clock func() time.Time) *MemoryCounter {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryCounter{entries: make(map[string]memoryEntry), now: clock}
}

// Increment adds one to key.
func (c *MemoryCounter) Increment(_ context.Context, key string, expireAt time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictLocked()
	e := c.entries[key]
	e.count++
	e.expireAt = expireAt
	c.entries[key] = e
	return e.count, nil
}

// Count returns the value at key.
func (c *MemoryCounter) Count(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expireAt) {
		return 0, nil
	}
	return e.count, nil
}

func (c *MemoryCounter) evictLocked() {
	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expireAt) {
			delete(c.entries, k)
		}
	}
}

var _ Counter = (*MemoryCounter)(nil)
