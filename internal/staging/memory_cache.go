package staging

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type memoryEntry struct {
	reg       Registration
	expiresAt time.Time
}

// MemoryCache is an in-process Cache whose expiry follows an injected clock.
type MemoryCache struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entries map[string]memoryEntry
}

// NewMemoryCache builds an empty cache. A nil clock uses the system clock.
func NewMemoryCache(clock clockwork.Clock) *MemoryCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryCache{clock: clock, entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Put(_ context.Context, phone string, reg Registration, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[phone] = memoryEntry{reg: reg, expiresAt: c.clock.Now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Get(_ context.Context, phone string) (Registration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[phone]
	if !ok {
		return Registration{}, ErrNotFound
	}
	if !entry.expiresAt.After(c.clock.Now()) {
		delete(c.entries, phone)
		return Registration{}, ErrNotFound
	}
	return entry.reg, nil
}

func (c *MemoryCache) Delete(_ context.Context, phone string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, phone)
	return nil
}
