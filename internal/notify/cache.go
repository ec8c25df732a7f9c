package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCountTTL is how long an unread count stays fresh.
const DefaultCountTTL = 30 * time.Second

type countEntry struct {
	value     int64
	expiresAt time.Time
}

// CountCache caches per-user unread notification counts. The clock is
// injected so expiry is testable.
type CountCache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]countEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewCountCache(ttl time.Duration, now func() time.Time) *CountCache {
	if ttl <= 0 {
		ttl = DefaultCountTTL
	}
	if now == nil {
		now = time.Now
	}
	return &CountCache{
		entries: make(map[uuid.UUID]countEntry),
		ttl:     ttl,
		now:     now,
	}
}

// Get returns the cached count for the user, or false if missing or
// expired. Expired entries are evicted lazily on the next Set.
func (c *CountCache) Get(userID uuid.UUID) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[userID]
	if !ok || c.now().After(entry.expiresAt) {
		return 0, false
	}
	return entry.value, true
}

func (c *CountCache) Set(userID uuid.UUID, count int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for id, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, id)
		}
	}
	c.entries[userID] = countEntry{value: count, expiresAt: now.Add(c.ttl)}
}

// Invalidate drops the cached count after any read/archive/fan-out that
// changes it.
func (c *CountCache) Invalidate(userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}
