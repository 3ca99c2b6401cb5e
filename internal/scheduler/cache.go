package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tiffinbox/backend/internal/calendar"
	"github.com/tiffinbox/backend/internal/clock"
	"github.com/tiffinbox/backend/internal/models"
)

// Cache stores computed projections per account. Keys already embed the
// ledger version, so a stale key is never read after a mutation;
// Invalidate drops the account's entries eagerly.
type Cache interface {
	Get(ctx context.Context, accountID uuid.UUID, key string) ([]models.ProjectionEntry, bool)
	Set(ctx context.Context, accountID uuid.UUID, key string, entries []models.ProjectionEntry)
	Invalidate(ctx context.Context, accountID uuid.UUID)
}

// CacheKey identifies one projection of one account.
func CacheKey(version int64, today time.Time, horizon, cost int) string {
	return fmt.Sprintf("v%d:%s:%d:%d", version, calendar.Format(today), horizon, cost)
}

type memoryEntry struct {
	entries []models.ProjectionEntry
	expires time.Time
}

// MemoryCache is a process-local Cache with a per-entry TTL.
type MemoryCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	clock clock.Clock
	items map[uuid.UUID]map[string]memoryEntry
}

func NewMemoryCache(ttl time.Duration, clk clock.Clock) *MemoryCache {
	if clk == nil {
		clk = clock.Real()
	}
	return &MemoryCache{ttl: ttl, clock: clk, items: make(map[uuid.UUID]map[string]memoryEntry)}
}

var _ Cache = (*MemoryCache)(nil)

func (c *MemoryCache) Get(_ context.Context, accountID uuid.UUID, key string) ([]models.ProjectionEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[accountID][key]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && c.clock.Now().After(e.expires) {
		delete(c.items[accountID], key)
		return nil, false
	}
	return append([]models.ProjectionEntry(nil), e.entries...), true
}

func (c *MemoryCache) Set(_ context.Context, accountID uuid.UUID, key string, entries []models.ProjectionEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.items[accountID]
	if m == nil {
		m = make(map[string]memoryEntry)
		c.items[accountID] = m
	}
	m[key] = memoryEntry{
		entries: append([]models.ProjectionEntry(nil), entries...),
		expires: c.clock.Now().Add(c.ttl),
	}
}

func (c *MemoryCache) Invalidate(_ context.Context, accountID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, accountID)
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, uuid.UUID, string) ([]models.ProjectionEntry, bool) {
	return nil, false
}
func (NopCache) Set(context.Context, uuid.UUID, string, []models.ProjectionEntry) {}
func (NopCache) Invalidate(context.Context, uuid.UUID) {}
