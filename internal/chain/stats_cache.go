package chain

import (
	"context"
	"sync"
	"time"

	"example.com/quadclue/internal/codec"
)

const DefaultStatsTTL = 15 * time.Second

type statsEntry struct {
	stats   PlayerStats
	fetched time.Time
}

// StatsCache keeps found player stats for a short TTL. Misses and errors
// are never cached.
type StatsCache struct {
	src StatsFetcher
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]statsEntry
}

func NewStatsCache(src StatsFetcher, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = DefaultStatsTTL
	}
	return &StatsCache{
		src:     src,
		ttl:     ttl,
		now:     time.Now,
		entries: map[string]statsEntry{},
	}
}

func (c *StatsCache) PlayerStats(ctx context.Context, address string) (PlayerStats, bool, error) {
	key := codec.NormalizeAddress(address)

	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if ok && c.now().Sub(e.fetched) < c.ttl {
		return e.stats, true, nil
	}

	stats, found, err := c.src.PlayerStats(ctx, address)
	if err != nil || !found {
		return stats, found, err
	}

	c.mu.Lock()
	c.entries[key] = statsEntry{stats: stats, fetched: c.now()}
	c.mu.Unlock()
	return stats, true, nil
}

// Invalidate drops the cached entry so the next read goes to the source.
func (c *StatsCache) Invalidate(address string) {
	c.mu.Lock()
	delete(c.entries, codec.NormalizeAddress(address))
	c.mu.Unlock()
}
