package tracker

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/calebtran/momentdeals/internal/domain"
)

type priceEntry struct {
	price     decimal.Decimal
	updatedAt time.Time
}

// FloorCache is an in-memory read-through price cache keyed by edition.
// Entries older than the TTL are treated as absent and refreshed from the
// backing source; refresh failures report ok=false and are never fatal.
//
// It implements domain.PriceOracle.
type FloorCache struct {
	source      domain.PriceSource
	ttl         time.Duration
	guardWindow time.Duration
	cap         int
	logger      *slog.Logger

	mu     sync.Mutex
	floors map[string]priceEntry
	avgs   map[string]priceEntry

	now func() time.Time
}

// NewFloorCache builds a cache over source with the given TTL, undercut guard
// window, and entry cap (shared by the floor and average maps separately).
func NewFloorCache(source domain.PriceSource, ttl, guardWindow time.Duration, cap int, logger *slog.Logger) *FloorCache {
	return &FloorCache{
		source:      source,
		ttl:         ttl,
		guardWindow: guardWindow,
		cap:         cap,
		logger:      logger.With("component", "floorcache"),
		floors:      make(map[string]priceEntry),
		avgs:        make(map[string]priceEntry),
		now:         time.Now,
	}
}

// Floor returns the floor price for an edition, refreshing from the source
// when the cached entry is missing or expired. ok is false when no price is
// resolvable.
func (c *FloorCache) Floor(ctx context.Context, groupID string) (decimal.Decimal, bool) {
	c.mu.Lock()
	if e, fresh := c.lookup(c.floors, groupID); fresh {
		c.mu.Unlock()
		return e.price, true
	}
	c.mu.Unlock()

	price, err := c.source.FloorPrice(ctx, groupID)
	if err != nil {
		c.logger.Debug("floor lookup failed", "group_id", groupID, "error", err)
		return decimal.Decimal{}, false
	}

	c.store(c.floors, groupID, price)
	return price, true
}

// Average returns the recent average sale price for an edition, read through
// the same cache policy as Floor. ok is false when the edition has no sale
// history or the source is unavailable.
func (c *FloorCache) Average(ctx context.Context, groupID string) (decimal.Decimal, bool) {
	c.mu.Lock()
	if e, fresh := c.lookup(c.avgs, groupID); fresh {
		c.mu.Unlock()
		return e.price, true
	}
	c.mu.Unlock()

	price, err := c.source.AverageSalePrice(ctx, groupID)
	if err != nil {
		c.logger.Debug("average lookup failed", "group_id", groupID, "error", err)
		return decimal.Decimal{}, false
	}

	c.store(c.avgs, groupID, price)
	return price, true
}

// Undercut offers a newly listed asking price as a floor candidate. The offer
// is only accepted when the cached entry is absent or older than the guard
// window, and only when it actually lowers the cached floor. A fresh floor is
// never displaced by a single listing.
func (c *FloorCache) Undercut(_ context.Context, groupID string, price decimal.Decimal) {
	if !price.IsPositive() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.floors[groupID]
	if exists {
		if c.now().Sub(e.updatedAt) < c.guardWindow {
			return
		}
		if !price.LessThan(e.price) {
			return
		}
	}
	c.floors[groupID] = priceEntry{price: price, updatedAt: c.now()}
	c.evictLocked(c.floors)
}

// lookup must be called with the mutex held.
func (c *FloorCache) lookup(m map[string]priceEntry, groupID string) (priceEntry, bool) {
	e, ok := m[groupID]
	if !ok {
		return priceEntry{}, false
	}
	if c.now().Sub(e.updatedAt) > c.ttl {
		return priceEntry{}, false
	}
	return e, true
}

func (c *FloorCache) store(m map[string]priceEntry, groupID string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m[groupID] = priceEntry{price: price, updatedAt: c.now()}
	c.evictLocked(m)
}

// evictLocked drops the oldest 20% of entries by updatedAt once the map
// exceeds the cap. Must be called with the mutex held.
func (c *FloorCache) evictLocked(m map[string]priceEntry) {
	if c.cap <= 0 || len(m) <= c.cap {
		return
	}

	type aged struct {
		groupID   string
		updatedAt time.Time
	}
	entries := make([]aged, 0, len(m))
	for id, e := range m {
		entries = append(entries, aged{groupID: id, updatedAt: e.updatedAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].updatedAt.Before(entries[j].updatedAt)
	})

	drop := len(m) / 5
	if drop < 1 {
		drop = 1
	}
	for _, e := range entries[:drop] {
		delete(m, e.groupID)
	}
}
