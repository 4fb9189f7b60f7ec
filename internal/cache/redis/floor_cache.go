package redis

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/calebtran/momentdeals/internal/domain"
)

// FloorCache is the Redis-backed sibling of the in-memory floor cache, for
// deployments where several replicas should share one read-through price
// view. Each edition's floor and average live in hashes keyed
// "floor:{groupID}" / "avg:{groupID}" with "price" and "ts" fields; keys
// expire at twice the TTL so Redis handles eviction.
//
// It implements domain.PriceOracle.
type FloorCache struct {
	rdb         *redis.Client
	source      domain.PriceSource
	ttl         time.Duration
	guardWindow time.Duration
	logger      *slog.Logger
}

// NewFloorCache creates a shared price oracle over source.
func NewFloorCache(c *Client, source domain.PriceSource, ttl, guardWindow time.Duration, logger *slog.Logger) *FloorCache {
	return &FloorCache{
		rdb:         c.Underlying(),
		source:      source,
		ttl:         ttl,
		guardWindow: guardWindow,
		logger:      logger.With("component", "floorcache_redis"),
	}
}

func floorKey(groupID string) string {
	return "floor:" + groupID
}

func avgKey(groupID string) string {
	return "avg:" + groupID
}

// Floor returns the floor price for an edition, refreshing from the source
// when the shared entry is missing or expired.
func (c *FloorCache) Floor(ctx context.Context, groupID string) (decimal.Decimal, bool) {
	if price, _, ok := c.read(ctx, floorKey(groupID)); ok {
		return price, true
	}

	price, err := c.source.FloorPrice(ctx, groupID)
	if err != nil {
		c.logger.Debug("floor lookup failed", "group_id", groupID, "error", err)
		return decimal.Decimal{}, false
	}
	c.write(ctx, floorKey(groupID), price)
	return price, true
}

// Average returns the recent average sale price for an edition, read through
// the same policy as Floor.
func (c *FloorCache) Average(ctx context.Context, groupID string) (decimal.Decimal, bool) {
	if price, _, ok := c.read(ctx, avgKey(groupID)); ok {
		return price, true
	}

	price, err := c.source.AverageSalePrice(ctx, groupID)
	if err != nil {
		c.logger.Debug("average lookup failed", "group_id", groupID, "error", err)
		return decimal.Decimal{}, false
	}
	c.write(ctx, avgKey(groupID), price)
	return price, true
}

// Undercut offers a new asking price as a floor candidate. Accepted only
// when the shared entry is absent or older than the guard window, and only
// when it lowers the cached floor.
func (c *FloorCache) Undercut(ctx context.Context, groupID string, price decimal.Decimal) {
	if !price.IsPositive() {
		return
	}

	cached, writtenAt, ok := c.readRaw(ctx, floorKey(groupID))
	if ok {
		if time.Since(writtenAt) < c.guardWindow {
			return
		}
		if !price.LessThan(cached) {
			return
		}
	}
	c.write(ctx, floorKey(groupID), price)
}

// read returns the cached price when present and within the TTL.
func (c *FloorCache) read(ctx context.Context, key string) (decimal.Decimal, time.Time, bool) {
	price, writtenAt, ok := c.readRaw(ctx, key)
	if !ok || time.Since(writtenAt) > c.ttl {
		return decimal.Decimal{}, time.Time{}, false
	}
	return price, writtenAt, true
}

// readRaw returns the cached price regardless of age.
func (c *FloorCache) readRaw(ctx context.Context, key string) (decimal.Decimal, time.Time, bool) {
	vals, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil || len(vals) == 0 {
		if err != nil {
			c.logger.Debug("cache read failed", "key", key, "error", err)
		}
		return decimal.Decimal{}, time.Time{}, false
	}

	price, err := decimal.NewFromString(vals["price"])
	if err != nil {
		return decimal.Decimal{}, time.Time{}, false
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return decimal.Decimal{}, time.Time{}, false
	}
	return price, time.Unix(0, tsNano), true
}

func (c *FloorCache) write(ctx context.Context, key string, price decimal.Decimal) {
	fields := map[string]any{
		"price": price.String(),
		"ts":    strconv.FormatInt(time.Now().UnixNano(), 10),
	}
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, 2*c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Debug("cache write failed", "key", key, "error", err)
	}
}

var _ domain.PriceOracle = (*FloorCache)(nil)
