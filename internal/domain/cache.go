package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceSource is the external lookup behind the floor/average caches.
type PriceSource interface {
	// FloorPrice returns the lowest current asking price for an edition.
	// ErrNoFloorPrice when the source has no quote.
	FloorPrice(ctx context.Context, groupID string) (decimal.Decimal, error)
	// AverageSalePrice returns the recent mean sale price for an edition.
	// ErrNotFound when there is no sale history.
	AverageSalePrice(ctx context.Context, groupID string) (decimal.Decimal, error)
}

// PriceOracle is the read-through cache over a PriceSource. Lookups never
// fail: a miss that cannot be refreshed reports ok=false.
type PriceOracle interface {
	Floor(ctx context.Context, groupID string) (price decimal.Decimal, ok bool)
	Average(ctx context.Context, groupID string) (price decimal.Decimal, ok bool)
	// Undercut offers a newly observed asking price as a floor candidate.
	// Implementations only accept it when the cached entry is stale.
	Undercut(ctx context.Context, groupID string, price decimal.Decimal)
}

// MetadataSource resolves a moment's display attributes and mint facts.
type MetadataSource interface {
	ItemMetadata(ctx context.Context, itemID string) (ItemMetadata, error)
}

// LockManager provides distributed locking so only one poller replica runs a
// cycle at a time.
type LockManager interface {
	// Acquire returns ErrLockHeld when another holder owns the lock. The
	// unlock function is safe to call multiple times.
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus carries small JSON envelopes (new listings, sales, deal alerts)
// from the tracker to fan-out consumers such as the WebSocket hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
