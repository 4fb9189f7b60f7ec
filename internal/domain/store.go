package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListingStore is the durable mirror of the in-memory listing book. The
// in-memory state is authoritative for reads; the store exists to survive
// restarts and evictions.
type ListingStore interface {
	Upsert(ctx context.Context, l Listing) error
	GetByItemID(ctx context.Context, itemID string) (Listing, error)
	SetSold(ctx context.Context, itemID, buyerAddress string, at time.Time) error
	SetUnlisted(ctx context.Context, itemID string, at time.Time) error
	// ResetSoldToActive flips matching sold records back to active and
	// returns the number of rows changed.
	ResetSoldToActive(ctx context.Context, f ListingFilter) (int64, error)
	// ListSince returns listings touched after the cutoff, newest first.
	// Used to warm the in-memory book on startup.
	ListSince(ctx context.Context, since time.Time) ([]Listing, error)
	// ListTerminalBefore returns sold/unlisted listings last touched before
	// the cutoff, for the retention sweep.
	ListTerminalBefore(ctx context.Context, before time.Time) ([]Listing, error)
	DeleteTerminalBefore(ctx context.Context, before time.Time) (int64, error)
}

// SaleStore persists completed sales and answers average-price queries.
type SaleStore interface {
	Insert(ctx context.Context, s Sale) error
	// GroupAverage returns the mean sale price for an edition since the
	// cutoff. ErrNotFound when the edition has no sales in the window.
	GroupAverage(ctx context.Context, groupID string, since time.Time) (decimal.Decimal, error)
}

// CursorStore persists the poller's block-height cursor across restarts.
type CursorStore interface {
	// Load returns ErrCursorUnset when no cursor has ever been saved.
	Load(ctx context.Context) (uint64, error)
	Save(ctx context.Context, height uint64) error
}

// AuditStore persists an append-only audit log of administrative and
// archival actions.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}
