package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/calebtran/momentdeals/internal/domain"
)

// pollerLockKey guards the poll cycle when multiple replicas share a Redis.
const pollerLockKey = "momentdeals:poller"

// EventSource is the slice of the ledger gateway the poller consumes.
type EventSource interface {
	SealedHeight(ctx context.Context) (uint64, error)
	EventsInRange(ctx context.Context, eventType string, start, end uint64) ([]domain.LedgerEvent, error)
}

// PollerConfig is the static tuning of a Poller.
type PollerConfig struct {
	Interval        time.Duration
	WindowSize      uint64
	StartupLookback uint64

	// Fully-qualified on-chain event types.
	ListingCreatedType   string
	ListingCompletedType string
	ListingRemovedType   string

	// CatalogType restricts created events to one collectible type. Empty
	// tracks everything.
	CatalogType string
}

// Poller advances a block-height cursor over the ledger, fetches the three
// listing lifecycle event kinds per window, and drives the Service. One
// cycle runs at a time; the cursor only moves forward.
type Poller struct {
	cfg    PollerConfig
	ledger EventSource
	svc    *Service
	oracle domain.PriceOracle
	meta   domain.MetadataSource
	cursor domain.CursorStore

	// Optional collaborators.
	locks    domain.LockManager
	archiver domain.Archiver

	logger *slog.Logger

	mu           sync.Mutex
	height       uint64
	cursorLoaded bool
}

// NewPoller builds a poller. locks and archiver may be nil; cursor may not.
func NewPoller(cfg PollerConfig, ledger EventSource, svc *Service, oracle domain.PriceOracle,
	meta domain.MetadataSource, cursor domain.CursorStore, locks domain.LockManager,
	archiver domain.Archiver, logger *slog.Logger) *Poller {
	return &Poller{
		cfg:      cfg,
		ledger:   ledger,
		svc:      svc,
		oracle:   oracle,
		meta:     meta,
		cursor:   cursor,
		locks:    locks,
		archiver: archiver,
		logger:   logger.With("component", "poller"),
	}
}

// RunLoop polls on the configured interval until the context is cancelled.
// Cycle failures are logged and retried on the next tick.
func (p *Poller) RunLoop(ctx context.Context) error {
	p.logger.Info("poller starting",
		"interval", p.cfg.Interval, "window_size", p.cfg.WindowSize)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := p.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Error("poll cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			p.logger.Info("poller stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle executes one poll cycle: read the sealed height, fetch the next
// window of events, apply them, and advance the cursor. A fetch failure
// leaves the cursor untouched so the window is retried next tick.
func (p *Poller) RunCycle(ctx context.Context) error {
	if p.locks != nil {
		unlock, err := p.locks.Acquire(ctx, pollerLockKey, 2*p.cfg.Interval)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				p.logger.Debug("poll cycle held elsewhere, skipping")
				return nil
			}
			return err
		}
		defer unlock()
	}

	sealed, err := p.ledger.SealedHeight(ctx)
	if err != nil {
		return err
	}

	cursor, err := p.loadCursor(ctx, sealed)
	if err != nil {
		return err
	}
	if sealed <= cursor {
		return nil
	}

	end := sealed
	if max := cursor + p.cfg.WindowSize; end > max {
		end = max
	}

	events, err := p.fetchWindow(ctx, cursor+1, end)
	if err != nil {
		return err
	}

	for _, ev := range events {
		p.apply(ctx, ev)
	}

	// The cursor advances unconditionally once the window was fetched, so a
	// malformed event can never stall it.
	p.advanceCursor(ctx, end)

	if p.archiver != nil && len(events) > 0 {
		window := domain.EventWindow{Start: cursor, End: end, Events: events, FetchedAt: time.Now().UTC()}
		go func() {
			actx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			defer cancel()
			if err := p.archiver.ArchiveEventWindow(actx, window); err != nil {
				p.logger.Warn("event window archive failed", "end", end, "error", err)
			}
		}()
	}

	if len(events) > 0 {
		p.logger.Info("window applied", "start", cursor+1, "end", end, "events", len(events))
	}
	return nil
}

// Cursor returns the in-memory cursor, for the health endpoint. Zero before
// the first cycle.
func (p *Poller) Cursor() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.height
}

// loadCursor returns the working cursor, reading the durable value on the
// first cycle and seeding it below the sealed head when none exists.
func (p *Poller) loadCursor(ctx context.Context, sealed uint64) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cursorLoaded {
		return p.height, nil
	}

	h, err := p.cursor.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrCursorUnset):
		h = 0
		if sealed > p.cfg.StartupLookback {
			h = sealed - p.cfg.StartupLookback
		}
		p.logger.Info("cursor seeded", "height", h, "sealed", sealed)
	case err != nil:
		return 0, err
	default:
		p.logger.Info("cursor restored", "height", h)
	}

	p.height = h
	p.cursorLoaded = true
	return h, nil
}

// advanceCursor moves the in-memory cursor forward and mirrors it durably.
// The durable write failing only costs an overlapping window after a
// restart, which event application tolerates.
func (p *Poller) advanceCursor(ctx context.Context, height uint64) {
	p.mu.Lock()
	if height <= p.height {
		p.mu.Unlock()
		return
	}
	p.height = height
	p.mu.Unlock()

	if err := p.cursor.Save(ctx, height); err != nil {
		p.logger.Warn("cursor save failed", "height", height, "error", err)
	}
}

// fetchWindow fetches the three event kinds concurrently for the inclusive
// range [start, end] and merges them into block-then-event order.
func (p *Poller) fetchWindow(ctx context.Context, start, end uint64) ([]domain.LedgerEvent, error) {
	kinds := []string{
		p.cfg.ListingCreatedType,
		p.cfg.ListingCompletedType,
		p.cfg.ListingRemovedType,
	}

	results := make([][]domain.LedgerEvent, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			events, err := p.ledger.EventsInRange(gctx, kind, start, end)
			if err != nil {
				return err
			}
			results[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []domain.LedgerEvent
	for _, r := range results {
		merged = append(merged, r...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].BlockHeight != merged[j].BlockHeight {
			return merged[i].BlockHeight < merged[j].BlockHeight
		}
		return merged[i].EventIndex < merged[j].EventIndex
	})
	return merged, nil
}

// apply dispatches one decoded event. Malformed or unscorable events are
// skipped with a log line; they never fail the cycle.
func (p *Poller) apply(ctx context.Context, ev domain.LedgerEvent) {
	switch ev.Type {
	case p.cfg.ListingCreatedType:
		p.applyCreated(ctx, ev)
	case p.cfg.ListingCompletedType:
		if ev.Bool("purchased") {
			p.svc.MarkSold(ctx, ev.Str("id"), ev.Str("buyer"), time.Now().UTC())
		} else {
			p.svc.MarkUnlisted(ctx, ev.Str("id"), ev.Str("listingResourceID"), time.Now().UTC())
		}
	case p.cfg.ListingRemovedType:
		p.svc.MarkUnlisted(ctx, ev.Str("id"), ev.Str("listingResourceID"), time.Now().UTC())
	default:
		p.logger.Debug("unexpected event type", "type", ev.Type)
	}
}

// applyCreated validates, enriches, scores, and upserts one created event.
func (p *Poller) applyCreated(ctx context.Context, ev domain.LedgerEvent) {
	itemID := ev.Str("id")
	price := ev.Decimal("price")
	if itemID == "" || !price.IsPositive() {
		p.logger.Debug("skipping created event without id or price",
			"tx_id", ev.TxID, "item_id", itemID)
		return
	}

	// An event that does not declare the tracked type is out of catalog,
	// including one with no type field at all.
	if p.cfg.CatalogType != "" && ev.Str("momentType") != p.cfg.CatalogType {
		return
	}

	var meta domain.ItemMetadata
	if p.meta != nil {
		m, err := p.meta.ItemMetadata(ctx, itemID)
		if err != nil {
			p.logger.Debug("metadata lookup failed", "item_id", itemID, "error", err)
		} else {
			meta = m
		}
	}

	groupID := ev.Str("editionId")
	if groupID == "" {
		groupID = meta.GroupID
	}
	if groupID == "" {
		p.logger.Debug("skipping created event without edition", "item_id", itemID)
		return
	}

	floor, ok := p.oracle.Floor(ctx, groupID)
	if !ok {
		// A listing cannot be scored without a floor reference.
		p.logger.Debug("skipping created event without floor", "item_id", itemID, "group_id", groupID)
		return
	}
	avg, _ := p.oracle.Average(ctx, groupID)

	now := time.Now().UTC()
	l := domain.Listing{
		ItemID:           itemID,
		ListingRef:       ev.Str("listingResourceID"),
		GroupID:          groupID,
		Price:            price,
		FloorAtListing:   floor,
		AverageSalePrice: avg,
		Status:           domain.ListingStatusActive,
		SellerAddress:    ev.Str("seller"),
		PlayerName:       meta.PlayerName,
		TeamName:         meta.TeamName,
		Tier:             meta.Tier,
		Serial:           meta.Serial,
		MaxMint:          meta.MaxMint,
		JerseyNumber:     meta.JerseyNumber,
		ListedAt:         now,
		UpdatedAt:        now,
	}
	l.DealPercent = DealScore(ScoreInput{
		Price:        price,
		Floor:        floor,
		Average:      avg,
		Serial:       meta.Serial,
		MaxMint:      meta.MaxMint,
		JerseyNumber: meta.JerseyNumber,
	})

	p.svc.Upsert(ctx, l)
	p.oracle.Undercut(ctx, groupID, price)
}
