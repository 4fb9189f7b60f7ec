package tracker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/calebtran/momentdeals/internal/domain"
)

// Signal bus channels the tracker publishes on.
const (
	ChannelListings = "listings"
	ChannelSales    = "sales"
	ChannelDeals    = "deals"
)

// persistTimeout bounds the detached durable writes so a hung database
// connection cannot pile up goroutines forever.
const persistTimeout = 10 * time.Second

// TransferSignaler notifies the marketplace that a moment changed hands.
// Calls are best effort; the tracker never blocks on them.
type TransferSignaler interface {
	SignalTransfer(ctx context.Context, itemID, from, to string) error
}

// Alerter delivers operator-facing notifications. Satisfied by
// notify.Notifier.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// ServiceOptions carries the optional collaborators and tuning knobs of a
// Service. Any nil collaborator disables the corresponding side effect.
type ServiceOptions struct {
	Sales      domain.SaleStore
	Bus        domain.SignalBus
	Transfers  TransferSignaler
	Alerter    Alerter
	Audit      domain.AuditStore
	AlertScore decimal.Decimal
}

// Service owns the in-memory book and mediates every mutation: it updates
// memory first, mirrors the change to the durable store asynchronously, and
// fans the change out to the signal bus and alerting.
//
// Memory is authoritative for reads. Durable writes are fire and forget with
// logged failures; a storage outage therefore never blocks event processing,
// at the cost of durability lagging memory.
type Service struct {
	book   *Book
	store  domain.ListingStore
	oracle domain.PriceOracle

	sales      domain.SaleStore
	bus        domain.SignalBus
	transfers  TransferSignaler
	alerter    Alerter
	audit      domain.AuditStore
	alertScore decimal.Decimal

	logger *slog.Logger
}

// NewService wires a Service over the book, its durable mirror, and the price
// oracle used for read-time re-scoring.
func NewService(book *Book, store domain.ListingStore, oracle domain.PriceOracle, opts ServiceOptions, logger *slog.Logger) *Service {
	return &Service{
		book:       book,
		store:      store,
		oracle:     oracle,
		sales:      opts.Sales,
		bus:        opts.Bus,
		transfers:  opts.Transfers,
		alerter:    opts.Alerter,
		audit:      opts.Audit,
		alertScore: opts.AlertScore,
		logger:     logger.With("component", "tracker"),
	}
}

// Init warms the book from durable records touched since the cutoff.
func (s *Service) Init(ctx context.Context, warmSince time.Time) error {
	listings, err := s.store.ListSince(ctx, warmSince)
	if err != nil {
		return err
	}
	s.book.Load(listings)

	active, seen, sold, unlisted := s.book.Stats()
	s.logger.Info("book warmed from store",
		"active", active, "seen", seen, "sold", sold, "unlisted", unlisted)
	return nil
}

// Upsert records a new or re-touched listing: memory first, then a detached
// durable write. A listing scoring at or above the alert threshold also
// produces a deal alert.
func (s *Service) Upsert(ctx context.Context, l domain.Listing) {
	isNew := s.book.Upsert(l)

	s.persist(func(ctx context.Context) error { return s.store.Upsert(ctx, l) },
		"upsert", l.ItemID)

	s.publish(ctx, ChannelListings, listingEnvelope("listed", l))

	if isNew && !s.alertScore.IsZero() && l.DealPercent.GreaterThanOrEqual(s.alertScore) {
		s.publish(ctx, ChannelDeals, listingEnvelope("deal", l))
		s.alert(l)
	}
}

// MarkSold flips the listing to sold. The seller is resolved from memory or,
// after a restart, from the durable store; when both sides of the trade are
// known the ownership transfer is signalled to the marketplace in a detached
// best-effort call.
func (s *Service) MarkSold(ctx context.Context, itemID, buyerAddress string, at time.Time) {
	l, found := s.book.MarkSold(itemID, buyerAddress, at)
	if !found {
		stored, err := s.store.GetByItemID(ctx, itemID)
		if err != nil {
			s.logger.Debug("sold event for unknown item", "item_id", itemID, "error", err)
		} else {
			l = stored
			l.Status = domain.ListingStatusSold
			l.BuyerAddress = buyerAddress
			l.UpdatedAt = at
		}
	}

	s.persist(func(ctx context.Context) error { return s.store.SetSold(ctx, itemID, buyerAddress, at) },
		"mark sold", itemID)

	if l.ItemID != "" {
		s.recordSale(l, at)
		s.publish(ctx, ChannelSales, listingEnvelope("sold", l))
	}

	if s.transfers != nil && l.SellerAddress != "" && buyerAddress != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			defer cancel()
			if err := s.transfers.SignalTransfer(ctx, itemID, l.SellerAddress, buyerAddress); err != nil {
				s.logger.Warn("transfer signal failed", "item_id", itemID, "error", err)
			}
		}()
	}
}

// MarkUnlisted flips the listing to unlisted. A non-empty listingRef is
// matched against the stored record so a stale removal cannot clobber a
// re-listing.
func (s *Service) MarkUnlisted(ctx context.Context, itemID, listingRef string, at time.Time) {
	l, applied := s.book.MarkUnlisted(itemID, listingRef, at)
	if !applied && listingRef != "" {
		if _, inMemory := s.book.Get(itemID); inMemory {
			s.logger.Debug("stale removal ignored", "item_id", itemID, "listing_ref", listingRef)
			return
		}
		// Evicted or post-restart: the ref guard falls back to the durable
		// record so a stale removal cannot clobber a re-listing there either.
		stored, err := s.store.GetByItemID(ctx, itemID)
		if err == nil && stored.ListingRef != "" && stored.ListingRef != listingRef {
			s.logger.Debug("stale removal ignored", "item_id", itemID, "listing_ref", listingRef)
			return
		}
	}

	s.persist(func(ctx context.Context) error { return s.store.SetUnlisted(ctx, itemID, at) },
		"mark unlisted", itemID)

	if l.ItemID != "" {
		s.publish(ctx, ChannelListings, listingEnvelope("unlisted", l))
	}
}

// ResetSoldToActive is the administrative undo for erroneous sold markings.
// Unlike the event-driven mutators it writes the durable store synchronously
// and reports the row count, since the caller is an operator who needs the
// result.
func (s *Service) ResetSoldToActive(ctx context.Context, f domain.ListingFilter) (int64, error) {
	count, err := s.store.ResetSoldToActive(ctx, f)
	if err != nil {
		return 0, err
	}

	resetIDs := s.book.ResetSoldToActive(f)

	if s.audit != nil {
		detail := map[string]any{"rows": count, "memory": len(resetIDs)}
		if f.GroupID != "" {
			detail["group_id"] = f.GroupID
		}
		if f.Seller != "" {
			detail["seller"] = f.Seller
		}
		if err := s.audit.Log(ctx, "reset_sold_to_active", detail); err != nil {
			s.logger.Warn("audit write failed", "error", err)
		}
	}

	s.logger.Info("reset sold listings to active", "rows", count, "memory", len(resetIDs))
	return count, nil
}

// ListActive returns the active listings matching the filter, re-scored
// against the oracle's current floor and average so a stale write-time score
// is never served.
func (s *Service) ListActive(ctx context.Context, f domain.ListingFilter) []domain.Listing {
	// Score and limit constraints only make sense against fresh scores, so
	// the book sees neither; both apply after re-scoring below.
	bookFilter := f
	bookFilter.MinScore = decimal.Decimal{}
	bookFilter.Limit = 0
	listings := s.book.ListActive(bookFilter)

	for i := range listings {
		l := &listings[i]
		floor, ok := s.oracle.Floor(ctx, l.GroupID)
		if !ok {
			continue
		}
		avg, _ := s.oracle.Average(ctx, l.GroupID)
		l.FloorAtListing = floor
		l.AverageSalePrice = avg
		l.DealPercent = DealScore(ScoreInput{
			Price:        l.Price,
			Floor:        floor,
			Average:      avg,
			Serial:       l.Serial,
			MaxMint:      l.MaxMint,
			JerseyNumber: l.JerseyNumber,
		})
	}

	if !f.MinScore.IsZero() {
		kept := listings[:0]
		for _, l := range listings {
			if l.DealPercent.GreaterThanOrEqual(f.MinScore) {
				kept = append(kept, l)
			}
		}
		listings = kept
	}
	if f.Limit > 0 && len(listings) > f.Limit {
		listings = listings[:f.Limit]
	}
	return listings
}

// Get returns one listing, falling back to the durable store when the item
// has been evicted from memory.
func (s *Service) Get(ctx context.Context, itemID string) (domain.Listing, error) {
	if l, ok := s.book.Get(itemID); ok {
		return l, nil
	}
	return s.store.GetByItemID(ctx, itemID)
}

// Stats exposes the book's collection sizes for the health endpoint.
func (s *Service) Stats() (active, seen, sold, unlisted int) {
	return s.book.Stats()
}

// persist runs a durable write in a detached goroutine. Failure is logged,
// never propagated; the write is effectively retried on the next mutation of
// the same record.
func (s *Service) persist(write func(context.Context) error, op, itemID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := write(ctx); err != nil {
			s.logger.Warn("durable write failed", "op", op, "item_id", itemID, "error", err)
		}
	}()
}

func (s *Service) recordSale(l domain.Listing, at time.Time) {
	if s.sales == nil {
		return
	}
	sale := domain.Sale{
		ItemID:        l.ItemID,
		GroupID:       l.GroupID,
		ListingRef:    l.ListingRef,
		Price:         l.Price,
		SellerAddress: l.SellerAddress,
		BuyerAddress:  l.BuyerAddress,
		SoldAt:        at,
	}
	s.persist(func(ctx context.Context) error { return s.sales.Insert(ctx, sale) },
		"record sale", l.ItemID)
}

func (s *Service) publish(ctx context.Context, channel string, payload []byte) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.Warn("signal publish failed", "channel", channel, "error", err)
	}
}

// alert delivers a deal notification in a detached best-effort call.
func (s *Service) alert(l domain.Listing) {
	if s.alerter == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		title := "Deal: " + l.PlayerName
		if l.PlayerName == "" {
			title = "Deal: moment " + l.ItemID
		}
		msg := "price " + l.Price.String() + ", floor " + l.FloorAtListing.String() +
			", score " + l.DealPercent.String() + "%"
		if err := s.alerter.Notify(ctx, "deal_alert", title, msg); err != nil {
			s.logger.Warn("deal alert failed", "item_id", l.ItemID, "error", err)
		}
	}()
}

// listingEnvelope is the JSON payload published on the signal bus.
func listingEnvelope(kind string, l domain.Listing) []byte {
	env := map[string]any{
		"type":    kind,
		"itemId":  l.ItemID,
		"groupId": l.GroupID,
		"price":   l.Price.String(),
		"status":  string(l.Status),
	}
	if !l.DealPercent.IsZero() {
		env["score"] = l.DealPercent.String()
	}
	if l.PlayerName != "" {
		env["player"] = l.PlayerName
	}
	if l.BuyerAddress != "" {
		env["buyer"] = l.BuyerAddress
	}
	b, _ := json.Marshal(env)
	return b
}
