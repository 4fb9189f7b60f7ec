package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/calebtran/momentdeals/internal/domain"
)

// ResourceChecker probes the ledger for a specific listing resource.
type ResourceChecker interface {
	// ResourceExists reports whether the account still holds the resource.
	// false with a nil error means the resource is definitively gone.
	ResourceExists(ctx context.Context, address, resourceID string) (bool, error)
}

// HoldingsSource is the secondary inventory used to disambiguate a vanished
// listing resource.
type HoldingsSource interface {
	HoldsItem(ctx context.Context, address, itemID, resourceType string) (bool, error)
}

// Verifier resolves on demand whether a listing whose resource vanished from
// the ledger was sold or merely withdrawn. The poller's completed events
// normally answer this directly; the verifier covers missed or out-of-order
// events and consumers who need a fresher answer than the poll interval.
type Verifier struct {
	ledger      ResourceChecker
	holdings    HoldingsSource
	svc         *Service
	catalogType string
	logger      *slog.Logger
}

// NewVerifier builds a verifier over the ledger and inventory sources.
func NewVerifier(ledger ResourceChecker, holdings HoldingsSource, svc *Service, catalogType string, logger *slog.Logger) *Verifier {
	return &Verifier{
		ledger:      ledger,
		holdings:    holdings,
		svc:         svc,
		catalogType: catalogType,
		logger:      logger.With("component", "verifier"),
	}
}

// Verify checks one listing against the ledger and, when its resource is
// gone, against the seller's current holdings. Transient failures of either
// source yield a VerifyUnknown result wrapping domain.ErrUnverifiable and
// change no state.
func (v *Verifier) Verify(ctx context.Context, itemID string) (domain.VerifyResult, error) {
	result := domain.VerifyResult{
		ID:        uuid.New(),
		ItemID:    itemID,
		CheckedAt: time.Now().UTC(),
	}

	l, err := v.svc.Get(ctx, itemID)
	if err != nil {
		result.Outcome = domain.VerifyUnknown
		result.Reason = "listing not tracked"
		return result, fmt.Errorf("verifier: load %s: %w", itemID, err)
	}
	if l.ListingRef == "" || l.SellerAddress == "" {
		result.Outcome = domain.VerifyUnknown
		result.Reason = "record lacks listing ref or seller"
		return result, fmt.Errorf("verifier: %s: %w", itemID, domain.ErrUnverifiable)
	}

	present, err := v.ledger.ResourceExists(ctx, l.SellerAddress, l.ListingRef)
	if err != nil {
		result.Outcome = domain.VerifyUnknown
		result.Reason = "ledger unavailable"
		v.logger.Warn("resource check failed", "item_id", itemID, "error", err)
		return result, fmt.Errorf("verifier: resource check %s: %w", itemID, domain.ErrUnverifiable)
	}
	if present {
		result.Outcome = domain.VerifyActive
		result.Reason = "listing resource still present"
		return result, nil
	}

	// The resource is gone; the seller's holdings decide sold vs unlisted.
	held, err := v.holdings.HoldsItem(ctx, l.SellerAddress, itemID, v.catalogType)
	if err != nil {
		result.Outcome = domain.VerifyUnknown
		result.Reason = "holdings unavailable"
		v.logger.Warn("holdings check failed", "item_id", itemID, "error", err)
		return result, fmt.Errorf("verifier: holdings check %s: %w", itemID, domain.ErrUnverifiable)
	}

	now := time.Now().UTC()
	if held {
		v.svc.MarkUnlisted(ctx, itemID, "", now)
		result.Outcome = domain.VerifyUnlisted
		result.Reason = "resource withdrawn, seller still holds the moment"
	} else {
		v.svc.MarkSold(ctx, itemID, "", now)
		result.Outcome = domain.VerifySold
		result.Reason = "resource gone and moment left the seller's holdings"
	}

	v.logger.Info("listing verified", "item_id", itemID, "outcome", result.Outcome)
	return result, nil
}
