package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ListingStatus represents the lifecycle state of a marketplace listing.
type ListingStatus string

const (
	ListingStatusActive   ListingStatus = "active"
	ListingStatusSold     ListingStatus = "sold"
	ListingStatusUnlisted ListingStatus = "unlisted"
)

// Listing is a tracked marketplace listing for a single moment. There is at
// most one Listing per ItemID at a time; a re-listing of the same moment
// replaces the prior terminal record entirely.
type Listing struct {
	ItemID     string // moment id, primary key
	ListingRef string // on-ledger listing resource id, changes on every re-listing
	GroupID    string // edition the moment belongs to, keys floor/average lookups

	Price            decimal.Decimal
	FloorAtListing   decimal.Decimal // floor snapshot taken when the listing was observed
	AverageSalePrice decimal.Decimal // zero when no sale history exists
	DealPercent      decimal.Decimal // derived, recomputed on every touch

	Status        ListingStatus
	SellerAddress string
	BuyerAddress  string // empty until sold

	// Display attributes resolved from the metadata service. Enrichment only;
	// any of these may be absent.
	PlayerName   string
	TeamName     string
	Tier         string
	Serial       int64
	MaxMint      int64
	JerseyNumber int64

	ListedAt  time.Time
	UpdatedAt time.Time
}

// ItemMetadata holds the display attributes and mint facts for a moment,
// as returned by the metadata service.
type ItemMetadata struct {
	GroupID      string
	PlayerName   string
	TeamName     string
	Tier         string
	Serial       int64
	MaxMint      int64
	JerseyNumber int64
}

// ListingFilter narrows ListActive / ResetSoldToActive queries. Zero values
// mean "no constraint".
type ListingFilter struct {
	GroupID    string
	PlayerName string
	Tier       string
	MaxPrice   decimal.Decimal
	MaxSerial  int64
	MinScore   decimal.Decimal
	Seller     string
	Limit      int
}

// Matches reports whether the listing satisfies every set constraint.
func (f ListingFilter) Matches(l Listing) bool {
	if f.GroupID != "" && l.GroupID != f.GroupID {
		return false
	}
	if f.PlayerName != "" && l.PlayerName != f.PlayerName {
		return false
	}
	if f.Tier != "" && l.Tier != f.Tier {
		return false
	}
	if f.Seller != "" && l.SellerAddress != f.Seller {
		return false
	}
	if !f.MaxPrice.IsZero() && l.Price.GreaterThan(f.MaxPrice) {
		return false
	}
	if f.MaxSerial > 0 && l.Serial > f.MaxSerial {
		return false
	}
	if !f.MinScore.IsZero() && l.DealPercent.LessThan(f.MinScore) {
		return false
	}
	return true
}
