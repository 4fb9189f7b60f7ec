package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale records a completed purchase. Sales feed the per-edition average
// sale price used when scoring new listings.
type Sale struct {
	ItemID        string
	GroupID       string
	ListingRef    string
	Price         decimal.Decimal
	SellerAddress string
	BuyerAddress  string
	SoldAt        time.Time
}
