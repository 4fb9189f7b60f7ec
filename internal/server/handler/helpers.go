package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/calebtran/momentdeals/internal/domain"
)

// writeJSON serialises v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError sends a JSON error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseFilter reads listing filter constraints from query parameters.
// Unknown or malformed values are ignored rather than rejected.
func parseFilter(r *http.Request) domain.ListingFilter {
	q := r.URL.Query()
	f := domain.ListingFilter{
		GroupID:    q.Get("group"),
		PlayerName: q.Get("player"),
		Tier:       q.Get("tier"),
		Seller:     q.Get("seller"),
	}
	if v := q.Get("max_price"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil && d.IsPositive() {
			f.MaxPrice = d
		}
	}
	if v := q.Get("min_score"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			f.MinScore = d
		}
	}
	if v := q.Get("max_serial"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			f.MaxSerial = n
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			f.Limit = n
		}
	}
	return f
}

// listingResponse is the API shape of a tracked listing.
type listingResponse struct {
	ItemID           string          `json:"itemId"`
	ListingRef       string          `json:"listingRef,omitempty"`
	GroupID          string          `json:"groupId"`
	Price            decimal.Decimal `json:"price"`
	FloorAtListing   decimal.Decimal `json:"floorAtListing"`
	AverageSalePrice decimal.Decimal `json:"averageSalePrice"`
	DealPercent      decimal.Decimal `json:"dealPercent"`
	Status           string          `json:"status"`
	SellerAddress    string          `json:"sellerAddress,omitempty"`
	BuyerAddress     string          `json:"buyerAddress,omitempty"`
	PlayerName       string          `json:"playerName,omitempty"`
	TeamName         string          `json:"teamName,omitempty"`
	Tier             string          `json:"tier,omitempty"`
	Serial           int64           `json:"serial,omitempty"`
	MaxMint          int64           `json:"maxMint,omitempty"`
	JerseyNumber     int64           `json:"jerseyNumber,omitempty"`
	ListedAt         time.Time       `json:"listedAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

func toListingResponse(l domain.Listing) listingResponse {
	return listingResponse{
		ItemID:           l.ItemID,
		ListingRef:       l.ListingRef,
		GroupID:          l.GroupID,
		Price:            l.Price,
		FloorAtListing:   l.FloorAtListing,
		AverageSalePrice: l.AverageSalePrice,
		DealPercent:      l.DealPercent,
		Status:           string(l.Status),
		SellerAddress:    l.SellerAddress,
		BuyerAddress:     l.BuyerAddress,
		PlayerName:       l.PlayerName,
		TeamName:         l.TeamName,
		Tier:             l.Tier,
		Serial:           l.Serial,
		MaxMint:          l.MaxMint,
		JerseyNumber:     l.JerseyNumber,
		ListedAt:         l.ListedAt,
		UpdatedAt:        l.UpdatedAt,
	}
}

func toListingResponses(ls []domain.Listing) []listingResponse {
	out := make([]listingResponse, 0, len(ls))
	for _, l := range ls {
		out = append(out, toListingResponse(l))
	}
	return out
}
