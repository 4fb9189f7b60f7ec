package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebtran/momentdeals/internal/domain"
	"github.com/calebtran/momentdeals/internal/tracker"
)

// fakeListingStore is an in-memory ListingStore sufficient for handler tests.
type fakeListingStore struct {
	resetCount int64
}

func (f *fakeListingStore) Upsert(context.Context, domain.Listing) error { return nil }

func (f *fakeListingStore) GetByItemID(context.Context, string) (domain.Listing, error) {
	return domain.Listing{}, domain.ErrNotFound
}

func (f *fakeListingStore) SetSold(context.Context, string, string, time.Time) error { return nil }
func (f *fakeListingStore) SetUnlisted(context.Context, string, time.Time) error     { return nil }

func (f *fakeListingStore) ResetSoldToActive(context.Context, domain.ListingFilter) (int64, error) {
	return f.resetCount, nil
}

func (f *fakeListingStore) ListSince(context.Context, time.Time) ([]domain.Listing, error) {
	return nil, nil
}

func (f *fakeListingStore) ListTerminalBefore(context.Context, time.Time) ([]domain.Listing, error) {
	return nil, nil
}

func (f *fakeListingStore) DeleteTerminalBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// fixedOracle serves one floor/average pair for every edition.
type fixedOracle struct {
	floor decimal.Decimal
	avg   decimal.Decimal
}

func (o *fixedOracle) Floor(context.Context, string) (decimal.Decimal, bool)   { return o.floor, true }
func (o *fixedOracle) Average(context.Context, string) (decimal.Decimal, bool) { return o.avg, true }
func (o *fixedOracle) Undercut(context.Context, string, decimal.Decimal)       {}

func newTestService(t *testing.T) *tracker.Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	book := tracker.NewBook(tracker.BookCaps{Active: 100, Seen: 200, Sold: 100, Unlisted: 100})
	oracle := &fixedOracle{
		floor: decimal.RequireFromString("100"),
		avg:   decimal.RequireFromString("100"),
	}
	return tracker.NewService(book, &fakeListingStore{resetCount: 3}, oracle, tracker.ServiceOptions{}, logger)
}

func seedListing(t *testing.T, svc *tracker.Service, itemID string, price string) {
	t.Helper()
	svc.Upsert(context.Background(), domain.Listing{
		ItemID:        itemID,
		ListingRef:    "ref-" + itemID,
		GroupID:       "ed-1",
		Price:         decimal.RequireFromString(price),
		Status:        domain.ListingStatusActive,
		SellerAddress: "0xseller",
		PlayerName:    "Jordan Poole",
		Serial:        1000,
		MaxMint:       5000,
		ListedAt:      time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	})
}

func newTestMux(svc *tracker.Service) *http.ServeMux {
	lh := NewListingsHandler(svc)
	ah := NewAdminHandler(svc)
	hh := NewHealthHandler(svc, nil, "server")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", hh.Health)
	mux.HandleFunc("GET /api/listings", lh.List)
	mux.HandleFunc("GET /api/listings/{id}", lh.Get)
	mux.HandleFunc("POST /api/admin/reset-sold", ah.ResetSold)
	return mux
}

func TestListListings_RescoresAgainstOracle(t *testing.T) {
	svc := newTestService(t)
	seedListing(t, svc, "m-1", "50")
	mux := newTestMux(svc)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/listings", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count    int               `json:"count"`
		Listings []listingResponse `json:"listings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "m-1", body.Listings[0].ItemID)
	// Price 50 against floor 100 scores 50% below floor.
	assert.True(t, body.Listings[0].DealPercent.Equal(decimal.RequireFromString("50")),
		"got score %s", body.Listings[0].DealPercent)
}

func TestListListings_MinScoreFilter(t *testing.T) {
	svc := newTestService(t)
	seedListing(t, svc, "m-cheap", "50") // scores 50
	seedListing(t, svc, "m-fair", "95")  // scores 5
	mux := newTestMux(svc)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/listings?min_score=40", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count    int               `json:"count"`
		Listings []listingResponse `json:"listings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "m-cheap", body.Listings[0].ItemID)
}

func TestGetListing_NotFound(t *testing.T) {
	mux := newTestMux(newTestService(t))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/listings/m-missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetListing_Found(t *testing.T) {
	svc := newTestService(t)
	seedListing(t, svc, "m-7", "80")
	mux := newTestMux(svc)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/listings/m-7", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got listingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "m-7", got.ItemID)
	assert.Equal(t, "Jordan Poole", got.PlayerName)
}

func TestResetSold_ReportsRowCount(t *testing.T) {
	mux := newTestMux(newTestService(t))

	req := httptest.NewRequest(http.MethodPost, "/api/admin/reset-sold",
		strings.NewReader(`{"groupId":"ed-1"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(3), body["reset"])
}

func TestHealth_ReportsBookStats(t *testing.T) {
	svc := newTestService(t)
	seedListing(t, svc, "m-1", "50")
	mux := newTestMux(svc)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string         `json:"status"`
		Mode   string         `json:"mode"`
		Book   map[string]int `json:"book"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "server", body.Mode)
	assert.Equal(t, 1, body.Book["active"])
	assert.Equal(t, 1, body.Book["seen"])
}

func TestParseFilter(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet,
		"/api/listings?group=ed-9&player=Curry&max_price=25.5&max_serial=100&min_score=60&limit=10", nil)

	f := parseFilter(req)
	assert.Equal(t, "ed-9", f.GroupID)
	assert.Equal(t, "Curry", f.PlayerName)
	assert.True(t, f.MaxPrice.Equal(decimal.RequireFromString("25.5")))
	assert.Equal(t, int64(100), f.MaxSerial)
	assert.True(t, f.MinScore.Equal(decimal.RequireFromString("60")))
	assert.Equal(t, 10, f.Limit)
}

func TestParseFilter_IgnoresMalformedValues(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet,
		"/api/listings?max_price=cheap&max_serial=-5&limit=zero", nil)

	f := parseFilter(req)
	assert.True(t, f.MaxPrice.IsZero())
	assert.Zero(t, f.MaxSerial)
	assert.Zero(t, f.Limit)
}
