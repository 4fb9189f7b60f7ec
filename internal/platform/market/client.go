// Package market implements the client for the marketplace's off-chain API:
// moment metadata, edition price statistics, account holdings, and the
// transfer notification endpoint.
package market

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/calebtran/momentdeals/internal/domain"
)

// Client talks to the marketplace REST API. It implements
// domain.PriceSource and domain.MetadataSource.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a marketplace client rooted at baseURL. apiKey may be
// empty for endpoints that do not require authentication.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "market"),
	}
}

// ItemMetadata resolves the display attributes and mint facts for a moment.
// ErrNotFound when the marketplace does not know the moment.
func (c *Client) ItemMetadata(ctx context.Context, itemID string) (domain.ItemMetadata, error) {
	body, err := c.doGet(ctx, "/v1/moments/"+url.PathEscape(itemID), nil)
	if err != nil {
		if errors.Is(err, errStatusNotFound) {
			return domain.ItemMetadata{}, fmt.Errorf("market: moment %s: %w", itemID, domain.ErrNotFound)
		}
		return domain.ItemMetadata{}, fmt.Errorf("market: fetch moment %s: %w", itemID, err)
	}

	var m apiMoment
	if err := json.Unmarshal(body, &m); err != nil {
		return domain.ItemMetadata{}, fmt.Errorf("market: unmarshal moment: %w", err)
	}

	return domain.ItemMetadata{
		GroupID:      m.Edition.ID,
		PlayerName:   m.Edition.Player.Name,
		TeamName:     m.Edition.Player.TeamName,
		Tier:         m.Edition.Tier,
		Serial:       m.SerialNumber,
		MaxMint:      m.Edition.MaxMint,
		JerseyNumber: m.Edition.Player.JerseyNumber,
	}, nil
}

// FloorPrice returns the lowest current asking price for an edition.
// ErrNoFloorPrice when the marketplace has no active listings for it.
func (c *Client) FloorPrice(ctx context.Context, groupID string) (decimal.Decimal, error) {
	stats, err := c.editionStats(ctx, groupID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if stats.FloorPrice == "" {
		return decimal.Decimal{}, domain.ErrNoFloorPrice
	}

	price, err := decimal.NewFromString(stats.FloorPrice)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("market: parse floor price %q: %w", stats.FloorPrice, err)
	}
	return price, nil
}

// AverageSalePrice returns the marketplace's recent mean sale price for an
// edition. ErrNotFound when it reports no sale history.
func (c *Client) AverageSalePrice(ctx context.Context, groupID string) (decimal.Decimal, error) {
	stats, err := c.editionStats(ctx, groupID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if stats.AverageSalePrice == "" {
		return decimal.Decimal{}, domain.ErrNotFound
	}

	price, err := decimal.NewFromString(stats.AverageSalePrice)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("market: parse average price %q: %w", stats.AverageSalePrice, err)
	}
	return price, nil
}

// HoldsItem reports whether the account at address currently holds the moment
// with itemID of the given resource type.
func (c *Client) HoldsItem(ctx context.Context, address, itemID, resourceType string) (bool, error) {
	params := url.Values{"type": {resourceType}}
	body, err := c.doGet(ctx, "/v1/accounts/"+url.PathEscape(address)+"/holdings", params)
	if err != nil {
		return false, fmt.Errorf("market: fetch holdings for %s: %w", address, err)
	}

	var holdings []apiHolding
	if err := json.Unmarshal(body, &holdings); err != nil {
		return false, fmt.Errorf("market: unmarshal holdings: %w", err)
	}

	for _, h := range holdings {
		if h.ItemID == itemID {
			return true, nil
		}
	}
	return false, nil
}

// SignalTransfer tells the marketplace that a moment changed hands so it can
// refresh its ownership view. Failures are reported but carry no state; the
// caller treats this as best effort.
func (c *Client) SignalTransfer(ctx context.Context, itemID, from, to string) error {
	payload := map[string]string{
		"itemId": itemID,
		"from":   from,
		"to":     to,
	}
	if err := c.doPost(ctx, "/v1/transfers", payload); err != nil {
		return fmt.Errorf("market: signal transfer %s: %w", itemID, err)
	}
	return nil
}

func (c *Client) editionStats(ctx context.Context, groupID string) (apiEditionStats, error) {
	body, err := c.doGet(ctx, "/v1/editions/"+url.PathEscape(groupID)+"/stats", nil)
	if err != nil {
		if errors.Is(err, errStatusNotFound) {
			return apiEditionStats{}, domain.ErrNotFound
		}
		return apiEditionStats{}, fmt.Errorf("market: fetch edition stats %s: %w", groupID, err)
	}

	var stats apiEditionStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return apiEditionStats{}, fmt.Errorf("market: unmarshal edition stats: %w", err)
	}
	return stats, nil
}

// errStatusNotFound tags a 404 so callers can map it to a domain error.
var errStatusNotFound = errors.New("not found")

func (c *Client) doGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errStatusNotFound
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) doPost(ctx context.Context, path string, payload any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	return checkHTTPStatus(resp.StatusCode, body)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}
