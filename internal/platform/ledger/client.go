// Package ledger implements the REST client for the collectibles ledger
// gateway: sealed-height lookups, windowed event queries, and account
// resource probes.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/calebtran/momentdeals/internal/domain"
)

// Client talks to the ledger gateway REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a gateway client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "ledger"),
	}
}

// SealedHeight returns the height of the latest sealed block.
func (c *Client) SealedHeight(ctx context.Context) (uint64, error) {
	body, err := c.doGet(ctx, "/blocks", url.Values{"height": {"sealed"}})
	if err != nil {
		return 0, fmt.Errorf("ledger: fetch sealed block: %w", err)
	}

	var blocks []apiBlock
	if err := json.Unmarshal(body, &blocks); err != nil {
		return 0, fmt.Errorf("ledger: unmarshal sealed block: %w", err)
	}
	if len(blocks) == 0 {
		return 0, fmt.Errorf("ledger: sealed block response is empty")
	}

	height, err := strconv.ParseUint(blocks[0].Header.Height, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ledger: parse sealed height %q: %w", blocks[0].Header.Height, err)
	}
	return height, nil
}

// EventsInRange fetches all events of eventType in the inclusive block height
// range [start, end], decoded and ordered by (height, event index).
func (c *Client) EventsInRange(ctx context.Context, eventType string, start, end uint64) ([]domain.LedgerEvent, error) {
	params := url.Values{
		"type":         {eventType},
		"start_height": {strconv.FormatUint(start, 10)},
		"end_height":   {strconv.FormatUint(end, 10)},
	}

	body, err := c.doGet(ctx, "/events", params)
	if err != nil {
		return nil, fmt.Errorf("ledger: fetch events %s [%d,%d]: %w", eventType, start, end, err)
	}

	var blocks []apiEventBlock
	if err := json.Unmarshal(body, &blocks); err != nil {
		return nil, fmt.Errorf("ledger: unmarshal events: %w", err)
	}

	var events []domain.LedgerEvent
	for _, blk := range blocks {
		height, err := strconv.ParseUint(blk.BlockHeight, 10, 64)
		if err != nil {
			c.logger.Warn("skipping block with bad height", "block_id", blk.BlockID, "height", blk.BlockHeight)
			continue
		}
		for _, ev := range blk.Events {
			fields, err := DecodePayload(ev.Payload)
			if err != nil {
				// A single undecodable event must not poison the window.
				c.logger.Warn("skipping undecodable event",
					"type", ev.Type, "tx_id", ev.TransactionID, "error", err)
				continue
			}
			idx, _ := strconv.Atoi(ev.EventIndex)
			events = append(events, domain.LedgerEvent{
				Type:        ev.Type,
				BlockHeight: height,
				TxID:        ev.TransactionID,
				EventIndex:  idx,
				Fields:      fields,
			})
		}
	}
	return events, nil
}

// ResourceExists reports whether the account at address still owns the
// resource with the given identifier. A 404 from the gateway means the
// resource is gone; any other non-2xx status is an error.
func (c *Client) ResourceExists(ctx context.Context, address, resourceID string) (bool, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/resources/%s", c.baseURL, address, resourceID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("ledger: create resource request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("ledger: resource request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("ledger: read resource response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return false, fmt.Errorf("ledger: %w", err)
	}
	return true, nil
}

// doGet issues a GET to the gateway and returns the raw response body after
// the status has been checked.
func (c *Client) doGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}
