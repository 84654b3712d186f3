// Package restapi is the concrete REST transport for the exchange's
// contract, position, trade, transaction, order and book-state endpoints
// (spec component A3). HTTPClient speaks plain net/http; RetryingClient
// wraps it with exponential-backoff retry and a circuit breaker so a
// wedged endpoint trips the breaker instead of hanging the session loop.
package restapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tildenfx/marketstate/internal/book"
	"github.com/tildenfx/marketstate/internal/contracts"
	"github.com/tildenfx/marketstate/internal/ledger"
	"github.com/tildenfx/marketstate/internal/positions"
	"github.com/tildenfx/marketstate/internal/session"
)

// APIError represents a non-2xx response from the exchange.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("restapi: status %d: %s", e.Status, e.Body)
}

// Config configures an HTTPClient. Field names match config.Config's
// exchange.* keys (spec.md §6).
type Config struct {
	APIBase       string
	WebsocketBase string
	LegacyAPIBase string
	APIKey        string
	VerifySSL     bool
	DefaultLimit  int
	DelaySeconds  float64
}

// HTTPClient is a direct net/http implementation of session.RESTClient,
// grounded on the teacher's TradierAPI: its own http.Client, the same
// APIError shape, query-string builders per method, and a bearer-style
// auth header — here "Authorization: JWT <key>" rather than "Bearer".
type HTTPClient struct {
	client *http.Client
	logger *log.Logger
	cfg    Config
}

// NewHTTPClient builds an HTTPClient. A nil httpClient gets a default
// with a 10s timeout, matching the teacher's default.
func NewHTTPClient(cfg Config, httpClient *http.Client, logger *log.Logger) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &HTTPClient{client: httpClient, logger: logger, cfg: cfg}
}

var _ session.RESTClient = (*HTTPClient)(nil)

func (c *HTTPClient) get(ctx context.Context, base, path string, params url.Values, out interface{}) error {
	endpoint := strings.TrimRight(base, "/") + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "JWT "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Printf("warn: restapi: failed to close response body: %v", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("restapi: decode %s: %w", path, err)
	}
	return nil
}

// paginate walks a "meta.next" cursor, sleeping cfg.DelaySeconds between
// pages as a politeness delay (original_source/ledgerx's has_next_url
// pattern), invoking fetchPage for each cursor value until it reports no
// further page.
func (c *HTTPClient) paginate(ctx context.Context, fetchPage func(cursor string) (next string, done bool, err error)) error {
	cursor := ""
	for {
		next, done, err := fetchPage(cursor)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		cursor = next
		if c.cfg.DelaySeconds > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(c.cfg.DelaySeconds * float64(time.Second))):
			}
		}
	}
}

func withCursor(params url.Values, limit int, cursor string) url.Values {
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		params.Set("after", cursor)
	}
	return params
}

// ListContracts implements session.RESTClient.
func (c *HTTPClient) ListContracts(ctx context.Context) ([]contracts.Contract, error) {
	var out []contracts.Contract
	err := c.paginate(ctx, func(cursor string) (string, bool, error) {
		var page contractsPage
		params := withCursor(url.Values{}, c.cfg.DefaultLimit, cursor)
		if err := c.get(ctx, c.cfg.APIBase, "/trading/contracts", params, &page); err != nil {
			return "", false, err
		}
		for _, d := range page.Data {
			out = append(out, d.toDomain())
		}
		if page.Meta.Next == nil || *page.Meta.Next == "" {
			return "", true, nil
		}
		return *page.Meta.Next, false, nil
	})
	return out, err
}

// ListTradedContracts implements session.RESTClient.
func (c *HTTPClient) ListTradedContracts(ctx context.Context) ([]contracts.Contract, error) {
	var out []contracts.Contract
	err := c.paginate(ctx, func(cursor string) (string, bool, error) {
		var page contractsPage
		params := withCursor(url.Values{}, c.cfg.DefaultLimit, cursor)
		if err := c.get(ctx, c.cfg.APIBase, "/trading/contracts/traded", params, &page); err != nil {
			return "", false, err
		}
		for _, d := range page.Data {
			out = append(out, d.toDomain())
		}
		if page.Meta.Next == nil || *page.Meta.Next == "" {
			return "", true, nil
		}
		return *page.Meta.Next, false, nil
	})
	return out, err
}

// RetrieveContract implements session.RESTClient.
func (c *HTTPClient) RetrieveContract(ctx context.Context, id contracts.ID) (contracts.Contract, error) {
	var dto contractDTO
	path := fmt.Sprintf("/trading/contracts/%d", id)
	if err := c.get(ctx, c.cfg.APIBase, path, nil, &dto); err != nil {
		return contracts.Contract{}, err
	}
	return dto.toDomain(), nil
}

// ListPositions implements session.RESTClient.
func (c *HTTPClient) ListPositions(ctx context.Context) ([]session.RESTPosition, error) {
	var out []session.RESTPosition
	err := c.paginate(ctx, func(cursor string) (string, bool, error) {
		var page positionsPage
		params := withCursor(url.Values{}, c.cfg.DefaultLimit, cursor)
		if err := c.get(ctx, c.cfg.APIBase, "/trading/positions", params, &page); err != nil {
			return "", false, err
		}
		for _, d := range page.Data {
			out = append(out, d.toDomain())
		}
		if page.Meta.Next == nil || *page.Meta.Next == "" {
			return "", true, nil
		}
		return *page.Meta.Next, false, nil
	})
	return out, err
}

// ListTrades implements session.RESTClient.
func (c *HTTPClient) ListTrades(ctx context.Context, positionID int64) ([]positions.Trade, error) {
	var out []positions.Trade
	path := fmt.Sprintf("/trading/positions/%d/trades", positionID)
	err := c.paginate(ctx, func(cursor string) (string, bool, error) {
		var page tradesPage
		params := withCursor(url.Values{}, c.cfg.DefaultLimit, cursor)
		if err := c.get(ctx, c.cfg.APIBase, path, params, &page); err != nil {
			return "", false, err
		}
		for _, d := range page.Data {
			out = append(out, d.toDomain())
		}
		if page.Meta.Next == nil || *page.Meta.Next == "" {
			return "", true, nil
		}
		return *page.Meta.Next, false, nil
	})
	return out, err
}

// ListTransactions implements session.RESTClient. It reads from the
// legacy API base, matching original_source/ledgerx's gen_legacy_url split
// between the trading API and the older funds/transactions endpoint.
func (c *HTTPClient) ListTransactions(ctx context.Context) ([]ledger.Transaction, error) {
	var out []ledger.Transaction
	err := c.paginate(ctx, func(cursor string) (string, bool, error) {
		var page transactionsPage
		params := withCursor(url.Values{}, c.cfg.DefaultLimit, cursor)
		if err := c.get(ctx, c.cfg.LegacyAPIBase, "/funds/transactions", params, &page); err != nil {
			return "", false, err
		}
		for _, d := range page.Data {
			out = append(out, d.toDomain())
		}
		if page.Meta.Next == nil || *page.Meta.Next == "" {
			return "", true, nil
		}
		return *page.Meta.Next, false, nil
	})
	return out, err
}

// ListOpenOrders implements session.RESTClient.
func (c *HTTPClient) ListOpenOrders(ctx context.Context) ([]book.Order, error) {
	var out []book.Order
	err := c.paginate(ctx, func(cursor string) (string, bool, error) {
		var page openOrdersPage
		params := withCursor(url.Values{}, c.cfg.DefaultLimit, cursor)
		if err := c.get(ctx, c.cfg.APIBase, "/trading/orders", params, &page); err != nil {
			return "", false, err
		}
		for _, d := range page.Data {
			out = append(out, d.toDomain())
		}
		if page.Meta.Next == nil || *page.Meta.Next == "" {
			return "", true, nil
		}
		return *page.Meta.Next, false, nil
	})
	return out, err
}

// GetBookStates implements session.RESTClient. Book states are returned
// whole (no pagination cursor): the exchange snapshots the full resting
// set for a contract in one reply.
func (c *HTTPClient) GetBookStates(ctx context.Context, id contracts.ID) ([]book.Order, error) {
	var resp bookStatesResponse
	path := fmt.Sprintf("/trading/book-states/%d", id)
	if err := c.get(ctx, c.cfg.APIBase, path, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]book.Order, 0, len(resp.BookStates))
	for _, d := range resp.BookStates {
		out = append(out, d.toDomain())
	}
	return out, nil
}
