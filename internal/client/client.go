// Package client is a Go client for the ledger HTTP API. Requests are signed
// with the caller's key the way the server's identity middleware expects.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/marketledger/internal/auth"
	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/service"
)

// Header names understood by the server.
const (
	headerAddress   = "X-Ledger-Address"
	headerTimestamp = "X-Ledger-Timestamp"
	headerSignature = "X-Ledger-Signature"
)

// Client talks to one ledger server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *auth.Signer
	address    string
	now        func() time.Time

	mu     sync.Mutex
	lastTS int64
}

// New creates a Client for baseURL, e.g. "http://localhost:8000". A nil
// signer sends unsigned requests, which only servers with signatures
// disabled accept.
func New(baseURL string, signer *auth.Signer) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		signer:     signer,
		now:        time.Now,
	}
	if signer != nil {
		c.address = signer.Address()
	}
	return c
}

// WithAddress sets the identity sent on unsigned requests.
func (c *Client) WithAddress(addr string) *Client {
	c.address = addr
	return c
}

// Address is the identity requests are sent as.
func (c *Client) Address() string { return c.address }

// APIError is a non-2xx response. It unwraps to the matching domain
// sentinel so errors.Is works across the wire.
type APIError struct {
	Status  int
	Code    string
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("ledger: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("ledger: %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	if de, ok := domain.ErrorByCode(e.Code); ok {
		return de
	}
	return nil
}

// CreateMarket opens a market owned by the client's identity.
func (c *Client) CreateMarket(ctx context.Context, req service.CreateMarketRequest) (service.MarketView, error) {
	var out service.MarketView
	err := c.do(ctx, http.MethodPost, "/api/markets", req, &out)
	return out, err
}

// GetMarket fetches one market.
func (c *Client) GetMarket(ctx context.Context, id string) (service.MarketView, error) {
	var out service.MarketView
	err := c.do(ctx, http.MethodGet, "/api/markets/"+url.PathEscape(id), nil, &out)
	return out, err
}

// ListMarkets lists markets, optionally filtered by status
// ("open", "resolved", "cancelled", "terminal").
func (c *Client) ListMarkets(ctx context.Context, status string, limit int) ([]service.MarketView, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/markets"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Markets []service.MarketView `json:"markets"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Markets, err
}

// AddOption appends an option to a market.
func (c *Client) AddOption(ctx context.Context, marketID, name string) (service.MarketView, error) {
	var out service.MarketView
	err := c.do(ctx, http.MethodPost, marketPath(marketID, "options"), map[string]string{"name": name}, &out)
	return out, err
}

// Resolve declares the winning option.
func (c *Client) Resolve(ctx context.Context, marketID string, winner int) (service.MarketView, error) {
	var out service.MarketView
	err := c.do(ctx, http.MethodPost, marketPath(marketID, "resolve"), map[string]int{"winner": winner}, &out)
	return out, err
}

// Cancel cancels an open market.
func (c *Client) Cancel(ctx context.Context, marketID string) (service.MarketView, error) {
	var out service.MarketView
	err := c.do(ctx, http.MethodPost, marketPath(marketID, "cancel"), nil, &out)
	return out, err
}

// Buy acquires shares of option index.
func (c *Client) Buy(ctx context.Context, marketID string, index int, shares uint64) (service.BuyResult, error) {
	var out service.BuyResult
	body := map[string]any{"option_index": index, "shares": shares}
	err := c.do(ctx, http.MethodPost, marketPath(marketID, "buy"), body, &out)
	return out, err
}

// Sell liquidates shares of the client's position.
func (c *Client) Sell(ctx context.Context, marketID string, shares uint64) (service.SellResult, error) {
	var out service.SellResult
	err := c.do(ctx, http.MethodPost, marketPath(marketID, "sell"), map[string]uint64{"shares": shares}, &out)
	return out, err
}

// Claim settles the client's position in a terminal market.
func (c *Client) Claim(ctx context.Context, marketID string) (service.ClaimResult, error) {
	var out service.ClaimResult
	err := c.do(ctx, http.MethodPost, marketPath(marketID, "claim"), nil, &out)
	return out, err
}

// ClaimReward claims the daily token reward.
func (c *Client) ClaimReward(ctx context.Context) (service.RewardResult, error) {
	var out service.RewardResult
	err := c.do(ctx, http.MethodPost, "/api/rewards/claim", nil, &out)
	return out, err
}

// Balance returns the token balance of account.
func (c *Client) Balance(ctx context.Context, account string) (uint64, error) {
	var out struct {
		Amount uint64 `json:"amount"`
	}
	err := c.do(ctx, http.MethodGet, "/api/balances/"+url.PathEscape(account), nil, &out)
	return out.Amount, err
}

func marketPath(id, action string) string {
	return "/api/markets/" + url.PathEscape(id) + "/" + action
}

// nextTimestamp returns a signing timestamp greater than any returned
// before. The server accepts each signed request once, so two identical
// requests must not share a timestamp.
func (c *Client) nextTimestamp() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.now().Unix()
	if ts <= c.lastTS {
		ts = c.lastTS + 1
	}
	c.lastTS = ts
	return ts
}

// do sends one request, signing it when a signer is set, and decodes a 2xx
// JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("client: marshal request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("client: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.address != "" {
		req.Header.Set(headerAddress, c.address)
	}
	if c.signer != nil {
		// The server verifies the path without the query string.
		ts := c.nextTimestamp()
		sig, err := c.signer.SignRequest(method, req.URL.Path, ts, payload)
		if err != nil {
			return fmt.Errorf("client: sign request: %w", err)
		}
		req.Header.Set(headerTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(headerSignature, sig)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("client: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var e struct {
			Error string `json:"error"`
			Code  string `json:"code"`
			Kind  string `json:"kind"`
		}
		if json.Unmarshal(respBody, &e) == nil && e.Error != "" {
			apiErr.Code, apiErr.Kind, apiErr.Message = e.Code, e.Kind, e.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("client: decode %s response: %w", path, err)
	}
	return nil
}
