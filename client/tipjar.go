// Package client is the HTTP client for the tipjar service API. It is
// used by the CLI and by programs that want the tip feed without running
// their own poller.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Tip is a single tip record in the feed.
type Tip struct {
	ID          uint64 `json:"id"`
	Tipper      string `json:"tipper"`
	Amount      uint64 `json:"amount"`
	Message     string `json:"message"`
	BlockHeight uint64 `json:"block_height"`
}

// Feed is the service's current view of the tip feed, newest first.
type Feed struct {
	Tips      []*Tip    `json:"tips"`
	State     FeedState `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
	LastErr   string    `json:"last_err,omitempty"`
}

// FeedState is the aggregate contract state alongside the feed.
type FeedState struct {
	Balance     uint64 `json:"balance"`
	TipCount    uint64 `json:"tip_count"`
	TotalTipped uint64 `json:"total_tipped"`
}

// Stats is the aggregate contract state with formatted STX amounts.
type Stats struct {
	Balance        uint64    `json:"balance"`
	BalanceSTX     string    `json:"balance_stx"`
	TipCount       uint64    `json:"tip_count"`
	TotalTipped    uint64    `json:"total_tipped"`
	TotalTippedSTX string    `json:"total_tipped_stx"`
	UpdatedAt      time.Time `json:"updated_at"`
	LastErr        string    `json:"last_err,omitempty"`
}

// Client is the HTTP client for the tipjar service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new tipjar service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// ListTips retrieves the current tip feed.
func (c *Client) ListTips(ctx context.Context) (*Feed, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/tips", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var feed Feed
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &feed, nil
}

// GetTip retrieves a single tip by id.
func (c *Client) GetTip(ctx context.Context, id uint64) (*Tip, error) {
	u := c.baseURL + "/api/v1/tips/" + strconv.FormatUint(id, 10)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var tip Tip
	if err := json.NewDecoder(resp.Body).Decode(&tip); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &tip, nil
}

// Stats retrieves the aggregate contract state.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/stats", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var stats Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &stats, nil
}

// Refresh asks the service to invalidate its ledger caches.
func (c *Client) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/refresh", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return c.parseErrorResponse(resp)
	}

	c.logger.Debug("cache refresh requested")
	return nil
}

// Health checks whether the service is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
