package stacks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tipjarhq/tipjar/service/metrics"
)

// Contract function names exposed by the tip-jar contract.
const (
	FnTip                = "tip"
	FnWithdraw           = "withdraw"
	FnGetContractBalance = "get-contract-balance"
	FnGetOwner           = "get-owner"
	FnGetTip             = "get-tip"
	FnGetTipCount        = "get-tip-count"
	FnGetTotalTipped     = "get-total-tipped"
)

// QueryError is returned when a read-only contract call fails at the
// transport or decode layer. The function name identifies which query
// failed; the wrapped cause carries the detail.
type QueryError struct {
	Function string
	Cause    error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("read-only call %s failed: %v", e.Function, e.Cause)
}

func (e *QueryError) Unwrap() error { return e.Cause }

// HTTPDoer is the subset of *http.Client the query client needs.
// It allows transport-level mocking in tests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ContractConfig identifies the fixed tip-jar contract and the node to
// query. The network is fixed for the life of the process.
type ContractConfig struct {
	APIBaseURL      string // e.g. https://api.testnet.hiro.so
	ContractAddress string
	ContractName    string
	OwnerAddress    string
}

// ContractID returns the fully qualified contract identifier
// ("<address>.<name>").
func (c ContractConfig) ContractID() string {
	return c.ContractAddress + "." + c.ContractName
}

// Client issues read-only calls against the fixed tip-jar contract.
// It performs no retries; transport-level retry policy, if any, belongs
// to the injected HTTP client.
type Client struct {
	cfg     ContractConfig
	http    HTTPDoer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewClient creates a new query client. If httpClient is nil a default
// client with a 30s timeout is used. If m is nil, no metrics are recorded.
func NewClient(cfg ContractConfig, httpClient HTTPDoer, m *metrics.Metrics, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		logger:  logger,
		metrics: m,
	}
}

// readOnlyResponse is the node's response envelope for
// POST /v2/contracts/call-read/{address}/{name}/{function}.
type readOnlyResponse struct {
	Okay   bool   `json:"okay"`
	Result string `json:"result"`
	Cause  string `json:"cause"`
}

// CallReadOnly sends a read-only invocation of the given contract function
// with pre-serialized Clarity arguments and decodes the result. The
// contract address doubles as the sender, matching the convention for
// unauthenticated reads.
func (c *Client) CallReadOnly(ctx context.Context, function string, args []string) (ClarityValue, error) {
	if args == nil {
		args = []string{}
	}
	body, err := json.Marshal(map[string]any{
		"sender":    c.cfg.ContractAddress,
		"arguments": args,
	})
	if err != nil {
		return ClarityValue{}, &QueryError{Function: function, Cause: err}
	}

	u := fmt.Sprintf("%s/v2/contracts/call-read/%s/%s/%s",
		c.cfg.APIBaseURL,
		url.PathEscape(c.cfg.ContractAddress),
		url.PathEscape(c.cfg.ContractName),
		url.PathEscape(function),
	)
	req, err := http.NewRequestWithContext(ctx, "POST", u, bytes.NewReader(body))
	if err != nil {
		return ClarityValue{}, &QueryError{Function: function, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	duration := time.Since(start).Seconds()

	status := "success"
	defer func() {
		if c.metrics != nil {
			c.metrics.RecordAPICall(function, status, duration)
		}
	}()

	if err != nil {
		status = "error"
		c.logger.DebugContext(ctx, "read-only call transport error",
			"function", function,
			"error", err,
		)
		return ClarityValue{}, &QueryError{Function: function, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		status = "error"
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return ClarityValue{}, &QueryError{
			Function: function,
			Cause:    fmt.Errorf("node returned status %d: %s", resp.StatusCode, string(raw)),
		}
	}

	var ro readOnlyResponse
	if err := json.NewDecoder(resp.Body).Decode(&ro); err != nil {
		status = "error"
		return ClarityValue{}, &QueryError{Function: function, Cause: fmt.Errorf("failed to decode response: %w", err)}
	}
	if !ro.Okay {
		status = "error"
		return ClarityValue{}, &QueryError{Function: function, Cause: fmt.Errorf("call rejected by node: %s", ro.Cause)}
	}

	cv, err := DecodeClarityHex(ro.Result)
	if err != nil {
		status = "error"
		return ClarityValue{}, &QueryError{Function: function, Cause: err}
	}
	return cv, nil
}

// GetTipCount returns the highest assigned tip id.
func (c *Client) GetTipCount(ctx context.Context) (uint64, error) {
	return c.scalarQuery(ctx, FnGetTipCount)
}

// GetTotalTipped returns the lifetime tipped total in microSTX.
func (c *Client) GetTotalTipped(ctx context.Context) (uint64, error) {
	return c.scalarQuery(ctx, FnGetTotalTipped)
}

// GetContractBalance returns the contract's current balance in microSTX.
func (c *Client) GetContractBalance(ctx context.Context) (uint64, error) {
	return c.scalarQuery(ctx, FnGetContractBalance)
}

func (c *Client) scalarQuery(ctx context.Context, function string) (uint64, error) {
	cv, err := c.CallReadOnly(ctx, function, nil)
	if err != nil {
		return 0, err
	}
	n, err := cv.AsUInt()
	if err != nil {
		return 0, &QueryError{Function: function, Cause: err}
	}
	return n, nil
}

// GetOwner returns the contract owner's principal address.
func (c *Client) GetOwner(ctx context.Context) (string, error) {
	cv, err := c.CallReadOnly(ctx, FnGetOwner, nil)
	if err != nil {
		return "", err
	}
	addr, err := cv.AsPrincipal()
	if err != nil {
		return "", &QueryError{Function: FnGetOwner, Cause: err}
	}
	return addr, nil
}

// GetTipByID looks up a tip record by id. It returns (nil, nil) when the
// ledger has no record at that id. Transport and decode failures are also
// mapped to (nil, nil): the feed treats a tip it cannot fetch the same as
// a tip that does not exist, trading precision for availability.
func (c *Client) GetTipByID(ctx context.Context, id uint64) (*Tip, error) {
	cv, err := c.CallReadOnly(ctx, FnGetTip, []string{EncodeUInt(id)})
	if err != nil {
		c.logger.DebugContext(ctx, "tip lookup failed, treating as absent",
			"id", id,
			"error", err,
		)
		return nil, nil
	}

	tip, err := parseTipValue(id, cv)
	if err != nil {
		c.logger.DebugContext(ctx, "tip record decode failed, treating as absent",
			"id", id,
			"error", err,
		)
		return nil, nil
	}
	return tip, nil
}

// parseTipValue converts the contract's (optional {tipper, amount,
// message, block-height}) response into a Tip. A none value yields
// (nil, nil).
func parseTipValue(id uint64, cv ClarityValue) (*Tip, error) {
	if cv.IsNone() {
		return nil, nil
	}
	inner, err := cv.unwrap()
	if err != nil {
		return nil, err
	}
	if inner.Type == clarityTypeOptionalNone {
		return nil, nil
	}
	if inner.Type != clarityTypeTuple {
		return nil, fmt.Errorf("expected tip tuple, got %s", inner.describe())
	}

	tipper, err := inner.Tuple["tipper"].AsPrincipal()
	if err != nil {
		return nil, fmt.Errorf("tipper: %w", err)
	}
	amount, err := inner.Tuple["amount"].AsUInt()
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	height, err := inner.Tuple["block-height"].AsUInt()
	if err != nil {
		return nil, fmt.Errorf("block-height: %w", err)
	}
	msg, ok := inner.Tuple["message"]
	if !ok {
		return nil, fmt.Errorf("missing message field")
	}

	return &Tip{
		ID:          id,
		Tipper:      tipper,
		Amount:      amount,
		Message:     msg.Str,
		BlockHeight: height,
	}, nil
}

// IsContractOwner reports whether the given address is the configured
// contract owner. This is a UI convenience only; the contract is the
// sole authority on withdraw authorization.
func (c *Client) IsContractOwner(address string) bool {
	return address != "" && address == c.cfg.OwnerAddress
}
