package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// HTTPAgent drives a signing agent over a local HTTP endpoint. The agent
// (a desktop wallet or a sidecar bridging to one) exposes a single
// JSON-RPC-style endpoint: {"method": "...", "params": {...}}.
type HTTPAgent struct {
	url    string
	http   *http.Client
	logger *slog.Logger
}

// NewHTTPAgent creates an agent client for the given endpoint. If
// httpClient is nil a default client with a 120s timeout is used; signing
// waits on user approval, so the timeout is deliberately long.
func NewHTTPAgent(url string, httpClient *http.Client, logger *slog.Logger) *HTTPAgent {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &HTTPAgent{url: url, http: httpClient, logger: logger}
}

type agentRequest struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type agentResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (a *HTTPAgent) call(ctx context.Context, method string, params any, result any) error {
	body, err := json.Marshal(agentRequest{Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("failed to marshal agent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("agent request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("agent returned status %d: %s", resp.StatusCode, string(raw))
	}

	var envelope agentResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode agent response: %w", err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("agent rejected %s: %s", method, envelope.Error.Message)
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("failed to decode agent result: %w", err)
		}
	}
	return nil
}

// Connect establishes the agent session (typically prompting the user).
func (a *HTTPAgent) Connect(ctx context.Context) error {
	return a.call(ctx, "connect", nil, nil)
}

// Addresses enumerates the addresses the agent controls.
func (a *HTTPAgent) Addresses(ctx context.Context) ([]AgentAddress, error) {
	var result struct {
		Addresses []AgentAddress `json:"addresses"`
	}
	if err := a.call(ctx, "getAddresses", nil, &result); err != nil {
		return nil, err
	}
	return result.Addresses, nil
}

// CallContract asks the agent to sign and broadcast a contract call.
func (a *HTTPAgent) CallContract(ctx context.Context, call ContractCall) (string, error) {
	var result struct {
		TxID string `json:"txid"`
	}
	if err := a.call(ctx, "stx_callContract", call, &result); err != nil {
		return "", err
	}
	if result.TxID == "" {
		return "", fmt.Errorf("agent returned empty txid")
	}
	a.logger.Debug("contract call submitted", "function", call.Function, "txid", result.TxID)
	return result.TxID, nil
}

// Disconnect tears down the agent session.
func (a *HTTPAgent) Disconnect(ctx context.Context) error {
	return a.call(ctx, "disconnect", nil, nil)
}
