package wallet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/tipjarhq/tipjar/service/metrics"
)

// State is the wallet session lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateConnectError State = "connect_error"
)

// ErrConnectInProgress is returned by Connect when another connect attempt
// is already running. Callers should wait for the first attempt to settle.
var ErrConnectInProgress = errors.New("connect already in progress")

// AgentAddress is one address enumerated by the signing agent.
type AgentAddress struct {
	Address   string `json:"address"`
	Symbol    string `json:"symbol,omitempty"`
	PublicKey string `json:"public_key,omitempty"`
}

// ContractCall describes a mutating contract call for the signing agent
// to authorize and broadcast.
type ContractCall struct {
	Contract          string   `json:"contract"` // "<address>.<name>"
	Function          string   `json:"function"`
	Arguments         []string `json:"arguments"` // hex-serialized Clarity values
	Network           string   `json:"network"`
	PostConditionMode string   `json:"post_condition_mode"`
}

// Agent is the external signing agent: it holds keys, authorizes
// transactions, and owns fee/nonce handling. This core never implements
// signing; it only drives the agent.
type Agent interface {
	// Connect establishes a session with the agent (e.g. prompts the user).
	Connect(ctx context.Context) error
	// Addresses enumerates the addresses the agent controls.
	Addresses(ctx context.Context) ([]AgentAddress, error)
	// CallContract submits a signed contract-call and returns the txid.
	CallContract(ctx context.Context, call ContractCall) (string, error)
	// Disconnect tears down the agent session.
	Disconnect(ctx context.Context) error
}

// PersistedSession is the locally stored record of the last connected
// address, restored across restarts without contacting the agent.
type PersistedSession struct {
	Address string `json:"address"`
}

// SessionStore persists the session record. The schema is owned by this
// integration, not by the ledger core.
type SessionStore interface {
	// Load returns the persisted session, or (nil, nil) when none exists.
	Load() (*PersistedSession, error)
	Save(*PersistedSession) error
	Clear() error
}

// Status is a point-in-time snapshot of the session.
type Status struct {
	State   State
	Address string
	Err     string
}

// Connected reports whether the session holds a usable address.
func (s Status) Connected() bool { return s.State == StateConnected }

// Session owns the connect/disconnect lifecycle with the signing agent.
// It is an explicit object passed to consumers; there is no ambient
// process-wide session.
//
// Invariant: Address is non-empty if and only if State is StateConnected.
type Session struct {
	agent   Agent
	store   SessionStore
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	state   State
	address string
	lastErr string
}

// NewSession creates a session manager. If the store holds a structurally
// valid persisted session, the manager starts out Connected without
// contacting the agent.
func NewSession(agent Agent, store SessionStore, m *metrics.Metrics, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	s := &Session{
		agent:   agent,
		store:   store,
		logger:  logger,
		metrics: m,
		state:   StateDisconnected,
	}

	if persisted, err := store.Load(); err != nil {
		logger.Warn("failed to load persisted session", "error", err)
	} else if persisted != nil && persisted.Address != "" {
		s.state = StateConnected
		s.address = persisted.Address
		logger.Info("restored wallet session", "address", persisted.Address)
	}

	return s
}

// Status returns a snapshot of the current session state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{State: s.state, Address: s.address, Err: s.lastErr}
}

// Address returns the active address, or "" when not connected.
func (s *Session) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// Connect establishes a session with the signing agent and resolves the
// active Stacks address. A concurrent call while already Connecting
// returns ErrConnectInProgress. On failure the session moves to
// StateConnectError and the user may retry.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnecting {
		s.mu.Unlock()
		return ErrConnectInProgress
	}
	s.state = StateConnecting
	s.lastErr = ""
	s.mu.Unlock()

	if err := s.connect(ctx); err != nil {
		s.mu.Lock()
		s.state = StateConnectError
		s.address = ""
		s.lastErr = err.Error()
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.RecordWalletConnect("error")
		}
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordWalletConnect("success")
	}
	return nil
}

func (s *Session) connect(ctx context.Context) error {
	if err := s.agent.Connect(ctx); err != nil {
		return fmt.Errorf("agent connect failed: %w", err)
	}

	addrs, err := s.agent.Addresses(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate addresses: %w", err)
	}

	address := resolveStacksAddress(addrs)
	if address == "" {
		// Fall back to a previously persisted session before giving up.
		if persisted, loadErr := s.store.Load(); loadErr == nil && persisted != nil && persisted.Address != "" {
			address = persisted.Address
		}
	}
	if address == "" {
		return errors.New("Failed to get wallet address")
	}

	if err := s.store.Save(&PersistedSession{Address: address}); err != nil {
		s.logger.Warn("failed to persist session", "error", err)
	}

	s.mu.Lock()
	s.state = StateConnected
	s.address = address
	s.mu.Unlock()

	s.logger.Info("wallet connected", "address", address)
	return nil
}

// resolveStacksAddress picks the Stacks address from the agent's list:
// an entry tagged with the STX symbol, or one matching the SP/ST address
// prefix convention.
func resolveStacksAddress(addrs []AgentAddress) string {
	for _, a := range addrs {
		if a.Symbol == "STX" {
			return a.Address
		}
	}
	for _, a := range addrs {
		if strings.HasPrefix(a.Address, "SP") || strings.HasPrefix(a.Address, "ST") {
			return a.Address
		}
	}
	return ""
}

// Disconnect clears the persisted session and moves to Disconnected,
// regardless of prior state. Agent-side teardown failures are logged but
// do not keep the session alive.
func (s *Session) Disconnect(ctx context.Context) error {
	if err := s.agent.Disconnect(ctx); err != nil {
		s.logger.Warn("agent disconnect failed", "error", err)
	}
	if err := s.store.Clear(); err != nil {
		s.logger.Warn("failed to clear persisted session", "error", err)
	}

	s.mu.Lock()
	s.state = StateDisconnected
	s.address = ""
	s.lastErr = ""
	s.mu.Unlock()

	s.logger.Info("wallet disconnected")
	return nil
}
