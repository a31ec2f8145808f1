package wallet

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockAgent implements Agent for testing. Behavior-focused: configure what
// it returns, not call sequences.
type mockAgent struct {
	mu             sync.Mutex
	addresses      []AgentAddress
	connectErr     error
	addressesErr   error
	callErr        error
	txid           string
	calls          []ContractCall
	connectStarted chan struct{} // optional: closed when Connect begins
	connectRelease chan struct{} // optional: Connect blocks until closed
}

func (m *mockAgent) Connect(ctx context.Context) error {
	if m.connectStarted != nil {
		close(m.connectStarted)
		m.connectStarted = nil
	}
	if m.connectRelease != nil {
		<-m.connectRelease
	}
	return m.connectErr
}

func (m *mockAgent) Addresses(ctx context.Context) ([]AgentAddress, error) {
	if m.addressesErr != nil {
		return nil, m.addressesErr
	}
	return m.addresses, nil
}

func (m *mockAgent) CallContract(ctx context.Context, call ContractCall) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
	if m.callErr != nil {
		return "", m.callErr
	}
	return m.txid, nil
}

func (m *mockAgent) Disconnect(ctx context.Context) error { return nil }

// memStore is an in-memory SessionStore.
type memStore struct {
	mu      sync.Mutex
	session *PersistedSession
	loadErr error
	saveErr error
}

func (s *memStore) Load() (*PersistedSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.session, nil
}

func (s *memStore) Save(p *PersistedSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.session = p
	return nil
}

func (s *memStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewSession_RestoresPersistedSession(t *testing.T) {
	store := &memStore{session: &PersistedSession{Address: "ST1RESTORED"}}
	s := NewSession(&mockAgent{}, store, nil, testLogger())

	status := s.Status()
	assert.Equal(t, StateConnected, status.State)
	assert.Equal(t, "ST1RESTORED", status.Address)
	assert.True(t, status.Connected())
}

func TestNewSession_NoPersistedSession(t *testing.T) {
	s := NewSession(&mockAgent{}, &memStore{}, nil, testLogger())

	status := s.Status()
	assert.Equal(t, StateDisconnected, status.State)
	assert.Empty(t, status.Address)
}

func TestConnect_PrefersSTXSymbol(t *testing.T) {
	agent := &mockAgent{addresses: []AgentAddress{
		{Address: "bc1qbitcoinaddress", Symbol: "BTC"},
		{Address: "ST1STXADDRESS", Symbol: "STX"},
	}}
	store := &memStore{}
	s := NewSession(agent, store, nil, testLogger())

	require.NoError(t, s.Connect(context.Background()))

	status := s.Status()
	assert.Equal(t, StateConnected, status.State)
	assert.Equal(t, "ST1STXADDRESS", status.Address)

	// Session is persisted on connect.
	persisted, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, "ST1STXADDRESS", persisted.Address)
}

func TestConnect_FallsBackToAddressPrefix(t *testing.T) {
	agent := &mockAgent{addresses: []AgentAddress{
		{Address: "bc1qbitcoinaddress"},
		{Address: "SP2MAINNETADDR"},
	}}
	s := NewSession(agent, &memStore{}, nil, testLogger())

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, "SP2MAINNETADDR", s.Address())
}

func TestConnect_FallsBackToPersistedSession(t *testing.T) {
	agent := &mockAgent{addresses: []AgentAddress{{Address: "bc1qonlybitcoin"}}}
	store := &memStore{session: &PersistedSession{Address: "ST1OLD"}}
	s := NewSession(agent, store, nil, testLogger())
	// Force a fresh connect over the restored session.
	require.NoError(t, s.Disconnect(context.Background()))
	require.NoError(t, store.Save(&PersistedSession{Address: "ST1OLD"}))

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, "ST1OLD", s.Address())
}

func TestConnect_NoAddressAvailable(t *testing.T) {
	agent := &mockAgent{addresses: []AgentAddress{{Address: "bc1qonlybitcoin"}}}
	s := NewSession(agent, &memStore{}, nil, testLogger())

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to get wallet address")

	status := s.Status()
	assert.Equal(t, StateConnectError, status.State)
	assert.Empty(t, status.Address)
	assert.NotEmpty(t, status.Err)
}

func TestConnect_AgentError(t *testing.T) {
	agent := &mockAgent{connectErr: errors.New("user rejected")}
	s := NewSession(agent, &memStore{}, nil, testLogger())

	err := s.Connect(context.Background())
	require.Error(t, err)

	status := s.Status()
	assert.Equal(t, StateConnectError, status.State)
	assert.Contains(t, status.Err, "user rejected")
}

func TestConnect_RejectsConcurrentAttempts(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	agent := &mockAgent{
		addresses:      []AgentAddress{{Address: "ST1ADDR", Symbol: "STX"}},
		connectStarted: started,
		connectRelease: release,
	}
	s := NewSession(agent, &memStore{}, nil, testLogger())

	firstDone := make(chan error, 1)
	go func() { firstDone <- s.Connect(context.Background()) }()
	<-started

	// Second call while the first is still connecting is rejected.
	err := s.Connect(context.Background())
	assert.ErrorIs(t, err, ErrConnectInProgress)

	close(release)
	require.NoError(t, <-firstDone)
	assert.Equal(t, StateConnected, s.Status().State)
}

func TestDisconnect_ClearsEverything(t *testing.T) {
	store := &memStore{session: &PersistedSession{Address: "ST1ADDR"}}
	s := NewSession(&mockAgent{}, store, nil, testLogger())
	require.True(t, s.Status().Connected())

	require.NoError(t, s.Disconnect(context.Background()))

	status := s.Status()
	assert.Equal(t, StateDisconnected, status.State)
	assert.Empty(t, status.Address)

	persisted, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, persisted)
}

func TestResolveStacksAddress(t *testing.T) {
	assert.Equal(t, "", resolveStacksAddress(nil))
	assert.Equal(t, "ST1A", resolveStacksAddress([]AgentAddress{{Address: "ST1A"}}))
	assert.Equal(t, "SP1B", resolveStacksAddress([]AgentAddress{
		{Address: "0xethaddress"},
		{Address: "SP1B"},
	}))
	assert.Equal(t, "ST1SYM", resolveStacksAddress([]AgentAddress{
		{Address: "SP1FIRST"},
		{Address: "ST1SYM", Symbol: "STX"},
	}))
}
