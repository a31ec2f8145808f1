package tips

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	natspkg "github.com/tipjarhq/tipjar/service/nats"
	"github.com/tipjarhq/tipjar/service/stacks"
)

// mockQueryClient implements QueryClient. Behavior-focused: configure
// returns, inspect recorded lookups.
type mockQueryClient struct {
	mu          sync.Mutex
	tipCount    uint64
	totalTipped uint64
	balance     uint64
	tips        map[uint64]*stacks.Tip
	countErr    error
	totalErr    error
	balanceErr  error

	countCalls  int
	lookupIDs   []uint64
	lookupDelay func(id uint64) time.Duration
}

func (m *mockQueryClient) GetTipCount(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.countCalls++
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.tipCount, nil
}

func (m *mockQueryClient) GetTotalTipped(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.totalErr != nil {
		return 0, m.totalErr
	}
	return m.totalTipped, nil
}

func (m *mockQueryClient) GetContractBalance(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balanceErr != nil {
		return 0, m.balanceErr
	}
	return m.balance, nil
}

func (m *mockQueryClient) GetTipByID(ctx context.Context, id uint64) (*stacks.Tip, error) {
	if m.lookupDelay != nil {
		time.Sleep(m.lookupDelay(id))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookupIDs = append(m.lookupIDs, id)
	return m.tips[id], nil
}

func (m *mockQueryClient) recordedLookups() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint64, len(m.lookupIDs))
	copy(out, m.lookupIDs)
	return out
}

func makeTips(count uint64) map[uint64]*stacks.Tip {
	tips := make(map[uint64]*stacks.Tip, count)
	for id := uint64(1); id <= count; id++ {
		tips[id] = &stacks.Tip{
			ID:          id,
			Tipper:      "ST1TIPPER",
			Amount:      id * 1_000_000,
			Message:     "gm",
			BlockHeight: 1000 + id,
		}
	}
	return tips
}

func newTestRepo(client QueryClient, opts Options) *Repository {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRepository(client, opts, nil, logger)
}

func TestFetchLatestTips_EmptyLedger(t *testing.T) {
	client := &mockQueryClient{tipCount: 0}
	repo := newTestRepo(client, Options{})

	tips, err := repo.FetchLatestTips(context.Background(), 30)
	require.NoError(t, err)
	assert.Empty(t, tips)
	// Only the count query; no per-id lookups.
	assert.Equal(t, 1, client.countCalls)
	assert.Empty(t, client.recordedLookups())
}

func TestFetchLatestTips_DescendingWindow(t *testing.T) {
	client := &mockQueryClient{tipCount: 12, tips: makeTips(12)}
	// Make lower ids complete first to prove order is by id, not
	// completion.
	client.lookupDelay = func(id uint64) time.Duration {
		return time.Duration(id) * time.Millisecond
	}
	repo := newTestRepo(client, Options{})

	tips, err := repo.FetchLatestTips(context.Background(), 5)
	require.NoError(t, err)

	require.Len(t, tips, 5)
	gotIDs := make([]uint64, len(tips))
	for i, tip := range tips {
		gotIDs[i] = tip.ID
	}
	assert.Equal(t, []uint64{12, 11, 10, 9, 8}, gotIDs)

	assert.ElementsMatch(t, []uint64{12, 11, 10, 9, 8}, client.recordedLookups())
}

func TestFetchLatestTips_LimitExceedsCount(t *testing.T) {
	client := &mockQueryClient{tipCount: 3, tips: makeTips(3)}
	repo := newTestRepo(client, Options{})

	tips, err := repo.FetchLatestTips(context.Background(), 30)
	require.NoError(t, err)
	require.Len(t, tips, 3)
	assert.Equal(t, uint64(3), tips[0].ID)
	assert.Equal(t, uint64(1), tips[2].ID)
}

func TestFetchLatestTips_AbsentIDsDropped(t *testing.T) {
	tips := makeTips(12)
	delete(tips, 10) // a gap in the feed
	client := &mockQueryClient{tipCount: 12, tips: tips}
	repo := newTestRepo(client, Options{})

	got, err := repo.FetchLatestTips(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, got, 4)
	for _, tip := range got {
		assert.NotEqual(t, uint64(10), tip.ID)
	}
}

func TestFetchLatestTips_CountQueryFails(t *testing.T) {
	client := &mockQueryClient{countErr: errors.New("node down")}
	repo := newTestRepo(client, Options{})

	_, err := repo.FetchLatestTips(context.Background(), 30)
	require.Error(t, err)
}

func TestPoll_BuildsSnapshot(t *testing.T) {
	client := &mockQueryClient{
		tipCount:    4,
		totalTipped: 10_000_000,
		balance:     7_500_000,
		tips:        makeTips(4),
	}
	repo := newTestRepo(client, Options{FeedLimit: 30})

	require.NoError(t, repo.Poll(context.Background()))

	snap := repo.Snapshot()
	assert.Len(t, snap.Tips, 4)
	assert.Equal(t, uint64(4), snap.State.TipCount)
	assert.Equal(t, uint64(10_000_000), snap.State.TotalTipped)
	assert.Equal(t, uint64(7_500_000), snap.State.Balance)
	assert.Empty(t, snap.LastErr)
	assert.False(t, snap.UpdatedAt.IsZero())
}

func TestPoll_FailureKeepsPreviousSnapshot(t *testing.T) {
	client := &mockQueryClient{
		tipCount:    4,
		totalTipped: 10_000_000,
		balance:     7_500_000,
		tips:        makeTips(4),
	}
	repo := newTestRepo(client, Options{StaleWindow: time.Nanosecond})

	require.NoError(t, repo.Poll(context.Background()))
	before := repo.Snapshot()

	// Now the balance query starts failing.
	client.balanceErr = errors.New("rate limited")
	err := repo.Poll(context.Background())
	require.Error(t, err)

	after := repo.Snapshot()
	assert.Equal(t, before.Tips, after.Tips, "stale feed is retained")
	assert.Equal(t, before.State.Balance, after.State.Balance, "stale balance is retained")
	assert.NotEmpty(t, after.LastErr, "error flag surfaced alongside stale data")
}

func TestPoll_StalenessWindowServesCache(t *testing.T) {
	client := &mockQueryClient{tipCount: 2, tips: makeTips(2)}
	repo := newTestRepo(client, Options{StaleWindow: time.Hour})

	require.NoError(t, repo.Poll(context.Background()))
	// FetchLatestTips issues its own count query, so the first cycle
	// records two count calls (feed + scalar).
	firstCalls := client.countCalls

	require.NoError(t, repo.Poll(context.Background()))
	assert.Equal(t, firstCalls, client.countCalls, "fresh cache short-circuits the queries")
}

func TestRefresh_InvalidatesCache(t *testing.T) {
	client := &mockQueryClient{tipCount: 2, tips: makeTips(2)}
	repo := newTestRepo(client, Options{StaleWindow: time.Hour})

	require.NoError(t, repo.Poll(context.Background()))
	firstCalls := client.countCalls

	repo.Refresh()
	require.NoError(t, repo.Poll(context.Background()))
	assert.Greater(t, client.countCalls, firstCalls, "refresh forces requerying")
}

func TestPoll_PublishesNewTipsOnce(t *testing.T) {
	client := &mockQueryClient{tipCount: 2, tips: makeTips(2)}
	pub := natspkg.NewMockPublisher()
	repo := newTestRepo(client, Options{StaleWindow: time.Nanosecond, Publisher: pub})
	ctx := context.Background()

	require.NoError(t, repo.Poll(ctx))
	events := pub.GetPublishedEvents()
	require.Len(t, events, 2)
	// Published oldest first.
	assert.Equal(t, uint64(1), events[0].ID)
	assert.Equal(t, uint64(2), events[1].ID)

	// Same tips again: nothing new to publish.
	require.NoError(t, repo.Poll(ctx))
	assert.Len(t, pub.GetPublishedEvents(), 2)

	// A third tip arrives.
	client.mu.Lock()
	client.tipCount = 3
	client.tips[3] = &stacks.Tip{ID: 3, Tipper: "ST1TIPPER", Amount: 3}
	client.mu.Unlock()

	require.NoError(t, repo.Poll(ctx))
	events = pub.GetPublishedEvents()
	require.Len(t, events, 3)
	assert.Equal(t, uint64(3), events[2].ID)
}

func TestPoll_SupersededCycleIsDiscarded(t *testing.T) {
	client := &mockQueryClient{tipCount: 1, tips: makeTips(1)}
	repo := newTestRepo(client, Options{})

	// Simulate an old in-flight cycle by grabbing a sequence number
	// before a newer cycle applies.
	repo.mu.Lock()
	repo.nextSeq++
	staleSeq := repo.nextSeq
	repo.mu.Unlock()

	require.NoError(t, repo.Poll(context.Background()))
	applied := repo.Snapshot()

	// The stale cycle now tries to apply: it must be discarded.
	repo.mu.Lock()
	discarded := staleSeq <= repo.appliedSeq
	repo.mu.Unlock()
	assert.True(t, discarded)
	assert.Equal(t, applied.State, repo.Snapshot().State)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	client := &mockQueryClient{tipCount: 1, tips: makeTips(1)}
	repo := newTestRepo(client, Options{PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- repo.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return len(repo.Snapshot().Tips) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
