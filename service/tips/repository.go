// Package tips maintains the client-visible view of the tip-jar contract:
// the ordered tip feed and the aggregate counters, refreshed on a fixed
// cadence from independent read-only queries.
package tips

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tipjarhq/tipjar/service/metrics"
	natspkg "github.com/tipjarhq/tipjar/service/nats"
	"github.com/tipjarhq/tipjar/service/stacks"
)

// QueryClient is the subset of the ledger query client the repository
// needs. GetTipByID returns (nil, nil) when the id has no record.
type QueryClient interface {
	GetTipCount(ctx context.Context) (uint64, error)
	GetTotalTipped(ctx context.Context) (uint64, error)
	GetContractBalance(ctx context.Context) (uint64, error)
	GetTipByID(ctx context.Context, id uint64) (*stacks.Tip, error)
}

// Snapshot is the repository's current view of contract state. Tips are
// ordered newest first. The four underlying queries share no consistency
// boundary, so TipCount and len(Tips) may transiently disagree by one.
type Snapshot struct {
	Tips      []*stacks.Tip        `json:"tips"`
	State     stacks.ContractState `json:"state"`
	UpdatedAt time.Time            `json:"updated_at"`
	// LastErr carries the most recent poll failure. Data alongside it is
	// the previous successful snapshot, stale but available.
	LastErr string `json:"last_err,omitempty"`
}

// Options configures a Repository.
type Options struct {
	FeedLimit    int               // how many recent tips to keep (defaults to 30)
	PollInterval time.Duration     // Run cadence (defaults to 20s)
	StaleWindow  time.Duration     // per-query cache window (defaults to 10s)
	Publisher    natspkg.Publisher // optional; receives newly observed tips
}

const (
	defaultFeedLimit    = 30
	defaultPollInterval = 20 * time.Second
	defaultStaleWindow  = 10 * time.Second
)

// cached holds one query's last result and fetch time for the staleness
// window.
type cached[T any] struct {
	value     T
	fetchedAt time.Time
}

func (c cached[T]) fresh(now time.Time, window time.Duration) bool {
	return !c.fetchedAt.IsZero() && now.Sub(c.fetchedAt) < window
}

// Repository derives the tip feed and contract aggregates by polling the
// query client. It is an explicit object with constructor-time
// initialization and explicit teardown (stop via the Run context); no
// process-wide state.
type Repository struct {
	client       QueryClient
	logger       *slog.Logger
	metrics      *metrics.Metrics
	publisher    natspkg.Publisher
	feedLimit    int
	pollInterval time.Duration
	staleWindow  time.Duration

	mu         sync.Mutex
	snap       Snapshot
	feed       cached[[]*stacks.Tip]
	tipCount   cached[uint64]
	total      cached[uint64]
	balance    cached[uint64]
	nextSeq    uint64
	appliedSeq uint64
	// highest tip id already published as an event
	publishedID uint64
}

// NewRepository creates a repository. If m is nil no metrics are recorded;
// if opts.Publisher is nil no events are published.
func NewRepository(client QueryClient, opts Options, m *metrics.Metrics, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if opts.FeedLimit <= 0 {
		opts.FeedLimit = defaultFeedLimit
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.StaleWindow <= 0 {
		opts.StaleWindow = defaultStaleWindow
	}
	return &Repository{
		client:       client,
		logger:       logger,
		metrics:      m,
		publisher:    opts.Publisher,
		feedLimit:    opts.FeedLimit,
		pollInterval: opts.PollInterval,
		staleWindow:  opts.StaleWindow,
	}
}

// Snapshot returns a copy of the current view.
func (r *Repository) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.snap
	out.Tips = make([]*stacks.Tip, len(r.snap.Tips))
	copy(out.Tips, r.snap.Tips)
	return out
}

// Refresh invalidates all cached query results so the next poll hits the
// ledger again. It performs no fetch itself.
func (r *Repository) Refresh() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feed.fetchedAt = time.Time{}
	r.tipCount.fetchedAt = time.Time{}
	r.total.fetchedAt = time.Time{}
	r.balance.fetchedAt = time.Time{}
}

// FetchLatestTips reads the tip count and fans out concurrent lookups for
// the newest ids, newest first. Absent ids (including ids whose lookup
// failed) are silently dropped from the result — a precision/availability
// tradeoff that keeps the feed usable through transient gaps.
func (r *Repository) FetchLatestTips(ctx context.Context, limit int) ([]*stacks.Tip, error) {
	count, err := r.client.GetTipCount(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []*stacks.Tip{}, nil
	}

	startID := uint64(1)
	if count > uint64(limit) {
		startID = count - uint64(limit) + 1
	}

	n := int(count - startID + 1)
	results := make([]*stacks.Tip, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Descending: slot 0 holds the newest id. Lookup failures
			// surface as nil and are filtered below, so completion order
			// never affects feed order.
			tip, _ := r.client.GetTipByID(ctx, count-uint64(i))
			results[i] = tip
		}(i)
	}
	wg.Wait()

	tips := make([]*stacks.Tip, 0, n)
	for _, tip := range results {
		if tip != nil {
			tips = append(tips, tip)
		}
	}

	if r.metrics != nil {
		r.metrics.RecordTipsFetched("contract", len(tips))
		if dropped := n - len(tips); dropped > 0 {
			r.metrics.RecordTipsDropped("absent_or_failed", dropped)
		}
	}

	return tips, nil
}

// Poll runs one refresh cycle: each of the four independent queries is
// re-issued unless its cached value is still within the staleness window.
// Results are applied last-writer-wins per cycle; a cycle that finishes
// after a newer cycle has already applied is discarded wholesale.
func (r *Repository) Poll(ctx context.Context) error {
	r.mu.Lock()
	seq := r.nextSeq + 1
	r.nextSeq = seq
	now := time.Now()
	feedCached, feedOK := r.feed, r.feed.fresh(now, r.staleWindow)
	countCached, countOK := r.tipCount, r.tipCount.fresh(now, r.staleWindow)
	totalCached, totalOK := r.total, r.total.fresh(now, r.staleWindow)
	balanceCached, balanceOK := r.balance, r.balance.fresh(now, r.staleWindow)
	r.mu.Unlock()

	start := time.Now()

	var wg sync.WaitGroup
	var feedErr, countErr, totalErr, balanceErr error

	if !feedOK {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tips, err := r.FetchLatestTips(ctx, r.feedLimit)
			if err != nil {
				feedErr = err
				return
			}
			feedCached = cached[[]*stacks.Tip]{value: tips, fetchedAt: time.Now()}
		}()
	}
	if !countOK {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := r.client.GetTipCount(ctx)
			if err != nil {
				countErr = err
				return
			}
			countCached = cached[uint64]{value: n, fetchedAt: time.Now()}
		}()
	}
	if !totalOK {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := r.client.GetTotalTipped(ctx)
			if err != nil {
				totalErr = err
				return
			}
			totalCached = cached[uint64]{value: n, fetchedAt: time.Now()}
		}()
	}
	if !balanceOK {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := r.client.GetContractBalance(ctx)
			if err != nil {
				balanceErr = err
				return
			}
			balanceCached = cached[uint64]{value: n, fetchedAt: time.Now()}
		}()
	}
	wg.Wait()

	var firstErr error
	for _, err := range []error{feedErr, countErr, totalErr, balanceErr} {
		if err != nil {
			firstErr = err
			break
		}
	}

	r.mu.Lock()
	if seq <= r.appliedSeq {
		// A newer cycle already applied; discard this one wholesale.
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.RecordPollCycle("superseded", time.Since(start).Seconds())
		}
		return nil
	}
	r.appliedSeq = seq

	// A query that failed leaves its previous value in place; the
	// snapshot is stale-but-available, never cleared.
	r.feed = feedCached
	r.tipCount = countCached
	r.total = totalCached
	r.balance = balanceCached

	r.snap = Snapshot{
		Tips: feedCached.value,
		State: stacks.ContractState{
			Balance:     balanceCached.value,
			TipCount:    countCached.value,
			TotalTipped: totalCached.value,
		},
		UpdatedAt: time.Now(),
	}
	if firstErr != nil {
		r.snap.LastErr = firstErr.Error()
	}

	newTips := r.unpublishedTipsLocked()
	r.mu.Unlock()

	status := "success"
	if firstErr != nil {
		status = "error"
		r.logger.WarnContext(ctx, "poll cycle failed, serving stale snapshot",
			"seq", seq,
			"error", firstErr,
		)
	}
	if r.metrics != nil {
		r.metrics.RecordPollCycle(status, time.Since(start).Seconds())
	}

	r.publishNewTips(ctx, newTips)

	return firstErr
}

// unpublishedTipsLocked returns snapshot tips newer than the last
// published id, oldest first, and advances the watermark. Callers must
// hold r.mu.
func (r *Repository) unpublishedTipsLocked() []*stacks.Tip {
	if r.publisher == nil {
		return nil
	}
	var out []*stacks.Tip
	// Feed is newest-first; walk backwards for ascending publish order.
	for i := len(r.snap.Tips) - 1; i >= 0; i-- {
		if tip := r.snap.Tips[i]; tip.ID > r.publishedID {
			out = append(out, tip)
		}
	}
	if len(out) > 0 {
		r.publishedID = out[len(out)-1].ID
	}
	return out
}

func (r *Repository) publishNewTips(ctx context.Context, tips []*stacks.Tip) {
	if r.publisher == nil || len(tips) == 0 {
		return
	}
	events := make([]*natspkg.TipEvent, len(tips))
	for i, tip := range tips {
		events[i] = natspkg.FromTip(tip)
	}
	if err := r.publisher.PublishTipBatch(ctx, events); err != nil {
		r.logger.ErrorContext(ctx, "failed to publish tip events", "error", err)
	}
}

// Run polls immediately and then on the configured interval until the
// context is canceled. A failed cycle is logged and the loop continues.
func (r *Repository) Run(ctx context.Context) error {
	if err := r.Poll(ctx); err != nil {
		r.logger.WarnContext(ctx, "initial poll failed", "error", err)
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "repository poll loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Poll(ctx); err != nil {
				// Already surfaced in the snapshot's LastErr.
				continue
			}
		}
	}
}
