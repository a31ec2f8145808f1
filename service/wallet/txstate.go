package wallet

import (
	"sync"
	"time"
)

// TxStatus is the per-submission UI state.
type TxStatus string

const (
	TxIdle    TxStatus = "idle"
	TxPending TxStatus = "pending"
	TxSuccess TxStatus = "success"
	TxError   TxStatus = "error"
)

// DefaultTxResetDelay is how long Success and Error remain visible before
// the tracker returns to Idle.
const DefaultTxResetDelay = 3 * time.Second

// TxTracker drives the Idle -> Pending -> {Success | Error} -> Idle state
// machine for one submission slot. Success and Error are terminal but
// transient: after the reset delay the tracker returns to Idle and a new
// submission may begin immediately. There is no hidden cooldown.
type TxTracker struct {
	mu         sync.Mutex
	status     TxStatus
	txID       string
	err        error
	resetDelay time.Duration
	generation int
}

// NewTxTracker creates a tracker with the given reset delay; a
// non-positive delay uses DefaultTxResetDelay.
func NewTxTracker(resetDelay time.Duration) *TxTracker {
	if resetDelay <= 0 {
		resetDelay = DefaultTxResetDelay
	}
	return &TxTracker{status: TxIdle, resetDelay: resetDelay}
}

// Begin moves Idle to Pending. It reports false while a submission is
// already pending or a terminal state has not reset yet.
func (t *TxTracker) Begin() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != TxIdle {
		return false
	}
	t.status = TxPending
	t.txID = ""
	t.err = nil
	t.generation++
	return true
}

// Succeed records a successful submission and schedules the reset.
func (t *TxTracker) Succeed(txID string) {
	t.settle(TxSuccess, txID, nil)
}

// Fail records a failed submission and schedules the reset.
func (t *TxTracker) Fail(err error) {
	t.settle(TxError, "", err)
}

func (t *TxTracker) settle(status TxStatus, txID string, err error) {
	t.mu.Lock()
	if t.status != TxPending {
		t.mu.Unlock()
		return
	}
	t.status = status
	t.txID = txID
	t.err = err
	gen := t.generation
	t.mu.Unlock()

	time.AfterFunc(t.resetDelay, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		// Only reset if no newer submission has started since.
		if t.generation == gen && (t.status == TxSuccess || t.status == TxError) {
			t.status = TxIdle
			t.txID = ""
			t.err = nil
		}
	})
}

// Status returns the current state with its txid or error, if any.
func (t *TxTracker) Status() (TxStatus, string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status, t.txID, t.err
}
