package wallet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/tipjarhq/tipjar/service/config"
	"github.com/tipjarhq/tipjar/service/metrics"
	"github.com/tipjarhq/tipjar/service/stacks"
)

// ErrNotConnected is returned when a transaction-submitting operation is
// attempted without a connected session.
var ErrNotConnected = errors.New("wallet not connected")

// ErrInvalidMessage is returned when a tip message exceeds the contract's
// 280-character string-ascii bound or contains non-ASCII characters.
// Like stacks.ErrInvalidAmount, it is raised before any network call.
var ErrInvalidMessage = errors.New("invalid message")

// SubmissionError wraps an agent or ledger rejection of a mutating call.
// Submissions are never retried automatically.
type SubmissionError struct {
	Kind  string // "tip" or "withdraw"
	Cause error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s submission failed: %v", e.Kind, e.Cause)
}

func (e *SubmissionError) Unwrap() error { return e.Cause }

// Submitter builds and submits the two mutating contract calls given a
// connected session. The post-condition mode is fixed configuration:
// "allow" matches the original deployment's trust model, "deny" lets a
// stricter deployment bound asset movement.
type Submitter struct {
	session  *Session
	contract stacks.ContractConfig
	network  string
	mode     config.PostConditionMode
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewSubmitter creates a transaction submitter bound to a session.
func NewSubmitter(session *Session, contract stacks.ContractConfig, network string, mode config.PostConditionMode, m *metrics.Metrics, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Submitter{
		session:  session,
		contract: contract,
		network:  network,
		mode:     mode,
		logger:   logger,
		metrics:  m,
	}
}

// SendTip converts the display amount to microSTX, encodes the contract
// arguments, and submits a tip call through the signing agent. It returns
// the ledger-assigned transaction id.
//
// Validation happens before any network call: the amount must convert to
// a positive microSTX value and the message must fit the contract's
// string-ascii bound. Callers normally validate first; this layer rejects
// regardless.
func (s *Submitter) SendTip(ctx context.Context, amountSTX float64, message string) (string, error) {
	if !s.session.Status().Connected() {
		return "", ErrNotConnected
	}

	micro, err := stacks.STXToMicro(amountSTX)
	if err != nil {
		return "", err
	}
	if micro == 0 {
		return "", fmt.Errorf("%w: amount must be positive", stacks.ErrInvalidAmount)
	}
	if len(message) > stacks.MaxMessageLength {
		return "", fmt.Errorf("%w: %d characters exceeds limit of %d",
			ErrInvalidMessage, len(message), stacks.MaxMessageLength)
	}
	if !stacks.IsASCII(message) {
		return "", fmt.Errorf("%w: message must be printable ascii", ErrInvalidMessage)
	}

	txid, err := s.submit(ctx, "tip", stacks.FnTip, []string{
		stacks.EncodeUInt(micro),
		stacks.EncodeStringASCII(message),
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("tip submitted",
		"amount_micro", micro,
		"txid", txid,
	)
	return txid, nil
}

// Withdraw submits a zero-argument withdraw call. Ownership is not
// checked here: the contract is the sole authority on authorization, and
// any client-side owner gating is presentation-level convenience.
func (s *Submitter) Withdraw(ctx context.Context) (string, error) {
	if !s.session.Status().Connected() {
		return "", ErrNotConnected
	}

	txid, err := s.submit(ctx, "withdraw", stacks.FnWithdraw, nil)
	if err != nil {
		return "", err
	}

	s.logger.Info("withdraw submitted", "txid", txid)
	return txid, nil
}

func (s *Submitter) submit(ctx context.Context, kind, function string, args []string) (string, error) {
	if args == nil {
		args = []string{}
	}
	txid, err := s.session.agent.CallContract(ctx, ContractCall{
		Contract:          s.contract.ContractID(),
		Function:          function,
		Arguments:         args,
		Network:           s.network,
		PostConditionMode: string(s.mode),
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordTxSubmission(kind, "error")
		}
		return "", &SubmissionError{Kind: kind, Cause: err}
	}
	if s.metrics != nil {
		s.metrics.RecordTxSubmission(kind, "success")
	}
	return txid, nil
}
