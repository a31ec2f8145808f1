package wallet

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tipjarhq/tipjar/service/config"
	"github.com/tipjarhq/tipjar/service/stacks"
)

var testContract = stacks.ContractConfig{
	APIBaseURL:      "https://api.testnet.hiro.so",
	ContractAddress: "STGDS0Y17973EN5TCHNHGJJ9B31XWQ5YXBQ0KQ2Y",
	ContractName:    "tip-jar",
}

func newTestSubmitter(agent *mockAgent, connected bool) *Submitter {
	store := &memStore{}
	if connected {
		store.session = &PersistedSession{Address: "ST1TIPPER"}
	}
	session := NewSession(agent, store, nil, testLogger())
	return NewSubmitter(session, testContract, "testnet", config.PostConditionAllow, nil, testLogger())
}

func TestSendTip(t *testing.T) {
	agent := &mockAgent{txid: "0xabc123"}
	sub := newTestSubmitter(agent, true)

	txid, err := sub.SendTip(context.Background(), 1.5, "great post")
	require.NoError(t, err)
	assert.Equal(t, "0xabc123", txid)

	require.Len(t, agent.calls, 1)
	call := agent.calls[0]
	assert.Equal(t, testContract.ContractID(), call.Contract)
	assert.Equal(t, "tip", call.Function)
	assert.Equal(t, "testnet", call.Network)
	assert.Equal(t, "allow", call.PostConditionMode)
	require.Len(t, call.Arguments, 2)
	assert.Equal(t, stacks.EncodeUInt(1_500_000), call.Arguments[0])
	assert.Equal(t, stacks.EncodeStringASCII("great post"), call.Arguments[1])
}

func TestSendTip_NotConnected(t *testing.T) {
	agent := &mockAgent{txid: "0xabc123"}
	sub := newTestSubmitter(agent, false)

	_, err := sub.SendTip(context.Background(), 1, "hi")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, agent.calls, "no network call may be issued")
}

func TestSendTip_InvalidAmount(t *testing.T) {
	agent := &mockAgent{txid: "0xabc123"}
	sub := newTestSubmitter(agent, true)

	for _, amount := range []float64{-1, 0, 0.0000001} {
		_, err := sub.SendTip(context.Background(), amount, "hi")
		assert.ErrorIs(t, err, stacks.ErrInvalidAmount, "amount=%v", amount)
	}
	assert.Empty(t, agent.calls, "no network call may be issued")
}

func TestSendTip_MessageTooLong(t *testing.T) {
	agent := &mockAgent{txid: "0xabc123"}
	sub := newTestSubmitter(agent, true)

	_, err := sub.SendTip(context.Background(), 1, strings.Repeat("x", 281))
	assert.ErrorIs(t, err, ErrInvalidMessage)
	assert.Empty(t, agent.calls)
}

func TestSendTip_NonASCIIMessage(t *testing.T) {
	agent := &mockAgent{txid: "0xabc123"}
	sub := newTestSubmitter(agent, true)

	_, err := sub.SendTip(context.Background(), 1, "dziękuję")
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestSendTip_AgentRejection(t *testing.T) {
	agent := &mockAgent{callErr: errors.New("user canceled")}
	sub := newTestSubmitter(agent, true)

	_, err := sub.SendTip(context.Background(), 1, "hi")
	var se *SubmissionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "tip", se.Kind)
	assert.Contains(t, se.Cause.Error(), "user canceled")
}

func TestWithdraw(t *testing.T) {
	agent := &mockAgent{txid: "0xwithdraw1"}
	sub := newTestSubmitter(agent, true)

	txid, err := sub.Withdraw(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0xwithdraw1", txid)

	require.Len(t, agent.calls, 1)
	assert.Equal(t, "withdraw", agent.calls[0].Function)
	assert.Empty(t, agent.calls[0].Arguments)
}

func TestWithdraw_NotConnected(t *testing.T) {
	sub := newTestSubmitter(&mockAgent{}, false)

	_, err := sub.Withdraw(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSubmitAfterDisconnect(t *testing.T) {
	agent := &mockAgent{
		txid:      "0xabc",
		addresses: []AgentAddress{{Address: "ST1TIPPER", Symbol: "STX"}},
	}
	store := &memStore{session: &PersistedSession{Address: "ST1TIPPER"}}
	session := NewSession(agent, store, nil, testLogger())
	sub := NewSubmitter(session, testContract, "testnet", config.PostConditionAllow, nil, testLogger())
	ctx := context.Background()

	_, err := sub.SendTip(ctx, 1, "hi")
	require.NoError(t, err)

	require.NoError(t, session.Disconnect(ctx))
	_, err = sub.SendTip(ctx, 1, "hi")
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = sub.Withdraw(ctx)
	assert.ErrorIs(t, err, ErrNotConnected)

	// A fresh connect restores submission.
	require.NoError(t, session.Connect(ctx))
	_, err = sub.SendTip(ctx, 1, "hi")
	require.NoError(t, err)
}
