package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "https://api.testnet.hiro.so", cfg.APIBaseURL)
	assert.Equal(t, "testnet", cfg.Network)
	assert.Equal(t, "tip-jar", cfg.ContractName)
	// Owner defaults to the deployer address.
	assert.Equal(t, cfg.ContractAddress, cfg.OwnerAddress)
	assert.Equal(t, PostConditionAllow, cfg.PostConditionMode)
	assert.Equal(t, 20*time.Second, cfg.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.StaleWindow)
	assert.Equal(t, 30, cfg.FeedLimit)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STACKS_API_URL", "http://localhost:3999")
	t.Setenv("STACKS_NETWORK", "mainnet")
	t.Setenv("CONTRACT_ADDRESS", "SP000000000000000000002Q6VF78")
	t.Setenv("CONTRACT_OWNER", "SP2OWNER")
	t.Setenv("POLL_INTERVAL", "5s")
	t.Setenv("STALE_WINDOW", "2s")
	t.Setenv("FEED_LIMIT", "10")
	t.Setenv("POST_CONDITION_MODE", "deny")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3999", cfg.APIBaseURL)
	assert.Equal(t, "mainnet", cfg.Network)
	assert.Equal(t, "SP2OWNER", cfg.OwnerAddress)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.StaleWindow)
	assert.Equal(t, 10, cfg.FeedLimit)
	assert.Equal(t, PostConditionDeny, cfg.PostConditionMode)
}

func TestLoad_InvalidNetwork(t *testing.T) {
	t.Setenv("STACKS_NETWORK", "regtest")

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "STACKS_NETWORK")
}

func TestLoad_InvalidPollInterval(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "soon")

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_InvalidPostConditionMode(t *testing.T) {
	t.Setenv("POST_CONDITION_MODE", "maybe")

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "POST_CONDITION_MODE")
}

func TestValidate_StaleWindowExceedsPollInterval(t *testing.T) {
	cfg := &Config{
		APIBaseURL:      "http://localhost:3999",
		ContractAddress: "ST1TEST",
		ContractName:    "tip-jar",
		PollInterval:    5 * time.Second,
		StaleWindow:     10 * time.Second,
		FeedLimit:       30,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "StaleWindow")
}
