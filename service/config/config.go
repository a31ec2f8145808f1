package config

import (
	"fmt"
	"os"
	"time"
)

// PostConditionMode controls how much asset movement a submitted
// contract-call may perform.
type PostConditionMode string

const (
	// PostConditionAllow places no bound on asset transfer, trusting the
	// contract's own logic. This matches the original deployment.
	PostConditionAllow PostConditionMode = "allow"
	// PostConditionDeny rejects any transfer not covered by an explicit
	// post-condition. Stricter deployments opt into this.
	PostConditionDeny PostConditionMode = "deny"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
// The target network is fixed for the life of the process.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Stacks node configuration
	APIBaseURL string
	Network    string // "mainnet" or "testnet"

	// Tip-jar contract configuration
	ContractAddress string
	ContractName    string
	OwnerAddress    string

	// Signing agent configuration
	SignerURL   string
	SessionPath string

	// Transaction submission
	PostConditionMode PostConditionMode

	// NATS configuration (optional; empty disables event publishing)
	NATSURL string

	// Polling configuration
	PollInterval time.Duration
	StaleWindow  time.Duration
	FeedLimit    int
}

// Defaults point at the testnet deployment of the tip-jar contract.
const (
	defaultAPIBaseURL      = "https://api.testnet.hiro.so"
	defaultNetwork         = "testnet"
	defaultContractAddress = "STGDS0Y17973EN5TCHNHGJJ9B31XWQ5YXBQ0KQ2Y"
	defaultContractName    = "tip-jar"
)

// Load reads configuration from environment variables and validates all
// required fields. Returns an error if any value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Stacks node configuration
	cfg.APIBaseURL = getEnvOrDefault("STACKS_API_URL", defaultAPIBaseURL)
	cfg.Network = getEnvOrDefault("STACKS_NETWORK", defaultNetwork)
	if cfg.Network != "mainnet" && cfg.Network != "testnet" {
		errs = append(errs, fmt.Errorf("STACKS_NETWORK must be mainnet or testnet, got %q", cfg.Network))
	}

	// Contract configuration. The owner defaults to the deployer.
	cfg.ContractAddress = getEnvOrDefault("CONTRACT_ADDRESS", defaultContractAddress)
	cfg.ContractName = getEnvOrDefault("CONTRACT_NAME", defaultContractName)
	cfg.OwnerAddress = getEnvOrDefault("CONTRACT_OWNER", cfg.ContractAddress)

	// Signing agent configuration. Only required by commands that submit
	// transactions; validated there, not here.
	cfg.SignerURL = os.Getenv("SIGNER_URL")
	cfg.SessionPath = getEnvOrDefault("SESSION_PATH", defaultSessionPath())

	mode := PostConditionMode(getEnvOrDefault("POST_CONDITION_MODE", string(PostConditionAllow)))
	if mode != PostConditionAllow && mode != PostConditionDeny {
		errs = append(errs, fmt.Errorf("POST_CONDITION_MODE must be allow or deny, got %q", mode))
	}
	cfg.PostConditionMode = mode

	// NATS configuration (optional)
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Polling configuration
	pollInterval, err := parseDuration("POLL_INTERVAL", "20s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PollInterval = pollInterval
	}

	staleWindow, err := parseDuration("STALE_WINDOW", "10s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.StaleWindow = staleWindow
	}

	feedLimit, err := parseInt("FEED_LIMIT", 30)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.FeedLimit = feedLimit
	}

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.APIBaseURL == "" {
		errs = append(errs, fmt.Errorf("APIBaseURL is required"))
	}

	if c.ContractAddress == "" {
		errs = append(errs, fmt.Errorf("ContractAddress is required"))
	}

	if c.ContractName == "" {
		errs = append(errs, fmt.Errorf("ContractName is required"))
	}

	if c.PollInterval > 0 && c.PollInterval < time.Second {
		errs = append(errs, fmt.Errorf("PollInterval must be at least 1 second"))
	}

	if c.StaleWindow > c.PollInterval {
		errs = append(errs, fmt.Errorf("StaleWindow (%v) cannot be greater than PollInterval (%v)",
			c.StaleWindow, c.PollInterval))
	}

	if c.FeedLimit < 1 {
		errs = append(errs, fmt.Errorf("FeedLimit must be at least 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%v", errs)
	}

	return nil
}

// defaultSessionPath places the persisted wallet session under the user's
// config directory, falling back to the working directory.
func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".tipjar-session.json"
	}
	return dir + "/tipjar/session.json"
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	var n int
	if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return n, nil
}
