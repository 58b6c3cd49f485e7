package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"stablemortgage/native/params"
)

// Config is the daemon configuration loaded from TOML. Genesis values apply
// only on first start against an empty database; afterwards governance owns
// the parameters.
type Config struct {
	ListenAddress string           `toml:"ListenAddress"`
	DataDir       string           `toml:"DataDir"`
	LogLevel      string           `toml:"LogLevel"`
	Genesis       GenesisConfig    `toml:"genesis"`
	Rewards       RewardsConfig    `toml:"rewards"`
	Governance    GovernanceConfig `toml:"governance"`
}

// GenesisConfig seeds the global loan parameters.
type GenesisConfig struct {
	Parameters params.Parameters `toml:"parameters"`
}

// RewardsConfig seeds the incentive ledger.
type RewardsConfig struct {
	Authority         string `toml:"Authority"`
	RewardSource      string `toml:"RewardSource"`
	RewardsPerPayment uint64 `toml:"RewardsPerPayment"`
}

// GovernanceConfig tunes proposal timing. Zero values keep the engine
// defaults.
type GovernanceConfig struct {
	VotingPeriodSeconds    uint64 `toml:"VotingPeriodSeconds"`
	ExecutionWindowSeconds uint64 `toml:"ExecutionWindowSeconds"`
}

// Default returns the configuration used when no file exists yet.
func Default() *Config {
	return &Config{
		ListenAddress: "127.0.0.1:8651",
		DataDir:       "./data",
		LogLevel:      "info",
		Genesis: GenesisConfig{
			Parameters: params.Parameters{
				MinLoanAmount:           1_000,
				MaxLoanAmount:           10_000_000,
				MinLoanDuration:         2_592_000,
				MaxLoanDuration:         946_080_000,
				MinInterestRateBps:      100,
				MaxInterestRateBps:      2_000,
				LiquidationThresholdPct: 80,
			},
		},
		Rewards: RewardsConfig{RewardsPerPayment: 10},
	}
}

// Load reads the configuration at path, creating a default file when none
// exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: unknown key %q in %s", undecoded[0].String(), path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded configuration for obvious mistakes before the
// daemon starts wiring engines.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress must not be empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown LogLevel %q", c.LogLevel)
	}
	if err := c.Genesis.Parameters.Validate(); err != nil {
		return fmt.Errorf("config: genesis parameters: %w", err)
	}
	return nil
}

func createDefault(path string) (*Config, error) {
	cfg := Default()
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: encode defaults: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("config: write default %s: %w", path, err)
	}
	return cfg, nil
}
