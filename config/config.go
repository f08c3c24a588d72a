// Package config loads the filpledged service configuration from TOML.
package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Environment   string `toml:"Environment"`

	Oracle    OracleConfig    `toml:"Oracle"`
	Handoff   HandoffConfig   `toml:"Handoff"`
	Treasury  TreasuryConfig  `toml:"Treasury"`
	RateLimit RateLimitConfig `toml:"RateLimit"`
	Telemetry TelemetryConfig `toml:"Telemetry"`
}

// OracleConfig points at the Lotus node used for collateral lookups.
type OracleConfig struct {
	Endpoint string `toml:"Endpoint"`
	Token    string `toml:"Token"`
}

// HandoffConfig configures pledge proof validation.
type HandoffConfig struct {
	// SignerAddress is the hex address whose signatures admit pledges.
	// Empty disables proof checking, for local development only.
	SignerAddress string `toml:"SignerAddress"`
	WindowSeconds int64  `toml:"WindowSeconds"`
}

// TreasuryConfig seeds the treasury record on first start. Address fields
// are Filecoin addresses.
type TreasuryConfig struct {
	Address       string `toml:"Address"`
	Foundation    string `toml:"Foundation"`
	MaxDebtRate   uint64 `toml:"MaxDebtRate"`
	FeeRate       uint64 `toml:"FeeRate"`
	MinLendAmount string `toml:"MinLendAmount"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Traces   bool   `toml:"Traces"`
}

// Load reads the configuration at path, creating a commented default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8545"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./data"
	}
	if c.Handoff.WindowSeconds <= 0 {
		c.Handoff.WindowSeconds = 300
	}
	if c.Treasury.MaxDebtRate == 0 {
		c.Treasury.MaxDebtRate = 600000
	}
	if c.Treasury.FeeRate == 0 {
		c.Treasury.FeeRate = 100000
	}
	if strings.TrimSpace(c.Treasury.MinLendAmount) == "" {
		c.Treasury.MinLendAmount = "1000000000000000000"
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = 50
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 100
	}
}

// Validate rejects configurations that cannot produce a working service.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Treasury.Foundation) == "" {
		return fmt.Errorf("config: Treasury.Foundation is required")
	}
	if strings.TrimSpace(c.Treasury.Address) == "" {
		return fmt.Errorf("config: Treasury.Address is required")
	}
	if _, ok := c.MinLendAmount(); !ok {
		return fmt.Errorf("config: Treasury.MinLendAmount %q is not a valid attoFIL amount", c.Treasury.MinLendAmount)
	}
	return nil
}

// MinLendAmount parses the configured lend floor as attoFIL.
func (c *Config) MinLendAmount() (*big.Int, bool) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(c.Treasury.MinLendAmount), 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
