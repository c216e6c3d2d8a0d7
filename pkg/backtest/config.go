package backtest

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"quantbt/pkg/confkit"
)

// Impact model names accepted by Config.ImpactModel.
const (
	ImpactLinear = "linear"
	ImpactSqrt   = "sqrt"
	ImpactPower  = "power"
)

// Config controls transaction-cost modelling and starting capital for a run.
// The zero value is a valid frictionless configuration; DefaultConfig applies
// the standard cost defaults.
type Config struct {
	InitialCash      float64 `yaml:"initial_cash"`
	CommissionPct    float64 `yaml:"commission_pct"`
	SlippageBps      float64 `yaml:"slippage_bps"`
	ParticipationCap float64 `yaml:"participation_cap"` // 0 disables partial fills
	BaseSpreadBps    float64 `yaml:"base_spread_bps"`   // only used when ParticipationCap > 0
	ImpactCoef       float64 `yaml:"impact_coef"`
	ImpactModel      string  `yaml:"impact_model"` // linear | sqrt | power
	ImpactPower      float64 `yaml:"impact_power"` // exponent when ImpactModel == power
	RiskFreeRate     float64 `yaml:"risk_free_rate"`
}

// DefaultConfig returns the standard cost model parameters.
func DefaultConfig() *Config {
	return &Config{
		InitialCash:   100000,
		CommissionPct: 0.0005,
		SlippageBps:   5,
		BaseSpreadBps: 2,
		ImpactModel:   ImpactLinear,
		ImpactPower:   0.5,
	}
}

// LoadConfig reads an engine configuration file from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open backtest config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader constructs a Config from YAML content. Fields absent
// from the document keep their DefaultConfig values; explicit zeros win.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read backtest config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal backtest config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.InitialCash <= 0 {
		c.InitialCash = 100000
	}
	if strings.TrimSpace(c.ImpactModel) == "" {
		c.ImpactModel = ImpactLinear
	}
	if c.ImpactPower == 0 {
		c.ImpactPower = 0.5
	}
}

// Validate ensures configuration sanity.
func (c *Config) Validate() error {
	switch strings.TrimSpace(c.ImpactModel) {
	case "", ImpactLinear, ImpactSqrt, ImpactPower:
	default:
		return fmt.Errorf("backtest config: impact_model must be linear|sqrt|power, got %q", c.ImpactModel)
	}
	if c.CommissionPct < 0 {
		return fmt.Errorf("backtest config: commission_pct must not be negative")
	}
	if c.SlippageBps < 0 {
		return fmt.Errorf("backtest config: slippage_bps must not be negative")
	}
	if c.ParticipationCap < 0 || c.ParticipationCap > 1 {
		return fmt.Errorf("backtest config: participation_cap must be within [0,1]")
	}
	if c.ImpactCoef < 0 {
		return fmt.Errorf("backtest config: impact_coef must not be negative")
	}
	return nil
}
