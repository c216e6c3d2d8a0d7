package risk

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"quantbt/pkg/confkit"
)

// Config bundles the thresholds used by risk reports and position sizing.
type Config struct {
	StopLossPct      float64 `yaml:"stop_loss_pct"`
	VarConfidence    float64 `yaml:"var_confidence"`
	VolatilityWindow int     `yaml:"volatility_window"`
	MaxPositionPct   float64 `yaml:"max_position_pct"`
	MinPositionPct   float64 `yaml:"min_position_pct"`
	TargetRiskVol    float64 `yaml:"target_risk_vol"`
}

// DefaultConfig returns the standard risk thresholds.
func DefaultConfig() *Config {
	return &Config{
		StopLossPct:      0.10,
		VarConfidence:    0.95,
		VolatilityWindow: 20,
		MaxPositionPct:   0.10,
		MinPositionPct:   0.01,
		TargetRiskVol:    0.25,
	}
}

// LoadConfig reads a risk configuration file from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open risk config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader constructs a Config from YAML content.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read risk config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal risk config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures configuration sanity.
func (c *Config) Validate() error {
	if c.StopLossPct <= 0 || c.StopLossPct >= 1 {
		return fmt.Errorf("risk config: stop_loss_pct must be within (0,1)")
	}
	if c.VarConfidence <= 0 || c.VarConfidence >= 1 {
		return fmt.Errorf("risk config: var_confidence must be within (0,1)")
	}
	if c.VolatilityWindow <= 0 {
		return fmt.Errorf("risk config: volatility_window must be positive")
	}
	if c.MinPositionPct < 0 || c.MaxPositionPct <= 0 || c.MinPositionPct > c.MaxPositionPct {
		return fmt.Errorf("risk config: position pct bounds must satisfy 0 <= min <= max")
	}
	if c.TargetRiskVol <= 0 {
		return fmt.Errorf("risk config: target_risk_vol must be positive")
	}
	return nil
}
