package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/okian/courtside/internal/domain/simulation"
)

// Environment keys.
const (
	EnvPrefix = "COURTSIDE_"
	EnvConfig = EnvPrefix + "CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if COURTSIDE_CONFIG is set
//  3. env (prefix COURTSIDE_, "__" separates nesting)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(EnvConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// COURTSIDE_SIMULATION__N_SIMS -> simulation.n_sims
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		if s == "CONFIG" {
			return ""
		}
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Simulation.NSims < simulation.MinSims:
		return fmt.Errorf("%w: simulation.n_sims %d below %d", ErrInvalidConfig, c.Simulation.NSims, simulation.MinSims)
	case c.Simulation.Correlation < -1 || c.Simulation.Correlation > 1:
		return fmt.Errorf("%w: simulation.correlation %v outside [-1, 1]", ErrInvalidConfig, c.Simulation.Correlation)
	case c.Simulation.OvertimeProb < 0 || c.Simulation.OvertimeProb > 1:
		return fmt.Errorf("%w: simulation.overtime_prob %v outside [0, 1]", ErrInvalidConfig, c.Simulation.OvertimeProb)
	case c.Edge.KellyMultiplier <= 0 || c.Edge.KellyMultiplier > 1:
		return fmt.Errorf("%w: edge.kelly_multiplier %v outside (0, 1]", ErrInvalidConfig, c.Edge.KellyMultiplier)
	case c.Edge.MaxStakeFraction <= 0 || c.Edge.MaxStakeFraction > 1:
		return fmt.Errorf("%w: edge.max_stake_fraction %v outside (0, 1]", ErrInvalidConfig, c.Edge.MaxStakeFraction)
	case c.Edge.Bankroll <= 0:
		return fmt.Errorf("%w: edge.bankroll must be positive", ErrInvalidConfig)
	case c.Adjust.H2HDamping <= 0 || c.Adjust.H2HDamping >= 1:
		return fmt.Errorf("%w: adjust.h2h_damping %v outside (0, 1)", ErrInvalidConfig, c.Adjust.H2HDamping)
	case c.Validation.FixedOdds <= 1:
		return fmt.Errorf("%w: validation.fixed_odds must exceed 1", ErrInvalidConfig)
	case c.Learning.MinSamples < 1:
		return fmt.Errorf("%w: learning.min_samples must be positive", ErrInvalidConfig)
	}
	if err := c.Tiers.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
