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

	"github.com/g97iulio1609/a1lifter/internal/domain/scoring"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New(ctx))
//  2. file (YAML) if A1LIFTER_CONFIG is set
//  3. env (prefix A1LIFTER_)
func Load(ctx context.Context) (*Config, error) {
	// Start with defaults
	base := New(ctx)

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("A1LIFTER_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrLoadConfig, err)
		}
	}

	// Environment variables: A1LIFTER_ADDR, A1LIFTER_ATTEMPT_TIMER_SEC, ...
	// Map env keys like A1LIFTER_ATTEMPT_TIMER_SEC -> attempt_timer_sec.
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("A1LIFTER_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "a1lifter_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrLoadConfig, err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	switch {
	case cfg.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case cfg.AttemptTimerSec <= 0:
		return fmt.Errorf("%w: attempt_timer_sec must be positive", ErrInvalidConfig)
	case cfg.JudgesPerPlatform < 1:
		return fmt.Errorf("%w: judges_per_platform must be at least 1", ErrInvalidConfig)
	case cfg.SyncMaxRetries < 1:
		return fmt.Errorf("%w: sync_max_retries must be at least 1", ErrInvalidConfig)
	}
	if _, ok := scoring.ParseFormula(cfg.PrimaryFormula); !ok {
		return fmt.Errorf("%w: unknown primary_formula %q", ErrInvalidConfig, cfg.PrimaryFormula)
	}
	return nil
}
