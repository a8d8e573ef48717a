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
)

// Environment variable names.
const (
	EnvPrefix = "TALLY_"
	EnvConfig = "TALLY_CONFIG"
)

// Keys whose values are lists. A configured list replaces the default instead
// of being merged element by element into it.
var listKeys = map[string]func(*Config){ //nolint:gochecknoglobals // static lookup table
	"allowed_origins":     func(c *Config) { c.AllowedOrigins = nil },
	"trusted_proxies":     func(c *Config) { c.TrustedProxies = nil },
	"rules.allowed_gains": func(c *Config) { c.Rules.AllowedGains = nil },
	"pot.excluded":        func(c *Config) { c.Pot.Excluded = nil },
	"pot.payouts":         func(c *Config) { c.Pot.Payouts = nil },
	"votes.options":       func(c *Config) { c.Votes.Options = nil },
	"challenges":          func(c *Config) { c.Challenges = nil },
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if TALLY_CONFIG is set
//  3. env (prefix TALLY_, "__" separates nested keys: TALLY_STORE__DRIVER)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", envKey)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := *base
	for key, reset := range listKeys {
		if k.Exists(key) {
			reset(&cfg)
		}
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps TALLY_STORE__DRIVER to store.driver and TALLY_API_KEY to api_key.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	if s == "CONFIG" {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}
