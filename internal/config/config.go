// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - New() returns a Config populated with defaults.
//   - Load layers a YAML file and TALLY_ environment variables on top.
//   - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
	_ "time/tzdata" // embedded zoneinfo
)

// Store drivers understood by the repository package.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// APIKey is the shared secret required by POST /api/update.
	// An empty key rejects every update.
	APIKey string `koanf:"api_key"`

	// Timezone is the IANA zone in which "today" is evaluated.
	Timezone string `koanf:"timezone"`

	// SeasonYear pins the year used for parsed dates; 0 follows the clock.
	SeasonYear int `koanf:"season_year"`

	// ProfilesPath points at a JSON or YAML profiles file. Optional.
	ProfilesPath string `koanf:"profiles_path"`

	// AllowedOrigins lists CORS origins; "*" allows any.
	AllowedOrigins []string `koanf:"allowed_origins"`

	// TrustedProxies lists proxy addresses or CIDRs whose X-Forwarded-For
	// header identifies the client. Empty means the socket address is used.
	TrustedProxies []string `koanf:"trusted_proxies"`

	Server     ServerConfig  `koanf:"server"`
	Metrics    MetricsConfig `koanf:"metrics"`
	Store      StoreConfig   `koanf:"store"`
	Rules      RulesConfig   `koanf:"rules"`
	Pot        PotConfig     `koanf:"pot"`
	Votes      VotesConfig   `koanf:"votes"`
	Challenges []Challenge   `koanf:"challenges"`
}

// ServerConfig holds http.Server timeouts.
type ServerConfig struct {
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// MetricsConfig switches Prometheus collection and sets how often the
// background gauges are refreshed.
type MetricsConfig struct {
	Enabled         bool          `koanf:"enabled"`
	RefreshInterval time.Duration `koanf:"refresh_interval"`
}

// StoreConfig selects the ledger backend.
type StoreConfig struct {
	// Driver is one of memory, file, sqlite.
	Driver string `koanf:"driver"`
	// Path is the JSON file or SQLite database path.
	Path string `koanf:"path"`
}

// RulesConfig toggles the entry acceptance rules.
type RulesConfig struct {
	// MaxEntryAgeDays bounds how far back an entry may be dated. Negative disables.
	MaxEntryAgeDays int   `koanf:"max_entry_age_days"`
	NoBackfill      bool  `koanf:"no_backfill"`
	NonDecreasing   bool  `koanf:"non_decreasing"`
	AllowedGains    []int `koanf:"allowed_gains"`
}

// PotConfig describes the betting pot shown with the fun stats.
type PotConfig struct {
	BetAmount int      `koanf:"bet_amount"`
	Excluded  []string `koanf:"excluded"`
	Payouts   []int    `koanf:"payouts"`
}

// VoteOption is one choice on the ballot.
type VoteOption struct {
	Key   string `koanf:"key"`
	Label string `koanf:"label"`
}

// VotesConfig configures the ballot.
type VotesConfig struct {
	Active  bool              `koanf:"active"`
	Title   string            `koanf:"title"`
	Options []VoteOption      `koanf:"options"`
	Codes   map[string]string `koanf:"codes"`
	// RateLimit is the number of vote attempts allowed per RateWindow per client IP.
	RateLimit  int           `koanf:"rate_limit"`
	RateWindow time.Duration `koanf:"rate_window"`
}

// FinalScore is one row of an archived challenge.
type FinalScore struct {
	Player string `koanf:"player"`
	Score  int    `koanf:"score"`
}

// Challenge is a finished challenge kept for the archive page.
type Challenge struct {
	Title       string       `koanf:"title"`
	Subtitle    string       `koanf:"subtitle"`
	Ended       string       `koanf:"ended"`
	FinalScores []FinalScore `koanf:"final_scores"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		LogFormat:      "text",
		Addr:           ":9080",
		Timezone:       "America/Los_Angeles",
		AllowedOrigins: []string{"*"},
		Server: ServerConfig{
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:         true,
			RefreshInterval: 10 * time.Second,
		},
		Store: StoreConfig{
			Driver: DriverFile,
			Path:   "data.json",
		},
		Rules: RulesConfig{
			MaxEntryAgeDays: 1,
			NoBackfill:      true,
			NonDecreasing:   true,
			AllowedGains:    []int{0, 1, 2, 4},
		},
		Pot: PotConfig{
			BetAmount: 20,
			Excluded:  []string{"Mene"},
			Payouts:   []int{50, 35, 10, 5, 0},
		},
		Votes: VotesConfig{
			Title:      "What's next?",
			Codes:      map[string]string{},
			RateLimit:  5,
			RateWindow: time.Minute,
		},
		Challenges: []Challenge{{
			Title:    "Pushup Challenge 2025",
			Subtitle: "The one that started it all",
			Ended:    "2025-12-31",
			FinalScores: []FinalScore{
				{Player: "Josh", Score: 117},
				{Player: "Pocho", Score: 111},
				{Player: "Pepo", Score: 110},
				{Player: "Mene", Score: 107},
			},
		}},
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	return loc, nil
}

// TrustedPrefixes parses TrustedProxies. A bare address is a single-host
// prefix.
func (c *Config) TrustedPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: trusted_proxies: %v", ErrInvalidConfig, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: trusted_proxies: %v", ErrInvalidConfig, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// Validate reports the first inconsistency in c.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverFile, DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("%w: store.path is required for driver %q", ErrInvalidConfig, c.Store.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown store.driver %q", ErrInvalidConfig, c.Store.Driver)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.TrustedPrefixes(); err != nil {
		return err
	}
	if c.Metrics.RefreshInterval <= 0 {
		return fmt.Errorf("%w: metrics.refresh_interval must be positive", ErrInvalidConfig)
	}
	if c.SeasonYear < 0 {
		return fmt.Errorf("%w: season_year must not be negative", ErrInvalidConfig)
	}
	for _, g := range c.Rules.AllowedGains {
		if g < 0 {
			return fmt.Errorf("%w: allowed_gains must not contain negative values", ErrInvalidConfig)
		}
	}
	if c.Pot.BetAmount < 0 {
		return fmt.Errorf("%w: pot.bet_amount must not be negative", ErrInvalidConfig)
	}
	total := 0
	for _, p := range c.Pot.Payouts {
		if p < 0 {
			return fmt.Errorf("%w: pot.payouts must not contain negative values", ErrInvalidConfig)
		}
		total += p
	}
	if total > 100 {
		return fmt.Errorf("%w: pot.payouts add up to %d%%", ErrInvalidConfig, total)
	}
	seen := make(map[string]bool, len(c.Votes.Options))
	for _, o := range c.Votes.Options {
		if o.Key == "" {
			return fmt.Errorf("%w: vote option without key", ErrInvalidConfig)
		}
		if seen[o.Key] {
			return fmt.Errorf("%w: duplicate vote option %q", ErrInvalidConfig, o.Key)
		}
		seen[o.Key] = true
	}
	if c.Votes.Active && len(c.Votes.Options) == 0 {
		return fmt.Errorf("%w: active vote has no options", ErrInvalidConfig)
	}
	if c.Votes.RateLimit < 1 || c.Votes.RateWindow <= 0 {
		return fmt.Errorf("%w: votes.rate_limit and votes.rate_window must be positive", ErrInvalidConfig)
	}
	return nil
}
