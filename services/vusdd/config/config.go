package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for vusdd.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	StatePath     string          `yaml:"state"`
	DatabasePath  string          `yaml:"database"`
	ParamsPath    string          `yaml:"params"`
	Oracle        OracleConfig    `yaml:"oracle"`
	Sources       []Source        `yaml:"sources"`
	Auth          AuthConfig      `yaml:"auth"`
	RateLimits    RateLimitConfig `yaml:"rate_limits"`
	Audit         AuditConfig     `yaml:"audit"`
	Governors     []string        `yaml:"governors"`
}

// OracleConfig tunes the aggregation loop.
type OracleConfig struct {
	Interval   Duration `yaml:"interval"`
	MaxAge     Duration `yaml:"max_age"`
	MinSources int      `yaml:"min_sources"`
	Decimals   uint8    `yaml:"decimals"`
}

// Source describes an upstream price source.
type Source struct {
	Name     string            `yaml:"name"`
	Type     string            `yaml:"type"`
	Endpoint string            `yaml:"endpoint"`
	APIKey   string            `yaml:"api_key"`
	Feeds    map[string]string `yaml:"feeds"`
}

// AuthConfig configures the JWT verification applied to governance endpoints.
type AuthConfig struct {
	Enabled    bool     `yaml:"enabled"`
	HMACSecret string   `yaml:"hmac_secret"`
	Issuer     string   `yaml:"issuer"`
	Audience   string   `yaml:"audience"`
	ClockSkew  Duration `yaml:"clock_skew"`
}

// RateLimitConfig configures per-client request throttling.
type RateLimitConfig struct {
	ConvertPerMinute float64 `yaml:"convert_per_minute"`
	QuotePerMinute   float64 `yaml:"quote_per_minute"`
	Burst            int     `yaml:"burst"`
}

// AuditConfig configures the rotating audit log.
type AuditConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7180"
	}
	if cfg.StatePath == "" {
		cfg.StatePath = "/var/data/vusdd/state"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "/var/data/vusdd/vusdd.sqlite"
	}
	if cfg.ParamsPath == "" {
		cfg.ParamsPath = "services/vusdd/params.toml"
	}
	if cfg.Oracle.Interval.Duration == 0 {
		cfg.Oracle.Interval.Duration = 30 * time.Second
	}
	if cfg.Oracle.MaxAge.Duration == 0 {
		cfg.Oracle.MaxAge.Duration = 2 * time.Minute
	}
	if cfg.Oracle.MinSources <= 0 {
		cfg.Oracle.MinSources = 1
	}
	if cfg.Oracle.Decimals == 0 {
		cfg.Oracle.Decimals = 8
	}
	if cfg.Auth.ClockSkew.Duration == 0 {
		cfg.Auth.ClockSkew.Duration = 2 * time.Minute
	}
	if cfg.RateLimits.ConvertPerMinute <= 0 {
		cfg.RateLimits.ConvertPerMinute = 60
	}
	if cfg.RateLimits.QuotePerMinute <= 0 {
		cfg.RateLimits.QuotePerMinute = 600
	}
	if cfg.RateLimits.Burst <= 0 {
		cfg.RateLimits.Burst = 10
	}
	if cfg.Audit.Path == "" {
		cfg.Audit.Path = "/var/log/vusdd/audit.log"
	}
	if cfg.Audit.MaxSizeMB <= 0 {
		cfg.Audit.MaxSizeMB = 64
	}
	if cfg.Audit.MaxBackups <= 0 {
		cfg.Audit.MaxBackups = 8
	}
	if cfg.Audit.MaxAgeDays <= 0 {
		cfg.Audit.MaxAgeDays = 90
	}
}

func validate(cfg Config) error {
	if len(cfg.Sources) == 0 {
		return fmt.Errorf("at least one oracle source must be configured")
	}
	if cfg.Auth.Enabled && strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		return fmt.Errorf("auth requires hmac_secret when enabled")
	}
	if len(cfg.Governors) == 0 {
		return fmt.Errorf("at least one governor address must be configured")
	}
	for _, governor := range cfg.Governors {
		if !validAddress(governor) {
			return fmt.Errorf("invalid governor address %q", governor)
		}
	}
	return nil
}

func validAddress(value string) bool {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.ToLower(value), "0x"))
	if len(trimmed) != 40 {
		return false
	}
	for _, c := range trimmed {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
