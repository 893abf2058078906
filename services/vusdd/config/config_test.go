package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vusdd.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
sources:
  - name: primary
    type: coingecko
    endpoint: https://api.coingecko.com/api/v3/simple/price
governors:
  - "0x00000000000000000000000000000000000000aa"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":7180" {
		t.Fatalf("default listen: %q", cfg.ListenAddress)
	}
	if cfg.Oracle.Interval.Duration != 30*time.Second {
		t.Fatalf("default interval: %v", cfg.Oracle.Interval.Duration)
	}
	if cfg.Oracle.MaxAge.Duration != 2*time.Minute {
		t.Fatalf("default max age: %v", cfg.Oracle.MaxAge.Duration)
	}
	if cfg.Oracle.MinSources != 1 || cfg.Oracle.Decimals != 8 {
		t.Fatalf("default oracle tuning: %+v", cfg.Oracle)
	}
	if cfg.RateLimits.ConvertPerMinute != 60 || cfg.RateLimits.Burst != 10 {
		t.Fatalf("default rate limits: %+v", cfg.RateLimits)
	}
	if cfg.Audit.MaxSizeMB != 64 || cfg.Audit.MaxBackups != 8 {
		t.Fatalf("default audit rotation: %+v", cfg.Audit)
	}
}

func TestLoadParsesDurations(t *testing.T) {
	path := writeConfig(t, `
listen: ":9999"
oracle:
  interval: 15s
  max_age: 45s
  min_sources: 2
sources:
  - name: primary
    type: coingecko
    endpoint: https://example.test
  - name: secondary
    type: static
governors:
  - "0x00000000000000000000000000000000000000aa"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Oracle.Interval.Duration != 15*time.Second {
		t.Fatalf("interval: %v", cfg.Oracle.Interval.Duration)
	}
	if cfg.Oracle.MaxAge.Duration != 45*time.Second {
		t.Fatalf("max age: %v", cfg.Oracle.MaxAge.Duration)
	}
	if cfg.Oracle.MinSources != 2 {
		t.Fatalf("min sources: %d", cfg.Oracle.MinSources)
	}
	if len(cfg.Sources) != 2 {
		t.Fatalf("sources: %d", len(cfg.Sources))
	}
}

func TestValidateRejectsMissingSources(t *testing.T) {
	path := writeConfig(t, `
governors:
  - "0x00000000000000000000000000000000000000aa"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error when no sources configured")
	}
}

func TestValidateRejectsAuthWithoutSecret(t *testing.T) {
	path := writeConfig(t, `
sources:
  - name: primary
    type: static
auth:
  enabled: true
governors:
  - "0x00000000000000000000000000000000000000aa"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error when auth enabled without secret")
	}
}

func TestValidateRejectsBadGovernor(t *testing.T) {
	path := writeConfig(t, `
sources:
  - name: primary
    type: static
governors:
  - "not-an-address"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for malformed governor address")
	}
}

func TestValidateRequiresGovernors(t *testing.T) {
	path := writeConfig(t, `
sources:
  - name: primary
    type: static
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error when governors missing")
	}
}
