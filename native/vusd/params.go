package vusd

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// AssetConfig models one whitelisted collateral asset parsed from the
// parameter file.
type AssetConfig struct {
	Symbol        string `toml:"Symbol"`
	Decimals      uint8  `toml:"Decimals"`
	OracleFeed    string `toml:"OracleFeed"`
	CustodyMarket string `toml:"CustodyMarket"`
	StaleWindow   string `toml:"StaleWindow"`
}

// Config aggregates the conversion guardrails sourced from configuration.
type Config struct {
	FeeBps            uint64        `toml:"FeeBps"`
	PriceToleranceBps uint64        `toml:"PriceToleranceBps"`
	SupplyCeilingWei  string        `toml:"SupplyCeilingWei"`
	Assets            []AssetConfig `toml:"Assets"`
}

// Parameters contains the runtime representation of the guardrails.
type Parameters struct {
	Policy        Policy
	SupplyCeiling *big.Int
	Assets        []AssetEntry
}

// LoadConfig reads the TOML parameter file from disk.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("vusd: load params: %w", err)
	}
	return cfg, nil
}

// Normalise trims whitespace, removes duplicate assets, and applies canonical
// casing.
func (cfg Config) Normalise() Config {
	normalised := Config{
		FeeBps:            cfg.FeeBps,
		PriceToleranceBps: cfg.PriceToleranceBps,
		SupplyCeilingWei:  strings.TrimSpace(cfg.SupplyCeilingWei),
	}
	if len(cfg.Assets) > 0 {
		seen := make(map[string]struct{}, len(cfg.Assets))
		for _, entry := range cfg.Assets {
			symbol := normaliseSymbol(entry.Symbol)
			if symbol == "" {
				continue
			}
			if _, exists := seen[symbol]; exists {
				continue
			}
			seen[symbol] = struct{}{}
			normalised.Assets = append(normalised.Assets, AssetConfig{
				Symbol:        symbol,
				Decimals:      entry.Decimals,
				OracleFeed:    strings.TrimSpace(entry.OracleFeed),
				CustodyMarket: strings.TrimSpace(entry.CustodyMarket),
				StaleWindow:   strings.TrimSpace(entry.StaleWindow),
			})
		}
		sort.Slice(normalised.Assets, func(i, j int) bool {
			return normalised.Assets[i].Symbol < normalised.Assets[j].Symbol
		})
	}
	return normalised
}

// Parameters converts the textual configuration into runtime values and
// verifies bounds.
func (cfg Config) Parameters() (Parameters, error) {
	normalised := cfg.Normalise()
	params := Parameters{}
	if normalised.FeeBps > 10_000 {
		return params, fmt.Errorf("vusd: fee must not exceed 10000 bps")
	}
	if normalised.PriceToleranceBps > 10_000 {
		return params, fmt.Errorf("vusd: price tolerance must not exceed 10000 bps")
	}
	params.Policy = Policy{FeeBps: normalised.FeeBps, ToleranceBps: normalised.PriceToleranceBps}
	ceiling, err := parseWeiAmount(normalised.SupplyCeilingWei)
	if err != nil {
		return params, fmt.Errorf("vusd: invalid supply ceiling: %w", err)
	}
	params.SupplyCeiling = ceiling
	for _, entry := range normalised.Assets {
		if entry.Decimals > PeggedDecimals {
			return params, fmt.Errorf("vusd: asset %s precision exceeds pegged precision", entry.Symbol)
		}
		window, err := time.ParseDuration(entry.StaleWindow)
		if err != nil {
			return params, fmt.Errorf("vusd: invalid stale window for %s: %w", entry.Symbol, err)
		}
		if window < time.Second {
			return params, fmt.Errorf("vusd: stale window must be at least one second for %s", entry.Symbol)
		}
		params.Assets = append(params.Assets, AssetEntry{
			Symbol:        entry.Symbol,
			Decimals:      entry.Decimals,
			OracleFeed:    entry.OracleFeed,
			CustodyMarket: entry.CustodyMarket,
			StaleWindow:   window,
		})
	}
	return params, nil
}

// parseWeiAmount accepts plain decimal integers plus the "1000e18" shorthand
// used throughout the parameter files.
func parseWeiAmount(value string) (*big.Int, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	normalised := trimmed
	var exponent int64
	if idx := strings.IndexAny(normalised, "eE"); idx != -1 {
		expPart := strings.TrimSpace(normalised[idx+1:])
		if expPart == "" {
			return nil, fmt.Errorf("invalid scientific notation")
		}
		expValue, err := strconv.ParseInt(expPart, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid scientific notation")
		}
		exponent = expValue
		normalised = strings.TrimSpace(normalised[:idx])
	}
	normalised = strings.TrimPrefix(normalised, "+")
	if strings.HasPrefix(normalised, "-") {
		return nil, fmt.Errorf("amount must not be negative")
	}
	if exponent < 0 {
		return nil, fmt.Errorf("negative exponent not supported")
	}
	mantissa, ok := new(big.Int).SetString(normalised, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if exponent > 0 {
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(exponent), nil)
		mantissa.Mul(mantissa, scale)
	}
	return mantissa, nil
}
