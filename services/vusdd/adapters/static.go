package adapters

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"vusd/services/vusdd/oracle"
)

// staticSource returns fixed prices from configuration. It exists for local
// development and incident-response overrides; feeds maps feed identifiers to
// decimal prices, and an empty value defaults to exact peg.
type staticSource struct {
	name   string
	prices map[string]*big.Rat
}

func newStaticSource(name string, feeds map[string]string) (*staticSource, error) {
	prices := make(map[string]*big.Rat, len(feeds))
	for feed, raw := range feeds {
		key := strings.ToLower(strings.TrimSpace(feed))
		if key == "" {
			continue
		}
		value := strings.TrimSpace(raw)
		if value == "" {
			value = "1"
		}
		rat, ok := new(big.Rat).SetString(value)
		if !ok || rat.Sign() <= 0 {
			return nil, fmt.Errorf("static source %s: invalid price %q for feed %s", name, raw, feed)
		}
		prices[key] = rat
	}
	return &staticSource{name: name, prices: prices}, nil
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Fetch(ctx context.Context, feed string) (oracle.Sample, error) {
	_ = ctx
	if s == nil {
		return oracle.Sample{}, fmt.Errorf("static source not configured")
	}
	price, ok := s.prices[strings.ToLower(strings.TrimSpace(feed))]
	if !ok {
		return oracle.Sample{}, fmt.Errorf("static source %s: feed %s not configured", s.name, feed)
	}
	return oracle.Sample{Price: new(big.Rat).Set(price), Timestamp: time.Now().UTC()}, nil
}
