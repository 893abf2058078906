package adapters

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"vusd/services/vusdd/oracle"
)

// Registry constructs oracle sources based on configuration.
type Registry struct {
	HTTPClient *http.Client
}

// NewRegistry builds a registry with sane defaults.
func NewRegistry() *Registry {
	return &Registry{HTTPClient: &http.Client{Timeout: 10 * time.Second}}
}

// Build creates a source from the supplied configuration. feeds maps feed
// identifiers (e.g. "usdc/usd") to whatever the upstream calls the asset.
func (r *Registry) Build(name, typ, endpoint, apiKey string, feeds map[string]string) (oracle.Source, error) {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "coingecko":
		return newCoinGeckoSource(r.client(), label(name, "coingecko"), endpoint, feeds), nil
	case "rest":
		return newRESTSource(r.client(), label(name, "rest"), endpoint, apiKey), nil
	case "static":
		return newStaticSource(label(name, "static"), feeds)
	default:
		return nil, fmt.Errorf("unknown oracle source type %q", typ)
	}
}

func (r *Registry) client() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func label(name, fallback string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed != "" {
		return trimmed
	}
	return fallback
}

// splitFeed decomposes "usdc/usd" into its base and quote legs.
func splitFeed(feed string) (string, string, error) {
	parts := strings.SplitN(strings.ToLower(strings.TrimSpace(feed)), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed feed %q, want base/quote", feed)
	}
	return parts[0], parts[1], nil
}
