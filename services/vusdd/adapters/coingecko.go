package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vusd/services/vusdd/oracle"
)

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const defaultCoinGeckoEndpoint = "https://api.coingecko.com/api/v3/simple/price"

// coinGeckoSource adapts the public CoinGecko simple price API. idMap allows
// mapping feed identifiers to CoinGecko asset identifiers; unmapped feeds
// fall back to the base leg of the feed.
type coinGeckoSource struct {
	client   HTTPDoer
	name     string
	endpoint string
	idMap    map[string]string
}

func newCoinGeckoSource(client HTTPDoer, name, endpoint string, idMap map[string]string) *coinGeckoSource {
	ep := strings.TrimSpace(endpoint)
	if ep == "" {
		ep = defaultCoinGeckoEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	mapped := make(map[string]string, len(idMap))
	for k, v := range idMap {
		mapped[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return &coinGeckoSource{client: client, name: name, endpoint: ep, idMap: mapped}
}

func (s *coinGeckoSource) Name() string { return s.name }

func (s *coinGeckoSource) assetID(feed, base string) string {
	if id, ok := s.idMap[strings.ToLower(strings.TrimSpace(feed))]; ok && id != "" {
		return id
	}
	return base
}

func (s *coinGeckoSource) Fetch(ctx context.Context, feed string) (oracle.Sample, error) {
	if s == nil {
		return oracle.Sample{}, fmt.Errorf("coingecko source not configured")
	}
	base, quote, err := splitFeed(feed)
	if err != nil {
		return oracle.Sample{}, err
	}
	id := s.assetID(feed, base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return oracle.Sample{}, err
	}
	values := url.Values{}
	values.Set("ids", id)
	values.Set("vs_currencies", quote)
	values.Set("include_last_updated_at", "true")
	req.URL.RawQuery = values.Encode()
	resp, err := s.client.Do(req)
	if err != nil {
		return oracle.Sample{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return oracle.Sample{}, fmt.Errorf("coingecko: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	var payload map[string]map[string]json.Number
	if err := decoder.Decode(&payload); err != nil {
		return oracle.Sample{}, fmt.Errorf("coingecko: decode: %w", err)
	}
	entry, ok := payload[id]
	if !ok {
		return oracle.Sample{}, fmt.Errorf("coingecko: quote missing for %s", feed)
	}
	raw, ok := entry[quote]
	if !ok {
		return oracle.Sample{}, fmt.Errorf("coingecko: %s price missing for %s", quote, id)
	}
	rat, ok := new(big.Rat).SetString(raw.String())
	if !ok || rat.Sign() <= 0 {
		return oracle.Sample{}, fmt.Errorf("coingecko: invalid price %q", raw.String())
	}
	ts := time.Now().UTC()
	if rawTs, ok := entry["last_updated_at"]; ok {
		if parsed, err := strconv.ParseInt(rawTs.String(), 10, 64); err == nil && parsed > 0 {
			ts = time.Unix(parsed, 0).UTC()
		}
	}
	return oracle.Sample{Price: rat, Timestamp: ts}, nil
}
