package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vusd/services/vusdd/oracle"
)

// restSource adapts a generic JSON price endpoint responding to
// GET <endpoint>?feed=<base/quote> with {"price": "...", "timestamp": <unix>}.
// It covers in-house aggregators and custodial rate services.
type restSource struct {
	client   HTTPDoer
	name     string
	endpoint string
	apiKey   string
}

func newRESTSource(client HTTPDoer, name, endpoint, apiKey string) *restSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &restSource{
		client:   client,
		name:     name,
		endpoint: strings.TrimSpace(endpoint),
		apiKey:   strings.TrimSpace(apiKey),
	}
}

func (s *restSource) Name() string { return s.name }

func (s *restSource) Fetch(ctx context.Context, feed string) (oracle.Sample, error) {
	if s == nil {
		return oracle.Sample{}, fmt.Errorf("rest source not configured")
	}
	if s.endpoint == "" {
		return oracle.Sample{}, fmt.Errorf("rest source %s: endpoint required", s.name)
	}
	if _, _, err := splitFeed(feed); err != nil {
		return oracle.Sample{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return oracle.Sample{}, err
	}
	values := url.Values{}
	values.Set("feed", strings.ToLower(strings.TrimSpace(feed)))
	req.URL.RawQuery = values.Encode()
	if s.apiKey != "" {
		req.Header.Set("x-api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return oracle.Sample{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return oracle.Sample{}, fmt.Errorf("rest source %s: status %d: %s", s.name, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		Price     string `json:"price"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return oracle.Sample{}, fmt.Errorf("rest source %s: decode: %w", s.name, err)
	}
	price := strings.TrimSpace(payload.Price)
	if price == "" {
		return oracle.Sample{}, fmt.Errorf("rest source %s: empty price", s.name)
	}
	rat, ok := new(big.Rat).SetString(price)
	if !ok || rat.Sign() <= 0 {
		return oracle.Sample{}, fmt.Errorf("rest source %s: invalid price %q", s.name, payload.Price)
	}
	ts := time.Now().UTC()
	if payload.Timestamp > 0 {
		ts = time.Unix(payload.Timestamp, 0).UTC()
	}
	return oracle.Sample{Price: rat, Timestamp: ts}, nil
}
