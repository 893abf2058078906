package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRegistryBuildsKnownTypes(t *testing.T) {
	registry := NewRegistry()
	if _, err := registry.Build("primary", "coingecko", "", "", map[string]string{"usdc/usd": "usd-coin"}); err != nil {
		t.Fatalf("coingecko: %v", err)
	}
	if _, err := registry.Build("desk", "rest", "https://rates.internal/v1/price", "secret", nil); err != nil {
		t.Fatalf("rest: %v", err)
	}
	if _, err := registry.Build("", "static", "", "", map[string]string{"usdc/usd": "1.0"}); err != nil {
		t.Fatalf("static: %v", err)
	}
	if _, err := registry.Build("x", "chainlink", "", "", nil); err == nil {
		t.Fatal("expected unknown type error")
	}
}

func TestCoinGeckoSourceFetch(t *testing.T) {
	updated := time.Now().Add(-30 * time.Second).Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ids"); got != "usd-coin" {
			t.Errorf("ids = %q, want usd-coin", got)
		}
		if got := r.URL.Query().Get("vs_currencies"); got != "usd" {
			t.Errorf("vs_currencies = %q, want usd", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]map[string]any{
			"usd-coin": {"usd": 0.9987, "last_updated_at": updated},
		})
	}))
	defer srv.Close()

	src := newCoinGeckoSource(srv.Client(), "primary", srv.URL, map[string]string{"usdc/usd": "usd-coin"})
	sample, err := src.Fetch(context.Background(), "USDC/USD")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := sample.Price.FloatString(4); got != "0.9987" {
		t.Fatalf("price = %s, want 0.9987", got)
	}
	if sample.Timestamp.Unix() != updated {
		t.Fatalf("timestamp = %d, want %d", sample.Timestamp.Unix(), updated)
	}
}

func TestCoinGeckoSourceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	src := newCoinGeckoSource(srv.Client(), "primary", srv.URL, nil)
	if _, err := src.Fetch(context.Background(), "usdc/usd"); err == nil {
		t.Fatal("expected status error")
	}
	if _, err := src.Fetch(context.Background(), "usdc"); err == nil {
		t.Fatal("expected malformed feed error")
	}
}

func TestRESTSourceFetch(t *testing.T) {
	observed := time.Now().Add(-5 * time.Second).Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "secret" {
			t.Errorf("api key = %q, want secret", got)
		}
		if got := r.URL.Query().Get("feed"); got != "usdc/usd" {
			t.Errorf("feed = %q, want usdc/usd", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"price": "1.0012", "timestamp": observed})
	}))
	defer srv.Close()

	src := newRESTSource(srv.Client(), "desk", srv.URL, "secret")
	sample, err := src.Fetch(context.Background(), " USDC/USD ")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := sample.Price.FloatString(4); got != "1.0012" {
		t.Fatalf("price = %s, want 1.0012", got)
	}
	if sample.Timestamp.Unix() != observed {
		t.Fatalf("timestamp = %d, want %d", sample.Timestamp.Unix(), observed)
	}
}

func TestRESTSourceRejectsBadPayload(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"empty price", `{"price":"","timestamp":1}`},
		{"negative price", `{"price":"-1","timestamp":1}`},
		{"garbage price", `{"price":"abc","timestamp":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()
			src := newRESTSource(srv.Client(), "desk", srv.URL, "")
			if _, err := src.Fetch(context.Background(), "usdc/usd"); err == nil {
				t.Fatal("expected payload rejection")
			}
		})
	}
}

func TestStaticSource(t *testing.T) {
	src, err := newStaticSource("dev", map[string]string{"usdc/usd": "", "dai/usd": "0.999"})
	if err != nil {
		t.Fatalf("new static: %v", err)
	}
	sample, err := src.Fetch(context.Background(), "usdc/usd")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := sample.Price.FloatString(2); got != "1.00" {
		t.Fatalf("default price = %s, want 1.00", got)
	}
	sample, err = src.Fetch(context.Background(), "DAI/USD")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := sample.Price.FloatString(3); got != "0.999" {
		t.Fatalf("price = %s, want 0.999", got)
	}
	if _, err := src.Fetch(context.Background(), "eur/usd"); err == nil {
		t.Fatal("expected unknown feed error")
	}
	if _, err := newStaticSource("dev", map[string]string{"usdc/usd": "zero"}); err == nil {
		t.Fatal("expected invalid price error")
	}
}
