package oracle

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"vusd/native/vusd"
)

type stubSource struct {
	name    string
	price   string
	at      time.Time
	err     error
	fetched int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(ctx context.Context, feed string) (Sample, error) {
	s.fetched++
	if s.err != nil {
		return Sample{}, s.err
	}
	rat, ok := new(big.Rat).SetString(s.price)
	if !ok {
		return Sample{}, errors.New("bad stub price")
	}
	return Sample{Price: rat, Timestamp: s.at}, nil
}

var managerNow = time.Unix(1_700_000_000, 0).UTC()

func newTestManager(t *testing.T, sources []Source, minSources int) (*Manager, *FeedStore) {
	t.Helper()
	feeds := NewFeedStore()
	mgr, err := New(nil, feeds, sources, []string{"usdc/usd"}, 30*time.Second, 2*time.Minute, minSources, 8,
		WithClock(func() time.Time { return managerNow }))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return mgr, feeds
}

func TestManagerPublishesMedian(t *testing.T) {
	sources := []Source{
		&stubSource{name: "a", price: "0.99", at: managerNow.Add(-time.Second)},
		&stubSource{name: "b", price: "1.01", at: managerNow.Add(-time.Second)},
		&stubSource{name: "c", price: "1.00", at: managerNow.Add(-time.Second)},
	}
	mgr, feeds := newTestManager(t, sources, 2)
	if err := mgr.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	reading, err := feeds.LatestPrice("usdc/usd")
	if err != nil {
		t.Fatalf("latest price: %v", err)
	}
	if want := big.NewInt(100_000_000); reading.Price.Cmp(want) != 0 {
		t.Fatalf("median = %s, want %s", reading.Price, want)
	}
	if reading.Decimals != 8 {
		t.Fatalf("decimals = %d, want 8", reading.Decimals)
	}
	if !reading.UpdatedAt.Equal(managerNow) {
		t.Fatalf("updated at = %s, want %s", reading.UpdatedAt, managerNow)
	}
}

func TestManagerMedianAveragesEvenCount(t *testing.T) {
	sources := []Source{
		&stubSource{name: "a", price: "0.99", at: managerNow},
		&stubSource{name: "b", price: "1.01", at: managerNow},
	}
	mgr, feeds := newTestManager(t, sources, 2)
	if err := mgr.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	reading, err := feeds.LatestPrice("usdc/usd")
	if err != nil {
		t.Fatalf("latest price: %v", err)
	}
	if want := big.NewInt(100_000_000); reading.Price.Cmp(want) != 0 {
		t.Fatalf("median = %s, want %s", reading.Price, want)
	}
}

func TestManagerQuorumMissKeepsPrevious(t *testing.T) {
	healthy := &stubSource{name: "a", price: "1.001", at: managerNow}
	failing := &stubSource{name: "b", price: "1.0", at: managerNow}
	mgr, feeds := newTestManager(t, []Source{healthy, failing}, 2)
	if err := mgr.Tick(context.Background()); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	failing.err = errors.New("upstream 503")
	if err := mgr.Tick(context.Background()); err == nil {
		t.Fatal("expected quorum error")
	}
	reading, err := feeds.LatestPrice("usdc/usd")
	if err != nil {
		t.Fatalf("latest price: %v", err)
	}
	if want := big.NewInt(100_050_000); reading.Price.Cmp(want) != 0 {
		t.Fatalf("previous median lost, got %s want %s", reading.Price, want)
	}
}

func TestManagerFiltersBadSamples(t *testing.T) {
	cases := []struct {
		name string
		bad  *stubSource
	}{
		{"future timestamp", &stubSource{name: "b", price: "1.0", at: managerNow.Add(time.Minute)}},
		{"expired sample", &stubSource{name: "b", price: "1.0", at: managerNow.Add(-3 * time.Minute)}},
		{"zero price", &stubSource{name: "b", price: "0", at: managerNow}},
		{"negative price", &stubSource{name: "b", price: "-1.0", at: managerNow}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			good := &stubSource{name: "a", price: "1.0", at: managerNow}
			mgr, _ := newTestManager(t, []Source{good, tc.bad}, 2)
			if err := mgr.Tick(context.Background()); err == nil {
				t.Fatal("expected quorum failure after filtering")
			}
		})
	}
}

func TestManagerSingleSourceQuorum(t *testing.T) {
	src := &stubSource{name: "solo", price: "0.9995", at: managerNow}
	mgr, feeds := newTestManager(t, []Source{src}, 1)
	if err := mgr.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	reading, err := feeds.LatestPrice("USDC/USD")
	if err != nil {
		t.Fatalf("case-insensitive lookup: %v", err)
	}
	if want := big.NewInt(99_950_000); reading.Price.Cmp(want) != 0 {
		t.Fatalf("median = %s, want %s", reading.Price, want)
	}
}

func TestManagerRejectsInvalidConfig(t *testing.T) {
	feeds := NewFeedStore()
	src := &stubSource{name: "a", price: "1", at: managerNow}
	if _, err := New(nil, feeds, nil, []string{"usdc/usd"}, time.Second, time.Minute, 1, 8); err == nil {
		t.Fatal("expected error for missing sources")
	}
	if _, err := New(nil, feeds, []Source{src}, nil, time.Second, time.Minute, 1, 8); err == nil {
		t.Fatal("expected error for missing feeds")
	}
	if _, err := New(nil, feeds, []Source{src}, []string{"usdc/usd"}, 0, time.Minute, 1, 8); err == nil {
		t.Fatal("expected error for zero interval")
	}
	if _, err := New(nil, nil, []Source{src}, []string{"usdc/usd"}, time.Second, time.Minute, 1, 8); err == nil {
		t.Fatal("expected error for nil feed store")
	}
}

func TestFeedStoreEmpty(t *testing.T) {
	feeds := NewFeedStore()
	if _, err := feeds.LatestPrice("usdc/usd"); !errors.Is(err, vusd.ErrOracleUnavailable) {
		t.Fatalf("err = %v, want ErrOracleUnavailable", err)
	}
}

func TestFeedStoreSeed(t *testing.T) {
	feeds := NewFeedStore()
	if !feeds.Seed(" USDC/USD ", "1.00250000", 8, managerNow.Add(-time.Minute)) {
		t.Fatal("seed rejected valid snapshot")
	}
	reading, err := feeds.LatestPrice("usdc/usd")
	if err != nil {
		t.Fatalf("latest price: %v", err)
	}
	if want := big.NewInt(100_250_000); reading.Price.Cmp(want) != 0 {
		t.Fatalf("seeded price = %s, want %s", reading.Price, want)
	}
	if feeds.Seed("usdc/usd", "garbage", 8, managerNow) {
		t.Fatal("seed accepted malformed price")
	}
	if feeds.Seed("usdc/usd", "-1", 8, managerNow) {
		t.Fatal("seed accepted negative price")
	}
}

func TestFeedStoreCloneIsolation(t *testing.T) {
	feeds := NewFeedStore()
	feeds.Publish("usdc/usd", big.NewInt(100_000_000), 8, managerNow)
	reading, err := feeds.LatestPrice("usdc/usd")
	if err != nil {
		t.Fatalf("latest price: %v", err)
	}
	reading.Price.SetInt64(1)
	again, err := feeds.LatestPrice("usdc/usd")
	if err != nil {
		t.Fatalf("latest price: %v", err)
	}
	if want := big.NewInt(100_000_000); again.Price.Cmp(want) != 0 {
		t.Fatalf("stored reading mutated through clone, got %s", again.Price)
	}
}
