package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"vusd/observability"
	"vusd/services/vusdd/storage"
)

// Sample is one price observation from one upstream source.
type Sample struct {
	Price     *big.Rat
	Timestamp time.Time
}

// Source resolves a price sample for a feed identifier such as "usdc/usd".
type Source interface {
	Name() string
	Fetch(ctx context.Context, feed string) (Sample, error)
}

// Manager periodically polls every source for every feed, filters out stale
// or invalid samples, and publishes the median into the feed store the
// conversion engine reads from. A feed that fails quorum keeps its previous
// value until it goes stale on its own.
type Manager struct {
	logger     *slog.Logger
	storage    *storage.Storage
	feeds      *FeedStore
	sources    []Source
	feedIDs    []string
	minSources int
	maxAge     time.Duration
	interval   time.Duration
	decimals   uint8
	now        func() time.Time
	once       sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger installs a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the time source, primarily for deterministic testing.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// New constructs a manager publishing into feeds.
func New(store *storage.Storage, feeds *FeedStore, sources []Source, feedIDs []string, interval, maxAge time.Duration, minSources int, decimals uint8, opts ...Option) (*Manager, error) {
	if feeds == nil {
		return nil, fmt.Errorf("feed store required")
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("at least one source required")
	}
	if len(feedIDs) == 0 {
		return nil, fmt.Errorf("at least one feed required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	if maxAge <= 0 {
		maxAge = time.Minute
	}
	if minSources <= 0 {
		minSources = 1
	}
	if decimals == 0 {
		decimals = 8
	}
	mgr := &Manager{
		logger:     slog.Default(),
		storage:    store,
		feeds:      feeds,
		sources:    append([]Source{}, sources...),
		feedIDs:    normaliseFeeds(feedIDs),
		interval:   interval,
		maxAge:     maxAge,
		minSources: minSources,
		decimals:   decimals,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(mgr)
		}
	}
	return mgr, nil
}

// Run blocks, polling upstream sources until the context is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("manager not configured")
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.once.Do(func() {
		m.logger.Info("oracle manager started", "sources", len(m.sources), "feeds", len(m.feedIDs))
	})
	for {
		if err := m.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Warn("aggregation tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs a single aggregation cycle across all configured feeds.
func (m *Manager) Tick(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("manager not configured")
	}
	var firstErr error
	for _, feed := range m.feedIDs {
		if err := m.processFeed(ctx, feed); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			m.logger.Warn("feed aggregation failed", "feed", feed, "error", err)
		}
	}
	return firstErr
}

func (m *Manager) processFeed(ctx context.Context, feed string) error {
	now := m.now()
	samples := make([]Sample, 0, len(m.sources))
	names := make([]string, 0, len(m.sources))
	for _, src := range m.sources {
		if src == nil {
			continue
		}
		sample, err := src.Fetch(ctx, feed)
		if err != nil {
			observability.Oracle().RecordSourceError(src.Name())
			m.logger.Warn("source fetch failed", "feed", feed, "source", src.Name(), "error", err)
			continue
		}
		if sample.Price == nil || sample.Price.Sign() <= 0 {
			observability.Oracle().RecordSourceError(src.Name())
			m.logger.Warn("source returned invalid price", "feed", feed, "source", src.Name())
			continue
		}
		if sample.Timestamp.After(now.Add(5 * time.Second)) {
			observability.Oracle().RecordSourceError(src.Name())
			m.logger.Warn("source produced future timestamp", "feed", feed, "source", src.Name())
			continue
		}
		if m.maxAge > 0 && sample.Timestamp.Before(now.Add(-m.maxAge)) {
			m.logger.Warn("source sample expired", "feed", feed, "source", src.Name())
			continue
		}
		names = append(names, src.Name())
		samples = append(samples, sample)
		if m.storage != nil {
			if err := m.storage.RecordSample(ctx, feed, src.Name(), sample.Price.FloatString(int(m.decimals)), sample.Timestamp, now); err != nil {
				m.logger.Warn("record sample failed", "feed", feed, "error", err)
			}
		}
	}
	if len(samples) < m.minSources {
		observability.Oracle().RecordQuorumMiss(feed)
		return fmt.Errorf("insufficient sources for %s: %d of %d", feed, len(samples), m.minSources)
	}
	median := computeMedian(samples)
	if median == nil || median.Sign() <= 0 {
		return fmt.Errorf("median computation failed for %s", feed)
	}
	scaled := scalePrice(median, m.decimals)
	if scaled.Sign() <= 0 {
		return fmt.Errorf("median for %s rounds to zero at %d decimals", feed, m.decimals)
	}
	m.feeds.Publish(feed, scaled, m.decimals, now)
	observability.Oracle().RecordPrice(feed, scaled, m.decimals, now, now)
	if m.storage != nil {
		if err := m.storage.RecordSnapshot(ctx, feed, median.FloatString(int(m.decimals)), names, now); err != nil {
			return fmt.Errorf("record snapshot: %w", err)
		}
	}
	return nil
}

func computeMedian(samples []Sample) *big.Rat {
	if len(samples) == 0 {
		return nil
	}
	sorted := make([]*big.Rat, 0, len(samples))
	for _, sample := range samples {
		if sample.Price == nil {
			continue
		}
		sorted = append(sorted, new(big.Rat).Set(sample.Price))
	}
	if len(sorted) == 0 {
		return nil
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Cmp(sorted[j]) < 0
	})
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return new(big.Rat).Set(sorted[mid])
	}
	sum := new(big.Rat).Add(sorted[mid-1], sorted[mid])
	return sum.Quo(sum, big.NewRat(2, 1))
}

// scalePrice converts a rational price into a fixed-point integer with the
// given number of decimals, truncating excess precision.
func scalePrice(price *big.Rat, decimals uint8) *big.Int {
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	scaled := new(big.Rat).Mul(price, new(big.Rat).SetInt(factor))
	return new(big.Int).Quo(scaled.Num(), scaled.Denom())
}

func normaliseFeeds(feedIDs []string) []string {
	seen := make(map[string]struct{}, len(feedIDs))
	out := make([]string, 0, len(feedIDs))
	for _, feed := range feedIDs {
		normalised := strings.ToLower(strings.TrimSpace(feed))
		if normalised == "" {
			continue
		}
		if _, ok := seen[normalised]; ok {
			continue
		}
		seen[normalised] = struct{}{}
		out = append(out, normalised)
	}
	return out
}
