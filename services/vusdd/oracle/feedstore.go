package oracle

import (
	"math/big"
	"strings"
	"sync"
	"time"

	"vusd/native/vusd"
)

// FeedStore holds the latest aggregated reading per feed. It is the bridge
// between the polling manager and the conversion engine: the engine reads
// whatever was last published and applies its own freshness checks, so a
// feed that stops updating simply goes stale rather than erroring here.
type FeedStore struct {
	mu       sync.RWMutex
	readings map[string]vusd.OracleReading
}

// NewFeedStore returns an empty store.
func NewFeedStore() *FeedStore {
	return &FeedStore{readings: make(map[string]vusd.OracleReading)}
}

// Publish replaces the stored reading for a feed.
func (s *FeedStore) Publish(feed string, price *big.Int, decimals uint8, updatedAt time.Time) {
	if s == nil || price == nil {
		return
	}
	key := normaliseFeed(feed)
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings[key] = vusd.OracleReading{
		Price:     new(big.Int).Set(price),
		Decimals:  decimals,
		UpdatedAt: updatedAt,
	}
}

// LatestPrice implements vusd.Oracle.
func (s *FeedStore) LatestPrice(feedID string) (vusd.OracleReading, error) {
	if s == nil {
		return vusd.OracleReading{}, vusd.ErrOracleUnavailable
	}
	s.mu.RLock()
	reading, ok := s.readings[normaliseFeed(feedID)]
	s.mu.RUnlock()
	if !ok {
		return vusd.OracleReading{}, vusd.ErrOracleUnavailable
	}
	return reading.Clone(), nil
}

// Seed restores a reading persisted by a previous run, typically the latest
// snapshot from storage, so a restart does not have to wait a full poll
// interval before serving quotes.
func (s *FeedStore) Seed(feed, price string, decimals uint8, updatedAt time.Time) bool {
	if s == nil {
		return false
	}
	rat, ok := new(big.Rat).SetString(strings.TrimSpace(price))
	if !ok || rat.Sign() <= 0 {
		return false
	}
	scaled := scalePrice(rat, decimals)
	if scaled.Sign() <= 0 {
		return false
	}
	s.Publish(feed, scaled, decimals, updatedAt)
	return true
}

func normaliseFeed(feed string) string {
	return strings.ToLower(strings.TrimSpace(feed))
}
