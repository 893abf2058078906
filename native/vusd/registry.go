package vusd

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	assetRecordPrefix = []byte("vusd/registry/asset/")
	assetIndexKey     = []byte("vusd/registry/index")
)

// CustodyDirectory resolves the declared base asset of a custody market. The
// registry consults it when whitelisting so collateral cannot be routed to a
// market denominated in a different asset.
type CustodyDirectory interface {
	BaseAsset(marketID string) (string, error)
}

type storedAssetEntry struct {
	Symbol             string
	Decimals           uint64
	OracleFeed         string
	CustodyMarket      string
	StaleWindowSeconds uint64
}

type storedAssetIndex struct {
	Symbols []string
}

// Registry maintains the per-asset whitelist: oracle binding, custody market
// binding and staleness policy.
type Registry struct {
	store Storage
}

// NewRegistry constructs a registry bound to the provided storage backend.
func NewRegistry(store Storage) *Registry {
	return &Registry{store: store}
}

// Add whitelists a collateral asset. It fails with ErrAssetExists when the
// asset is already present and with ErrCustodyMismatch when the custody
// market's declared base asset does not match the asset being added.
func (r *Registry) Add(entry AssetEntry, custody CustodyDirectory) error {
	if r == nil || r.store == nil {
		return fmt.Errorf("registry not initialised")
	}
	symbol := normaliseSymbol(entry.Symbol)
	if symbol == "" {
		return fmt.Errorf("vusd: asset symbol required")
	}
	if entry.Decimals > PeggedDecimals {
		return ErrUnsupportedDecimals
	}
	if strings.TrimSpace(entry.OracleFeed) == "" {
		return fmt.Errorf("vusd: oracle feed required for %s", symbol)
	}
	market := strings.TrimSpace(entry.CustodyMarket)
	if market == "" {
		return fmt.Errorf("vusd: custody market required for %s", symbol)
	}
	// Windows persist with second granularity; anything shorter would store
	// as zero and reject every price on reload.
	if entry.StaleWindow < time.Second {
		return fmt.Errorf("vusd: stale window must be at least one second for %s", symbol)
	}
	key := assetKey(symbol)
	var existing storedAssetEntry
	ok, err := r.store.KVGet(key, &existing)
	if err != nil {
		return err
	}
	if ok {
		return ErrAssetExists
	}
	if custody == nil {
		return fmt.Errorf("vusd: custody directory required")
	}
	base, err := custody.BaseAsset(market)
	if err != nil {
		return err
	}
	if !strings.EqualFold(strings.TrimSpace(base), symbol) {
		return ErrCustodyMismatch
	}
	stored := storedAssetEntry{
		Symbol:             symbol,
		Decimals:           uint64(entry.Decimals),
		OracleFeed:         strings.TrimSpace(entry.OracleFeed),
		CustodyMarket:      market,
		StaleWindowSeconds: uint64(entry.StaleWindow / time.Second),
	}
	if err := r.store.KVPut(key, stored); err != nil {
		return err
	}
	index, err := r.loadIndex()
	if err != nil {
		return err
	}
	index = append(index, symbol)
	return r.saveIndex(index)
}

// Remove deletes the asset entry entirely. It does not check outstanding
// custody balances; an orphaned balance is an accepted consequence of
// delisting, not a defect.
func (r *Registry) Remove(symbol string) error {
	if r == nil || r.store == nil {
		return fmt.Errorf("registry not initialised")
	}
	normalised := normaliseSymbol(symbol)
	key := assetKey(normalised)
	var existing storedAssetEntry
	ok, err := r.store.KVGet(key, &existing)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAssetNotFound
	}
	if err := r.store.KVDelete(key); err != nil {
		return err
	}
	index, err := r.loadIndex()
	if err != nil {
		return err
	}
	filtered := index[:0]
	for _, sym := range index {
		if sym != normalised {
			filtered = append(filtered, sym)
		}
	}
	return r.saveIndex(filtered)
}

// Get retrieves the entry for a whitelisted asset.
func (r *Registry) Get(symbol string) (AssetEntry, bool, error) {
	if r == nil || r.store == nil {
		return AssetEntry{}, false, fmt.Errorf("registry not initialised")
	}
	var stored storedAssetEntry
	ok, err := r.store.KVGet(assetKey(normaliseSymbol(symbol)), &stored)
	if err != nil {
		return AssetEntry{}, false, err
	}
	if !ok {
		return AssetEntry{}, false, nil
	}
	return fromStoredAsset(stored), true, nil
}

// IsSupported reports whether the asset is currently whitelisted.
func (r *Registry) IsSupported(symbol string) (bool, error) {
	_, ok, err := r.Get(symbol)
	return ok, err
}

// Assets returns every whitelisted entry ordered by symbol.
func (r *Registry) Assets() ([]AssetEntry, error) {
	if r == nil || r.store == nil {
		return nil, fmt.Errorf("registry not initialised")
	}
	index, err := r.loadIndex()
	if err != nil {
		return nil, err
	}
	sort.Strings(index)
	entries := make([]AssetEntry, 0, len(index))
	for _, symbol := range index {
		entry, ok, err := r.Get(symbol)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// SetStaleWindow updates the staleness window for a whitelisted asset and
// returns the previous value. Supplying the current value fails with
// ErrValueUnchanged.
func (r *Registry) SetStaleWindow(symbol string, window time.Duration) (time.Duration, error) {
	if r == nil || r.store == nil {
		return 0, fmt.Errorf("registry not initialised")
	}
	if window < time.Second {
		return 0, fmt.Errorf("vusd: stale window must be at least one second")
	}
	key := assetKey(normaliseSymbol(symbol))
	var stored storedAssetEntry
	ok, err := r.store.KVGet(key, &stored)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrAssetNotFound
	}
	previous := time.Duration(stored.StaleWindowSeconds) * time.Second
	if previous == window {
		return previous, ErrValueUnchanged
	}
	stored.StaleWindowSeconds = uint64(window / time.Second)
	if err := r.store.KVPut(key, stored); err != nil {
		return 0, err
	}
	return previous, nil
}

func (r *Registry) loadIndex() ([]string, error) {
	var index storedAssetIndex
	if _, err := r.store.KVGet(assetIndexKey, &index); err != nil {
		return nil, err
	}
	return index.Symbols, nil
}

func (r *Registry) saveIndex(symbols []string) error {
	return r.store.KVPut(assetIndexKey, storedAssetIndex{Symbols: symbols})
}

func assetKey(symbol string) []byte {
	buf := make([]byte, len(assetRecordPrefix)+len(symbol))
	copy(buf, assetRecordPrefix)
	copy(buf[len(assetRecordPrefix):], symbol)
	return buf
}

func fromStoredAsset(stored storedAssetEntry) AssetEntry {
	return AssetEntry{
		Symbol:        stored.Symbol,
		Decimals:      uint8(stored.Decimals),
		OracleFeed:    stored.OracleFeed,
		CustodyMarket: stored.CustodyMarket,
		StaleWindow:   time.Duration(stored.StaleWindowSeconds) * time.Second,
	}
}

func normaliseSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
