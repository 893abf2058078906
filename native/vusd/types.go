package vusd

import (
	"math/big"
	"time"
)

// TokenSymbol is the canonical symbol of the pegged token.
const TokenSymbol = "VUSD"

// PeggedDecimals is the decimal precision of the pegged token.
const PeggedDecimals uint8 = 18

// Module identifiers used by the pause switches.
const (
	ModuleMint   = "mint"
	ModuleRedeem = "redeem"
)

// AssetEntry describes one whitelisted collateral asset. An entry exists if
// and only if the asset is currently supported; removal deletes it entirely.
type AssetEntry struct {
	Symbol        string
	Decimals      uint8
	OracleFeed    string
	CustodyMarket string
	StaleWindow   time.Duration
}

// Copy returns a value copy so callers cannot mutate registry state.
func (e AssetEntry) Copy() AssetEntry {
	return e
}

// OracleReading is a transient price observation. It is fetched per request
// and never persisted by the core.
type OracleReading struct {
	Price     *big.Int
	Decimals  uint8
	UpdatedAt time.Time
}

// Clone returns a deep copy of the reading.
func (r OracleReading) Clone() OracleReading {
	clone := r
	if r.Price != nil {
		clone.Price = new(big.Int).Set(r.Price)
	}
	return clone
}

// Conversion is the settled outcome of a mint or redeem, including the
// oracle price the engine actually used. For mints AmountIn is the collateral
// that arrived; for redeems AmountOut is what custody actually released.
type Conversion struct {
	Asset         string
	AmountIn      *big.Int
	AmountOut     *big.Int
	Price         *big.Int
	PriceDecimals uint8
	FeeBps        uint64
}

// Policy is the process-wide conversion configuration. It is read on every
// conversion and mutated only through governance actions.
type Policy struct {
	FeeBps       uint64
	ToleranceBps uint64
}

// SupplyStatus is a point-in-time snapshot of the pegged token ledger.
type SupplyStatus struct {
	Current  *big.Int
	Ceiling  *big.Int
	Headroom *big.Int
}

// Storage abstracts the subset of state manager functionality required by the
// registry, policy store and supply tracker.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}
