package vusd

import "math/big"

// CustodyGateway is the boundary to the yield-bearing money market holding
// collateral. Deposits and withdrawals are synchronous; a failure aborts the
// surrounding conversion.
type CustodyGateway interface {
	// Supply deposits collateral into the market.
	Supply(marketID string, amount *big.Int) error
	// WithdrawTo withdraws collateral from the market directly to the
	// receiver and returns the amount actually released.
	WithdrawTo(receiver [20]byte, marketID string, amount *big.Int) (*big.Int, error)
	// BalanceOf reports the collateral currently held in the market.
	BalanceOf(marketID string) (*big.Int, error)
	// BaseAsset returns the asset symbol the market is denominated in.
	BaseAsset(marketID string) (string, error)
}

// CollateralBank moves collateral from depositors into protocol custody. The
// returned amount is what actually arrived, which for transfer-fee assets can
// be less than requested; mints are computed from it.
type CollateralBank interface {
	TransferFrom(owner [20]byte, asset string, amount *big.Int) (*big.Int, error)
	// Refund returns collateral pulled by TransferFrom when the surrounding
	// conversion cannot complete.
	Refund(owner [20]byte, asset string, amount *big.Int) error
}

// PeggedToken is the boundary to the pegged token contract.
type PeggedToken interface {
	Mint(receiver [20]byte, amount *big.Int) error
	BurnFrom(owner [20]byte, amount *big.Int) error
	TotalSupply() (*big.Int, error)
}

// Authorizer decides whether a caller may execute governance actions.
type Authorizer interface {
	IsAuthorizedGovernor(caller [20]byte) bool
}

// AuthorizerFunc adapts ordinary functions to Authorizer.
type AuthorizerFunc func(caller [20]byte) bool

// IsAuthorizedGovernor implements Authorizer.
func (f AuthorizerFunc) IsAuthorizedGovernor(caller [20]byte) bool {
	if f == nil {
		return false
	}
	return f(caller)
}

// CollateralBalance reports the collateral held in custody for an asset.
// Unsupported assets yield a sentinel zero rather than an error because
// callers use the view for advisory checks.
func (e *Engine) CollateralBalance(asset string) (*big.Int, error) {
	if e == nil {
		return nil, errEngineNotConfigured
	}
	entry, ok, err := e.registry.Get(asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return e.custody.BalanceOf(entry.CustodyMarket)
}

// SupplyStatus returns a point-in-time snapshot of the pegged token ledger.
// Concurrent mutations may land between a read and a subsequent write;
// callers must re-validate before acting on it.
func (e *Engine) SupplyStatus() (SupplyStatus, error) {
	if e == nil {
		return SupplyStatus{}, errEngineNotConfigured
	}
	current, err := e.supply.Current()
	if err != nil {
		return SupplyStatus{}, err
	}
	ceiling, err := e.supply.Ceiling()
	if err != nil {
		return SupplyStatus{}, err
	}
	headroom, err := e.supply.Headroom()
	if err != nil {
		return SupplyStatus{}, err
	}
	return SupplyStatus{Current: current, Ceiling: ceiling, Headroom: headroom}, nil
}
