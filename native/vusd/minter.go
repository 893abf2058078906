package vusd

import (
	"math/big"

	"vusd/core/events"
	nativecommon "vusd/native/common"
)

// Mint converts collateral into pegged tokens. The output is quoted from the
// requested amount before any funds move, so ceiling and slippage rejections
// cannot strand collateral; after the bank transfer the quote is recomputed
// from the amount that actually arrived, so transfer-fee assets cannot
// over-mint. Any failure after the transfer refunds the collateral and
// unwinds the steps already applied, leaving no partial state behind.
func (e *Engine) Mint(caller, receiver [20]byte, asset string, amountIn, minOut *big.Int) (*Conversion, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.bank == nil {
		return nil, errEngineNotConfigured
	}
	if err := e.guard.Acquire(); err != nil {
		return nil, err
	}
	defer e.guard.Release()
	if err := nativecommon.Guard(e.pauses, ModuleMint); err != nil {
		return nil, err
	}
	if caller == ([20]byte{}) || receiver == ([20]byte{}) {
		return nil, ErrZeroAddress
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	entry, ok, err := e.registry.Get(asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAssetNotFound
	}
	policy, err := e.policy.Policy()
	if err != nil {
		return nil, err
	}
	reading, err := e.readPrice(entry, policy.ToleranceBps)
	if err != nil {
		return nil, err
	}
	headroom, err := e.supply.Headroom()
	if err != nil {
		return nil, err
	}
	out, err := ComputeMintAmount(amountIn, entry.Decimals, PeggedDecimals, reading.Price, reading.Decimals, policy.FeeBps, headroom)
	if err != nil {
		return nil, err
	}
	if minOut != nil && out.Cmp(minOut) < 0 {
		return nil, ErrSlippage
	}
	actual, err := e.bank.TransferFrom(caller, entry.Symbol, amountIn)
	if err != nil {
		return nil, err
	}
	if actual == nil || actual.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	refund := new(big.Int).Set(actual)
	unwind := []func() error{func() error { return e.bank.Refund(caller, entry.Symbol, refund) }}
	if actual.Cmp(amountIn) > 0 {
		return nil, rollback(unwind, ErrInvalidAmount)
	}
	if actual.Cmp(amountIn) < 0 {
		// Transfer-fee asset: reprice the amount that arrived.
		out, err = ComputeMintAmount(actual, entry.Decimals, PeggedDecimals, reading.Price, reading.Decimals, policy.FeeBps, headroom)
		if err != nil {
			return nil, rollback(unwind, err)
		}
		if minOut != nil && out.Cmp(minOut) < 0 {
			return nil, rollback(unwind, ErrSlippage)
		}
	}
	if err := e.token.Mint(receiver, out); err != nil {
		return nil, rollback(unwind, err)
	}
	minted := new(big.Int).Set(out)
	unwind = append(unwind, func() error { return e.token.BurnFrom(receiver, minted) })
	if err := e.supply.RecordMint(out); err != nil {
		return nil, rollback(unwind, err)
	}
	unwind = append(unwind, func() error { return e.supply.RecordBurn(minted) })
	if err := e.custody.Supply(entry.CustodyMarket, actual); err != nil {
		return nil, rollback(unwind, err)
	}
	conv := &Conversion{
		Asset:         entry.Symbol,
		AmountIn:      new(big.Int).Set(actual),
		AmountOut:     new(big.Int).Set(out),
		Price:         new(big.Int).Set(reading.Price),
		PriceDecimals: reading.Decimals,
		FeeBps:        policy.FeeBps,
	}
	e.emit(events.Minted{
		Asset:     conv.Asset,
		Caller:    caller,
		Receiver:  receiver,
		AmountIn:  new(big.Int).Set(actual),
		AmountOut: new(big.Int).Set(out),
		Price:     new(big.Int).Set(reading.Price),
		FeeBps:    policy.FeeBps,
	})
	return conv, nil
}

// MintableAmount is the advisory counterpart of Mint. An unsupported asset
// yields a sentinel zero instead of an error; price and validation failures
// still surface so callers can distinguish "no result" from "error".
func (e *Engine) MintableAmount(asset string, amountIn *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	entry, ok, err := e.registry.Get(asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	policy, err := e.policy.Policy()
	if err != nil {
		return nil, err
	}
	reading, err := e.readPrice(entry, policy.ToleranceBps)
	if err != nil {
		return nil, err
	}
	headroom, err := e.supply.Headroom()
	if err != nil {
		return nil, err
	}
	return ComputeMintAmount(amountIn, entry.Decimals, PeggedDecimals, reading.Price, reading.Decimals, policy.FeeBps, headroom)
}
