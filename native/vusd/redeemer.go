package vusd

import (
	"math/big"

	"vusd/core/events"
	nativecommon "vusd/native/common"
)

// Redeem burns pegged tokens from the caller and withdraws the corresponding
// collateral from custody to the receiver. The slippage bound applies to the
// computed amount before the withdraw; the reported output is what the
// custody gateway actually released. A failing withdrawal restores the burned
// tokens and the tracked supply, so redemption either pays out or leaves the
// caller whole. No ceiling applies to redemption; availability is bounded by
// the custody balance, which the gateway enforces.
func (e *Engine) Redeem(caller, receiver [20]byte, asset string, amountIn, minOut *big.Int) (*Conversion, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.guard.Acquire(); err != nil {
		return nil, err
	}
	defer e.guard.Release()
	if err := nativecommon.Guard(e.pauses, ModuleRedeem); err != nil {
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
	out, err := ComputeRedeemAmount(amountIn, entry.Decimals, PeggedDecimals, reading.Price, reading.Decimals, policy.FeeBps)
	if err != nil {
		return nil, err
	}
	if out.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if minOut != nil && out.Cmp(minOut) < 0 {
		return nil, ErrSlippage
	}
	if err := e.token.BurnFrom(caller, amountIn); err != nil {
		return nil, err
	}
	burned := new(big.Int).Set(amountIn)
	unwind := []func() error{func() error { return e.token.Mint(caller, burned) }}
	if err := e.supply.RecordBurn(amountIn); err != nil {
		return nil, rollback(unwind, err)
	}
	unwind = append(unwind, func() error { return e.supply.restore(burned) })
	actual, err := e.custody.WithdrawTo(receiver, entry.CustodyMarket, out)
	if err != nil {
		return nil, rollback(unwind, err)
	}
	conv := &Conversion{
		Asset:         entry.Symbol,
		AmountIn:      new(big.Int).Set(amountIn),
		AmountOut:     new(big.Int).Set(actual),
		Price:         new(big.Int).Set(reading.Price),
		PriceDecimals: reading.Decimals,
		FeeBps:        policy.FeeBps,
	}
	e.emit(events.Redeemed{
		Asset:     conv.Asset,
		Caller:    caller,
		Receiver:  receiver,
		AmountIn:  new(big.Int).Set(amountIn),
		AmountOut: new(big.Int).Set(actual),
		Price:     new(big.Int).Set(reading.Price),
		FeeBps:    policy.FeeBps,
	})
	return conv, nil
}

// RedeemableAmount is the advisory counterpart of Redeem. An unsupported
// asset yields a sentinel zero instead of an error.
func (e *Engine) RedeemableAmount(asset string, amountIn *big.Int) (*big.Int, error) {
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
	return ComputeRedeemAmount(amountIn, entry.Decimals, PeggedDecimals, reading.Price, reading.Decimals, policy.FeeBps)
}
