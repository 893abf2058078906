package vusd

import "math/big"

var basisPoints = big.NewInt(10_000)

// ComputeMintAmount converts an actual transferred-in collateral amount into
// the pegged token amount to issue. The fee truncates in the protocol's
// favour and a price above peg never grants a bonus: the output is capped at
// par, while a price below peg proportionally discounts the mint. The caller
// must supply the amount actually received, not the nominally requested one,
// so transfer-fee assets cannot over-mint.
func ComputeMintAmount(amountIn *big.Int, assetDecimals, peggedDecimals uint8, price *big.Int, priceDecimals uint8, feeBps uint64, headroom *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if price == nil || price.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if feeBps > 10_000 {
		return nil, ErrBpsOutOfRange
	}
	if peggedDecimals < assetDecimals {
		return nil, ErrUnsupportedDecimals
	}
	afterFee := applyFee(amountIn, feeBps)
	one := pow10(priceDecimals)
	scaled := new(big.Int).Set(afterFee)
	if price.Cmp(one) < 0 {
		scaled.Mul(afterFee, price)
		scaled.Quo(scaled, one)
	}
	out := scaled.Mul(scaled, pow10(peggedDecimals-assetDecimals))
	if headroom == nil || out.Cmp(headroom) > 0 {
		return nil, ErrMintLimitReached
	}
	return out, nil
}

// ComputeRedeemAmount converts a pegged token amount into the collateral
// amount to pay out. The cap-at-par rule runs in the opposite direction:
// redemption never pays out more than par even when the price sits below peg,
// and the final downscale truncates, so precision loss also favours the
// protocol. No ceiling applies; availability is the custody gateway's concern.
func ComputeRedeemAmount(amountIn *big.Int, assetDecimals, peggedDecimals uint8, price *big.Int, priceDecimals uint8, feeBps uint64) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if price == nil || price.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if feeBps > 10_000 {
		return nil, ErrBpsOutOfRange
	}
	if peggedDecimals < assetDecimals {
		return nil, ErrUnsupportedDecimals
	}
	one := pow10(priceDecimals)
	gross := new(big.Int).Set(amountIn)
	if price.Cmp(one) > 0 {
		gross.Mul(amountIn, one)
		gross.Quo(gross, price)
	}
	afterFee := applyFee(gross, feeBps)
	return afterFee.Quo(afterFee, pow10(peggedDecimals-assetDecimals)), nil
}

func applyFee(amount *big.Int, feeBps uint64) *big.Int {
	if feeBps == 0 {
		return new(big.Int).Set(amount)
	}
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(feeBps))
	fee.Quo(fee, basisPoints)
	return new(big.Int).Sub(amount, fee)
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
