package vusd

import (
	"math/big"
	"time"
)

// Oracle resolves the latest price observation for a feed. Implementations
// must not retry internally; a failed read surfaces ErrOracleUnavailable and
// the caller decides.
type Oracle interface {
	LatestPrice(feedID string) (OracleReading, error)
}

// OracleFunc adapts ordinary functions to Oracle.
type OracleFunc func(feedID string) (OracleReading, error)

// LatestPrice implements Oracle.
func (f OracleFunc) LatestPrice(feedID string) (OracleReading, error) {
	if f == nil {
		return OracleReading{}, ErrOracleUnavailable
	}
	return f(feedID)
}

// ValidatePrice decides whether a price observation is acceptable for
// conversion. The bound is symmetric around peg and recomputed on every call,
// so a tolerance change takes effect on the very next conversion.
func ValidatePrice(price *big.Int, priceDecimals uint8, updatedAt, now time.Time, staleWindow time.Duration, toleranceBps uint64) error {
	if price == nil || price.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if toleranceBps > 10_000 {
		return ErrBpsOutOfRange
	}
	if now.Sub(updatedAt) >= staleWindow {
		return ErrStalePrice
	}
	one := pow10(priceDecimals)
	tolerance := new(big.Int).Mul(one, new(big.Int).SetUint64(toleranceBps))
	tolerance.Quo(tolerance, basisPoints)
	lower := new(big.Int).Sub(one, tolerance)
	upper := new(big.Int).Add(one, tolerance)
	if price.Cmp(lower) < 0 || price.Cmp(upper) > 0 {
		return ErrPriceOutOfTolerance
	}
	return nil
}
