package vusd

import (
	"errors"

	nativecommon "vusd/native/common"
)

var (
	// ErrZeroAddress indicates a caller or receiver address was the zero value.
	ErrZeroAddress = errors.New("vusd: zero address")
	// ErrInvalidAmount indicates a nil, zero or negative amount was supplied.
	ErrInvalidAmount = errors.New("vusd: amount must be positive")
	// ErrBpsOutOfRange indicates a basis point parameter fell outside [0, 10000].
	ErrBpsOutOfRange = errors.New("vusd: basis points must not exceed 10000")

	// ErrOracleUnavailable indicates the underlying price feed could not be reached.
	ErrOracleUnavailable = errors.New("vusd: oracle unavailable")
	// ErrStalePrice indicates the price reading exceeded the staleness window.
	ErrStalePrice = errors.New("vusd: stale price")
	// ErrPriceOutOfTolerance indicates the price fell outside the peg band.
	ErrPriceOutOfTolerance = errors.New("vusd: price out of tolerance")

	// ErrMintLimitReached indicates the mint would exceed the supply ceiling.
	ErrMintLimitReached = errors.New("vusd: mint limit reached")
	// ErrInsufficientSupply indicates a burn exceeded the tracked total supply.
	ErrInsufficientSupply = errors.New("vusd: burn exceeds total supply")

	// ErrSlippage indicates the computed amount fell below the caller minimum.
	ErrSlippage = errors.New("vusd: output below minimum")

	// ErrNotAuthorized indicates the caller does not hold the governor role.
	ErrNotAuthorized = errors.New("vusd: caller not authorized")

	// ErrAssetExists indicates the asset is already whitelisted.
	ErrAssetExists = errors.New("vusd: asset already whitelisted")
	// ErrAssetNotFound indicates the asset is not whitelisted.
	ErrAssetNotFound = errors.New("vusd: asset not whitelisted")
	// ErrCustodyMismatch indicates the custody market's base asset differs from
	// the asset being registered.
	ErrCustodyMismatch = errors.New("vusd: custody market base asset mismatch")
	// ErrValueUnchanged indicates a governance update supplied the current value.
	ErrValueUnchanged = errors.New("vusd: value unchanged")

	// ErrUnsupportedDecimals indicates the asset precision exceeds the pegged
	// token precision, which the rescale rules cannot express.
	ErrUnsupportedDecimals = errors.New("vusd: unsupported decimal configuration")
)

// Class buckets errors so callers can distinguish "retry later" from "fix your
// input" from "not allowed".
type Class string

const (
	// ClassValidation covers malformed input; never retried.
	ClassValidation Class = "validation"
	// ClassPrice covers transient oracle conditions; retry after the feed updates.
	ClassPrice Class = "price"
	// ClassCapacity covers supply ceiling exhaustion; retry after headroom frees.
	ClassCapacity Class = "capacity"
	// ClassSlippage covers outputs below the caller minimum; resubmit with
	// adjusted bounds.
	ClassSlippage Class = "slippage"
	// ClassAuthorization covers role failures; fatal for that caller.
	ClassAuthorization Class = "authorization"
	// ClassState covers registry duplicates, misses and no-op updates.
	ClassState Class = "state"
	// ClassUnavailable covers paused modules and rejected reentrant calls.
	ClassUnavailable Class = "unavailable"
	// ClassUnknown covers everything else.
	ClassUnknown Class = "unknown"
)

// Classify maps an error onto the taxonomy above.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassUnknown
	case errors.Is(err, ErrZeroAddress), errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrBpsOutOfRange), errors.Is(err, ErrUnsupportedDecimals):
		return ClassValidation
	case errors.Is(err, ErrOracleUnavailable), errors.Is(err, ErrStalePrice),
		errors.Is(err, ErrPriceOutOfTolerance):
		return ClassPrice
	case errors.Is(err, ErrMintLimitReached):
		return ClassCapacity
	case errors.Is(err, ErrSlippage):
		return ClassSlippage
	case errors.Is(err, ErrNotAuthorized):
		return ClassAuthorization
	case errors.Is(err, ErrAssetExists), errors.Is(err, ErrAssetNotFound),
		errors.Is(err, ErrCustodyMismatch), errors.Is(err, ErrValueUnchanged),
		errors.Is(err, ErrInsufficientSupply):
		return ClassState
	case errors.Is(err, nativecommon.ErrModulePaused), errors.Is(err, nativecommon.ErrReentrancy):
		return ClassUnavailable
	default:
		return ClassUnknown
	}
}
