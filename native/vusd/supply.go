package vusd

import (
	"fmt"
	"math/big"
	"strings"
)

var (
	supplyTotalKey   = []byte("vusd/supply/total")
	supplyCeilingKey = []byte("vusd/supply/ceiling")
)

type storedAmount struct {
	Value string
}

// SupplyTracker maintains the total issued pegged supply and the governed
// ceiling. The ceiling is enforced at mint time only; lowering it below the
// outstanding supply simply leaves zero headroom.
type SupplyTracker struct {
	store Storage
}

// NewSupplyTracker constructs a tracker bound to the provided storage backend.
func NewSupplyTracker(store Storage) *SupplyTracker {
	return &SupplyTracker{store: store}
}

// Current returns the tracked total supply.
func (s *SupplyTracker) Current() (*big.Int, error) {
	return s.loadAmount(supplyTotalKey)
}

// Ceiling returns the configured supply ceiling. An unset ceiling is zero:
// nothing is mintable until governance raises it.
func (s *SupplyTracker) Ceiling() (*big.Int, error) {
	return s.loadAmount(supplyCeilingKey)
}

// Headroom returns max(0, ceiling - current).
func (s *SupplyTracker) Headroom() (*big.Int, error) {
	current, err := s.Current()
	if err != nil {
		return nil, err
	}
	ceiling, err := s.Ceiling()
	if err != nil {
		return nil, err
	}
	headroom := new(big.Int).Sub(ceiling, current)
	if headroom.Sign() < 0 {
		return big.NewInt(0), nil
	}
	return headroom, nil
}

// SetCeiling replaces the ceiling and returns the previous value. Supplying
// the current value fails with ErrValueUnchanged.
func (s *SupplyTracker) SetCeiling(value *big.Int) (*big.Int, error) {
	if value == nil || value.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	previous, err := s.Ceiling()
	if err != nil {
		return nil, err
	}
	if previous.Cmp(value) == 0 {
		return previous, ErrValueUnchanged
	}
	if err := s.saveAmount(supplyCeilingKey, value); err != nil {
		return nil, err
	}
	return previous, nil
}

// RecordMint increases the tracked supply. The headroom check runs in the
// same serialized step as the mint computation, so there is no check-then-act
// window across which supply could change.
func (s *SupplyTracker) RecordMint(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	current, err := s.Current()
	if err != nil {
		return err
	}
	ceiling, err := s.Ceiling()
	if err != nil {
		return err
	}
	next := new(big.Int).Add(current, amount)
	if next.Cmp(ceiling) > 0 {
		return ErrMintLimitReached
	}
	return s.saveAmount(supplyTotalKey, next)
}

// RecordBurn decreases the tracked supply.
func (s *SupplyTracker) RecordBurn(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	current, err := s.Current()
	if err != nil {
		return err
	}
	if amount.Cmp(current) > 0 {
		return ErrInsufficientSupply
	}
	return s.saveAmount(supplyTotalKey, new(big.Int).Sub(current, amount))
}

// restore re-applies supply removed by a burn whose conversion could not
// complete. The ceiling is not re-checked: the tokens were already
// outstanding before the failed operation.
func (s *SupplyTracker) restore(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	current, err := s.Current()
	if err != nil {
		return err
	}
	return s.saveAmount(supplyTotalKey, new(big.Int).Add(current, amount))
}

func (s *SupplyTracker) loadAmount(key []byte) (*big.Int, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("supply tracker not initialised")
	}
	var stored storedAmount
	ok, err := s.store.KVGet(key, &stored)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(stored.Value) == "" {
		return big.NewInt(0), nil
	}
	value, parsed := new(big.Int).SetString(strings.TrimSpace(stored.Value), 10)
	if !parsed {
		return nil, fmt.Errorf("vusd: invalid stored amount %q", stored.Value)
	}
	return value, nil
}

func (s *SupplyTracker) saveAmount(key []byte, value *big.Int) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("supply tracker not initialised")
	}
	return s.store.KVPut(key, storedAmount{Value: value.String()})
}
