package vusd

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"vusd/core/events"
)

// Governance entry points. Every mutator checks the caller against the
// authorizer, rejects same-value updates with ErrValueUnchanged without
// emitting, and otherwise emits a before/after change event.

// AddAsset whitelists a collateral asset after verifying the custody market's
// declared base asset matches.
func (e *Engine) AddAsset(caller [20]byte, entry AssetEntry) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.guard.Acquire(); err != nil {
		return err
	}
	defer e.guard.Release()
	if err := e.authorize(caller); err != nil {
		return err
	}
	if err := e.registry.Add(entry, e.custody); err != nil {
		return err
	}
	e.emit(events.AssetAdded{
		Asset:         entry.Symbol,
		Decimals:      entry.Decimals,
		OracleFeed:    entry.OracleFeed,
		CustodyMarket: entry.CustodyMarket,
		StaleWindow:   entry.StaleWindow,
	})
	return nil
}

// RemoveAsset deletes the whitelist entry. Outstanding custody balances are
// intentionally left behind.
func (e *Engine) RemoveAsset(caller [20]byte, symbol string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.guard.Acquire(); err != nil {
		return err
	}
	defer e.guard.Release()
	if err := e.authorize(caller); err != nil {
		return err
	}
	if err := e.registry.Remove(symbol); err != nil {
		return err
	}
	e.emit(events.AssetRemoved{Asset: symbol})
	return nil
}

// SetFee updates the conversion fee in basis points.
func (e *Engine) SetFee(caller [20]byte, bps uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.guard.Acquire(); err != nil {
		return err
	}
	defer e.guard.Release()
	if err := e.authorize(caller); err != nil {
		return err
	}
	previous, err := e.policy.SetFeeBps(bps)
	if err != nil {
		return err
	}
	e.emit(events.PolicyUpdated{
		Field:    "feeBps",
		Previous: strconv.FormatUint(previous, 10),
		Updated:  strconv.FormatUint(bps, 10),
	})
	return nil
}

// SetPriceTolerance updates the peg band in basis points. The band is
// recomputed per conversion, so the change applies on the very next one.
func (e *Engine) SetPriceTolerance(caller [20]byte, bps uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.guard.Acquire(); err != nil {
		return err
	}
	defer e.guard.Release()
	if err := e.authorize(caller); err != nil {
		return err
	}
	previous, err := e.policy.SetToleranceBps(bps)
	if err != nil {
		return err
	}
	e.emit(events.PolicyUpdated{
		Field:    "toleranceBps",
		Previous: strconv.FormatUint(previous, 10),
		Updated:  strconv.FormatUint(bps, 10),
	})
	return nil
}

// SetSupplyCeiling updates the maximum outstanding pegged supply.
func (e *Engine) SetSupplyCeiling(caller [20]byte, value *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.guard.Acquire(); err != nil {
		return err
	}
	defer e.guard.Release()
	if err := e.authorize(caller); err != nil {
		return err
	}
	previous, err := e.supply.SetCeiling(value)
	if err != nil {
		return err
	}
	e.emit(events.PolicyUpdated{
		Field:    "supplyCeiling",
		Previous: previous.String(),
		Updated:  value.String(),
	})
	return nil
}

// SetStaleWindow updates the per-asset oracle staleness window.
func (e *Engine) SetStaleWindow(caller [20]byte, asset string, window time.Duration) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.guard.Acquire(); err != nil {
		return err
	}
	defer e.guard.Release()
	if err := e.authorize(caller); err != nil {
		return err
	}
	previous, err := e.registry.SetStaleWindow(asset, window)
	if err != nil {
		return err
	}
	e.emit(events.StaleWindowUpdated{Asset: asset, Previous: previous, Updated: window})
	return nil
}

// SetPaused toggles a module pause switch.
func (e *Engine) SetPaused(caller [20]byte, module string, paused bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.guard.Acquire(); err != nil {
		return err
	}
	defer e.guard.Release()
	if err := e.authorize(caller); err != nil {
		return err
	}
	if module != ModuleMint && module != ModuleRedeem {
		return fmt.Errorf("vusd: unknown module %q", module)
	}
	if e.pauses.IsPaused(module) == paused {
		return ErrValueUnchanged
	}
	e.pauses.Set(module, paused)
	e.emit(events.ModulePaused{Module: module, Paused: paused})
	return nil
}

func (e *Engine) authorize(caller [20]byte) error {
	if caller == ([20]byte{}) {
		return ErrZeroAddress
	}
	if e.auth == nil || !e.auth.IsAuthorizedGovernor(caller) {
		return ErrNotAuthorized
	}
	return nil
}
