package vusd

import (
	"errors"
	"time"

	"vusd/core/events"
	nativecommon "vusd/native/common"
)

var errEngineNotConfigured = errors.New("vusd: engine not configured")

// Engine orchestrates mint and redeem conversions together with the governed
// registry, policy and supply state. All state-mutating entry points share a
// single non-blocking entry guard: a nested or concurrent mutation is
// rejected, never queued, so no operation can observe another one mid-flight.
type Engine struct {
	guard    nativecommon.EntryGuard
	pauses   *nativecommon.PauseSet
	registry *Registry
	policy   *PolicyStore
	supply   *SupplyTracker
	oracle   Oracle
	custody  CustodyGateway
	bank     CollateralBank
	token    PeggedToken
	auth     Authorizer
	emitter  events.Emitter
	clock    func() time.Time
}

// NewEngine constructs an engine over the supplied storage backend and
// collaborator boundaries.
func NewEngine(store Storage, oracle Oracle, custody CustodyGateway, bank CollateralBank, token PeggedToken, auth Authorizer) *Engine {
	return &Engine{
		pauses:   nativecommon.NewPauseSet(),
		registry: NewRegistry(store),
		policy:   NewPolicyStore(store),
		supply:   NewSupplyTracker(store),
		oracle:   oracle,
		custody:  custody,
		bank:     bank,
		token:    token,
		auth:     auth,
		emitter:  events.NoopEmitter{},
		clock:    time.Now,
	}
}

// SetEmitter wires the downstream event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil || emitter == nil {
		return
	}
	e.emitter = emitter
}

// SetClock overrides the time source, primarily for deterministic testing.
func (e *Engine) SetClock(clock func() time.Time) {
	if e == nil || clock == nil {
		return
	}
	e.clock = clock
}

// Registry exposes read access to the whitelist.
func (e *Engine) Registry() *Registry {
	if e == nil {
		return nil
	}
	return e.registry
}

// Policy returns the current conversion policy.
func (e *Engine) Policy() (Policy, error) {
	if e == nil {
		return Policy{}, errEngineNotConfigured
	}
	return e.policy.Policy()
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) ready() error {
	if e == nil || e.registry == nil || e.policy == nil || e.supply == nil {
		return errEngineNotConfigured
	}
	if e.oracle == nil || e.custody == nil || e.token == nil {
		return errEngineNotConfigured
	}
	return nil
}

// rollback unwinds the already-applied steps of a failed conversion, newest
// first, and returns the original cause. A failing compensation is joined
// onto the cause: at that point state needs operator attention and both
// errors must surface.
func rollback(unwind []func() error, cause error) error {
	for i := len(unwind) - 1; i >= 0; i-- {
		if err := unwind[i](); err != nil {
			return errors.Join(cause, err)
		}
	}
	return cause
}

// readPrice resolves and bound-checks the oracle price for an asset entry.
func (e *Engine) readPrice(entry AssetEntry, toleranceBps uint64) (OracleReading, error) {
	reading, err := e.oracle.LatestPrice(entry.OracleFeed)
	if err != nil {
		if errors.Is(err, ErrOracleUnavailable) {
			return OracleReading{}, err
		}
		return OracleReading{}, errors.Join(ErrOracleUnavailable, err)
	}
	if err := ValidatePrice(reading.Price, reading.Decimals, reading.UpdatedAt, e.clock(), entry.StaleWindow, toleranceBps); err != nil {
		return OracleReading{}, err
	}
	return reading, nil
}
