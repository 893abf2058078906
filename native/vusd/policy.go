package vusd

import "fmt"

var policyKey = []byte("vusd/policy")

// DefaultToleranceBps is the peg band applied before governance configures one.
const DefaultToleranceBps uint64 = 100

type storedPolicy struct {
	FeeBps       uint64
	ToleranceBps uint64
}

// PolicyStore persists the process-wide conversion policy. Fields persist
// indefinitely and change only through discrete governance actions, each
// rejecting a same-value update.
type PolicyStore struct {
	store Storage
}

// NewPolicyStore constructs a policy store bound to the provided backend.
func NewPolicyStore(store Storage) *PolicyStore {
	return &PolicyStore{store: store}
}

// Policy returns the current conversion policy, applying defaults when no
// governance action has run yet.
func (p *PolicyStore) Policy() (Policy, error) {
	if p == nil || p.store == nil {
		return Policy{}, fmt.Errorf("policy store not initialised")
	}
	var stored storedPolicy
	ok, err := p.store.KVGet(policyKey, &stored)
	if err != nil {
		return Policy{}, err
	}
	if !ok {
		return Policy{FeeBps: 0, ToleranceBps: DefaultToleranceBps}, nil
	}
	return Policy{FeeBps: stored.FeeBps, ToleranceBps: stored.ToleranceBps}, nil
}

// SetFeeBps updates the conversion fee and returns the previous value.
func (p *PolicyStore) SetFeeBps(bps uint64) (uint64, error) {
	if bps > 10_000 {
		return 0, ErrBpsOutOfRange
	}
	current, err := p.Policy()
	if err != nil {
		return 0, err
	}
	if current.FeeBps == bps {
		return current.FeeBps, ErrValueUnchanged
	}
	previous := current.FeeBps
	current.FeeBps = bps
	return previous, p.save(current)
}

// SetToleranceBps updates the peg tolerance and returns the previous value.
// The band is recomputed per conversion, so the change applies immediately.
func (p *PolicyStore) SetToleranceBps(bps uint64) (uint64, error) {
	if bps > 10_000 {
		return 0, ErrBpsOutOfRange
	}
	current, err := p.Policy()
	if err != nil {
		return 0, err
	}
	if current.ToleranceBps == bps {
		return current.ToleranceBps, ErrValueUnchanged
	}
	previous := current.ToleranceBps
	current.ToleranceBps = bps
	return previous, p.save(current)
}

// Seed writes the policy only when no governance action has stored one yet.
// It reports whether the write happened.
func (p *PolicyStore) Seed(policy Policy) (bool, error) {
	if p == nil || p.store == nil {
		return false, fmt.Errorf("policy store not initialised")
	}
	if policy.FeeBps > 10_000 || policy.ToleranceBps > 10_000 {
		return false, ErrBpsOutOfRange
	}
	var stored storedPolicy
	ok, err := p.store.KVGet(policyKey, &stored)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	return true, p.save(policy)
}

func (p *PolicyStore) save(policy Policy) error {
	if p == nil || p.store == nil {
		return fmt.Errorf("policy store not initialised")
	}
	return p.store.KVPut(policyKey, storedPolicy{FeeBps: policy.FeeBps, ToleranceBps: policy.ToleranceBps})
}
