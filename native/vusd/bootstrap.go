package vusd

import "errors"

// Bootstrap seeds policy, supply ceiling and whitelist from the parameter
// file at startup. Values already in state win over the file: same-value
// updates and already-registered assets are skipped, so restarting a daemon
// never rewinds governance changes made since the file was written.
func (e *Engine) Bootstrap(params Parameters) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.guard.Acquire(); err != nil {
		return err
	}
	defer e.guard.Release()
	if _, err := e.policy.Seed(params.Policy); err != nil {
		return err
	}
	if params.SupplyCeiling != nil && params.SupplyCeiling.Sign() > 0 {
		current, err := e.supply.Ceiling()
		if err != nil {
			return err
		}
		if current.Sign() == 0 {
			if _, err := e.supply.SetCeiling(params.SupplyCeiling); err != nil && !errors.Is(err, ErrValueUnchanged) {
				return err
			}
		}
	}
	for _, entry := range params.Assets {
		if err := e.registry.Add(entry, e.custody); err != nil {
			if errors.Is(err, ErrAssetExists) {
				continue
			}
			return err
		}
	}
	return nil
}
