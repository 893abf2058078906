package common

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrModulePaused indicates the targeted module has been halted by governance.
	ErrModulePaused = errors.New("module paused")
	// ErrReentrancy indicates a mutating entry point was invoked while another
	// mutation was still in flight.
	ErrReentrancy = errors.New("reentrant call rejected")
)

// PauseView exposes the pause switches consulted before any state mutation.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the operation when the module is paused. A nil view or empty
// module name disables the check.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSet is a concurrency-safe PauseView whose switches are toggled by
// governance actions.
type PauseSet struct {
	mu     sync.RWMutex
	paused map[string]bool
}

// NewPauseSet constructs an empty pause set with every module running.
func NewPauseSet() *PauseSet {
	return &PauseSet{paused: make(map[string]bool)}
}

// IsPaused implements PauseView.
func (p *PauseSet) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused[module]
}

// Set toggles the pause switch for the module and reports the previous value.
func (p *PauseSet) Set(module string, paused bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.paused[module]
	p.paused[module] = paused
	return prev
}

// EntryGuard is a non-blocking exclusive lock protecting a mutating entry
// point. Unlike a mutex it rejects instead of queueing, so a nested call that
// re-enters the engine before the outer call completes surfaces ErrReentrancy
// rather than deadlocking.
type EntryGuard struct {
	held atomic.Bool
}

// Acquire takes the guard or fails with ErrReentrancy when it is already held.
func (g *EntryGuard) Acquire() error {
	if g == nil {
		return nil
	}
	if !g.held.CompareAndSwap(false, true) {
		return ErrReentrancy
	}
	return nil
}

// Release returns the guard. Safe to call from deferred error paths.
func (g *EntryGuard) Release() {
	if g == nil {
		return
	}
	g.held.Store(false)
}
