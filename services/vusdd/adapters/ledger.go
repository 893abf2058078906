package adapters

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"vusd/native/vusd"
)

// Ledger is a persistent book of collateral and pegged token balances backing
// the daemon's custody gateway, collateral bank and token boundaries. It
// stands in for the external money market and token contract in deployments
// where the daemon is the system of record.
type Ledger struct {
	mu      sync.Mutex
	store   vusd.Storage
	markets map[string]string
}

type storedBalance struct {
	Value string
}

// NewLedger constructs a ledger over the supplied storage backend.
func NewLedger(store vusd.Storage) *Ledger {
	return &Ledger{store: store, markets: make(map[string]string)}
}

// SetMarket registers the base asset a custody market is denominated in.
// Registration happens at boot from the asset registry and is required before
// the market can hold collateral.
func (l *Ledger) SetMarket(marketID, baseAsset string) error {
	if l == nil {
		return fmt.Errorf("ledger not configured")
	}
	market := strings.TrimSpace(marketID)
	asset := strings.ToUpper(strings.TrimSpace(baseAsset))
	if market == "" || asset == "" {
		return fmt.Errorf("ledger: market and base asset required")
	}
	l.mu.Lock()
	l.markets[market] = asset
	l.mu.Unlock()
	return nil
}

// Deposit credits a depositor's collateral account. It backs the funding
// endpoint through which custodians acknowledge received collateral.
func (l *Ledger) Deposit(owner [20]byte, asset string, amount *big.Int) error {
	if l == nil {
		return fmt.Errorf("ledger not configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return vusd.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.adjust(collateralKey(owner, asset), amount)
}

// CollateralBalanceOf reports a depositor's unlocked collateral balance.
func (l *Ledger) CollateralBalanceOf(owner [20]byte, asset string) (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger not configured")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(collateralKey(owner, asset))
}

// TransferFrom implements vusd.CollateralBank. The full requested amount is
// debited; the ledger levies no transfer fees, so arrival equals request.
func (l *Ledger) TransferFrom(owner [20]byte, asset string, amount *big.Int) (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger not configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, vusd.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := collateralKey(owner, asset)
	balance, err := l.load(key)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amount) < 0 {
		return nil, fmt.Errorf("ledger: insufficient collateral for %s", strings.ToUpper(strings.TrimSpace(asset)))
	}
	if err := l.adjust(key, new(big.Int).Neg(amount)); err != nil {
		return nil, err
	}
	return new(big.Int).Set(amount), nil
}

// Refund implements vusd.CollateralBank. It credits back collateral pulled by
// TransferFrom when the surrounding conversion could not complete.
func (l *Ledger) Refund(owner [20]byte, asset string, amount *big.Int) error {
	if l == nil {
		return fmt.Errorf("ledger not configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return vusd.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.adjust(collateralKey(owner, asset), amount)
}

// Supply implements vusd.CustodyGateway.
func (l *Ledger) Supply(marketID string, amount *big.Int) error {
	if l == nil {
		return fmt.Errorf("ledger not configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return vusd.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.markets[strings.TrimSpace(marketID)]; !ok {
		return fmt.Errorf("ledger: unknown custody market %q", marketID)
	}
	return l.adjust(marketKey(marketID), amount)
}

// WithdrawTo implements vusd.CustodyGateway. Collateral leaves the market and
// lands in the receiver's collateral account in full.
func (l *Ledger) WithdrawTo(receiver [20]byte, marketID string, amount *big.Int) (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger not configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, vusd.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	asset, ok := l.markets[strings.TrimSpace(marketID)]
	if !ok {
		return nil, fmt.Errorf("ledger: unknown custody market %q", marketID)
	}
	key := marketKey(marketID)
	held, err := l.load(key)
	if err != nil {
		return nil, err
	}
	if held.Cmp(amount) < 0 {
		return nil, fmt.Errorf("ledger: market %s holds %s, cannot release %s", marketID, held, amount)
	}
	if err := l.adjust(key, new(big.Int).Neg(amount)); err != nil {
		return nil, err
	}
	if err := l.adjust(collateralKey(receiver, asset), amount); err != nil {
		return nil, err
	}
	return new(big.Int).Set(amount), nil
}

// BalanceOf implements vusd.CustodyGateway.
func (l *Ledger) BalanceOf(marketID string) (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger not configured")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(marketKey(marketID))
}

// BaseAsset implements vusd.CustodyGateway.
func (l *Ledger) BaseAsset(marketID string) (string, error) {
	if l == nil {
		return "", fmt.Errorf("ledger not configured")
	}
	l.mu.Lock()
	asset, ok := l.markets[strings.TrimSpace(marketID)]
	l.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("ledger: unknown custody market %q", marketID)
	}
	return asset, nil
}

// Mint implements vusd.PeggedToken.
func (l *Ledger) Mint(receiver [20]byte, amount *big.Int) error {
	if l == nil {
		return fmt.Errorf("ledger not configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return vusd.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.adjust(tokenKey(receiver), amount); err != nil {
		return err
	}
	return l.adjust(tokenSupplyKey(), amount)
}

// BurnFrom implements vusd.PeggedToken.
func (l *Ledger) BurnFrom(owner [20]byte, amount *big.Int) error {
	if l == nil {
		return fmt.Errorf("ledger not configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return vusd.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := tokenKey(owner)
	balance, err := l.load(key)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("ledger: insufficient token balance to burn")
	}
	if err := l.adjust(key, new(big.Int).Neg(amount)); err != nil {
		return err
	}
	return l.adjust(tokenSupplyKey(), new(big.Int).Neg(amount))
}

// TotalSupply implements vusd.PeggedToken.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger not configured")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(tokenSupplyKey())
}

// TokenBalanceOf reports the pegged token balance held by an account.
func (l *Ledger) TokenBalanceOf(owner [20]byte) (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger not configured")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(tokenKey(owner))
}

func (l *Ledger) load(key []byte) (*big.Int, error) {
	if l.store == nil {
		return nil, fmt.Errorf("ledger storage not configured")
	}
	var stored storedBalance
	ok, err := l.store.KVGet(key, &stored)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(stored.Value) == "" {
		return big.NewInt(0), nil
	}
	value, parsed := new(big.Int).SetString(strings.TrimSpace(stored.Value), 10)
	if !parsed {
		return nil, fmt.Errorf("ledger: invalid stored balance %q", stored.Value)
	}
	return value, nil
}

func (l *Ledger) adjust(key []byte, delta *big.Int) error {
	balance, err := l.load(key)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(balance, delta)
	if next.Sign() < 0 {
		return fmt.Errorf("ledger: balance underflow")
	}
	if l.store == nil {
		return fmt.Errorf("ledger storage not configured")
	}
	return l.store.KVPut(key, storedBalance{Value: next.String()})
}

func collateralKey(owner [20]byte, asset string) []byte {
	return []byte("vusdd/ledger/collateral/" + strings.ToUpper(strings.TrimSpace(asset)) + "/" + hex.EncodeToString(owner[:]))
}

func marketKey(marketID string) []byte {
	return []byte("vusdd/ledger/market/" + strings.TrimSpace(marketID))
}

func tokenKey(owner [20]byte) []byte {
	return []byte("vusdd/ledger/token/" + hex.EncodeToString(owner[:]))
}

func tokenSupplyKey() []byte {
	return []byte("vusdd/ledger/token/supply")
}
