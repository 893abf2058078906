package events

import (
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const (
	// TypeMinted is emitted whenever collateral is converted into pegged tokens.
	TypeMinted = "vusd.minted"
	// TypeRedeemed is emitted whenever pegged tokens are burned for collateral.
	TypeRedeemed = "vusd.redeemed"
	// TypeAssetAdded marks a collateral asset joining the whitelist.
	TypeAssetAdded = "vusd.registry.asset_added"
	// TypeAssetRemoved marks a collateral asset leaving the whitelist.
	TypeAssetRemoved = "vusd.registry.asset_removed"
	// TypePolicyUpdated records a governance change to a conversion policy field.
	TypePolicyUpdated = "vusd.policy.updated"
	// TypeStaleWindowUpdated records a per-asset staleness window change.
	TypeStaleWindowUpdated = "vusd.registry.stale_window_updated"
	// TypeModulePaused records a pause switch change.
	TypeModulePaused = "vusd.module.paused"

	// SupplyReasonMint identifies mint driven supply increases.
	SupplyReasonMint = "mint"
	// SupplyReasonBurn identifies burn driven supply decreases.
	SupplyReasonBurn = "burn"
)

// Minted captures a completed mint conversion.
type Minted struct {
	Asset     string
	Caller    [20]byte
	Receiver  [20]byte
	AmountIn  *big.Int
	AmountOut *big.Int
	Price     *big.Int
	FeeBps    uint64
}

func (Minted) EventType() string { return TypeMinted }

// Attributes renders the structured mint event for downstream consumers.
func (e Minted) Attributes() map[string]string {
	return map[string]string{
		"asset":     strings.ToUpper(strings.TrimSpace(e.Asset)),
		"caller":    addressAttr(e.Caller),
		"receiver":  addressAttr(e.Receiver),
		"amountIn":  amountAttr(e.AmountIn),
		"amountOut": amountAttr(e.AmountOut),
		"price":     amountAttr(e.Price),
		"feeBps":    strconv.FormatUint(e.FeeBps, 10),
	}
}

// Redeemed captures a completed redeem conversion.
type Redeemed struct {
	Asset     string
	Caller    [20]byte
	Receiver  [20]byte
	AmountIn  *big.Int
	AmountOut *big.Int
	Price     *big.Int
	FeeBps    uint64
}

func (Redeemed) EventType() string { return TypeRedeemed }

// Attributes renders the structured redeem event for downstream consumers.
func (e Redeemed) Attributes() map[string]string {
	return map[string]string{
		"asset":     strings.ToUpper(strings.TrimSpace(e.Asset)),
		"caller":    addressAttr(e.Caller),
		"receiver":  addressAttr(e.Receiver),
		"amountIn":  amountAttr(e.AmountIn),
		"amountOut": amountAttr(e.AmountOut),
		"price":     amountAttr(e.Price),
		"feeBps":    strconv.FormatUint(e.FeeBps, 10),
	}
}

// AssetAdded marks a whitelist addition.
type AssetAdded struct {
	Asset         string
	Decimals      uint8
	OracleFeed    string
	CustodyMarket string
	StaleWindow   time.Duration
}

func (AssetAdded) EventType() string { return TypeAssetAdded }

func (e AssetAdded) Attributes() map[string]string {
	return map[string]string{
		"asset":         strings.ToUpper(strings.TrimSpace(e.Asset)),
		"decimals":      strconv.FormatUint(uint64(e.Decimals), 10),
		"oracleFeed":    strings.TrimSpace(e.OracleFeed),
		"custodyMarket": strings.TrimSpace(e.CustodyMarket),
		"staleWindow":   e.StaleWindow.String(),
	}
}

// AssetRemoved marks a whitelist removal. The custody balance left behind is
// intentionally not reported here; removal does not touch it.
type AssetRemoved struct {
	Asset string
}

func (AssetRemoved) EventType() string { return TypeAssetRemoved }

func (e AssetRemoved) Attributes() map[string]string {
	return map[string]string{
		"asset": strings.ToUpper(strings.TrimSpace(e.Asset)),
	}
}

// PolicyUpdated records a before/after change to a single policy field.
type PolicyUpdated struct {
	Field    string
	Previous string
	Updated  string
}

func (PolicyUpdated) EventType() string { return TypePolicyUpdated }

func (e PolicyUpdated) Attributes() map[string]string {
	return map[string]string{
		"field":    strings.TrimSpace(e.Field),
		"previous": strings.TrimSpace(e.Previous),
		"updated":  strings.TrimSpace(e.Updated),
	}
}

// StaleWindowUpdated records a per-asset staleness window change.
type StaleWindowUpdated struct {
	Asset    string
	Previous time.Duration
	Updated  time.Duration
}

func (StaleWindowUpdated) EventType() string { return TypeStaleWindowUpdated }

func (e StaleWindowUpdated) Attributes() map[string]string {
	return map[string]string{
		"asset":    strings.ToUpper(strings.TrimSpace(e.Asset)),
		"previous": e.Previous.String(),
		"updated":  e.Updated.String(),
	}
}

// ModulePaused records a pause switch transition.
type ModulePaused struct {
	Module string
	Paused bool
}

func (ModulePaused) EventType() string { return TypeModulePaused }

func (e ModulePaused) Attributes() map[string]string {
	return map[string]string{
		"module": strings.TrimSpace(e.Module),
		"paused": strconv.FormatBool(e.Paused),
	}
}

func amountAttr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func addressAttr(addr [20]byte) string {
	if addr == ([20]byte{}) {
		return ""
	}
	return "0x" + hex.EncodeToString(addr[:])
}
