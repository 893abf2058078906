package events

import (
	"math/big"
	"testing"
	"time"
)

func TestMintedAttributes(t *testing.T) {
	var caller, receiver [20]byte
	caller[19] = 0x01
	receiver[19] = 0x02
	evt := Minted{
		Asset:     " usdc ",
		Caller:    caller,
		Receiver:  receiver,
		AmountIn:  big.NewInt(1_000_000),
		AmountOut: big.NewInt(999),
		Price:     big.NewInt(100_000_000),
		FeeBps:    30,
	}
	if evt.EventType() != TypeMinted {
		t.Fatalf("unexpected type %q", evt.EventType())
	}
	attrs := evt.Attributes()
	if attrs["asset"] != "USDC" {
		t.Fatalf("asset not normalised: %q", attrs["asset"])
	}
	if attrs["caller"] != "0x0000000000000000000000000000000000000001" {
		t.Fatalf("caller mismatch: %q", attrs["caller"])
	}
	if attrs["amountIn"] != "1000000" || attrs["amountOut"] != "999" {
		t.Fatalf("amount mismatch: %q %q", attrs["amountIn"], attrs["amountOut"])
	}
	if attrs["feeBps"] != "30" {
		t.Fatalf("fee mismatch: %q", attrs["feeBps"])
	}
}

func TestNilAmountsRenderZero(t *testing.T) {
	attrs := Redeemed{Asset: "USDC"}.Attributes()
	for _, key := range []string{"amountIn", "amountOut", "price"} {
		if attrs[key] != "0" {
			t.Fatalf("%s: got %q", key, attrs[key])
		}
	}
}

func TestGovernanceEventAttributes(t *testing.T) {
	policy := PolicyUpdated{Field: "feeBps", Previous: "0", Updated: "25"}
	if policy.EventType() != TypePolicyUpdated {
		t.Fatalf("unexpected type %q", policy.EventType())
	}
	attrs := policy.Attributes()
	if attrs["field"] != "feeBps" || attrs["previous"] != "0" || attrs["updated"] != "25" {
		t.Fatalf("policy attrs mismatch: %v", attrs)
	}

	window := StaleWindowUpdated{Asset: "usdc", Previous: 5 * time.Minute, Updated: time.Minute}
	attrs = window.Attributes()
	if attrs["asset"] != "USDC" || attrs["previous"] != "5m0s" || attrs["updated"] != "1m0s" {
		t.Fatalf("window attrs mismatch: %v", attrs)
	}

	paused := ModulePaused{Module: "mint", Paused: true}
	attrs = paused.Attributes()
	if attrs["module"] != "mint" || attrs["paused"] != "true" {
		t.Fatalf("pause attrs mismatch: %v", attrs)
	}
}

func TestEmitterFunc(t *testing.T) {
	var got Event
	emitter := EmitterFunc(func(evt Event) { got = evt })
	emitter.Emit(AssetRemoved{Asset: "DAI"})
	if got == nil || got.EventType() != TypeAssetRemoved {
		t.Fatalf("emitter func did not forward: %v", got)
	}
	// The no-op emitter accepts anything without effect.
	NoopEmitter{}.Emit(AssetRemoved{Asset: "DAI"})
	var nilFn EmitterFunc
	nilFn.Emit(AssetRemoved{Asset: "DAI"})
}
