package audit

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vusd/core/events"
)

func TestSinkWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	sink := NewSink(Options{Path: path, MaxSizeMB: 1}, slog.Default())
	sink.now = func() time.Time { return time.Unix(1_700_000_000, 0).UTC() }
	t.Cleanup(func() { _ = sink.Close() })

	var caller, receiver [20]byte
	caller[19] = 0x01
	receiver[19] = 0x02
	sink.Emit(events.Minted{
		Asset:     "usdc",
		Caller:    caller,
		Receiver:  receiver,
		AmountIn:  big.NewInt(1_000_000),
		AmountOut: big.NewInt(998_000),
		Price:     big.NewInt(100_000_000),
		FeeBps:    20,
	})
	sink.Emit(events.ModulePaused{Module: "mint", Paused: true})
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit trail: %v", err)
	}
	defer func() { _ = file.Close() }()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Type != events.TypeMinted {
		t.Fatalf("first type = %q, want %q", entries[0].Type, events.TypeMinted)
	}
	if got := entries[0].Attributes["asset"]; got != "USDC" {
		t.Fatalf("asset attr = %q, want USDC", got)
	}
	if got := entries[0].Attributes["amountOut"]; got != "998000" {
		t.Fatalf("amountOut attr = %q, want 998000", got)
	}
	if !entries[0].Time.Equal(time.Unix(1_700_000_000, 0).UTC()) {
		t.Fatalf("timestamp = %s", entries[0].Time)
	}
	if entries[1].Type != events.TypeModulePaused {
		t.Fatalf("second type = %q, want %q", entries[1].Type, events.TypeModulePaused)
	}
}

func TestSinkWithoutPathLogsOnly(t *testing.T) {
	sink := NewSink(Options{}, slog.Default())
	sink.Emit(events.PolicyUpdated{Field: "feeBps", Previous: "0", Updated: "25"})
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestSinkIgnoresNilEvents(t *testing.T) {
	var sink *Sink
	sink.Emit(nil)
	sink = NewSink(Options{}, nil)
	sink.Emit(nil)
}
