package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vusd/native/vusd"
	"vusd/services/vusdd/adapters"
	"vusd/services/vusdd/oracle"
	vusddstorage "vusd/services/vusdd/storage"
	corestore "vusd/storage"
)

var governor = "0x00000000000000000000000000000000000000aa"

type fixture struct {
	server *Server
	ledger *adapters.Ledger
	feeds  *oracle.FeedStore
	engine *vusd.Engine
}

func newFixture(t *testing.T, auth *Authenticator, limits *RateLimiter) *fixture {
	t.Helper()
	kv := corestore.NewKVStore(corestore.NewMemDB())
	ledger := adapters.NewLedger(kv)
	if err := ledger.SetMarket("mm-usdc", "usdc"); err != nil {
		t.Fatalf("set market: %v", err)
	}
	feeds := oracle.NewFeedStore()
	feeds.Publish("usdc/usd", big.NewInt(100_000_000), 8, time.Now())

	gov, err := parseAddress(governor)
	if err != nil {
		t.Fatalf("parse governor: %v", err)
	}
	engine := vusd.NewEngine(kv, feeds, ledger, ledger, ledger, vusd.AuthorizerFunc(func(caller [20]byte) bool {
		return caller == gov
	}))
	if err := engine.AddAsset(gov, vusd.AssetEntry{
		Symbol:        "usdc",
		Decimals:      6,
		OracleFeed:    "usdc/usd",
		CustodyMarket: "mm-usdc",
		StaleWindow:   5 * time.Minute,
	}); err != nil {
		t.Fatalf("add asset: %v", err)
	}
	ceiling, _ := new(big.Int).SetString("1000000000000000000000000", 10)
	if err := engine.SetSupplyCeiling(gov, ceiling); err != nil {
		t.Fatalf("set ceiling: %v", err)
	}

	db, err := vusddstorage.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	srv, err := New(Config{ListenAddress: ":0"}, engine, ledger, db, feeds, auth, limits, slog.Default())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &fixture{server: srv, ledger: ledger, feeds: feeds, engine: engine}
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := make(map[string]any)
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	fx := newFixture(t, nil, nil)
	rec := fx.do(t, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decodeBody(t, rec)["status"]; got != "ok" {
		t.Fatalf("status field = %v, want ok", got)
	}
}

func TestAssetsAndSupply(t *testing.T) {
	fx := newFixture(t, nil, nil)

	rec := fx.do(t, http.MethodGet, "/v1/assets", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("assets status = %d, want 200", rec.Code)
	}
	assets := decodeBody(t, rec)["assets"].([]any)
	if len(assets) != 1 {
		t.Fatalf("assets = %d, want 1", len(assets))
	}
	first := assets[0].(map[string]any)
	if first["symbol"] != "USDC" {
		t.Fatalf("symbol = %v, want USDC", first["symbol"])
	}
	if first["stale_window_seconds"] != float64(300) {
		t.Fatalf("stale window = %v, want 300", first["stale_window_seconds"])
	}

	rec = fx.do(t, http.MethodGet, "/v1/supply", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("supply status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["current"] != "0" {
		t.Fatalf("current = %v, want 0", body["current"])
	}
	if body["ceiling"] != "1000000000000000000000000" {
		t.Fatalf("ceiling = %v", body["ceiling"])
	}
}

func TestPriceEndpoint(t *testing.T) {
	fx := newFixture(t, nil, nil)

	rec := fx.do(t, http.MethodGet, "/v1/prices?feed=usdc/usd", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["price"] != "100000000" {
		t.Fatalf("price = %v, want 100000000", body["price"])
	}
	if body["decimals"] != float64(8) {
		t.Fatalf("decimals = %v, want 8", body["decimals"])
	}

	rec = fx.do(t, http.MethodGet, "/v1/prices?feed=dai/usd", nil, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unknown feed status = %d, want 503", rec.Code)
	}
	rec = fx.do(t, http.MethodGet, "/v1/prices", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing feed status = %d, want 400", rec.Code)
	}
}

func TestQuoteMint(t *testing.T) {
	fx := newFixture(t, nil, nil)
	rec := fx.do(t, http.MethodPost, "/v1/quotes/mint", map[string]string{
		"asset":  "usdc",
		"amount": "1000000000", // 1000 USDC at 6 decimals
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["amount_out"] != "1000000000000000000000" {
		t.Fatalf("amount_out = %v, want 1000e18", body["amount_out"])
	}
}

func TestMintFlowWithReceipt(t *testing.T) {
	fx := newFixture(t, nil, nil)
	caller := "0x0000000000000000000000000000000000000001"
	addr, _ := parseAddress(caller)
	if err := fx.ledger.Deposit(addr, "usdc", big.NewInt(1_000_000_000)); err != nil {
		t.Fatalf("fund collateral: %v", err)
	}

	rec := fx.do(t, http.MethodPost, "/v1/mint", map[string]string{
		"caller": caller,
		"asset":  "usdc",
		"amount": "1000000000",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("mint status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["amount_out"] != "1000000000000000000000" {
		t.Fatalf("amount_out = %v, want 1000e18", body["amount_out"])
	}
	receiptID, _ := body["receipt_id"].(string)
	if receiptID == "" {
		t.Fatal("receipt id missing")
	}

	rec = fx.do(t, http.MethodGet, "/v1/receipts/"+receiptID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("receipt status = %d, want 200", rec.Code)
	}
	receipt := decodeBody(t, rec)
	if receipt["operation"] != "mint" {
		t.Fatalf("operation = %v, want mint", receipt["operation"])
	}
	if receipt["asset"] != "USDC" {
		t.Fatalf("asset = %v, want USDC", receipt["asset"])
	}
	if receipt["caller"] != caller {
		t.Fatalf("caller = %v, want %s", receipt["caller"], caller)
	}
	if receipt["price"] != "100000000" {
		t.Fatalf("price = %v, want 100000000", receipt["price"])
	}

	rec = fx.do(t, http.MethodGet, "/v1/balances/"+caller, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("balances status = %d, want 200", rec.Code)
	}
	balances := decodeBody(t, rec)
	if balances["token"] != "1000000000000000000000" {
		t.Fatalf("token balance = %v", balances["token"])
	}
	collateral := balances["collateral"].(map[string]any)
	if collateral["USDC"] != "0" {
		t.Fatalf("collateral = %v, want 0", collateral["USDC"])
	}

	rec = fx.do(t, http.MethodGet, "/v1/collateral/usdc", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("collateral status = %d", rec.Code)
	}
	if decodeBody(t, rec)["balance"] != "1000000000" {
		t.Fatalf("custody balance = %v, want 1000000000", decodeBody(t, rec)["balance"])
	}
}

func TestReceiptKeepsConversionPrice(t *testing.T) {
	fx := newFixture(t, nil, nil)
	caller := "0x0000000000000000000000000000000000000007"
	addr, _ := parseAddress(caller)
	if err := fx.ledger.Deposit(addr, "usdc", big.NewInt(1_000_000)); err != nil {
		t.Fatalf("fund collateral: %v", err)
	}

	rec := fx.do(t, http.MethodPost, "/v1/mint", map[string]string{
		"caller": caller,
		"asset":  "usdc",
		"amount": "1000000",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("mint status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	receiptID, _ := decodeBody(t, rec)["receipt_id"].(string)
	if receiptID == "" {
		t.Fatal("receipt id missing")
	}

	// A feed update after settlement must not rewrite what the conversion
	// was priced at.
	fx.feeds.Publish("usdc/usd", big.NewInt(100_500_000), 8, time.Now())

	rec = fx.do(t, http.MethodGet, "/v1/receipts/"+receiptID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("receipt status = %d, want 200", rec.Code)
	}
	if price := decodeBody(t, rec)["price"]; price != "100000000" {
		t.Fatalf("price = %v, want the settlement price 100000000", price)
	}
}

func TestRedeemFlow(t *testing.T) {
	fx := newFixture(t, nil, nil)
	caller := "0x0000000000000000000000000000000000000002"
	addr, _ := parseAddress(caller)
	if err := fx.ledger.Deposit(addr, "usdc", big.NewInt(500_000_000)); err != nil {
		t.Fatalf("fund collateral: %v", err)
	}
	rec := fx.do(t, http.MethodPost, "/v1/mint", map[string]string{
		"caller": caller,
		"asset":  "usdc",
		"amount": "500000000",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("mint status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = fx.do(t, http.MethodPost, "/v1/redeem", map[string]string{
		"caller": caller,
		"asset":  "usdc",
		"amount": "200000000000000000000", // 200 tokens
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("redeem status = %d: %s", rec.Code, rec.Body.String())
	}
	if decodeBody(t, rec)["amount_out"] != "200000000" {
		t.Fatalf("amount_out = %v, want 200000000", decodeBody(t, rec)["amount_out"])
	}

	rec = fx.do(t, http.MethodGet, "/v1/receipts?limit=10", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("receipts status = %d", rec.Code)
	}
	receipts := decodeBody(t, rec)["receipts"].([]any)
	if len(receipts) != 2 {
		t.Fatalf("receipts = %d, want 2", len(receipts))
	}
}

func TestConvertErrorMapping(t *testing.T) {
	fx := newFixture(t, nil, nil)
	caller := "0x0000000000000000000000000000000000000003"

	rec := fx.do(t, http.MethodPost, "/v1/mint", map[string]string{
		"caller": "nonsense",
		"asset":  "usdc",
		"amount": "1",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad address status = %d, want 400", rec.Code)
	}

	rec = fx.do(t, http.MethodPost, "/v1/mint", map[string]string{
		"caller": caller,
		"asset":  "dai",
		"amount": "1000000",
	}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown asset status = %d, want 404: %s", rec.Code, rec.Body.String())
	}

	rec = fx.do(t, http.MethodPost, "/v1/mint", map[string]string{
		"caller": caller,
		"asset":  "usdc",
		"amount": "-5",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative amount status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestPausedMintReturnsUnavailable(t *testing.T) {
	fx := newFixture(t, nil, nil)
	gov, _ := parseAddress(governor)
	if err := fx.engine.SetPaused(gov, vusd.ModuleMint, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	rec := fx.do(t, http.MethodPost, "/v1/mint", map[string]string{
		"caller": "0x0000000000000000000000000000000000000004",
		"asset":  "usdc",
		"amount": "1000000",
	}, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["class"] != "unavailable" {
		t.Fatalf("class = %v, want unavailable", body["class"])
	}
}

func TestAdminGovernanceFlow(t *testing.T) {
	fx := newFixture(t, nil, nil)

	rec := fx.do(t, http.MethodPut, "/v1/admin/fee", map[string]any{
		"caller": governor,
		"bps":    25,
	}, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("set fee status = %d, want 204: %s", rec.Code, rec.Body.String())
	}

	// Unauthorized governor is refused by the engine.
	rec = fx.do(t, http.MethodPut, "/v1/admin/fee", map[string]any{
		"caller": "0x0000000000000000000000000000000000000009",
		"bps":    30,
	}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unauthorized status = %d, want 403", rec.Code)
	}

	rec = fx.do(t, http.MethodPost, "/v1/admin/pause", map[string]any{
		"caller": governor,
		"module": "redeem",
		"paused": true,
	}, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("pause status = %d, want 204: %s", rec.Code, rec.Body.String())
	}

	rec = fx.do(t, http.MethodGet, "/v1/admin/governance", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("trail status = %d, want 200", rec.Code)
	}
	actions := decodeBody(t, rec)["actions"].([]any)
	if len(actions) != 2 {
		t.Fatalf("actions = %d, want 2", len(actions))
	}
}

func TestAdminAssetLifecycle(t *testing.T) {
	fx := newFixture(t, nil, nil)

	rec := fx.do(t, http.MethodPost, "/v1/admin/assets", map[string]any{
		"caller":               governor,
		"symbol":               "dai",
		"decimals":             18,
		"oracle_feed":          "dai/usd",
		"custody_market":       "mm-dai",
		"stale_window_seconds": 120,
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add asset status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	rec = fx.do(t, http.MethodPut, "/v1/admin/assets/dai/stale-window", map[string]any{
		"caller":         governor,
		"window_seconds": 60,
	}, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("stale window status = %d, want 204: %s", rec.Code, rec.Body.String())
	}

	rec = fx.do(t, http.MethodDelete, "/v1/admin/assets/dai", map[string]any{
		"caller": governor,
	}, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("remove status = %d, want 204: %s", rec.Code, rec.Body.String())
	}

	rec = fx.do(t, http.MethodDelete, "/v1/admin/assets/dai", map[string]any{
		"caller": governor,
	}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("double remove status = %d, want 404", rec.Code)
	}
}

func TestAdminDepositFundsCollateral(t *testing.T) {
	fx := newFixture(t, nil, nil)
	owner := "0x0000000000000000000000000000000000000005"

	rec := fx.do(t, http.MethodPost, "/v1/admin/deposits", map[string]any{
		"owner":  owner,
		"asset":  "usdc",
		"amount": "250000",
	}, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("deposit status = %d, want 204: %s", rec.Code, rec.Body.String())
	}

	addr, _ := parseAddress(owner)
	balance, err := fx.ledger.CollateralBalanceOf(addr, "usdc")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(250_000)) != 0 {
		t.Fatalf("balance = %s, want 250000", balance)
	}
}
