package server

import (
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"vusd/native/vusd"
	"vusd/observability"
	"vusd/services/vusdd/storage"
)

type assetPayload struct {
	Symbol             string `json:"symbol"`
	Decimals           uint8  `json:"decimals"`
	OracleFeed         string `json:"oracle_feed"`
	CustodyMarket      string `json:"custody_market"`
	StaleWindowSeconds int64  `json:"stale_window_seconds"`
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.engine.Registry().Assets()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	payload := make([]assetPayload, 0, len(assets))
	for _, asset := range assets {
		payload = append(payload, assetPayload{
			Symbol:             asset.Symbol,
			Decimals:           asset.Decimals,
			OracleFeed:         asset.OracleFeed,
			CustodyMarket:      asset.CustodyMarket,
			StaleWindowSeconds: int64(asset.StaleWindow.Seconds()),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": payload})
}

func (s *Server) handleSupply(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.SupplyStatus()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	observability.Supply().RecordStatus(status)
	writeJSON(w, http.StatusOK, map[string]string{
		"current":  status.Current.String(),
		"ceiling":  status.Ceiling.String(),
		"headroom": status.Headroom.String(),
	})
}

func (s *Server) handleCollateral(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	balance, err := s.engine.CollateralBalance(asset)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":   strings.ToUpper(strings.TrimSpace(asset)),
		"balance": balance.String(),
	})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	feed := strings.TrimSpace(r.URL.Query().Get("feed"))
	if feed == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "feed query parameter required"})
		return
	}
	if s.feeds == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "oracle not running"})
		return
	}
	reading, err := s.feeds.LatestPrice(feed)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	payload := map[string]any{
		"feed":       strings.ToLower(feed),
		"price":      reading.Price.String(),
		"decimals":   reading.Decimals,
		"updated_at": reading.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if snapshot, err := s.storage.LatestSnapshot(r.Context(), feed); err == nil {
		payload["sources"] = snapshot.Sources
	}
	writeJSON(w, http.StatusOK, payload)
}

type quoteRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

func (s *Server) handleQuoteMint(w http.ResponseWriter, r *http.Request) {
	s.handleQuote(w, r, "mint")
}

func (s *Server) handleQuoteRedeem(w http.ResponseWriter, r *http.Request) {
	s.handleQuote(w, r, "redeem")
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request, operation string) {
	var req quoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var out interface{ String() string }
	switch operation {
	case "mint":
		out, err = s.engine.MintableAmount(req.Asset, amount)
	default:
		out, err = s.engine.RedeemableAmount(req.Asset, amount)
	}
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":      strings.ToUpper(strings.TrimSpace(req.Asset)),
		"amount_in":  amount.String(),
		"amount_out": out.String(),
	})
}

type convertRequest struct {
	Caller   string `json:"caller"`
	Receiver string `json:"receiver"`
	Asset    string `json:"asset"`
	Amount   string `json:"amount"`
	MinOut   string `json:"min_out"`
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	s.handleConvert(w, r, "mint")
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	s.handleConvert(w, r, "redeem")
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request, operation string) {
	var req convertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	receiver := caller
	if strings.TrimSpace(req.Receiver) != "" {
		if receiver, err = parseAddress(req.Receiver); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	// A missing min_out means the caller accepts whatever the engine computes.
	var minOut *big.Int
	if strings.TrimSpace(req.MinOut) != "" {
		if minOut, err = parseAmount(req.MinOut); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}

	started := s.now()
	var conv *vusd.Conversion
	switch operation {
	case "mint":
		conv, err = s.engine.Mint(caller, receiver, req.Asset, amount, minOut)
	default:
		conv, err = s.engine.Redeem(caller, receiver, req.Asset, amount, minOut)
	}
	observability.Conversions().Observe(operation, s.now().Sub(started), err)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	// The receipt records the settlement the engine reported, including the
	// oracle price it actually converted at.
	receipt := storage.Receipt{
		Operation: operation,
		Asset:     conv.Asset,
		Caller:    formatAddress(caller),
		Receiver:  formatAddress(receiver),
		AmountIn:  conv.AmountIn.String(),
		AmountOut: conv.AmountOut.String(),
		Price:     conv.Price.String(),
		FeeBps:    conv.FeeBps,
		CreatedAt: s.now().UTC(),
	}
	id, err := s.storage.RecordReceipt(r.Context(), receipt)
	if err != nil {
		s.logger.Warn("record receipt failed", "operation", operation, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"receipt_id": id,
		"asset":      conv.Asset,
		"amount_in":  conv.AmountIn.String(),
		"amount_out": conv.AmountOut.String(),
	})
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	receipt, err := s.storage.GetReceipt(r.Context(), id)
	if err != nil {
		if err == storage.ErrReceiptNotFound {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "receipt not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "receipt lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, receiptPayload(receipt))
}

func (s *Server) handleRecentReceipts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = parsed
	}
	receipts, err := s.storage.RecentReceipts(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "receipt lookup failed"})
		return
	}
	payload := make([]map[string]any, 0, len(receipts))
	for _, receipt := range receipts {
		payload = append(payload, receiptPayload(receipt))
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipts": payload})
}

func receiptPayload(receipt storage.Receipt) map[string]any {
	return map[string]any{
		"id":         receipt.ID,
		"operation":  receipt.Operation,
		"asset":      receipt.Asset,
		"caller":     receipt.Caller,
		"receiver":   receipt.Receiver,
		"amount_in":  receipt.AmountIn,
		"amount_out": receipt.AmountOut,
		"price":      receipt.Price,
		"fee_bps":    receipt.FeeBps,
		"created_at": receipt.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "ledger not configured"})
		return
	}
	address, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	token, err := s.ledger.TokenBalanceOf(address)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "balance lookup failed"})
		return
	}
	collateral := make(map[string]string)
	assets, err := s.engine.Registry().Assets()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	for _, asset := range assets {
		balance, err := s.ledger.CollateralBalanceOf(address, asset.Symbol)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "balance lookup failed"})
			return
		}
		collateral[asset.Symbol] = balance.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address":    formatAddress(address),
		"token":      token.String(),
		"collateral": collateral,
	})
}
