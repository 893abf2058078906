package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"vusd/native/vusd"
	"vusd/services/vusdd/storage"
)

type governedRequest struct {
	Caller string `json:"caller"`
	Bps    uint64 `json:"bps"`
	Value  string `json:"value"`
}

func (s *Server) handleSetFee(w http.ResponseWriter, r *http.Request) {
	var req governedRequest
	caller, ok := s.decodeGoverned(w, r, &req)
	if !ok {
		return
	}
	if err := s.engine.SetFee(caller, req.Bps); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.recordGovernance(r, req.Caller, "set_fee", "", strconv.FormatUint(req.Bps, 10))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetTolerance(w http.ResponseWriter, r *http.Request) {
	var req governedRequest
	caller, ok := s.decodeGoverned(w, r, &req)
	if !ok {
		return
	}
	if err := s.engine.SetPriceTolerance(caller, req.Bps); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.recordGovernance(r, req.Caller, "set_tolerance", "", strconv.FormatUint(req.Bps, 10))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetCeiling(w http.ResponseWriter, r *http.Request) {
	var req governedRequest
	caller, ok := s.decodeGoverned(w, r, &req)
	if !ok {
		return
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.engine.SetSupplyCeiling(caller, value); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.recordGovernance(r, req.Caller, "set_ceiling", "", value.String())
	w.WriteHeader(http.StatusNoContent)
}

type addAssetRequest struct {
	Caller             string `json:"caller"`
	Symbol             string `json:"symbol"`
	Decimals           uint8  `json:"decimals"`
	OracleFeed         string `json:"oracle_feed"`
	CustodyMarket      string `json:"custody_market"`
	StaleWindowSeconds int64  `json:"stale_window_seconds"`
}

func (s *Server) handleAddAsset(w http.ResponseWriter, r *http.Request) {
	var req addAssetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	// The custody ledger must know the market before the registry validates
	// its base asset.
	if s.ledger != nil {
		if err := s.ledger.SetMarket(req.CustodyMarket, req.Symbol); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}
	entry := vusd.AssetEntry{
		Symbol:        req.Symbol,
		Decimals:      req.Decimals,
		OracleFeed:    req.OracleFeed,
		CustodyMarket: req.CustodyMarket,
		StaleWindow:   time.Duration(req.StaleWindowSeconds) * time.Second,
	}
	if err := s.engine.AddAsset(caller, entry); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.recordGovernance(r, req.Caller, "add_asset", strings.ToUpper(strings.TrimSpace(req.Symbol)), "")
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleRemoveAsset(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	var req governedRequest
	caller, ok := s.decodeGoverned(w, r, &req)
	if !ok {
		return
	}
	if err := s.engine.RemoveAsset(caller, symbol); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.recordGovernance(r, req.Caller, "remove_asset", strings.ToUpper(strings.TrimSpace(symbol)), "")
	w.WriteHeader(http.StatusNoContent)
}

type staleWindowRequest struct {
	Caller        string `json:"caller"`
	WindowSeconds int64  `json:"window_seconds"`
}

func (s *Server) handleSetStaleWindow(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	var req staleWindowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	window := time.Duration(req.WindowSeconds) * time.Second
	if err := s.engine.SetStaleWindow(caller, symbol, window); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.recordGovernance(r, req.Caller, "set_stale_window", strings.ToUpper(strings.TrimSpace(symbol)), window.String())
	w.WriteHeader(http.StatusNoContent)
}

type pauseRequest struct {
	Caller string `json:"caller"`
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.engine.SetPaused(caller, req.Module, req.Paused); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.recordGovernance(r, req.Caller, "set_paused", strings.ToLower(strings.TrimSpace(req.Module)), strconv.FormatBool(req.Paused))
	w.WriteHeader(http.StatusNoContent)
}

type depositRequest struct {
	Owner  string `json:"owner"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// handleDeposit is how custodians acknowledge collateral received off-band.
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "ledger not configured"})
		return
	}
	var req depositRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	owner, err := parseAddress(req.Owner)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.ledger.Deposit(owner, req.Asset, amount); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.recordGovernance(r, req.Owner, "deposit", strings.ToUpper(strings.TrimSpace(req.Asset)), amount.String())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGovernanceTrail(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = parsed
	}
	trail, err := s.storage.GovernanceTrail(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "trail lookup failed"})
		return
	}
	payload := make([]map[string]any, 0, len(trail))
	for _, action := range trail {
		payload = append(payload, map[string]any{
			"actor":      action.Actor,
			"action":     action.Action,
			"target":     action.Target,
			"previous":   action.Previous,
			"updated":    action.Updated,
			"applied_at": action.AppliedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": payload})
}

func (s *Server) decodeGoverned(w http.ResponseWriter, r *http.Request, req *governedRequest) ([20]byte, bool) {
	if err := decodeJSON(r, req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return [20]byte{}, false
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return [20]byte{}, false
	}
	return caller, true
}

func (s *Server) recordGovernance(r *http.Request, actor, action, target, updated string) {
	err := s.storage.RecordGovernanceAction(r.Context(), storage.GovernanceAction{
		Actor:     strings.ToLower(strings.TrimSpace(actor)),
		Action:    action,
		Target:    target,
		Updated:   updated,
		AppliedAt: s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("record governance action failed", "action", action, "error", err)
	}
}
