// Package server exposes the conversion engine over HTTP: public quote and
// conversion endpoints, read-only views, and scope-guarded governance.
package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"vusd/native/vusd"
	"vusd/services/vusdd/adapters"
	"vusd/services/vusdd/oracle"
	"vusd/services/vusdd/storage"
)

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
}

// Server hosts the vusdd HTTP API.
type Server struct {
	cfg     Config
	engine  *vusd.Engine
	ledger  *adapters.Ledger
	storage *storage.Storage
	feeds   *oracle.FeedStore
	logger  *slog.Logger
	auth    *Authenticator
	limits  *RateLimiter
	now     func() time.Time
}

// New constructs a server over the supplied runtime components.
func New(cfg Config, engine *vusd.Engine, ledger *adapters.Ledger, store *storage.Storage, feeds *oracle.FeedStore, auth *Authenticator, limits *RateLimiter, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine required")
	}
	if store == nil {
		return nil, fmt.Errorf("storage required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":7180"
	}
	return &Server{
		cfg:     cfg,
		engine:  engine,
		ledger:  ledger,
		storage: store,
		feeds:   feeds,
		logger:  logger,
		auth:    auth,
		limits:  limits,
		now:     time.Now,
	}, nil
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Method(http.MethodGet, "/healthz", otelhttp.NewHandler(http.HandlerFunc(s.handleHealth), "vusdd.health"))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(public chi.Router) {
			public.Use(s.limit("quote"))
			public.Get("/assets", s.handleAssets)
			public.Get("/supply", s.handleSupply)
			public.Get("/collateral/{asset}", s.handleCollateral)
			public.Get("/prices", s.handlePrice)
			public.Post("/quotes/mint", s.handleQuoteMint)
			public.Post("/quotes/redeem", s.handleQuoteRedeem)
			public.Get("/receipts", s.handleRecentReceipts)
			public.Get("/receipts/{id}", s.handleReceipt)
			public.Get("/balances/{address}", s.handleBalances)
		})
		v1.Group(func(convert chi.Router) {
			convert.Use(s.limit("convert"))
			convert.Post("/mint", s.handleMint)
			convert.Post("/redeem", s.handleRedeem)
		})
		v1.Route("/admin", func(admin chi.Router) {
			admin.Use(s.requireScope(ScopeGovern))
			admin.Post("/deposits", s.handleDeposit)
			admin.Put("/fee", s.handleSetFee)
			admin.Put("/tolerance", s.handleSetTolerance)
			admin.Put("/ceiling", s.handleSetCeiling)
			admin.Post("/assets", s.handleAddAsset)
			admin.Delete("/assets/{symbol}", s.handleRemoveAsset)
			admin.Put("/assets/{symbol}/stale-window", s.handleSetStaleWindow)
			admin.Post("/pause", s.handleSetPaused)
			admin.Get("/governance", s.handleGovernanceTrail)
		})
	})

	return otelhttp.NewHandler(r, "vusdd.http")
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server not configured")
	}
	srv := &http.Server{Addr: s.cfg.ListenAddress, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", "address", s.cfg.ListenAddress)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) limit(key string) func(http.Handler) http.Handler {
	if s.limits == nil {
		return passthrough
	}
	return s.limits.Middleware(key)
}

func (s *Server) requireScope(scopes ...string) func(http.Handler) http.Handler {
	if s.auth == nil {
		return passthrough
	}
	return s.auth.Middleware(scopes...)
}

func passthrough(next http.Handler) http.Handler { return next }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeEngineError maps the engine error taxonomy onto HTTP status codes.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch vusd.Classify(err) {
	case vusd.ClassValidation:
		status = http.StatusBadRequest
	case vusd.ClassAuthorization:
		status = http.StatusForbidden
	case vusd.ClassSlippage, vusd.ClassCapacity:
		status = http.StatusConflict
	case vusd.ClassState:
		if errors.Is(err, vusd.ErrAssetNotFound) {
			status = http.StatusNotFound
		} else {
			status = http.StatusConflict
		}
	case vusd.ClassPrice, vusd.ClassUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"class": string(vusd.Classify(err)),
	})
}

func parseAddress(value string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil || len(raw) != 20 {
		return out, fmt.Errorf("invalid address %q", value)
	}
	copy(out[:], raw)
	return out, nil
}

func formatAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}
