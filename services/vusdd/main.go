package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"vusd/native/vusd"
	"vusd/observability"
	"vusd/observability/logging"
	telemetry "vusd/observability/otel"
	"vusd/services/vusdd/adapters"
	"vusd/services/vusdd/audit"
	"vusd/services/vusdd/config"
	"vusd/services/vusdd/oracle"
	"vusd/services/vusdd/server"
	vusddstorage "vusd/services/vusdd/storage"
	corestore "vusd/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/vusdd/config.yaml", "path to vusdd configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("VUSD_ENV"))
	logger := logging.Setup("vusdd", env)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "vusdd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Enabled:     otlpEndpoint != "",
	})
	if err != nil {
		fatal(logger, "init telemetry", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatal(logger, "load config", err)
	}

	dsn, err := vusddstorage.FileDSN(cfg.DatabasePath)
	if err != nil {
		fatal(logger, "resolve storage DSN", err)
	}
	store, err := vusddstorage.Open(dsn)
	if err != nil {
		fatal(logger, "open storage", err)
	}
	defer store.Close()

	stateDB, err := corestore.NewLevelDB(cfg.StatePath)
	if err != nil {
		fatal(logger, "open state store", err)
	}
	defer stateDB.Close()
	kv := corestore.NewKVStore(stateDB)

	params, err := loadParameters(cfg.ParamsPath)
	if err != nil {
		fatal(logger, "load parameters", err)
	}

	ledger := adapters.NewLedger(kv)
	for _, asset := range params.Assets {
		if err := ledger.SetMarket(asset.CustodyMarket, asset.Symbol); err != nil {
			fatal(logger, "register custody market", err)
		}
	}

	feeds := oracle.NewFeedStore()
	engine := vusd.NewEngine(kv, feeds, ledger, ledger, ledger, newGovernorSet(cfg.Governors))

	auditSink := audit.NewSink(audit.Options{
		Path:       cfg.Audit.Path,
		MaxSizeMB:  cfg.Audit.MaxSizeMB,
		MaxBackups: cfg.Audit.MaxBackups,
		MaxAgeDays: cfg.Audit.MaxAgeDays,
	}, logger)
	defer auditSink.Close()
	engine.SetEmitter(observability.Events().CountingEmitter(auditSink))

	if err := engine.Bootstrap(params); err != nil {
		fatal(logger, "bootstrap engine", err)
	}

	registry := adapters.NewRegistry()
	sources := make([]oracle.Source, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		built, err := registry.Build(src.Name, src.Type, src.Endpoint, src.APIKey, src.Feeds)
		if err != nil {
			fatal(logger, "build oracle source", err)
		}
		sources = append(sources, built)
	}

	feedIDs := make([]string, 0, len(params.Assets))
	for _, asset := range params.Assets {
		feedIDs = append(feedIDs, asset.OracleFeed)
	}
	seedFeeds(context.Background(), store, feeds, feedIDs, cfg.Oracle.Decimals, cfg.Oracle.MaxAge.Duration, logger)

	mgr, err := oracle.New(store, feeds, sources, feedIDs,
		cfg.Oracle.Interval.Duration, cfg.Oracle.MaxAge.Duration,
		cfg.Oracle.MinSources, cfg.Oracle.Decimals,
		oracle.WithLogger(logger))
	if err != nil {
		fatal(logger, "oracle manager", err)
	}

	authenticator := server.NewAuthenticator(server.AuthConfig{
		Enabled:    cfg.Auth.Enabled,
		HMACSecret: cfg.Auth.HMACSecret,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ClockSkew:  cfg.Auth.ClockSkew.Duration,
	}, logger)
	limiter := server.NewRateLimiter(map[string]server.RateLimit{
		"convert": {RequestsPerMinute: cfg.RateLimits.ConvertPerMinute, Burst: cfg.RateLimits.Burst},
		"quote":   {RequestsPerMinute: cfg.RateLimits.QuotePerMinute, Burst: cfg.RateLimits.Burst},
	})

	srv, err := server.New(server.Config{ListenAddress: cfg.ListenAddress},
		engine, ledger, store, feeds, authenticator, limiter, logger)
	if err != nil {
		fatal(logger, "server", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := mgr.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("oracle manager exited", "error", err)
			stop()
		}
	}()

	if err := srv.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("http server error", "error", err)
		os.Exit(1)
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

func loadParameters(path string) (vusd.Parameters, error) {
	cfg, err := vusd.LoadConfig(path)
	if err != nil {
		return vusd.Parameters{}, err
	}
	return cfg.Parameters()
}

// newGovernorSet builds the engine authorizer from the configured addresses.
func newGovernorSet(governors []string) vusd.Authorizer {
	set := make(map[[20]byte]struct{}, len(governors))
	for _, raw := range governors {
		addr, err := parseGovernor(raw)
		if err != nil {
			continue
		}
		set[addr] = struct{}{}
	}
	return vusd.AuthorizerFunc(func(caller [20]byte) bool {
		_, ok := set[caller]
		return ok
	})
}

func parseGovernor(value string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(strings.ToLower(value)), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil || len(raw) != 20 {
		return out, errors.New("governor address must be 20 hex bytes")
	}
	copy(out[:], raw)
	return out, nil
}

// seedFeeds restores the last persisted aggregate for each feed so quotes can
// be served immediately after a restart, as long as the snapshot is still
// inside the freshness window.
func seedFeeds(ctx context.Context, store *vusddstorage.Storage, feeds *oracle.FeedStore, feedIDs []string, decimals uint8, maxAge time.Duration, logger *slog.Logger) {
	for _, feed := range feedIDs {
		snapshot, err := store.LatestSnapshot(ctx, feed)
		if err != nil {
			continue
		}
		observedAt := time.Unix(snapshot.ObservedAtUnix, 0).UTC()
		if maxAge > 0 && time.Since(observedAt) > maxAge {
			continue
		}
		if feeds.Seed(feed, snapshot.MedianPrice, decimals, observedAt) {
			logger.Info("restored oracle snapshot", "feed", feed, "observed_at", observedAt)
		}
	}
}
