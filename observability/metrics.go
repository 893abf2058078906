package observability

import (
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	vusd "vusd/native/vusd"
)

var (
	conversionOnce sync.Once
	conversionReg  *ConversionMetrics

	oracleMetricsOnce sync.Once
	oracleRegistry    *OracleMetrics

	supplyMetricsOnce sync.Once
	supplyRegistry    *SupplyMetrics
)

// ConversionMetrics captures metrics for mint and redeem flows.
type ConversionMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

// Conversions returns the singleton metrics registry for conversion endpoints.
func Conversions() *ConversionMetrics {
	conversionOnce.Do(func() {
		conversionReg = &ConversionMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vusd",
				Subsystem: "conversion",
				Name:      "requests_total",
				Help:      "Count of conversion operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "vusd",
				Subsystem: "conversion",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for conversion operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vusd",
				Subsystem: "conversion",
				Name:      "errors_total",
				Help:      "Count of conversion failures segmented by operation and error class.",
			}, []string{"operation", "class"}),
		}
		prometheus.MustRegister(
			conversionReg.requests,
			conversionReg.latency,
			conversionReg.errors,
		)
	})
	return conversionReg
}

// Observe records the execution metrics for a conversion operation. Failures
// are bucketed by the engine's error taxonomy rather than the raw message so
// the cardinality stays bounded.
func (m *ConversionMetrics) Observe(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		m.errors.WithLabelValues(op, string(vusd.Classify(err))).Inc()
	}
	m.requests.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// OracleMetrics captures the health of the price aggregation pipeline.
type OracleMetrics struct {
	price        *prometheus.GaugeVec
	age          *prometheus.GaugeVec
	sourceErrors *prometheus.CounterVec
	quorumMisses *prometheus.CounterVec
}

// Oracle returns the singleton metrics registry for the price pipeline.
func Oracle() *OracleMetrics {
	oracleMetricsOnce.Do(func() {
		oracleRegistry = &OracleMetrics{
			price: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "vusd",
				Subsystem: "oracle",
				Name:      "price",
				Help:      "Latest aggregated price per feed, scaled to a float for dashboards.",
			}, []string{"feed"}),
			age: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "vusd",
				Subsystem: "oracle",
				Name:      "price_age_seconds",
				Help:      "Age of the latest aggregated price observation per feed.",
			}, []string{"feed"}),
			sourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vusd",
				Subsystem: "oracle",
				Name:      "source_errors_total",
				Help:      "Count of failed price source polls segmented by source.",
			}, []string{"source"}),
			quorumMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vusd",
				Subsystem: "oracle",
				Name:      "quorum_misses_total",
				Help:      "Count of aggregation rounds that failed to reach source quorum.",
			}, []string{"feed"}),
		}
		prometheus.MustRegister(
			oracleRegistry.price,
			oracleRegistry.age,
			oracleRegistry.sourceErrors,
			oracleRegistry.quorumMisses,
		)
	})
	return oracleRegistry
}

// RecordPrice publishes the latest aggregated observation for a feed.
func (m *OracleMetrics) RecordPrice(feed string, price *big.Int, decimals uint8, observedAt, now time.Time) {
	if m == nil || price == nil {
		return
	}
	feed = strings.TrimSpace(feed)
	if feed == "" {
		return
	}
	value, _ := new(big.Float).Quo(
		new(big.Float).SetInt(price),
		new(big.Float).SetFloat64(math.Pow10(int(decimals))),
	).Float64()
	m.price.WithLabelValues(feed).Set(value)
	m.age.WithLabelValues(feed).Set(now.Sub(observedAt).Seconds())
}

// RecordSourceError counts one failed poll against a source.
func (m *OracleMetrics) RecordSourceError(source string) {
	if m == nil {
		return
	}
	source = strings.TrimSpace(source)
	if source == "" {
		source = "unknown"
	}
	m.sourceErrors.WithLabelValues(source).Inc()
}

// RecordQuorumMiss counts one aggregation round that lacked quorum.
func (m *OracleMetrics) RecordQuorumMiss(feed string) {
	if m == nil {
		return
	}
	feed = strings.TrimSpace(feed)
	if feed == "" {
		feed = "unknown"
	}
	m.quorumMisses.WithLabelValues(feed).Inc()
}

// SupplyMetrics tracks the pegged supply ledger and custody balances.
type SupplyMetrics struct {
	supply     *prometheus.GaugeVec
	collateral *prometheus.GaugeVec
}

// Supply returns the singleton metrics registry for the supply ledger.
func Supply() *SupplyMetrics {
	supplyMetricsOnce.Do(func() {
		supplyRegistry = &SupplyMetrics{
			supply: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "vusd",
				Subsystem: "supply",
				Name:      "wei",
				Help:      "Pegged token supply figures segmented by kind (current, ceiling, headroom).",
			}, []string{"kind"}),
			collateral: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "vusd",
				Subsystem: "custody",
				Name:      "collateral_units",
				Help:      "Collateral held per custody market in native asset units.",
			}, []string{"market"}),
		}
		prometheus.MustRegister(supplyRegistry.supply, supplyRegistry.collateral)
	})
	return supplyRegistry
}

// RecordStatus publishes a supply snapshot.
func (m *SupplyMetrics) RecordStatus(status vusd.SupplyStatus) {
	if m == nil {
		return
	}
	m.supply.WithLabelValues("current").Set(bigToFloat(status.Current))
	m.supply.WithLabelValues("ceiling").Set(bigToFloat(status.Ceiling))
	m.supply.WithLabelValues("headroom").Set(bigToFloat(status.Headroom))
}

// RecordCollateral publishes the custody balance for a market.
func (m *SupplyMetrics) RecordCollateral(market string, balance *big.Int) {
	if m == nil || balance == nil {
		return
	}
	market = strings.TrimSpace(market)
	if market == "" {
		return
	}
	m.collateral.WithLabelValues(market).Set(bigToFloat(balance))
}

func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	out, _ := new(big.Float).SetInt(v).Float64()
	return out
}
