package statements

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/buildledger/statements/internal/ledger"
)

// Metrics exposes Prometheus collectors for report runs.
type Metrics struct {
	records    *prometheus.CounterVec
	warnings   *prometheus.CounterVec
	mismatches *prometheus.CounterVec
	cache      *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers collectors against registerer, or the default registerer when nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	records := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "statements_records_ingested_total",
		Help: "Raw records normalized per source category.",
	}, []string{"category"})
	warnings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "statements_records_dropped_total",
		Help: "Raw records dropped during normalization per source category.",
	}, []string{"category"})
	mismatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "statements_reconciliation_mismatch_total",
		Help: "Reconciliation self-check failures per category.",
	}, []string{"category"})
	cache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "statements_cache_requests_total",
		Help: "Statement cache lookups partitioned by result.",
	}, []string{"kind", "result"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statements_build_duration_seconds",
		Help:    "Time spent fetching and reconciling a statement.",
		Buckets: prometheus.DefBuckets,
	}, []string{"party_type"})
	registerer.MustRegister(records, warnings, mismatches, cache, duration)
	return &Metrics{records: records, warnings: warnings, mismatches: mismatches, cache: cache, duration: duration}
}

func (m *Metrics) addRecords(category ledger.Category, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.records.WithLabelValues(string(category)).Add(float64(n))
}

func (m *Metrics) addDropped(category ledger.Category, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.warnings.WithLabelValues(string(category)).Add(float64(n))
}

func (m *Metrics) addMismatch(category ledger.Category) {
	if m == nil {
		return
	}
	m.mismatches.WithLabelValues(string(category)).Inc()
}

func (m *Metrics) cacheResult(kind string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cache.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) observeBuild(partyType string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(partyType).Observe(elapsed.Seconds())
}
