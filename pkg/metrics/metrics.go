// Package metrics defines the Prometheus collectors recorded across the
// platform and the scrape endpoint they are served from.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the platform records. Each instance owns
// a private registry, so New can be called freely in tests and tools
// without duplicate-registration panics. Components accept a *Metrics
// and tolerate nil.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	ScansTotal       *prometheus.CounterVec
	ScanLatency      *prometheus.HistogramVec
	ScanMatchesCount prometheus.Histogram

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	PatternsRegisteredTotal *prometheus.CounterVec
	PatternsCompiledTotal   *prometheus.CounterVec
	SnapshotsTotal          *prometheus.CounterVec
	ShardPatternCount       *prometheus.GaugeVec
	ActiveShards            prometheus.Gauge

	KafkaPublishErrorsTotal prometheus.Counter
	CircuitBreakerState     *prometheus.GaugeVec
}

// New builds the collector set on a fresh registry, next to the standard
// process and Go runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	auto := promauto.With(reg)
	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: auto.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests served, by method, path, and status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Wall time spent serving each HTTP request.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: auto.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),

		ScansTotal: auto.NewCounterVec(prometheus.CounterOpts{
			Name: "scans_total",
			Help: "Scan requests, by outcome (matched, zero_match, error).",
		}, []string{"result_type"}),
		ScanLatency: auto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scan_latency_seconds",
			Help:    "Scan execution time, split by cache hit or miss.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"cache_status"}),
		ScanMatchesCount: auto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scan_matches_count",
			Help:    "Pattern matches returned per scan.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		}),

		CacheHitsTotal: auto.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Scan results answered from the Redis cache.",
		}),
		CacheMissesTotal: auto.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Scan requests that had to run against the shards.",
		}),

		PatternsRegisteredTotal: auto.NewCounterVec(prometheus.CounterOpts{
			Name: "patterns_registered_total",
			Help: "Pattern registrations, by result (accepted, duplicate, rejected).",
		}, []string{"result"}),
		PatternsCompiledTotal: auto.NewCounterVec(prometheus.CounterOpts{
			Name: "patterns_compiled_total",
			Help: "Pattern compilations in the registry, by status (compiled, failed).",
		}, []string{"status"}),
		SnapshotsTotal: auto.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_snapshots_total",
			Help: "Shard snapshot writes, by status.",
		}, []string{"status"}),
		ShardPatternCount: auto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shard_pattern_count",
			Help: "Compiled patterns held by each registry shard.",
		}, []string{"shard_id"}),
		ActiveShards: auto.NewGauge(prometheus.GaugeOpts{
			Name: "active_shards",
			Help: "Registry shards currently loaded.",
		}),

		KafkaPublishErrorsTotal: auto.NewCounter(prometheus.CounterOpts{
			Name: "kafka_publish_errors_total",
			Help: "Kafka publishes that failed after exhausting retries.",
		}),
		CircuitBreakerState: auto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"name"}),
	}
}

// Handler serves this instance's collectors at /metrics, with a hint at
// the root for anyone hitting the port by hand. Serve it on its own
// port so scrapes never compete with API traffic.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "quote matching platform metrics; scrape /metrics")
	})
	return mux
}
