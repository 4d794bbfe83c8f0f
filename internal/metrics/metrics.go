// Package metrics provides Prometheus instrumentation for the risk engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BatchesTotal counts finished batches, partitioned by terminal status.
	BatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_batches_total",
		Help: "Total number of batch calculations by terminal status",
	}, []string{"status"})

	// BatchDuration tracks end-to-end batch calculation duration.
	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "risk_batch_duration_seconds",
		Help:    "Batch calculation duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	// ExposureFailures counts per-exposure failures by error kind.
	ExposureFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_exposure_failures_total",
		Help: "Per-exposure pipeline failures by kind",
	}, []string{"kind"})

	// ExposuresProcessed counts exposures that made it through the pipeline.
	ExposuresProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "risk_exposures_processed_total",
		Help: "Exposures successfully classified, converted and netted",
	})

	// RateCacheHits counts exchange-rate cache hits.
	RateCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "risk_rate_cache_hits_total",
		Help: "Exchange rate cache hits",
	})

	// RateCacheMisses counts exchange-rate cache misses.
	RateCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "risk_rate_cache_misses_total",
		Help: "Exchange rate cache misses",
	})

	// RateProviderLatency tracks external rate provider call latency.
	RateProviderLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "risk_rate_provider_latency_seconds",
		Help:    "External exchange rate provider call latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// RateProviderRetries counts retried provider attempts.
	RateProviderRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "risk_rate_provider_retries_total",
		Help: "Retried exchange rate provider attempts",
	})

	// ParameterConflicts counts optimistic-concurrency conflicts on risk
	// parameter writes.
	ParameterConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "risk_parameter_conflicts_total",
		Help: "Risk parameter writes rejected by version check",
	})

	// ActiveBatches tracks batches currently in PROCESSING.
	ActiveBatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "risk_active_batches",
		Help: "Batches currently being processed",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "risk_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
