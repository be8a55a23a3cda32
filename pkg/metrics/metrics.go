// Package metrics provides Prometheus instrumentation for bookrec.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Search status label values for SearchesTotal.
const (
	SearchHit   = "hit"
	SearchMiss  = "miss"
	SearchError = "error"
)

// Metrics holds all Prometheus metric collectors for bookrec.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	ActiveRequests    prometheus.Gauge
	SearchesTotal     *prometheus.CounterVec
	EmbeddingRequests *prometheus.CounterVec
	SkippedRecords    prometheus.Counter
	StageDuration     *prometheus.HistogramVec
	RateLimitWaits    prometheus.Counter

	registry *prometheus.Registry
}

// New creates and registers all bookrec metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	// Include default Go and process collectors
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookrec_requests_total",
				Help: "Total HTTP requests by endpoint and status code.",
			},
			[]string{"endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bookrec_request_duration_seconds",
				Help:    "HTTP request latency distribution.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"endpoint"},
		),
		ActiveRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bookrec_active_requests",
				Help: "Number of requests currently being processed.",
			},
		),
		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookrec_searches_total",
				Help: "Total searches by outcome (hit, miss, error).",
			},
			[]string{"status"},
		),
		EmbeddingRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookrec_embedding_requests_total",
				Help: "Total embedding provider calls by outcome (success, retryable, fatal).",
			},
			[]string{"outcome"},
		),
		SkippedRecords: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bookrec_skipped_records_total",
				Help: "Total retrieved records dropped for malformed or unknown identifiers.",
			},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bookrec_stage_duration_seconds",
				Help:    "Pipeline stage latency distribution.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"stage"},
		),
		RateLimitWaits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bookrec_rate_limit_waits_total",
				Help: "Total times an embedding call waited for rate limit headroom.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.SearchesTotal,
		m.EmbeddingRequests,
		m.SkippedRecords,
		m.StageDuration,
		m.RateLimitWaits,
	)

	return m
}

// Handler returns an http.Handler that serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records a completed request's metrics.
func (m *Metrics) RecordRequest(endpoint string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	m.RequestsTotal.WithLabelValues(endpoint, status).Inc()
	m.RequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordSearch counts one search by outcome.
func (m *Metrics) RecordSearch(status string) {
	m.SearchesTotal.WithLabelValues(status).Inc()
}

// RecordSearchStats records pipeline detail for one completed search.
func (m *Metrics) RecordSearchStats(skipped int, embedding, retrieval, total time.Duration) {
	m.SkippedRecords.Add(float64(skipped))
	m.StageDuration.WithLabelValues("embedding").Observe(embedding.Seconds())
	m.StageDuration.WithLabelValues("retrieval").Observe(retrieval.Seconds())
	m.StageDuration.WithLabelValues("total").Observe(total.Seconds())
}

// RecordEmbeddingOutcome counts one embedding provider call. Wire it to
// the rate-limited provider's OnOutcome callback.
func (m *Metrics) RecordEmbeddingOutcome(outcome string) {
	m.EmbeddingRequests.WithLabelValues(outcome).Inc()
}

// RecordRateLimitWait counts one wait for rate limit headroom. Wire it
// to the rate-limited provider's OnWait callback.
func (m *Metrics) RecordRateLimitWait() {
	m.RateLimitWaits.Inc()
}

// Middleware returns an HTTP middleware that instruments requests.
func (m *Metrics) Middleware(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.ActiveRequests.Inc()
		defer m.ActiveRequests.Dec()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rw, r)

		m.RecordRequest(endpoint, rw.statusCode, time.Since(start))
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the underlying writer so streaming endpoints keep
// working behind the middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
