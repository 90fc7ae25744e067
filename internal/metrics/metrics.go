// Package metrics provides Prometheus metrics collection for the application.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values shared across counters.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Webhook ingest metrics
	WebhooksReceivedTotal  *prometheus.CounterVec
	WebhookProcessDuration prometheus.Histogram
	ChunksIngestedTotal    prometheus.Counter
	ChunksDedupedTotal     prometheus.Counter

	// Advice pipeline metrics
	AdviceCyclesTotal *prometheus.CounterVec
	ModelCallsTotal   *prometheus.CounterVec
	ModelCallDuration prometheus.Histogram
	ModelCooldowns    prometheus.Counter

	// Outbound call metrics
	CallsStartedTotal *prometheus.CounterVec

	// Live view metrics
	SocketsActive prometheus.Gauge

	// Rate limiting metrics
	RateLimitHitsTotal *prometheus.CounterVec

	// Registry used for this metrics instance (nil means default registry)
	registry prometheus.Gatherer
}

// NewMetrics creates a new Metrics instance with all collectors registered.
func NewMetrics() *Metrics {
	m := newMetricsWithRegistry(prometheus.DefaultRegisterer)
	m.registry = prometheus.DefaultGatherer
	return m
}

// NewMetricsWithRegistry creates metrics using a custom registry (for testing).
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	m := newMetricsWithRegistry(reg)
	m.registry = reg
	return m
}

func newMetricsWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scamshield_http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status code",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scamshield_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scamshield_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		WebhooksReceivedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scamshield_webhooks_received_total",
				Help: "Total number of provider webhooks by processing outcome",
			},
			[]string{"outcome"},
		),
		WebhookProcessDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scamshield_webhook_process_duration_seconds",
				Help:    "Webhook processing duration in seconds",
				Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		ChunksIngestedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scamshield_transcript_chunks_ingested_total",
				Help: "Total number of transcript chunks persisted",
			},
		),
		ChunksDedupedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scamshield_transcript_chunks_deduped_total",
				Help: "Total number of duplicate transcript chunks dropped",
			},
		),

		AdviceCyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scamshield_advice_cycles_total",
				Help: "Total number of advice recomputation cycles by source",
			},
			[]string{"source"}, // "heuristic", "model"
		),
		ModelCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scamshield_model_calls_total",
				Help: "Total number of model scorer calls by outcome",
			},
			[]string{"outcome"}, // "success", "failure", "rate_limited"
		),
		ModelCallDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scamshield_model_call_duration_seconds",
				Help:    "Model scorer call duration in seconds",
				Buckets: []float64{.25, .5, 1, 2, 4, 8, 16},
			},
		),
		ModelCooldowns: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scamshield_model_cooldowns_total",
				Help: "Total number of model rate-limit cooldowns entered",
			},
		),

		CallsStartedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scamshield_calls_started_total",
				Help: "Total number of outbound monitor calls by outcome",
			},
			[]string{"outcome"},
		),

		SocketsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scamshield_live_sockets_active",
				Help: "Number of live-view websocket connections currently open",
			},
		),

		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scamshield_rate_limit_hits_total",
				Help: "Total number of requests rejected by rate limiting",
			},
			[]string{"limiter"},
		),
	}
}

// Handler returns the Prometheus HTTP handler for scraping metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware returns an HTTP middleware that records request metrics.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := normalizePath(r.URL.Path)

		m.HTTPRequestsTotal.WithLabelValues(
			r.Method,
			path,
			strconv.Itoa(wrapped.statusCode),
		).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

// normalizePath keeps label cardinality bounded.
func normalizePath(path string) string {
	switch path {
	case "/", "/webhook", "/live", "/live/ws", "/call", "/phone", "/start",
		"/health", "/ready", "/healthz", "/metrics", "/admin/log-level":
		return path
	}
	return "other"
}

// Helper methods for recording specific events

// RecordWebhook records a processed webhook.
func (m *Metrics) RecordWebhook(outcome string, duration time.Duration) {
	m.WebhooksReceivedTotal.WithLabelValues(outcome).Inc()
	m.WebhookProcessDuration.Observe(duration.Seconds())
}

// RecordChunk records a transcript chunk insert attempt.
func (m *Metrics) RecordChunk(inserted bool) {
	if inserted {
		m.ChunksIngestedTotal.Inc()
	} else {
		m.ChunksDedupedTotal.Inc()
	}
}

// RecordAdviceCycle records one advice recomputation.
func (m *Metrics) RecordAdviceCycle(source string) {
	m.AdviceCyclesTotal.WithLabelValues(source).Inc()
}

// RecordModelCall records a model scorer call.
func (m *Metrics) RecordModelCall(success bool, duration time.Duration) {
	outcome := outcomeFailure
	if success {
		outcome = outcomeSuccess
	}
	m.ModelCallsTotal.WithLabelValues(outcome).Inc()
	m.ModelCallDuration.Observe(duration.Seconds())
}

// RecordModelRateLimited records a model call rejected upstream.
func (m *Metrics) RecordModelRateLimited() {
	m.ModelCallsTotal.WithLabelValues("rate_limited").Inc()
	m.ModelCooldowns.Inc()
}

// RecordCallStarted records an outbound dial attempt.
func (m *Metrics) RecordCallStarted(success bool) {
	outcome := outcomeFailure
	if success {
		outcome = outcomeSuccess
	}
	m.CallsStartedTotal.WithLabelValues(outcome).Inc()
}

// RecordRateLimitHit records a rate limit rejection.
func (m *Metrics) RecordRateLimitHit(limiter string) {
	m.RateLimitHitsTotal.WithLabelValues(limiter).Inc()
}

// SocketOpened tracks a new live-view websocket.
func (m *Metrics) SocketOpened() { m.SocketsActive.Inc() }

// SocketClosed tracks a closed live-view websocket.
func (m *Metrics) SocketClosed() { m.SocketsActive.Dec() }
