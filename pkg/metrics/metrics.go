package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Upstream pricing API metrics
	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec
	UpstreamRetriesTotal    prometheus.Counter

	// Pipeline metrics
	SearchesTotal        *prometheus.CounterVec
	QuotaRejectedTotal   prometheus.Counter
	ProductsMonitored    *prometheus.CounterVec
	ObservationsRecorded prometheus.Counter
	ScoringRunsTotal     prometheus.Counter
	InsightsGenerated    prometheus.Counter

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets, // 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10
			},
			[]string{"method", "path", "status"},
		),
		HTTPResponseSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 5000, 10000, 50000, 100000, 500000, 1000000},
			},
			[]string{"method", "path"},
		),

		// Upstream metrics
		UpstreamRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upstream_requests_total",
				Help: "Total number of requests sent to the public price API",
			},
			[]string{"endpoint", "outcome"}, // ok, error
		),
		UpstreamRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upstream_request_duration_seconds",
				Help:    "Upstream request latency in seconds, per attempt",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"endpoint"},
		),
		UpstreamRetriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "upstream_retries_total",
			Help: "Total number of retried upstream attempts",
		}),

		// Pipeline metrics
		SearchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_searches_total",
				Help: "Total number of price searches served",
			},
			[]string{"action"}, // categories, products, fuel, snapshot
		),
		QuotaRejectedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quota_rejected_total",
			Help: "Total number of requests rejected by the per-caller quota",
		}),
		ProductsMonitored: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "products_monitored_total",
				Help: "Total number of products processed by monitoring passes",
			},
			[]string{"result"}, // ok, degraded
		),
		ObservationsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "price_observations_recorded_total",
			Help: "Total number of competitor price observations persisted",
		}),
		ScoringRunsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scoring_runs_total",
			Help: "Total number of aggressiveness scoring passes",
		}),
		InsightsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "insights_generated_total",
			Help: "Total number of AI insights generated",
		}),

		// Cache metrics
		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache"}, // search, dashboard
		),
		CacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),
	}

	return m
}

// Middleware creates an Echo middleware for Prometheus metrics
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			path := c.Path() // Use route pattern, not actual path (e.g., /api/v1/products/:id)

			err := next(c)

			status := c.Response().Status
			duration := time.Since(start).Seconds()

			m.HTTPRequestsTotal.WithLabelValues(req.Method, path, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(req.Method, path, strconv.Itoa(status)).Observe(duration)
			m.HTTPResponseSize.WithLabelValues(req.Method, path).Observe(float64(c.Response().Size))

			return err
		}
	}
}

// The Record helpers tolerate a nil receiver so services can run without a
// metrics registry in tests.

// RecordUpstreamRequest counts one upstream attempt and its latency
func (m *Metrics) RecordUpstreamRequest(endpoint string, ok bool, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "error"
	if ok {
		outcome = "ok"
	}
	m.UpstreamRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	m.UpstreamRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordUpstreamRetry counts one retried upstream attempt
func (m *Metrics) RecordUpstreamRetry() {
	if m == nil {
		return
	}
	m.UpstreamRetriesTotal.Inc()
}

// RecordSearch counts one served price search
func (m *Metrics) RecordSearch(action string) {
	if m == nil {
		return
	}
	m.SearchesTotal.WithLabelValues(action).Inc()
}

// RecordQuotaRejected counts one request rejected by the per-caller quota
func (m *Metrics) RecordQuotaRejected() {
	if m == nil {
		return
	}
	m.QuotaRejectedTotal.Inc()
}

// RecordProductMonitored counts one monitored product by result
func (m *Metrics) RecordProductMonitored(degraded bool) {
	if m == nil {
		return
	}
	result := "ok"
	if degraded {
		result = "degraded"
	}
	m.ProductsMonitored.WithLabelValues(result).Inc()
}

// RecordObservation counts one persisted price observation
func (m *Metrics) RecordObservation() {
	if m == nil {
		return
	}
	m.ObservationsRecorded.Inc()
}

// RecordScoringRun counts one completed scoring pass
func (m *Metrics) RecordScoringRun() {
	if m == nil {
		return
	}
	m.ScoringRunsTotal.Inc()
}

// RecordInsightGenerated counts one generated insight
func (m *Metrics) RecordInsightGenerated() {
	if m == nil {
		return
	}
	m.InsightsGenerated.Inc()
}

// RecordCacheHit increments cache hits counter
func (m *Metrics) RecordCacheHit(cache string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss increments cache misses counter
func (m *Metrics) RecordCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(cache).Inc()
}
