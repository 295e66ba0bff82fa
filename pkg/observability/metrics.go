package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Billing metrics
	QuotesTotal      *prometheus.CounterVec
	TransitionsTotal *prometheus.CounterVec
	ChargesTotal     *prometheus.CounterVec
	ChargedAmount    *prometheus.CounterVec

	// Renewal metrics
	RenewalRunsTotal   *prometheus.CounterVec
	RenewalsTotal      *prometheus.CounterVec
	RenewalRunDuration prometheus.Histogram

	// Pricing cache metrics, sampled from cache stats
	CacheHits   *prometheus.GaugeVec
	CacheMisses *prometheus.GaugeVec

	// Database metrics
	DBConnectionsActive       prometheus.Gauge
	DBConnectionsIdle         prometheus.Gauge
	DBConnectionsWaitCount    prometheus.Gauge
	DBConnectionsWaitDuration prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passbill_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "passbill_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "passbill_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "passbill_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),
		QuotesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passbill_quotes_total",
				Help: "Total number of quote operations",
			},
			[]string{"operation", "result"},
		),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passbill_subscription_transitions_total",
				Help: "Total number of subscription transitions",
			},
			[]string{"transition", "result"},
		),
		ChargesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passbill_charges_total",
				Help: "Total number of collected charges",
			},
			[]string{"reason", "token"},
		),
		ChargedAmount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passbill_charged_amount_total",
				Help: "Sum of collected amounts in base units",
			},
			[]string{"reason", "token"},
		),
		RenewalRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passbill_renewal_runs_total",
				Help: "Total number of renewal runs",
			},
			[]string{"result"},
		),
		RenewalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passbill_renewals_total",
				Help: "Total number of subscriptions processed by renewal runs",
			},
			[]string{"result"},
		),
		RenewalRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "passbill_renewal_run_duration_seconds",
				Help:    "Renewal run duration in seconds",
				Buckets: []float64{.1, .5, 1, 5, 15, 60, 300},
			},
		),
		CacheHits: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "passbill_pricing_cache_hits",
				Help: "Pricing cache hits since start",
			},
			[]string{"cache"},
		),
		CacheMisses: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "passbill_pricing_cache_misses",
				Help: "Pricing cache misses since start",
			},
			[]string{"cache"},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "passbill_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "passbill_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "passbill_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
		DBConnectionsWaitDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "passbill_db_connections_wait_duration_seconds",
				Help: "Total time blocked waiting for connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.QuotesTotal,
		m.TransitionsTotal,
		m.ChargesTotal,
		m.ChargedAmount,
		m.RenewalRunsTotal,
		m.RenewalsTotal,
		m.RenewalRunDuration,
		m.CacheHits,
		m.CacheMisses,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.DBConnectionsWaitDuration,
	)

	return m
}

// RecordQuote counts a quote operation. Safe on a nil receiver.
func (m *Metrics) RecordQuote(operation, result string) {
	if m == nil {
		return
	}
	m.QuotesTotal.WithLabelValues(operation, result).Inc()
}

// RecordTransition counts a subscription transition. Safe on a nil receiver.
func (m *Metrics) RecordTransition(transition, result string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(transition, result).Inc()
}

// RecordCharge counts a collected charge and adds its amount. Safe on a nil receiver.
func (m *Metrics) RecordCharge(reason, token string, amount float64) {
	if m == nil {
		return
	}
	m.ChargesTotal.WithLabelValues(reason, token).Inc()
	if amount > 0 {
		m.ChargedAmount.WithLabelValues(reason, token).Add(amount)
	}
}

// RecordRenewalRun records the outcome of one renewal run
func (m *Metrics) RecordRenewalRun(renewed, failed int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RenewalRunsTotal.WithLabelValues(result).Inc()
	m.RenewalsTotal.WithLabelValues("renewed").Add(float64(renewed))
	m.RenewalsTotal.WithLabelValues("failed").Add(float64(failed))
	m.RenewalRunDuration.Observe(duration.Seconds())
}

// RecordCacheStats publishes a cache's cumulative hit and miss counts
func (m *Metrics) RecordCacheStats(cache string, hits, misses int64) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(cache).Set(float64(hits))
	m.CacheMisses.WithLabelValues(cache).Set(float64(misses))
}

// RecordDBStats publishes connection pool statistics
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
	m.DBConnectionsWaitDuration.Set(stats.WaitDuration.Seconds())
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// RouteFunc returns the label used for a request's path. It keeps label
// cardinality bounded when paths carry ids.
type RouteFunc func(r *http.Request) string

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// A nil route func labels requests with the raw URL path.
func HTTPMetricsMiddleware(metrics *Metrics, route RouteFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			// The route is only known once the router has matched the request.
			path := r.URL.Path
			if route != nil {
				if p := route(r); p != "" {
					path = p
				}
			}

			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, path).Observe(float64(r.ContentLength))
			}

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, path).Observe(float64(rw.bytesWritten))
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", MetricsHandler(registry))
}
