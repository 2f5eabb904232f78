package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	backendDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets        = []float64{100, 1024, 10240, 102400, 1048576}
	queriesPerListBuckets  = []float64{1, 2, 3, 5, 10, 20}
)

// Metrics holds all Prometheus metric instruments for the sales panel.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Panel operation metrics
	OperationsTotal    *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	ValidationFailures *prometheus.CounterVec

	// Search metrics
	SearchQueriesTotal   *prometheus.CounterVec
	SearchQueryDuration  *prometheus.HistogramVec
	SearchQueriesPerList prometheus.Histogram
	ResolutionsTotal     *prometheus.CounterVec
	UnsupportedVersions  *prometheus.CounterVec

	// Backend invocation metrics
	BackendRequestsTotal       *prometheus.CounterVec
	BackendRequestDuration     *prometheus.HistogramVec
	BackendCircuitBreakerState *prometheus.GaugeVec
	BackendRetriesTotal        *prometheus.CounterVec

	// Cache metrics
	CatalogCacheHitsTotal   *prometheus.CounterVec
	CatalogCacheMissesTotal *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salespanel_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "salespanel_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "salespanel_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "salespanel_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Operations
		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salespanel_operations_total",
			Help: "Total number of panel operations by envelope status.",
		}, []string{"operation", "status"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "salespanel_operation_duration_seconds",
			Help:    "Panel operation duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"operation"}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salespanel_validation_failures_total",
			Help: "Total number of rejected panel inputs.",
		}, []string{"operation"}),

		// Search
		SearchQueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salespanel_search_queries_total",
			Help: "Total number of search backend queries by kind (direct, probe, window).",
		}, []string{"kind"}),
		SearchQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "salespanel_search_query_duration_seconds",
			Help:    "Search backend query duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"kind"}),
		SearchQueriesPerList: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "salespanel_search_queries_per_listing",
			Help:    "Number of backend queries issued to serve one listing page.",
			Buckets: queriesPerListBuckets,
		}),
		ResolutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salespanel_status_resolutions_total",
			Help: "Total milestone resolutions by path and outcome.",
		}, []string{"path", "outcome"}),
		UnsupportedVersions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salespanel_unsupported_process_versions_total",
			Help: "Legacy resolutions skipped because the process version has no tree loader.",
		}, []string{"version"}),

		// Backend
		BackendRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salespanel_backend_requests_total",
			Help: "Total number of backend service requests.",
		}, []string{"service_id", "operation", "status"}),
		BackendRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "salespanel_backend_request_duration_seconds",
			Help:    "Backend request duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"service_id"}),
		BackendCircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "salespanel_backend_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"service_id"}),
		BackendRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salespanel_backend_retries_total",
			Help: "Total number of backend request retries.",
		}, []string{"service_id"}),

		// Cache
		CatalogCacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salespanel_catalog_cache_hits_total",
			Help: "Total status catalog cache hits.",
		}, []string{"cache"}),
		CatalogCacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salespanel_catalog_cache_misses_total",
			Help: "Total status catalog cache misses.",
		}, []string{"cache"}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Operations
		m.OperationsTotal,
		m.OperationDuration,
		m.ValidationFailures,
		// Search
		m.SearchQueriesTotal,
		m.SearchQueryDuration,
		m.SearchQueriesPerList,
		m.ResolutionsTotal,
		m.UnsupportedVersions,
		// Backend
		m.BackendRequestsTotal,
		m.BackendRequestDuration,
		m.BackendCircuitBreakerState,
		m.BackendRetriesTotal,
		// Cache
		m.CatalogCacheHitsTotal,
		m.CatalogCacheMissesTotal,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	if m == nil {
		return
	}
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordOperation records a completed panel operation and its envelope status.
func (m *Metrics) RecordOperation(operation string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordValidationFailure records a rejected panel input.
func (m *Metrics) RecordValidationFailure(operation string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(operation).Inc()
}

// RecordSearchQuery records one query sent to the search backend.
func (m *Metrics) RecordSearchQuery(kind string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues(kind).Inc()
	m.SearchQueryDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordListingQueries records how many backend queries one listing page took.
func (m *Metrics) RecordListingQueries(n int) {
	if m == nil {
		return
	}
	m.SearchQueriesPerList.Observe(float64(n))
}

// RecordResolution records a milestone resolution.
func (m *Metrics) RecordResolution(path, outcome string) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(path, outcome).Inc()
}

// RecordUnsupportedVersion records a legacy resolution skipped for lack of a
// tree loader.
func (m *Metrics) RecordUnsupportedVersion(version string) {
	if m == nil {
		return
	}
	m.UnsupportedVersions.WithLabelValues(version).Inc()
}

// RecordBackendRequest records a backend service request.
func (m *Metrics) RecordBackendRequest(serviceID, operation string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.BackendRequestsTotal.WithLabelValues(serviceID, operation, strconv.Itoa(status)).Inc()
	m.BackendRequestDuration.WithLabelValues(serviceID).Observe(duration.Seconds())
}

// SetBackendCircuitBreakerState sets the circuit breaker state for a service.
// State: 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetBackendCircuitBreakerState(serviceID string, state float64) {
	if m == nil {
		return
	}
	m.BackendCircuitBreakerState.WithLabelValues(serviceID).Set(state)
}

// RecordBackendRetry records a backend request retry.
func (m *Metrics) RecordBackendRetry(serviceID string) {
	if m == nil {
		return
	}
	m.BackendRetriesTotal.WithLabelValues(serviceID).Inc()
}

// RecordCatalogCacheHit records a status catalog cache hit.
func (m *Metrics) RecordCatalogCacheHit(cache string) {
	if m == nil {
		return
	}
	m.CatalogCacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCatalogCacheMiss records a status catalog cache miss.
func (m *Metrics) RecordCatalogCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CatalogCacheMissesTotal.WithLabelValues(cache).Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
