package observability

import (
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

	// Watcher metrics
	WatcherEventsTotal *prometheus.CounterVec
	WatcherErrorsTotal prometheus.Counter

	// Indexer metrics
	IndexerPendingChanges    prometheus.Gauge
	IndexBatchApplyDuration  prometheus.Histogram
	IndexRetriesTotal        prometheus.Counter
	IndexDroppedChangesTotal prometheus.Counter

	// Index metrics
	IndexEntries      *prometheus.GaugeVec
	IndexSizeBytes    prometheus.Gauge
	IndexPersistTotal *prometheus.CounterVec

	// Search metrics
	SearchRequestsTotal    *prometheus.CounterVec
	SearchDuration         *prometheus.HistogramVec
	SearchResults          prometheus.Histogram
	SearchCacheHitsTotal   prometheus.Counter
	SearchCacheMissesTotal prometheus.Counter

	// Search history metrics
	HistoryWritesTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scout_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scout_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scout_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		// Watcher metrics
		WatcherEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_watcher_events_total",
				Help: "Total number of watcher events after filtering and debouncing",
			},
			[]string{"kind"},
		),
		WatcherErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scout_watcher_errors_total",
				Help: "Total number of non-fatal watcher errors",
			},
		),

		// Indexer metrics
		IndexerPendingChanges: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "scout_indexer_pending_changes",
				Help: "Number of changes queued awaiting batch application",
			},
		),
		IndexBatchApplyDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scout_index_batch_apply_duration_seconds",
				Help:    "Batch application duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),
		IndexRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scout_index_retries_total",
				Help: "Total number of change applications retried after failure",
			},
		),
		IndexDroppedChangesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scout_index_dropped_changes_total",
				Help: "Total number of changes dropped after exhausting retries",
			},
		),

		// Index metrics
		IndexEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "scout_index_entries",
				Help: "Number of entries in the index by kind",
			},
			[]string{"kind"},
		),
		IndexSizeBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "scout_index_size_bytes",
				Help: "Total byte size of indexed files",
			},
		),
		IndexPersistTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_index_persist_total",
				Help: "Total number of snapshot writes",
			},
			[]string{"status"},
		),

		// Search metrics
		SearchRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_search_requests_total",
				Help: "Total number of search requests",
			},
			[]string{"mode"},
		),
		SearchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scout_search_duration_seconds",
				Help:    "Search duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"mode"},
		),
		SearchResults: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scout_search_results",
				Help:    "Number of results returned per search",
				Buckets: prometheus.ExponentialBuckets(1, 4, 6),
			},
		),
		SearchCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scout_search_cache_hits_total",
				Help: "Total number of search cache hits",
			},
		),
		SearchCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scout_search_cache_misses_total",
				Help: "Total number of search cache misses",
			},
		),

		// Search history metrics
		HistoryWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_history_writes_total",
				Help: "Total number of search history writes",
			},
			[]string{"status"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.WatcherEventsTotal,
		m.WatcherErrorsTotal,
		m.IndexerPendingChanges,
		m.IndexBatchApplyDuration,
		m.IndexRetriesTotal,
		m.IndexDroppedChangesTotal,
		m.IndexEntries,
		m.IndexSizeBytes,
		m.IndexPersistTotal,
		m.SearchRequestsTotal,
		m.SearchDuration,
		m.SearchResults,
		m.SearchCacheHitsTotal,
		m.SearchCacheMissesTotal,
		m.HistoryWritesTotal,
	)

	return m
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

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status and size
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			// Record request size
			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(r.ContentLength))
			}

			// Serve the request
			next.ServeHTTP(rw, r)

			// Record metrics
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
