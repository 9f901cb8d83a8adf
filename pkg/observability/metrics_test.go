package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	t.Run("creates and registers all metrics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		if metrics == nil {
			t.Fatal("NewMetrics returned nil")
		}

		// Verify HTTP metrics are initialized
		if metrics.HTTPRequestsTotal == nil {
			t.Error("HTTPRequestsTotal is nil")
		}
		if metrics.HTTPRequestDuration == nil {
			t.Error("HTTPRequestDuration is nil")
		}
		if metrics.HTTPRequestSize == nil {
			t.Error("HTTPRequestSize is nil")
		}
		if metrics.HTTPResponseSize == nil {
			t.Error("HTTPResponseSize is nil")
		}

		// Verify watcher metrics are initialized
		if metrics.WatcherEventsTotal == nil {
			t.Error("WatcherEventsTotal is nil")
		}
		if metrics.WatcherErrorsTotal == nil {
			t.Error("WatcherErrorsTotal is nil")
		}

		// Verify indexer metrics are initialized
		if metrics.IndexerPendingChanges == nil {
			t.Error("IndexerPendingChanges is nil")
		}
		if metrics.IndexBatchApplyDuration == nil {
			t.Error("IndexBatchApplyDuration is nil")
		}
		if metrics.IndexRetriesTotal == nil {
			t.Error("IndexRetriesTotal is nil")
		}
		if metrics.IndexDroppedChangesTotal == nil {
			t.Error("IndexDroppedChangesTotal is nil")
		}

		// Verify index metrics are initialized
		if metrics.IndexEntries == nil {
			t.Error("IndexEntries is nil")
		}
		if metrics.IndexSizeBytes == nil {
			t.Error("IndexSizeBytes is nil")
		}
		if metrics.IndexPersistTotal == nil {
			t.Error("IndexPersistTotal is nil")
		}

		// Verify search metrics are initialized
		if metrics.SearchRequestsTotal == nil {
			t.Error("SearchRequestsTotal is nil")
		}
		if metrics.SearchDuration == nil {
			t.Error("SearchDuration is nil")
		}
		if metrics.SearchResults == nil {
			t.Error("SearchResults is nil")
		}
		if metrics.SearchCacheHitsTotal == nil {
			t.Error("SearchCacheHitsTotal is nil")
		}
		if metrics.SearchCacheMissesTotal == nil {
			t.Error("SearchCacheMissesTotal is nil")
		}
		if metrics.HistoryWritesTotal == nil {
			t.Error("HistoryWritesTotal is nil")
		}
	})

	t.Run("metrics are registered with registry", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		// Initialize some metrics to make them appear in Gather()
		metrics.HTTPRequestsTotal.WithLabelValues("GET", "/test", "200").Add(0)
		metrics.WatcherEventsTotal.WithLabelValues("add").Add(0)
		metrics.IndexEntries.WithLabelValues("file").Set(0)
		metrics.IndexPersistTotal.WithLabelValues("ok").Add(0)

		families, err := registry.Gather()
		if err != nil {
			t.Fatalf("Gather failed: %v", err)
		}

		names := make(map[string]bool)
		for _, f := range families {
			names[f.GetName()] = true
		}

		for _, want := range []string{
			"scout_http_requests_total",
			"scout_watcher_events_total",
			"scout_index_entries",
			"scout_index_persist_total",
		} {
			if !names[want] {
				t.Errorf("Metric %s not registered", want)
			}
		}
	})

	t.Run("duplicate registration panics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		NewMetrics(registry)

		defer func() {
			if r := recover(); r == nil {
				t.Error("Expected panic on duplicate registration")
			}
		}()
		NewMetrics(registry)
	})
}

func TestMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.WatcherEventsTotal.WithLabelValues("change").Inc()
	metrics.WatcherEventsTotal.WithLabelValues("change").Inc()
	metrics.WatcherEventsTotal.WithLabelValues("remove").Inc()

	if got := testutil.ToFloat64(metrics.WatcherEventsTotal.WithLabelValues("change")); got != 2 {
		t.Errorf("Expected 2 change events, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.WatcherEventsTotal.WithLabelValues("remove")); got != 1 {
		t.Errorf("Expected 1 remove event, got %v", got)
	}

	metrics.IndexRetriesTotal.Inc()
	metrics.IndexDroppedChangesTotal.Inc()
	if got := testutil.ToFloat64(metrics.IndexRetriesTotal); got != 1 {
		t.Errorf("Expected 1 retry, got %v", got)
	}

	metrics.IndexEntries.WithLabelValues("file").Set(42)
	metrics.IndexEntries.WithLabelValues("directory").Set(7)
	if got := testutil.ToFloat64(metrics.IndexEntries.WithLabelValues("file")); got != 42 {
		t.Errorf("Expected 42 file entries, got %v", got)
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	handler := HTTPMetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Millisecond)
		w.WriteHeader(http.StatusTeapot)
		io.WriteString(w, "short and stout")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/search", strings.NewReader("body"))
	req.ContentLength = 4
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Errorf("Expected status 418, got %d", rec.Code)
	}

	got := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/search", "418"))
	if got != 1 {
		t.Errorf("Expected request counted once, got %v", got)
	}
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.IndexSizeBytes.Set(1024)

	mux := http.NewServeMux()
	RegisterMetricsEndpoint(mux, registry)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from /metrics, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "scout_index_size_bytes 1024") {
		t.Errorf("Expected scout_index_size_bytes in exposition, got:\n%s", body)
	}
}
