package metrics_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/governance-gate/internal/governance"
	"github.com/DeafMist/governance-gate/internal/metrics"
)

func TestWorkerMetricsObserveOutcome(t *testing.T) {
	m := metrics.NewWorkerMetrics("worker")
	engine := governance.NewEngine()

	m.ObserveOutcome(engine.Process(governance.Record{"news_summary": "fraud charges filed"}))
	m.ObserveOutcome(engine.Process(governance.Record{}))
	m.ObserveOutcome(governance.FailSafe(errors.New("boom")))
	m.ObserveDuplicate()
	m.ObserveDLQ(true)

	m.StartMessage()
	m.FinishMessage(10*time.Millisecond, nil)

	count, err := testutil.GatherAndCount(m.Registry(),
		"governance_worker_records_total",
		"governance_worker_restricted_term_hits_total",
		"governance_worker_fail_safe_total",
	)
	require.NoError(t, err)
	// CLEAN + QUARANTINE series, one term series, one fail-safe counter.
	require.Equal(t, 4, count)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, rec.Body.String(), `governance_worker_restricted_term_hits_total{service="worker",term="fraud"} 1`)
	require.Contains(t, rec.Body.String(), `governance_worker_records_total{service="worker",status="QUARANTINE"} 2`)
}

func TestWorkerMetricsDedupeEntries(t *testing.T) {
	m := metrics.NewWorkerMetrics("worker")
	m.SetDedupeEntries(7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, rec.Body.String(), `governance_worker_dedupe_entries{service="worker"} 7`)
}

func TestHTTPMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	m := metrics.NewHTTPMetrics("api")

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/records/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/records/abc", nil))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, rec.Body.String(), `governance_http_requests_total{code="418",method="GET",route="/records/{id}",service="api"} 1`)
}
