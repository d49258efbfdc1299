package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `pharmaproc_http_requests_total{code="418",route="/test"} 1`)
	require.Contains(t, body, `pharmaproc_http_request_duration_seconds_bucket{route="/test"`)
}

func TestTriggerCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.BatchQuarantined("grn", true)
	metrics.BatchQuarantined("grn", false)
	metrics.InspectionCreated("grn")
	metrics.UnmatchedItem("payment")
	metrics.Resolution("Passed")
	metrics.Posting("posted")

	body := scrape(t, metrics)
	for _, want := range []string{
		`pharmaproc_quarantine_batches_total{result="created",trigger="grn"} 1`,
		`pharmaproc_quarantine_batches_total{result="reused",trigger="grn"} 1`,
		`pharmaproc_inspections_created_total{source="grn"} 1`,
		`pharmaproc_unmatched_items_total{trigger="payment"} 1`,
		`pharmaproc_inspection_resolutions_total{verdict="Passed"} 1`,
		`pharmaproc_payment_postings_total{outcome="posted"} 1`,
	} {
		require.True(t, strings.Contains(body, want), "missing %s", want)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.BatchQuarantined("grn", true)
	metrics.Posting("posted")

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
