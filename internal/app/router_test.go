package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/pharmaproc/internal/observability"
	"github.com/odyssey-erp/pharmaproc/internal/procurement"
	"github.com/odyssey-erp/pharmaproc/internal/testing/memstore"
)

func TestRouterServesHealthAndMetrics(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:  &Config{AppEnv: "test"},
		Metrics: observability.NewMetrics(),
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	require.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "pharmaproc_http_requests_total")
}

func TestRouterRecordsActorHeader(t *testing.T) {
	store := memstore.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := procurement.NewService(procurement.ServiceConfig{
		Repo:    store,
		Numbers: store,
		Audit:   store.Audit(),
		Logger:  logger,
	})
	router := NewRouter(RouterParams{
		Logger:             logger,
		Config:             &Config{AppEnv: "test"},
		ProcurementHandler: procurement.NewHandler(logger, svc),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/requisitions", strings.NewReader(`{"requested_by":"Ayesha"}`))
	req.Header.Set(ActorHeader, "  buyer.01 ")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	entries := store.Audit().Entries()
	require.Len(t, entries, 1)
	require.Equal(t, "buyer.01", entries[0].Actor)
}
