package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	batches         *prometheus.CounterVec
	inspections     *prometheus.CounterVec
	unmatched       *prometheus.CounterVec
	resolutions     *prometheus.CounterVec
	postings        *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry, metrik HTTP dan metrik trigger QC.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pharmaproc_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pharmaproc_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	batches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pharmaproc_quarantine_batches_total",
		Help: "Batch karantina per trigger, dibuat baru atau dipakai ulang.",
	}, []string{"trigger", "result"})
	inspections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pharmaproc_inspections_created_total",
		Help: "Inspeksi QC yang dibuat per sumber.",
	}, []string{"source"})
	unmatched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pharmaproc_unmatched_items_total",
		Help: "Item yang dilewati karena tidak cocok dengan bahan baku.",
	}, []string{"trigger"})
	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pharmaproc_inspection_resolutions_total",
		Help: "Keputusan inspeksi QC per hasil.",
	}, []string{"verdict"})
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pharmaproc_payment_postings_total",
		Help: "Posting stok dari pembayaran per hasil.",
	}, []string{"outcome"})
	registry.MustRegister(requests, duration, batches, inspections, unmatched, resolutions, postings)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		batches:         batches,
		inspections:     inspections,
		unmatched:       unmatched,
		resolutions:     resolutions,
		postings:        postings,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// BatchQuarantined mencatat batch karantina dari trigger.
func (m *Metrics) BatchQuarantined(trigger string, created bool) {
	if m == nil {
		return
	}
	result := "reused"
	if created {
		result = "created"
	}
	m.batches.WithLabelValues(trigger, result).Inc()
}

// InspectionCreated mencatat inspeksi baru.
func (m *Metrics) InspectionCreated(source string) {
	if m == nil {
		return
	}
	m.inspections.WithLabelValues(source).Inc()
}

// UnmatchedItem mencatat item yang tidak cocok.
func (m *Metrics) UnmatchedItem(trigger string) {
	if m == nil {
		return
	}
	m.unmatched.WithLabelValues(trigger).Inc()
}

// Resolution mencatat keputusan inspeksi.
func (m *Metrics) Resolution(verdict string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(verdict).Inc()
}

// Posting mencatat hasil posting pembayaran.
func (m *Metrics) Posting(outcome string) {
	if m == nil {
		return
	}
	m.postings.WithLabelValues(outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
