package qc_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/pharmaproc/internal/integration"
	"github.com/odyssey-erp/pharmaproc/internal/inventory"
	"github.com/odyssey-erp/pharmaproc/internal/procurement"
	"github.com/odyssey-erp/pharmaproc/internal/qc"
	"github.com/odyssey-erp/pharmaproc/internal/testing/memstore"
)

type countingMetrics struct {
	mu          sync.Mutex
	batches     map[bool]int
	inspections int
	unmatched   int
	verdicts    map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{batches: map[bool]int{}, verdicts: map[string]int{}}
}

func (m *countingMetrics) BatchQuarantined(_ string, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[created]++
}

func (m *countingMetrics) InspectionCreated(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inspections++
}

func (m *countingMetrics) UnmatchedItem(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unmatched++
}

func (m *countingMetrics) Resolution(verdict string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verdicts[verdict]++
}

type recordingNotifier struct {
	calls [][2]uuid.UUID
	err   error
}

func (n *recordingNotifier) NotifyInspectionAssigned(_ context.Context, inspectionID, inspectorID uuid.UUID) error {
	n.calls = append(n.calls, [2]uuid.UUID{inspectionID, inspectorID})
	return n.err
}

type harness struct {
	store       *memstore.Store
	procurement *procurement.Service
	qc          *qc.Service
	resolver    *qc.Resolver
	metrics     *countingMetrics
	notifier    *recordingNotifier
}

func newHarness() harness {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	metrics := newCountingMetrics()
	notifier := &recordingNotifier{}
	stock := inventory.NewService(store, logger)
	trigger := qc.NewTrigger(stock, store, metrics, logger)
	resolver := qc.NewResolver(store, store, stock, metrics, logger)
	return harness{
		store: store,
		procurement: procurement.NewService(procurement.ServiceConfig{
			Repo:     store,
			Numbers:  store,
			Triggers: integration.NewHooks(trigger, nil, logger),
			Logger:   logger,
		}),
		qc: qc.NewService(qc.ServiceConfig{
			UnitOfWork: store,
			Repo:       store,
			Resolver:   resolver,
			Notifier:   notifier,
			Audit:      store.Audit(),
			Metrics:    metrics,
			Logger:     logger,
		}),
		resolver: resolver,
		metrics:  metrics,
		notifier: notifier,
	}
}

func qty(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func (h harness) receive(t *testing.T, qcRequired bool, items ...procurement.GRNItemInput) procurement.GoodsReceipt {
	t.Helper()
	grn, err := h.procurement.CreateGRN(context.Background(), procurement.GRNInput{
		GRNDate:           time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
		WarehouseLocation: "Cold Room 2",
		QCRequired:        qcRequired,
		Items:             items,
	})
	require.NoError(t, err)
	return grn
}

func (h harness) batchByID(t *testing.T, id uuid.UUID) inventory.Batch {
	t.Helper()
	for _, b := range h.store.Batches() {
		if b.ID == id {
			return b
		}
	}
	t.Fatalf("batch %s not found", id)
	return inventory.Batch{}
}
