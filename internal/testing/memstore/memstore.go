// Package memstore is an in-memory implementation of every repository port,
// sharing one state so cross-module units of work can be exercised in tests.
// WithTx snapshots the state and restores it when the callback fails. Like
// PostgreSQL, a failed statement aborts the unit of work: later writes fail
// and the commit rolls back even when the caller swallowed the error.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/pharmaproc/internal/inventory"
	"github.com/odyssey-erp/pharmaproc/internal/numbering"
	"github.com/odyssey-erp/pharmaproc/internal/procurement"
	"github.com/odyssey-erp/pharmaproc/internal/qc"
	"github.com/odyssey-erp/pharmaproc/internal/shared"
	_ "github.com/odyssey-erp/pharmaproc/internal/testing/guard"
)

type txKey struct{}

// ErrTxAborted is returned for statements issued after a failed one and for
// the commit of such a unit of work.
var ErrTxAborted = errors.New("memstore: current transaction is aborted")

type txState struct {
	aborted error
}

func txFrom(ctx context.Context) *txState {
	tx, _ := ctx.Value(txKey{}).(*txState)
	return tx
}

type state struct {
	requisitions map[uuid.UUID]procurement.Requisition
	orders       map[uuid.UUID]procurement.PurchaseOrder
	receipts     map[uuid.UUID]procurement.GoodsReceipt
	invoices     map[uuid.UUID]procurement.Invoice
	payments     map[uuid.UUID]procurement.Payment

	materials       map[uuid.UUID]inventory.RawMaterial
	records         map[uuid.UUID]inventory.Record
	batches         map[uuid.UUID]inventory.Batch
	batchBySource   map[uuid.UUID]uuid.UUID
	inspections     map[uuid.UUID]qc.Inspection
	inspectionByKey map[uuid.UUID]uuid.UUID
	inspectors      map[uuid.UUID]qc.Inspector

	idempotency map[string]string
	approvals   []shared.ApprovalLog
	trash       []TrashEntry
}

func (s state) clone() state {
	return state{
		requisitions:    maps.Clone(s.requisitions),
		orders:          maps.Clone(s.orders),
		receipts:        maps.Clone(s.receipts),
		invoices:        maps.Clone(s.invoices),
		payments:        maps.Clone(s.payments),
		materials:       maps.Clone(s.materials),
		records:         maps.Clone(s.records),
		batches:         maps.Clone(s.batches),
		batchBySource:   maps.Clone(s.batchBySource),
		inspections:     maps.Clone(s.inspections),
		inspectionByKey: maps.Clone(s.inspectionByKey),
		inspectors:      maps.Clone(s.inspectors),
		idempotency:     maps.Clone(s.idempotency),
		approvals:       append([]shared.ApprovalLog(nil), s.approvals...),
		trash:           append([]TrashEntry(nil), s.trash...),
	}
}

// TrashEntry is an archived document.
type TrashEntry struct {
	Table string
	ID    uuid.UUID
	Data  any
}

// Store holds the in-memory state.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	st   state

	counters map[string]int64
	audit    []shared.AuditLog
	failures map[string]error
	commits  int

	// Now is used for generated numbers. Defaults to time.Now.
	Now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		st: state{
			requisitions:    map[uuid.UUID]procurement.Requisition{},
			orders:          map[uuid.UUID]procurement.PurchaseOrder{},
			receipts:        map[uuid.UUID]procurement.GoodsReceipt{},
			invoices:        map[uuid.UUID]procurement.Invoice{},
			payments:        map[uuid.UUID]procurement.Payment{},
			materials:       map[uuid.UUID]inventory.RawMaterial{},
			records:         map[uuid.UUID]inventory.Record{},
			batches:         map[uuid.UUID]inventory.Batch{},
			batchBySource:   map[uuid.UUID]uuid.UUID{},
			inspections:     map[uuid.UUID]qc.Inspection{},
			inspectionByKey: map[uuid.UUID]uuid.UUID{},
			inspectors:      map[uuid.UUID]qc.Inspector{},
			idempotency:     map[string]string{},
		},
		counters: map[string]int64{},
		failures: map[string]error{},
		Now:      time.Now,
	}
}

// FailOn makes the named operation return err until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) fault(op string) error {
	return s.failures[op]
}

// begin guards a write: it fails once the unit of work is aborted and
// aborts it when op has an injected failure.
func (s *Store) begin(ctx context.Context, op string) error {
	if tx := txFrom(ctx); tx != nil && tx.aborted != nil {
		return fmt.Errorf("%w: %s after %v", ErrTxAborted, op, tx.aborted)
	}
	if err := s.fault(op); err != nil {
		return s.abort(ctx, err)
	}
	return nil
}

// abort marks the unit of work in ctx as failed and returns err.
func (s *Store) abort(ctx context.Context, err error) error {
	if tx := txFrom(ctx); tx != nil && tx.aborted == nil {
		tx.aborted = err
	}
	return err
}

// Commits reports how many outermost units of work committed.
func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// WithTx runs fn against a snapshot-protected state. Nested calls join the
// outer unit of work.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, procurement.TxRepository) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx, s)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	tx := &txState{}
	err := fn(context.WithValue(ctx, txKey{}, tx), s)
	if err == nil && tx.aborted != nil {
		err = fmt.Errorf("memstore: commit: %w", ErrTxAborted)
	}
	if err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	s.mu.Lock()
	s.commits++
	s.mu.Unlock()
	return nil
}

// Next implements the document number sequencer.
func (s *Store) Next(_ context.Context, prefix string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("Next"); err != nil {
		return "", err
	}
	if _, ok := s.counters[prefix]; !ok {
		s.counters[prefix] = numbering.Seed(s.lastNumber(prefix))
	}
	s.counters[prefix]++
	return numbering.Format(prefix, s.Now(), s.counters[prefix]), nil
}

// lastNumber returns the newest stored number carrying prefix.
func (s *Store) lastNumber(prefix string) string {
	var (
		last   string
		lastAt time.Time
	)
	consider := func(number string, at time.Time) {
		if !strings.HasPrefix(number, prefix+"-") {
			return
		}
		if last == "" || at.After(lastAt) || (at.Equal(lastAt) && number > last) {
			last, lastAt = number, at
		}
	}
	switch prefix {
	case numbering.PrefixRequisition:
		for _, doc := range s.st.requisitions {
			consider(doc.Number, doc.CreatedAt)
		}
	case numbering.PrefixPurchaseOrder:
		for _, doc := range s.st.orders {
			consider(doc.Number, doc.CreatedAt)
		}
	case numbering.PrefixGRN:
		for _, doc := range s.st.receipts {
			consider(doc.Number, doc.CreatedAt)
		}
	case numbering.PrefixInvoice:
		for _, doc := range s.st.invoices {
			consider(doc.Number, doc.CreatedAt)
		}
	}
	return last
}

// CheckAndInsert implements the idempotency ledger.
func (s *Store) CheckAndInsert(ctx context.Context, key, module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "CheckAndInsert"); err != nil {
		return err
	}
	if _, ok := s.st.idempotency[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	s.st.idempotency[key] = module
	return nil
}

// HasKey reports whether an idempotency key is held.
func (s *Store) HasKey(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.st.idempotency[key]
	return ok
}

// Audit returns the audit port.
func (s *Store) Audit() *AuditLog { return &AuditLog{s: s} }

// Approvals returns the approval port.
func (s *Store) Approvals() *Approvals { return &Approvals{s: s} }

// AuditLog records audit entries. Entries are kept regardless of rollbacks,
// matching the pool-backed logger.
type AuditLog struct{ s *Store }

// Record appends an entry.
func (a *AuditLog) Record(_ context.Context, log shared.AuditLog) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	a.s.audit = append(a.s.audit, log)
	return nil
}

// Entries returns recorded entries.
func (a *AuditLog) Entries() []shared.AuditLog {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return append([]shared.AuditLog(nil), a.s.audit...)
}

// Approvals records approval history inside the unit of work.
type Approvals struct{ s *Store }

// Record appends an approval.
func (a *Approvals) Record(ctx context.Context, log shared.ApprovalLog) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if err := a.s.begin(ctx, "RecordApproval"); err != nil {
		return err
	}
	a.s.st.approvals = append(a.s.st.approvals, log)
	return nil
}

// List returns approvals of module and ref in insertion order.
func (a *Approvals) List(_ context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	var out []shared.ApprovalLog
	for _, log := range a.s.st.approvals {
		if log.Module == module && log.RefID == ref {
			out = append(out, log)
		}
	}
	return out, nil
}

// Entries returns approvals for ref.
func (a *Approvals) Entries(ref uuid.UUID) []shared.ApprovalLog {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	var out []shared.ApprovalLog
	for _, log := range a.s.st.approvals {
		if log.RefID == ref {
			out = append(out, log)
		}
	}
	return out
}

// Archive implements the trash port.
func (s *Store) Archive(ctx context.Context, table string, id uuid.UUID, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "Archive"); err != nil {
		return err
	}
	s.st.trash = append(s.st.trash, TrashEntry{Table: table, ID: id, Data: data})
	return nil
}

// Trash returns archived documents.
func (s *Store) Trash() []TrashEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TrashEntry(nil), s.st.trash...)
}

func missing(kind string, id uuid.UUID) error {
	return fmt.Errorf("%w: %s %s", shared.ErrNotFound, kind, id)
}
