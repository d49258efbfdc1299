package qc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/pharmaproc/internal/procurement"
	"github.com/odyssey-erp/pharmaproc/internal/shared"
)

// UnitOfWork opens procurement transactions that other repositories join.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(context.Context, procurement.TxRepository) error) error
}

// VerdictStore reads and updates inspections.
type VerdictStore interface {
	Get(ctx context.Context, id uuid.UUID) (Inspection, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, completedAt time.Time) error
}

// BatchVerdicts moves batches out of quarantine.
type BatchVerdicts interface {
	ApplyVerdict(ctx context.Context, batchID uuid.UUID, passed bool) error
}

// Resolver records inspection verdicts and propagates them to the goods
// receipt and the inspected batch.
type Resolver struct {
	uow     UnitOfWork
	store   VerdictStore
	batches BatchVerdicts
	metrics Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewResolver constructs Resolver. metrics may be nil.
func NewResolver(uow UnitOfWork, store VerdictStore, batches BatchVerdicts, metrics Metrics, logger *slog.Logger) *Resolver {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{uow: uow, store: store, batches: batches, metrics: metrics, logger: logger, now: time.Now}
}

// VerdictRemark is the goods receipt remark written for a verdict.
func VerdictRemark(verdict Status, at time.Time) string {
	return fmt.Sprintf("%s via RMQC updated at %s", verdict, at.UTC().Format(time.RFC3339))
}

// Resolve applies verdict to the inspection, its goods receipt and its batch
// in one unit of work. Resolving an already resolved inspection overwrites it.
func (r *Resolver) Resolve(ctx context.Context, id uuid.UUID, verdict Status) (Inspection, error) {
	if verdict != StatusPassed && verdict != StatusFailed {
		return Inspection{}, fmt.Errorf("%w: verdict must be Passed or Failed, got %q", ErrValidation, verdict)
	}
	var resolved Inspection
	err := r.uow.WithTx(ctx, func(ctx context.Context, tx procurement.TxRepository) error {
		insp, err := r.store.Get(ctx, id)
		if err != nil {
			return err
		}
		completedAt := r.now().UTC()
		if err := r.store.UpdateStatus(ctx, id, verdict, completedAt); err != nil {
			return err
		}
		if err := tx.SetGRNQCStatus(ctx, insp.GRNID, verdict, VerdictRemark(verdict, completedAt)); err != nil {
			return fmt.Errorf("qc: sync goods receipt: %w", err)
		}
		if insp.BatchID != nil {
			if err := r.batches.ApplyVerdict(ctx, *insp.BatchID, verdict == StatusPassed); err != nil {
				return fmt.Errorf("qc: sync batch: %w", err)
			}
		}
		insp.Status = verdict
		insp.CompletedAt = &completedAt
		resolved = insp
		return nil
	})
	if err != nil {
		return Inspection{}, shared.WrapTxError(err)
	}
	r.metrics.Resolution(string(verdict))
	r.logger.Info("inspection resolved",
		slog.String("inspection_id", id.String()),
		slog.String("grn_id", resolved.GRNID.String()),
		slog.String("verdict", string(verdict)))
	return resolved, nil
}

// Pass marks an inspection as passed.
func (r *Resolver) Pass(ctx context.Context, id uuid.UUID) (Inspection, error) {
	return r.Resolve(ctx, id, StatusPassed)
}

// Fail marks an inspection as failed.
func (r *Resolver) Fail(ctx context.Context, id uuid.UUID) (Inspection, error) {
	return r.Resolve(ctx, id, StatusFailed)
}
