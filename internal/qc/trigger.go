package qc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/pharmaproc/internal/inventory"
	"github.com/odyssey-erp/pharmaproc/internal/procurement"
	"github.com/odyssey-erp/pharmaproc/internal/shared"
)

// Stock is the inventory surface used by triggers.
type Stock interface {
	MaterialByCode(ctx context.Context, code string) (inventory.RawMaterial, error)
	ReceiveIntoQuarantine(ctx context.Context, in inventory.QuarantineInput) (inventory.Batch, bool, error)
}

// InspectionWriter persists generated inspections.
type InspectionWriter interface {
	CreateInspection(ctx context.Context, in Inspection) (Inspection, bool, error)
	DeletePendingByGRN(ctx context.Context, grnID uuid.UUID) (int64, error)
}

// Metrics receives trigger and resolver counters.
type Metrics interface {
	BatchQuarantined(trigger string, created bool)
	InspectionCreated(trigger string)
	UnmatchedItem(trigger string)
	Resolution(verdict string)
}

type noopMetrics struct{}

func (noopMetrics) BatchQuarantined(string, bool) {}
func (noopMetrics) InspectionCreated(string)      {}
func (noopMetrics) UnmatchedItem(string)          {}
func (noopMetrics) Resolution(string)             {}

// TriggerName labels metrics emitted by the goods receipt trigger.
const TriggerName = "grn"

// GRNRef identifies the goods receipt inspections are generated for.
type GRNRef struct {
	ID                uuid.UUID
	Number            string
	WarehouseLocation string
	Urgency           procurement.Urgency
}

// GenerateResult summarises one trigger run.
type GenerateResult struct {
	Inspections []Inspection
	Batches     []inventory.Batch
	Unmatched   []string
	Suppressed  int
}

// Trigger places received items in quarantine and opens inspections for them.
type Trigger struct {
	stock    Stock
	writer   InspectionWriter
	metrics  Metrics
	logger   *slog.Logger
	now      func() time.Time
	sequence atomic.Int64
}

// NewTrigger constructs Trigger. metrics may be nil.
func NewTrigger(stock Stock, writer InspectionWriter, metrics Metrics, logger *slog.Logger) *Trigger {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Trigger{stock: stock, writer: writer, metrics: metrics, logger: logger, now: time.Now}
}

// HandleGRNQcRequired generates inspections for the receipt in evt inside the
// caller's unit of work. A regeneration that opens new inspections on a
// receipt already resolved puts the receipt back to Pending.
func (t *Trigger) HandleGRNQcRequired(ctx context.Context, tx procurement.TxRepository, evt procurement.GRNQcRequired) error {
	ref := GRNRef{
		ID:                evt.GRNID,
		Number:            evt.GRNNumber,
		WarehouseLocation: evt.WarehouseLocation,
		Urgency:           evt.Urgency,
	}
	if evt.Regenerate {
		removed, err := t.writer.DeletePendingByGRN(ctx, evt.GRNID)
		if err != nil {
			return fmt.Errorf("qc: drop pending inspections: %w", err)
		}
		t.logger.Info("pending inspections dropped for regeneration",
			slog.String("grn", evt.GRNNumber),
			slog.Int64("removed", removed))
	}
	result, err := t.GenerateInspections(ctx, ref, evt.Items)
	if err != nil {
		return err
	}
	if !evt.Regenerate || len(result.Inspections) == 0 || tx == nil {
		return nil
	}
	return t.reopen(ctx, tx, evt)
}

func (t *Trigger) reopen(ctx context.Context, tx procurement.TxRepository, evt procurement.GRNQcRequired) error {
	grn, err := tx.GetGRN(ctx, evt.GRNID)
	if err != nil {
		return fmt.Errorf("qc: load goods receipt: %w", err)
	}
	if grn.QCStatus == StatusPending {
		return nil
	}
	remark := fmt.Sprintf("Reopened at %s: new inspections pending after receipt edit",
		t.now().UTC().Format(time.RFC3339))
	if err := tx.SetGRNQCStatus(ctx, evt.GRNID, StatusPending, remark); err != nil {
		return fmt.Errorf("qc: reopen goods receipt: %w", err)
	}
	t.logger.Info("goods receipt reopened for qc",
		slog.String("grn", evt.GRNNumber),
		slog.String("previous", string(grn.QCStatus)))
	return nil
}

// GenerateInspections quarantines each item whose code matches a raw material
// and opens a pending inspection for it. Items are keyed by receipt, code,
// batch number and occurrence, so repeated runs reuse batches and never
// reopen an inspection whose key already has a verdict. Unmatched items are
// logged and skipped. Any other failure aborts the run.
func (t *Trigger) GenerateInspections(ctx context.Context, grn GRNRef, items []procurement.GRNItem) (GenerateResult, error) {
	var result GenerateResult
	now := t.now().UTC()
	urgency := grn.Urgency
	if urgency == "" {
		urgency = procurement.UrgencyNormal
	}
	seen := make(map[string]int, len(items))

	for _, item := range items {
		identity := item.ItemCode + ":" + item.BatchNumber
		occurrence := seen[identity]
		seen[identity]++

		material, err := t.stock.MaterialByCode(ctx, item.ItemCode)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				t.metrics.UnmatchedItem(TriggerName)
				t.logger.Warn("grn item skipped",
					slog.String("grn", grn.Number),
					slog.String("item_code", item.ItemCode),
					slog.Any("error", fmt.Errorf("%w: %s", shared.ErrUnmatchedReference, item.ItemCode)))
				result.Unmatched = append(result.Unmatched, item.ItemCode)
				continue
			}
			return result, fmt.Errorf("qc: match item %s: %w", item.ItemCode, err)
		}

		key := shared.SourceKey("GRN", grn.ID.String(), item.ItemCode, item.BatchNumber, strconv.Itoa(occurrence))
		batchNumber := strings.TrimSpace(item.BatchNumber)
		if batchNumber == "" {
			batchNumber = fmt.Sprintf("BATCH-%d-%d", now.UnixMilli(), t.sequence.Add(1))
		}
		location := grn.WarehouseLocation
		if location == "" {
			location = inventory.DefaultWarehouseLocation
		}
		batch, fresh, err := t.stock.ReceiveIntoQuarantine(ctx, inventory.QuarantineInput{
			MaterialID:        material.ID,
			StorageCondition:  item.StorageCondition,
			SourceKey:         key,
			BatchNumber:       batchNumber,
			Quantity:          item.ReceivedQty,
			MfgDate:           item.MfgDate,
			ExpiryDate:        item.ExpiryDate,
			WarehouseLocation: location,
		})
		if err != nil {
			return result, fmt.Errorf("qc: quarantine item %s: %w", item.ItemCode, err)
		}
		t.metrics.BatchQuarantined(TriggerName, fresh)
		result.Batches = append(result.Batches, batch)

		batchID := batch.ID
		materialID := material.ID
		inspection, created, err := t.writer.CreateInspection(ctx, Inspection{
			ID:             uuid.New(),
			SourceKey:      &key,
			GRNID:          grn.ID,
			BatchID:        &batchID,
			MaterialID:     &materialID,
			Description:    fmt.Sprintf("QC for %s (%s) from GRN %s", material.Name, material.Code, grn.Number),
			InspectorName:  UnassignedInspector,
			InspectionDate: now,
			Status:         StatusPending,
			Urgency:        urgency,
			CreatedAt:      now,
		})
		if err != nil {
			return result, fmt.Errorf("qc: open inspection for %s: %w", item.ItemCode, err)
		}
		if !created {
			result.Suppressed++
			continue
		}
		t.metrics.InspectionCreated(TriggerName)
		result.Inspections = append(result.Inspections, inspection)
	}

	t.logger.Info("grn inspections generated",
		slog.String("grn", grn.Number),
		slog.Int("inspections", len(result.Inspections)),
		slog.Int("unmatched", len(result.Unmatched)),
		slog.Int("suppressed", result.Suppressed))
	return result, nil
}
