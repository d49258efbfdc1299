// Package posting books paid purchase requisition items into quarantine
// stock when a payment completes.
package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/pharmaproc/internal/inventory"
	"github.com/odyssey-erp/pharmaproc/internal/procurement"
	"github.com/odyssey-erp/pharmaproc/internal/qc"
	"github.com/odyssey-erp/pharmaproc/internal/shared"
)

// LedgerModule is the idempotency module of posting-ledger keys.
const LedgerModule = "posting.ledger"

// TriggerName labels metrics emitted by the payment trigger.
const TriggerName = "payment"

// Outcome of one posting attempt.
type Outcome string

const (
	OutcomePosted        Outcome = "posted"
	OutcomeNoItems       Outcome = "no_items"
	OutcomeAlreadyDone   Outcome = "already_posted"
	OutcomeNoRequisition Outcome = "no_requisition"
)

// Stock is the inventory surface used by the trigger.
type Stock interface {
	MaterialByCodeOrName(ctx context.Context, code, name string) (inventory.RawMaterial, error)
	ReceiveIntoQuarantine(ctx context.Context, in inventory.QuarantineInput) (inventory.Batch, bool, error)
}

// Inspections opens inspections for posted batches.
type Inspections interface {
	CreateInspection(ctx context.Context, in qc.Inspection) (qc.Inspection, bool, error)
}

// Ledger claims posting keys inside the unit of work.
type Ledger interface {
	CheckAndInsert(ctx context.Context, key, module string) error
}

// Metrics receives posting counters.
type Metrics interface {
	qc.Metrics
	Posting(outcome string)
}

// LedgerKey is the posting-ledger key of an invoice without goods receipt.
func LedgerKey(invoiceID uuid.UUID) string {
	return "payment-posting:" + invoiceID.String()
}

// Trigger posts requisition items of a paid invoice into quarantine.
type Trigger struct {
	stock       Stock
	inspections Inspections
	ledger      Ledger
	metrics     Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewTrigger constructs Trigger. metrics may be nil.
func NewTrigger(stock Stock, inspections Inspections, ledger Ledger, metrics Metrics, logger *slog.Logger) *Trigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trigger{stock: stock, inspections: inspections, ledger: ledger, metrics: metrics, logger: logger, now: time.Now}
}

// HandlePaymentCompleted walks invoice, purchase order and requisition and
// places every matched requisition item into a quarantine batch. With a goods
// receipt each batch gets a pending inspection and the receipt is latched as
// stock posted; a latched receipt makes the run a no-op. Without one, the
// invoice's posting-ledger key guards against a second posting.
func (t *Trigger) HandlePaymentCompleted(ctx context.Context, uow procurement.TxRepository, evt procurement.PaymentCompleted) error {
	outcome, err := t.post(ctx, uow, evt)
	if err != nil {
		return err
	}
	if t.metrics != nil {
		t.metrics.Posting(string(outcome))
	}
	t.logger.Info("payment posting",
		slog.String("payment_id", evt.PaymentID.String()),
		slog.String("invoice_id", evt.InvoiceID.String()),
		slog.String("outcome", string(outcome)))
	return nil
}

func (t *Trigger) post(ctx context.Context, uow procurement.TxRepository, evt procurement.PaymentCompleted) (Outcome, error) {
	inv, err := uow.GetInvoice(ctx, evt.InvoiceID)
	if err != nil {
		return "", err
	}
	if inv.POID == nil {
		return OutcomeNoRequisition, nil
	}
	po, err := uow.GetPurchaseOrder(ctx, *inv.POID)
	if err != nil {
		return "", err
	}
	if po.RequisitionID == nil {
		return OutcomeNoRequisition, nil
	}
	req, err := uow.GetRequisition(ctx, *po.RequisitionID)
	if err != nil {
		return "", err
	}
	if len(req.Items) == 0 {
		return OutcomeNoItems, nil
	}

	var grn *procurement.GoodsReceipt
	if inv.GRNID != nil {
		g, err := uow.GetGRN(ctx, *inv.GRNID)
		if err != nil {
			return "", err
		}
		if g.StockPosted {
			return OutcomeAlreadyDone, nil
		}
		grn = &g
	} else {
		err := t.ledger.CheckAndInsert(ctx, LedgerKey(inv.ID), LedgerModule)
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return OutcomeAlreadyDone, nil
		}
		if err != nil {
			return "", fmt.Errorf("posting: claim ledger key: %w", err)
		}
	}

	location := inventory.DefaultWarehouseLocation
	if grn != nil && grn.WarehouseLocation != "" {
		location = grn.WarehouseLocation
	}
	reqNumber := req.Number
	if reqNumber == "" {
		reqNumber = "NA"
	}
	now := t.now().UTC()

	for _, item := range req.Items {
		material, err := t.stock.MaterialByCodeOrName(ctx, item.ItemCode, item.ItemName)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				t.unmatched(inv.ID, item)
				continue
			}
			return "", fmt.Errorf("posting: match item %s: %w", item.ItemName, err)
		}
		label := strings.TrimSpace(item.ItemCode)
		if label == "" {
			label = item.ItemName
		}
		key := shared.SourceKey("PAYMENT", inv.ID.String(), item.ID.String())
		batch, fresh, err := t.stock.ReceiveIntoQuarantine(ctx, inventory.QuarantineInput{
			MaterialID:        material.ID,
			SourceKey:         key,
			BatchNumber:       fmt.Sprintf("PR-BATCH-%s-%s", reqNumber, label),
			Quantity:          item.Quantity,
			WarehouseLocation: location,
		})
		if err != nil {
			return "", fmt.Errorf("posting: quarantine item %s: %w", label, err)
		}
		if t.metrics != nil {
			t.metrics.BatchQuarantined(TriggerName, fresh)
		}
		if grn == nil {
			continue
		}
		batchID := batch.ID
		materialID := material.ID
		_, created, err := t.inspections.CreateInspection(ctx, qc.Inspection{
			ID:             uuid.New(),
			SourceKey:      &key,
			GRNID:          grn.ID,
			BatchID:        &batchID,
			MaterialID:     &materialID,
			Description:    "Auto-generated inspection for PR " + reqNumber,
			InspectorName:  qc.SystemInspector,
			InspectionDate: now,
			Status:         qc.StatusPending,
			Urgency:        procurement.UrgencyNormal,
			CreatedAt:      now,
		})
		if err != nil {
			return "", fmt.Errorf("posting: open inspection for %s: %w", label, err)
		}
		if created && t.metrics != nil {
			t.metrics.InspectionCreated(TriggerName)
		}
	}

	if grn != nil {
		if err := uow.MarkGRNStockPosted(ctx, grn.ID); err != nil {
			return "", fmt.Errorf("posting: latch goods receipt: %w", err)
		}
	}
	return OutcomePosted, nil
}

func (t *Trigger) unmatched(invoiceID uuid.UUID, item procurement.RequisitionItem) {
	if t.metrics != nil {
		t.metrics.UnmatchedItem(TriggerName)
	}
	t.logger.Warn("requisition item skipped",
		slog.String("invoice_id", invoiceID.String()),
		slog.String("item_code", item.ItemCode),
		slog.String("item_name", item.ItemName),
		slog.Any("error", shared.ErrUnmatchedReference))
}
