// Package integration routes procurement lifecycle events to the modules that
// act on them.
package integration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/pharmaproc/internal/procurement"
)

// GRNHandler reacts to goods receipts requiring QC.
type GRNHandler interface {
	HandleGRNQcRequired(ctx context.Context, uow procurement.TxRepository, evt procurement.GRNQcRequired) error
}

// PaymentHandler reacts to completed payments.
type PaymentHandler interface {
	HandlePaymentCompleted(ctx context.Context, uow procurement.TxRepository, evt procurement.PaymentCompleted) error
}

// Hooks dispatches procurement events inside the publishing unit of work.
type Hooks struct {
	grn     GRNHandler
	payment PaymentHandler
	logger  *slog.Logger
}

var _ procurement.TriggerHandler = (*Hooks)(nil)

// NewHooks constructs integration hooks. Either handler may be nil.
func NewHooks(grn GRNHandler, payment PaymentHandler, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{grn: grn, payment: payment, logger: logger}
}

// HandleGRNQcRequired forwards to the inspection trigger.
func (h *Hooks) HandleGRNQcRequired(ctx context.Context, uow procurement.TxRepository, evt procurement.GRNQcRequired) error {
	if h == nil || h.grn == nil {
		return nil
	}
	start := time.Now()
	if err := h.grn.HandleGRNQcRequired(ctx, uow, evt); err != nil {
		return fmt.Errorf("integration: grn %s qc trigger: %w", evt.GRNNumber, err)
	}
	h.logger.Debug("grn qc trigger done",
		slog.String("grn", evt.GRNNumber),
		slog.Bool("regenerate", evt.Regenerate),
		slog.Duration("took", time.Since(start)))
	return nil
}

// HandlePaymentCompleted forwards to the posting trigger.
func (h *Hooks) HandlePaymentCompleted(ctx context.Context, uow procurement.TxRepository, evt procurement.PaymentCompleted) error {
	if h == nil || h.payment == nil {
		return nil
	}
	start := time.Now()
	if err := h.payment.HandlePaymentCompleted(ctx, uow, evt); err != nil {
		return fmt.Errorf("integration: payment %s posting: %w", evt.PaymentID, err)
	}
	h.logger.Debug("payment posting trigger done",
		slog.String("payment_id", evt.PaymentID.String()),
		slog.Duration("took", time.Since(start)))
	return nil
}
