package procurement

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// GRNQcRequired is published when a goods receipt requiring QC is created, or
// updated with QC required. Regenerate asks the handler to drop the receipt's
// pending inspections before generating new ones.
type GRNQcRequired struct {
	GRNID             uuid.UUID
	GRNNumber         string
	WarehouseLocation string
	Urgency           Urgency
	Items             []GRNItem
	Regenerate        bool
	OccurredAt        time.Time
}

// PaymentCompleted is published whenever a payment is saved with status
// Completed, on create or update.
type PaymentCompleted struct {
	PaymentID  uuid.UUID
	InvoiceID  uuid.UUID
	OccurredAt time.Time
}

// TriggerHandler consumes lifecycle events inside the unit of work that
// produced them. Returning an error rolls the whole unit of work back.
type TriggerHandler interface {
	HandleGRNQcRequired(ctx context.Context, uow TxRepository, evt GRNQcRequired) error
	HandlePaymentCompleted(ctx context.Context, uow TxRepository, evt PaymentCompleted) error
}

type noopTriggers struct{}

func (noopTriggers) HandleGRNQcRequired(context.Context, TxRepository, GRNQcRequired) error {
	return nil
}

func (noopTriggers) HandlePaymentCompleted(context.Context, TxRepository, PaymentCompleted) error {
	return nil
}
