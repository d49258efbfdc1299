package procurement

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/pharmaproc/internal/numbering"
	"github.com/odyssey-erp/pharmaproc/internal/shared"
)

// InvoiceInput describes invoice creation. With GRNID set, VendorID and POID
// are derived from the receipt and any supplied values are ignored.
type InvoiceInput struct {
	Number      string
	InvoiceDate time.Time
	DueDate     time.Time
	VendorID    uuid.UUID
	POID        *uuid.UUID
	GRNID       *uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	Status      InvoiceStatus
}

// InvoiceUpdate patches an invoice.
type InvoiceUpdate struct {
	InvoiceDate *time.Time
	DueDate     *time.Time
	Amount      *decimal.Decimal
	Currency    *string
	Status      *InvoiceStatus
}

// PaymentInput describes payment creation.
type PaymentInput struct {
	InvoiceID          uuid.UUID
	PaymentDate        time.Time
	Method             PaymentMethod
	AmountPaid         decimal.Decimal
	TaxWithheld        decimal.Decimal
	AdvanceAdjustments decimal.Decimal
	Reference          string
	Status             PaymentStatus
}

// PaymentUpdate patches a payment.
type PaymentUpdate struct {
	PaymentDate        *time.Time
	Method             *PaymentMethod
	AmountPaid         *decimal.Decimal
	TaxWithheld        *decimal.Decimal
	AdvanceAdjustments *decimal.Decimal
	Reference          *string
	Status             *PaymentStatus
}

// CreateInvoice persists an invoice. Invoices raised against a goods receipt
// require the receipt to reference a purchase order, to predate the invoice,
// and to have passed QC when QC is required.
func (s *Service) CreateInvoice(ctx context.Context, input InvoiceInput) (Invoice, error) {
	if input.Amount.IsNegative() {
		return Invoice{}, validation("amount must not be negative")
	}
	status := input.Status
	if status == "" {
		status = InvoicePending
	}
	if !validInvoiceStatus(status) {
		return Invoice{}, validation("unknown invoice status %q", status)
	}
	invoiceDate := s.today(input.InvoiceDate)
	dueDate := input.DueDate
	if dueDate.IsZero() {
		dueDate = invoiceDate
	}
	if dueDate.Before(invoiceDate) {
		return Invoice{}, validation("due date precedes invoice date")
	}

	var inv Invoice
	err := s.withNumber(ctx, numbering.PrefixInvoice, input.Number, func(number string) error {
		return s.inTx(ctx, func(ctx context.Context, tx TxRepository) error {
			inv = Invoice{
				ID:          uuid.New(),
				Number:      number,
				InvoiceDate: invoiceDate,
				DueDate:     dueDate,
				VendorID:    input.VendorID,
				POID:        input.POID,
				GRNID:       input.GRNID,
				Amount:      input.Amount.Round(2),
				Currency:    defaultString(strings.TrimSpace(input.Currency), DefaultCurrency),
				Status:      status,
				CreatedAt:   s.now().UTC(),
			}
			if input.GRNID != nil {
				if err := s.linkInvoiceToReceipt(ctx, tx, &inv); err != nil {
					return err
				}
			} else {
				if inv.VendorID == uuid.Nil {
					return validation("vendor is required")
				}
				if inv.POID != nil {
					if _, err := tx.GetPurchaseOrder(ctx, *inv.POID); err != nil {
						return err
					}
				}
			}
			return tx.CreateInvoice(ctx, inv)
		})
	})
	if err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, "INV_CREATE", inv.ID, map[string]any{"number": inv.Number, "amount": inv.Amount.String()})
	return inv, nil
}

func (s *Service) linkInvoiceToReceipt(ctx context.Context, tx TxRepository, inv *Invoice) error {
	grn, err := tx.GetGRN(ctx, *inv.GRNID)
	if err != nil {
		return err
	}
	if grn.POID == nil {
		return invalidState("goods receipt %s is not linked to a purchase order", grn.Number)
	}
	if inv.InvoiceDate.Before(grn.GRNDate) {
		return invalidState("invoice date %s precedes goods receipt date %s",
			inv.InvoiceDate.Format(time.DateOnly), grn.GRNDate.Format(time.DateOnly))
	}
	if grn.QCRequired && grn.QCStatus != QCPassed {
		return invalidState("goods receipt %s has QC status %s, invoice requires Passed", grn.Number, grn.QCStatus)
	}
	po, err := tx.GetPurchaseOrder(ctx, *grn.POID)
	if err != nil {
		return err
	}
	poID := po.ID
	inv.POID = &poID
	inv.VendorID = po.VendorID
	return nil
}

// UpdateInvoice edits invoice dates, amount, currency or status.
func (s *Service) UpdateInvoice(ctx context.Context, id uuid.UUID, input InvoiceUpdate) (Invoice, error) {
	var inv Invoice
	err := s.inTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		if input.InvoiceDate != nil {
			current.InvoiceDate = *input.InvoiceDate
		}
		if input.DueDate != nil {
			current.DueDate = *input.DueDate
		}
		if input.Amount != nil {
			if input.Amount.IsNegative() {
				return validation("amount must not be negative")
			}
			current.Amount = input.Amount.Round(2)
		}
		if input.Currency != nil {
			current.Currency = defaultString(strings.TrimSpace(*input.Currency), DefaultCurrency)
		}
		if input.Status != nil {
			if !validInvoiceStatus(*input.Status) {
				return validation("unknown invoice status %q", *input.Status)
			}
			current.Status = *input.Status
		}
		if current.GRNID != nil && input.InvoiceDate != nil {
			grn, err := tx.GetGRN(ctx, *current.GRNID)
			if err != nil {
				return err
			}
			if current.InvoiceDate.Before(grn.GRNDate) {
				return invalidState("invoice date precedes goods receipt date")
			}
		}
		inv = current
		return tx.UpdateInvoice(ctx, current)
	})
	if err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, "INV_UPDATE", id, map[string]any{"status": string(inv.Status)})
	return inv, nil
}

// GetInvoice returns an invoice.
func (s *Service) GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// CreatePayment records a payment. A payment saved as Completed publishes
// PaymentCompleted inside the same unit of work.
func (s *Service) CreatePayment(ctx context.Context, input PaymentInput) (Payment, error) {
	if input.InvoiceID == uuid.Nil {
		return Payment{}, validation("invoice is required")
	}
	status := input.Status
	if status == "" {
		status = PaymentStatusPending
	}
	if !validPaymentStatus(status) {
		return Payment{}, validation("unknown payment status %q", status)
	}
	if input.Method != "" && !validPaymentMethod(input.Method) {
		return Payment{}, validation("unknown payment method %q", input.Method)
	}
	if input.AmountPaid.IsNegative() || input.TaxWithheld.IsNegative() {
		return Payment{}, validation("amounts must not be negative")
	}
	payment := Payment{
		ID:                 uuid.New(),
		InvoiceID:          input.InvoiceID,
		PaymentDate:        s.today(input.PaymentDate),
		Method:             input.Method,
		AmountPaid:         input.AmountPaid.Round(2),
		TaxWithheld:        input.TaxWithheld.Round(2),
		AdvanceAdjustments: input.AdvanceAdjustments.Round(2),
		Reference:          input.Reference,
		Status:             status,
		CreatedAt:          s.now().UTC(),
	}
	err := s.withPostingLock(ctx, payment, func(ctx context.Context) error {
		return s.inTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if _, err := tx.GetInvoice(ctx, payment.InvoiceID); err != nil {
				return err
			}
			if err := tx.CreatePayment(ctx, payment); err != nil {
				return err
			}
			return s.publishPayment(ctx, tx, payment)
		})
	})
	if err != nil {
		return Payment{}, err
	}
	s.recordAudit(ctx, "PAY_CREATE", payment.ID, map[string]any{"invoice_id": payment.InvoiceID.String(), "status": string(payment.Status)})
	return payment, nil
}

// UpdatePayment edits a payment. Saving it as Completed, including saving an
// already completed payment again, publishes PaymentCompleted.
func (s *Service) UpdatePayment(ctx context.Context, id uuid.UUID, input PaymentUpdate) (Payment, error) {
	if input.Status != nil && !validPaymentStatus(*input.Status) {
		return Payment{}, validation("unknown payment status %q", *input.Status)
	}
	if input.Method != nil && !validPaymentMethod(*input.Method) {
		return Payment{}, validation("unknown payment method %q", *input.Method)
	}
	existing, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	var payment Payment
	err = s.withPostingLock(ctx, existing, func(ctx context.Context) error {
		return s.inTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := tx.GetPayment(ctx, id)
			if err != nil {
				return err
			}
			if input.PaymentDate != nil {
				current.PaymentDate = *input.PaymentDate
			}
			if input.Method != nil {
				current.Method = *input.Method
			}
			if input.AmountPaid != nil {
				if input.AmountPaid.IsNegative() {
					return validation("amount paid must not be negative")
				}
				current.AmountPaid = input.AmountPaid.Round(2)
			}
			if input.TaxWithheld != nil {
				current.TaxWithheld = input.TaxWithheld.Round(2)
			}
			if input.AdvanceAdjustments != nil {
				current.AdvanceAdjustments = input.AdvanceAdjustments.Round(2)
			}
			if input.Reference != nil {
				current.Reference = *input.Reference
			}
			if input.Status != nil {
				current.Status = *input.Status
			}
			if err := tx.UpdatePayment(ctx, current); err != nil {
				return err
			}
			payment = current
			return s.publishPayment(ctx, tx, current)
		})
	})
	if err != nil {
		return Payment{}, err
	}
	s.logger.Info("payment updated",
		slog.String("payment_id", id.String()),
		slog.String("status", string(payment.Status)))
	s.recordAudit(ctx, "PAY_UPDATE", id, map[string]any{"status": string(payment.Status)})
	return payment, nil
}

// GetPayment returns a payment.
func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

func (s *Service) publishPayment(ctx context.Context, tx TxRepository, payment Payment) error {
	if payment.Status != PaymentStatusCompleted {
		return nil
	}
	return s.triggers.HandlePaymentCompleted(ctx, tx, PaymentCompleted{
		PaymentID:  payment.ID,
		InvoiceID:  payment.InvoiceID,
		OccurredAt: s.now().UTC(),
	})
}

// withPostingLock serialises payment writes for the same invoice.
func (s *Service) withPostingLock(ctx context.Context, payment Payment, fn func(context.Context) error) error {
	return s.withLock(ctx, shared.InvoicePostingLockKey(payment.InvoiceID), fn)
}

func validInvoiceStatus(status InvoiceStatus) bool {
	switch status {
	case InvoicePending, InvoicePaid, InvoiceOverdue, InvoiceCancelled:
		return true
	}
	return false
}

func validPaymentStatus(status PaymentStatus) bool {
	switch status {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed:
		return true
	}
	return false
}

func validPaymentMethod(method PaymentMethod) bool {
	switch method {
	case MethodBankTransfer, MethodCheque, MethodCash, MethodOnline:
		return true
	}
	return false
}
