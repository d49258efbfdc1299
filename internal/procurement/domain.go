package procurement

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/pharmaproc/internal/pricing"
	"github.com/odyssey-erp/pharmaproc/internal/shared"
)

// RequisitionStatus is the purchase requisition lifecycle.
type RequisitionStatus string

const (
	RequisitionDraft           RequisitionStatus = "Draft"
	RequisitionPendingApproval RequisitionStatus = "Pending_Approval"
	RequisitionApproved        RequisitionStatus = "Approved"
	RequisitionConverted       RequisitionStatus = "Converted"
)

// Priority of a requisition.
type Priority string

const (
	PriorityNormal Priority = "Normal"
	PriorityUrgent Priority = "Urgent"
)

// POStatus is the purchase order lifecycle.
type POStatus string

const (
	PODraft     POStatus = "Draft"
	POApproved  POStatus = "Approved"
	POClosed    POStatus = "Closed"
	POCancelled POStatus = "Cancelled"
)

// GRNStatus is the goods receipt lifecycle.
type GRNStatus string

const (
	GRNDraft     GRNStatus = "Draft"
	GRNClosed    GRNStatus = "Closed"
	GRNCancelled GRNStatus = "Cancelled"
)

// QCStatus is the quality state of a goods receipt. Inspections share the
// same values.
type QCStatus string

const (
	QCPending QCStatus = "Pending"
	QCPassed  QCStatus = "Passed"
	QCFailed  QCStatus = "Failed"
)

// Urgency of a goods receipt inspection.
type Urgency string

const (
	UrgencyNormal Urgency = "Normal"
	UrgencyUrgent Urgency = "Urgent"
)

// InvoiceStatus is the invoice lifecycle.
type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "Pending"
	InvoicePaid      InvoiceStatus = "Paid"
	InvoiceOverdue   InvoiceStatus = "Overdue"
	InvoiceCancelled InvoiceStatus = "Cancelled"
)

// PaymentStatus is the payment lifecycle. Completed triggers stock posting.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "Pending"
	PaymentStatusCompleted PaymentStatus = "Completed"
	PaymentStatusFailed    PaymentStatus = "Failed"
)

// PaymentMethod used to settle an invoice.
type PaymentMethod string

const (
	MethodBankTransfer PaymentMethod = "Bank_Transfer"
	MethodCheque       PaymentMethod = "Cheque"
	MethodCash         PaymentMethod = "Cash"
	MethodOnline       PaymentMethod = "Online"
)

// DefaultCurrency applies to invoices created without a currency.
const DefaultCurrency = "PKR"

// Requisition is a purchase requisition with its items.
type Requisition struct {
	ID                   uuid.UUID         `json:"id"`
	Number               string            `json:"number"`
	RequisitionDate      time.Time         `json:"requisition_date"`
	RequestedBy          string            `json:"requested_by"`
	Department           string            `json:"department"`
	CostCenter           string            `json:"cost_center"`
	Priority             Priority          `json:"priority"`
	ExpectedDeliveryDate *time.Time        `json:"expected_delivery_date,omitempty"`
	BudgetReference      string            `json:"budget_reference"`
	Status               RequisitionStatus `json:"status"`
	TotalEstimatedCost   decimal.Decimal   `json:"total_estimated_cost"`
	Items                []RequisitionItem `json:"items,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// RequisitionItem is a requested material.
type RequisitionItem struct {
	ID                uuid.UUID       `json:"id"`
	RequisitionID     uuid.UUID       `json:"requisition_id"`
	ItemCode          string          `json:"item_code"`
	ItemName          string          `json:"item_name"`
	Category          string          `json:"category"`
	UOM               string          `json:"uom"`
	Quantity          decimal.Decimal `json:"quantity"`
	EstimatedUnitCost decimal.Decimal `json:"estimated_unit_cost"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	PreferredVendorID *uuid.UUID      `json:"preferred_vendor_id,omitempty"`
	Specification     string          `json:"specification"`
}

// PurchaseOrder is a priced order to a vendor.
type PurchaseOrder struct {
	ID               uuid.UUID       `json:"id"`
	Number           string          `json:"number"`
	PODate           time.Time       `json:"po_date"`
	VendorID         uuid.UUID       `json:"vendor_id"`
	RequisitionID    *uuid.UUID      `json:"requisition_id,omitempty"`
	Currency         string          `json:"currency"`
	PaymentTerms     string          `json:"payment_terms"`
	DeliveryLocation string          `json:"delivery_location"`
	TaxCategory      pricing.TaxMode `json:"tax_category"`
	FreightCharges   decimal.Decimal `json:"freight_charges"`
	InsuranceCharges decimal.Decimal `json:"insurance_charges"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Status           POStatus        `json:"status"`
	Items            []POItem        `json:"items,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// POItem is a priced order line.
type POItem struct {
	ID              uuid.UUID       `json:"id"`
	POID            uuid.UUID       `json:"po_id"`
	ItemCode        string          `json:"item_code"`
	Description     string          `json:"description"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	NetAmount       decimal.Decimal `json:"net_amount"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	BatchRequired   bool            `json:"batch_required"`
}

// GoodsReceipt is a goods receipt note.
type GoodsReceipt struct {
	ID                uuid.UUID  `json:"id"`
	Number            string     `json:"number"`
	GRNDate           time.Time  `json:"grn_date"`
	POID              *uuid.UUID `json:"po_id,omitempty"`
	WarehouseLocation string     `json:"warehouse_location"`
	ReceivedBy        string     `json:"received_by"`
	QCRequired        bool       `json:"qc_required"`
	QCStatus          QCStatus   `json:"qc_status"`
	QCRemarks         string     `json:"qc_remarks"`
	StockPosted       bool       `json:"stock_posted"`
	Urgency           Urgency    `json:"urgency"`
	Status            GRNStatus  `json:"status"`
	Items             []GRNItem  `json:"items,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// GRNItem is a received line.
type GRNItem struct {
	ID               uuid.UUID       `json:"id"`
	GRNID            uuid.UUID       `json:"grn_id"`
	ItemCode         string          `json:"item_code"`
	ItemName         string          `json:"item_name"`
	OrderedQty       decimal.Decimal `json:"ordered_qty"`
	ReceivedQty      decimal.Decimal `json:"received_qty"`
	RejectedQty      decimal.Decimal `json:"rejected_qty"`
	BatchNumber      string          `json:"batch_number"`
	MfgDate          *time.Time      `json:"mfg_date,omitempty"`
	ExpiryDate       *time.Time      `json:"expiry_date,omitempty"`
	StorageCondition string          `json:"storage_condition"`
}

// Invoice is a vendor invoice.
type Invoice struct {
	ID          uuid.UUID       `json:"id"`
	Number      string          `json:"number"`
	InvoiceDate time.Time       `json:"invoice_date"`
	DueDate     time.Time       `json:"due_date"`
	VendorID    uuid.UUID       `json:"vendor_id"`
	POID        *uuid.UUID      `json:"po_id,omitempty"`
	GRNID       *uuid.UUID      `json:"grn_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Status      InvoiceStatus   `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Payment settles an invoice.
type Payment struct {
	ID                 uuid.UUID       `json:"id"`
	InvoiceID          uuid.UUID       `json:"invoice_id"`
	PaymentDate        time.Time       `json:"payment_date"`
	Method             PaymentMethod   `json:"method"`
	AmountPaid         decimal.Decimal `json:"amount_paid"`
	TaxWithheld        decimal.Decimal `json:"tax_withheld"`
	AdvanceAdjustments decimal.Decimal `json:"advance_adjustments"`
	Reference          string          `json:"reference"`
	Status             PaymentStatus   `json:"status"`
	CreatedAt          time.Time       `json:"created_at"`
}

var (
	// ErrInvalidState occurs when action violates status workflow.
	ErrInvalidState = shared.ErrInvalidState
	// ErrNotFound indicates record missing.
	ErrNotFound = shared.ErrNotFound
	// ErrValidation indicates invalid input.
	ErrValidation = shared.ErrValidation
	// ErrDuplicateNumber indicates a document number already in use.
	ErrDuplicateNumber = fmt.Errorf("%w: document number already used", shared.ErrInvalidState)
)

// RequisitionInUseError rejects deleting a requisition that purchase orders
// still reference.
type RequisitionInUseError struct {
	RequisitionID uuid.UUID `json:"requisition_id"`
	PONumbers     []string  `json:"po_numbers,omitempty"`
}

func (e *RequisitionInUseError) Error() string {
	return fmt.Sprintf("procurement: requisition %s is referenced by purchase order(s): %s", e.RequisitionID, strings.Join(e.PONumbers, ", "))
}

// Unwrap classifies the error as an invalid state.
func (e *RequisitionInUseError) Unwrap() error {
	return ErrInvalidState
}

func invalidState(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidState}, args...)...)
}

func validation(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

func notFound(kind string, id uuid.UUID) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}
