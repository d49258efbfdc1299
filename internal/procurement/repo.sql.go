package procurement

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/pharmaproc/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	GetRequisition(ctx context.Context, id uuid.UUID) (Requisition, error)
	GetPurchaseOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error)
	GetGRN(ctx context.Context, id uuid.UUID) (GoodsReceipt, error)
	GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error)
	GetPayment(ctx context.Context, id uuid.UUID) (Payment, error)
	ListPONumbersByRequisition(ctx context.Context, requisitionID uuid.UUID) ([]string, error)

	CreateRequisition(ctx context.Context, req Requisition) error
	UpdateRequisition(ctx context.Context, req Requisition) error
	ReplaceRequisitionItems(ctx context.Context, requisitionID uuid.UUID, items []RequisitionItem) error
	UpdateRequisitionStatus(ctx context.Context, id uuid.UUID, status RequisitionStatus) error
	DeleteRequisition(ctx context.Context, id uuid.UUID) error

	CreatePurchaseOrder(ctx context.Context, po PurchaseOrder) error

	CreateGRN(ctx context.Context, grn GoodsReceipt) error
	UpdateGRN(ctx context.Context, grn GoodsReceipt) error
	ReplaceGRNItems(ctx context.Context, grnID uuid.UUID, items []GRNItem) error
	SetGRNQCStatus(ctx context.Context, id uuid.UUID, status QCStatus, remarks string) error
	MarkGRNStockPosted(ctx context.Context, id uuid.UUID) error

	CreateInvoice(ctx context.Context, inv Invoice) error
	UpdateInvoice(ctx context.Context, inv Invoice) error
	CreatePayment(ctx context.Context, payment Payment) error
	UpdatePayment(ctx context.Context, payment Payment) error
}

type txRepo struct {
	q db.Querier
}

// WithTx wraps callback in repeatable-read transaction. The context passed to
// fn carries the transaction so repositories of other packages join it.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

func (r *Repository) conn(ctx context.Context) *txRepo {
	return &txRepo{q: db.Conn(ctx, r.pool)}
}

// GetRequisition returns a requisition and its items.
func (r *Repository) GetRequisition(ctx context.Context, id uuid.UUID) (Requisition, error) {
	return r.conn(ctx).GetRequisition(ctx, id)
}

// GetPurchaseOrder returns a purchase order and its items.
func (r *Repository) GetPurchaseOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	return r.conn(ctx).GetPurchaseOrder(ctx, id)
}

// GetGRN returns a goods receipt and its items.
func (r *Repository) GetGRN(ctx context.Context, id uuid.UUID) (GoodsReceipt, error) {
	return r.conn(ctx).GetGRN(ctx, id)
}

// GetInvoice fetches an invoice.
func (r *Repository) GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	return r.conn(ctx).GetInvoice(ctx, id)
}

// GetPayment fetches a payment.
func (r *Repository) GetPayment(ctx context.Context, id uuid.UUID) (Payment, error) {
	return r.conn(ctx).GetPayment(ctx, id)
}

func missing(err error, kind string, id uuid.UUID) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound(kind, id)
	}
	return err
}

func duplicateNumber(err error, constraint, number string) error {
	if db.IsUniqueViolation(err, constraint) {
		return fmt.Errorf("%w: %s", ErrDuplicateNumber, number)
	}
	return err
}

func affected(err error, rows int64, kind string, id uuid.UUID) error {
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound(kind, id)
	}
	return nil
}

func (t *txRepo) GetRequisition(ctx context.Context, id uuid.UUID) (Requisition, error) {
	var req Requisition
	err := t.q.QueryRow(ctx, `SELECT id, number, requisition_date, requested_by, department, cost_center, priority,
expected_delivery_date, budget_reference, status, total_estimated_cost, created_at, updated_at
FROM purchase_requisitions WHERE id=$1`, id).
		Scan(&req.ID, &req.Number, &req.RequisitionDate, &req.RequestedBy, &req.Department, &req.CostCenter, &req.Priority,
			&req.ExpectedDeliveryDate, &req.BudgetReference, &req.Status, &req.TotalEstimatedCost, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return Requisition{}, missing(err, "requisition", id)
	}
	rows, err := t.q.Query(ctx, `SELECT id, requisition_id, item_code, item_name, category, uom, quantity,
estimated_unit_cost, total_cost, preferred_vendor_id, specification
FROM purchase_requisition_items WHERE requisition_id=$1 ORDER BY position`, id)
	if err != nil {
		return Requisition{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item RequisitionItem
		if err := rows.Scan(&item.ID, &item.RequisitionID, &item.ItemCode, &item.ItemName, &item.Category, &item.UOM, &item.Quantity,
			&item.EstimatedUnitCost, &item.TotalCost, &item.PreferredVendorID, &item.Specification); err != nil {
			return Requisition{}, err
		}
		req.Items = append(req.Items, item)
	}
	if err := rows.Err(); err != nil {
		return Requisition{}, err
	}
	return req, nil
}

func (t *txRepo) GetPurchaseOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := t.q.QueryRow(ctx, `SELECT id, number, po_date, vendor_id, requisition_id, currency, payment_terms, delivery_location,
tax_category, freight_charges, insurance_charges, subtotal, tax_amount, total_amount, status, created_at
FROM purchase_orders WHERE id=$1`, id).
		Scan(&po.ID, &po.Number, &po.PODate, &po.VendorID, &po.RequisitionID, &po.Currency, &po.PaymentTerms, &po.DeliveryLocation,
			&po.TaxCategory, &po.FreightCharges, &po.InsuranceCharges, &po.Subtotal, &po.TaxAmount, &po.TotalAmount, &po.Status, &po.CreatedAt)
	if err != nil {
		return PurchaseOrder{}, missing(err, "purchase order", id)
	}
	rows, err := t.q.Query(ctx, `SELECT id, po_id, item_code, description, quantity, unit_price, discount_percent, tax_percent,
net_amount, total_amount, batch_required
FROM purchase_order_items WHERE po_id=$1 ORDER BY position`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item POItem
		if err := rows.Scan(&item.ID, &item.POID, &item.ItemCode, &item.Description, &item.Quantity, &item.UnitPrice, &item.DiscountPercent,
			&item.TaxPercent, &item.NetAmount, &item.TotalAmount, &item.BatchRequired); err != nil {
			return PurchaseOrder{}, err
		}
		po.Items = append(po.Items, item)
	}
	if err := rows.Err(); err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

func (t *txRepo) GetGRN(ctx context.Context, id uuid.UUID) (GoodsReceipt, error) {
	var grn GoodsReceipt
	err := t.q.QueryRow(ctx, `SELECT id, number, grn_date, po_id, warehouse_location, received_by, qc_required, qc_status,
qc_remarks, stock_posted, urgency, status, created_at, updated_at
FROM goods_receipts WHERE id=$1`, id).
		Scan(&grn.ID, &grn.Number, &grn.GRNDate, &grn.POID, &grn.WarehouseLocation, &grn.ReceivedBy, &grn.QCRequired, &grn.QCStatus,
			&grn.QCRemarks, &grn.StockPosted, &grn.Urgency, &grn.Status, &grn.CreatedAt, &grn.UpdatedAt)
	if err != nil {
		return GoodsReceipt{}, missing(err, "goods receipt", id)
	}
	rows, err := t.q.Query(ctx, `SELECT id, grn_id, item_code, item_name, ordered_qty, received_qty, rejected_qty, batch_number,
mfg_date, expiry_date, storage_condition
FROM goods_receipt_items WHERE grn_id=$1 ORDER BY position`, id)
	if err != nil {
		return GoodsReceipt{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item GRNItem
		if err := rows.Scan(&item.ID, &item.GRNID, &item.ItemCode, &item.ItemName, &item.OrderedQty, &item.ReceivedQty, &item.RejectedQty,
			&item.BatchNumber, &item.MfgDate, &item.ExpiryDate, &item.StorageCondition); err != nil {
			return GoodsReceipt{}, err
		}
		grn.Items = append(grn.Items, item)
	}
	if err := rows.Err(); err != nil {
		return GoodsReceipt{}, err
	}
	return grn, nil
}

func (t *txRepo) GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	var inv Invoice
	err := t.q.QueryRow(ctx, `SELECT id, number, invoice_date, due_date, vendor_id, po_id, grn_id, amount, currency, status, created_at
FROM invoices WHERE id=$1`, id).
		Scan(&inv.ID, &inv.Number, &inv.InvoiceDate, &inv.DueDate, &inv.VendorID, &inv.POID, &inv.GRNID, &inv.Amount, &inv.Currency, &inv.Status, &inv.CreatedAt)
	if err != nil {
		return Invoice{}, missing(err, "invoice", id)
	}
	return inv, nil
}

func (t *txRepo) GetPayment(ctx context.Context, id uuid.UUID) (Payment, error) {
	var p Payment
	err := t.q.QueryRow(ctx, `SELECT id, invoice_id, payment_date, COALESCE(method,''), amount_paid, tax_withheld, advance_adjustments,
reference, status, created_at
FROM payments WHERE id=$1`, id).
		Scan(&p.ID, &p.InvoiceID, &p.PaymentDate, &p.Method, &p.AmountPaid, &p.TaxWithheld, &p.AdvanceAdjustments,
			&p.Reference, &p.Status, &p.CreatedAt)
	if err != nil {
		return Payment{}, missing(err, "payment", id)
	}
	return p, nil
}

func (t *txRepo) ListPONumbersByRequisition(ctx context.Context, requisitionID uuid.UUID) ([]string, error) {
	rows, err := t.q.Query(ctx, `SELECT number FROM purchase_orders WHERE requisition_id=$1 ORDER BY number`, requisitionID)
	if err != nil {
		return nil, err
	}
	numbers, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return numbers, nil
}

func (t *txRepo) CreateRequisition(ctx context.Context, req Requisition) error {
	_, err := t.q.Exec(ctx, `INSERT INTO purchase_requisitions (id, number, requisition_date, requested_by, department, cost_center,
priority, expected_delivery_date, budget_reference, status, total_estimated_cost, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		req.ID, req.Number, req.RequisitionDate, req.RequestedBy, req.Department, req.CostCenter,
		req.Priority, req.ExpectedDeliveryDate, req.BudgetReference, req.Status, req.TotalEstimatedCost, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return duplicateNumber(err, "purchase_requisitions_number_key", req.Number)
	}
	return t.insertRequisitionItems(ctx, req.Items)
}

func (t *txRepo) insertRequisitionItems(ctx context.Context, items []RequisitionItem) error {
	for i, item := range items {
		_, err := t.q.Exec(ctx, `INSERT INTO purchase_requisition_items (id, requisition_id, position, item_code, item_name, category, uom,
quantity, estimated_unit_cost, total_cost, preferred_vendor_id, specification)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			item.ID, item.RequisitionID, i+1, item.ItemCode, item.ItemName, item.Category, item.UOM,
			item.Quantity, item.EstimatedUnitCost, item.TotalCost, item.PreferredVendorID, item.Specification)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) UpdateRequisition(ctx context.Context, req Requisition) error {
	tag, err := t.q.Exec(ctx, `UPDATE purchase_requisitions SET requisition_date=$2, requested_by=$3, department=$4, cost_center=$5,
priority=$6, expected_delivery_date=$7, budget_reference=$8, status=$9, total_estimated_cost=$10, updated_at=$11
WHERE id=$1`,
		req.ID, req.RequisitionDate, req.RequestedBy, req.Department, req.CostCenter,
		req.Priority, req.ExpectedDeliveryDate, req.BudgetReference, req.Status, req.TotalEstimatedCost, req.UpdatedAt)
	return affected(err, tag.RowsAffected(), "requisition", req.ID)
}

func (t *txRepo) ReplaceRequisitionItems(ctx context.Context, requisitionID uuid.UUID, items []RequisitionItem) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM purchase_requisition_items WHERE requisition_id=$1`, requisitionID); err != nil {
		return err
	}
	return t.insertRequisitionItems(ctx, items)
}

func (t *txRepo) UpdateRequisitionStatus(ctx context.Context, id uuid.UUID, status RequisitionStatus) error {
	tag, err := t.q.Exec(ctx, `UPDATE purchase_requisitions SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	return affected(err, tag.RowsAffected(), "requisition", id)
}

func (t *txRepo) DeleteRequisition(ctx context.Context, id uuid.UUID) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM purchase_requisitions WHERE id=$1`, id)
	return affected(err, tag.RowsAffected(), "requisition", id)
}

func (t *txRepo) CreatePurchaseOrder(ctx context.Context, po PurchaseOrder) error {
	_, err := t.q.Exec(ctx, `INSERT INTO purchase_orders (id, number, po_date, vendor_id, requisition_id, currency, payment_terms,
delivery_location, tax_category, freight_charges, insurance_charges, subtotal, tax_amount, total_amount, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		po.ID, po.Number, po.PODate, po.VendorID, po.RequisitionID, po.Currency, po.PaymentTerms,
		po.DeliveryLocation, po.TaxCategory, po.FreightCharges, po.InsuranceCharges, po.Subtotal, po.TaxAmount, po.TotalAmount, po.Status, po.CreatedAt)
	if err != nil {
		return duplicateNumber(err, "purchase_orders_number_key", po.Number)
	}
	for i, item := range po.Items {
		_, err := t.q.Exec(ctx, `INSERT INTO purchase_order_items (id, po_id, position, item_code, description, quantity, unit_price,
discount_percent, tax_percent, net_amount, total_amount, batch_required)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			item.ID, po.ID, i+1, item.ItemCode, item.Description, item.Quantity, item.UnitPrice,
			item.DiscountPercent, item.TaxPercent, item.NetAmount, item.TotalAmount, item.BatchRequired)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) CreateGRN(ctx context.Context, grn GoodsReceipt) error {
	_, err := t.q.Exec(ctx, `INSERT INTO goods_receipts (id, number, grn_date, po_id, warehouse_location, received_by, qc_required,
qc_status, qc_remarks, stock_posted, urgency, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		grn.ID, grn.Number, grn.GRNDate, grn.POID, grn.WarehouseLocation, grn.ReceivedBy, grn.QCRequired,
		grn.QCStatus, grn.QCRemarks, grn.StockPosted, grn.Urgency, grn.Status, grn.CreatedAt, grn.UpdatedAt)
	if err != nil {
		return duplicateNumber(err, "goods_receipts_number_key", grn.Number)
	}
	return t.insertGRNItems(ctx, grn.Items)
}

func (t *txRepo) insertGRNItems(ctx context.Context, items []GRNItem) error {
	for i, item := range items {
		_, err := t.q.Exec(ctx, `INSERT INTO goods_receipt_items (id, grn_id, position, item_code, item_name, ordered_qty, received_qty,
rejected_qty, batch_number, mfg_date, expiry_date, storage_condition)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			item.ID, item.GRNID, i+1, item.ItemCode, item.ItemName, item.OrderedQty, item.ReceivedQty,
			item.RejectedQty, item.BatchNumber, item.MfgDate, item.ExpiryDate, item.StorageCondition)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) UpdateGRN(ctx context.Context, grn GoodsReceipt) error {
	tag, err := t.q.Exec(ctx, `UPDATE goods_receipts SET grn_date=$2, warehouse_location=$3, received_by=$4, qc_required=$5,
qc_status=$6, qc_remarks=$7, urgency=$8, updated_at=$9
WHERE id=$1`,
		grn.ID, grn.GRNDate, grn.WarehouseLocation, grn.ReceivedBy, grn.QCRequired,
		grn.QCStatus, grn.QCRemarks, grn.Urgency, grn.UpdatedAt)
	return affected(err, tag.RowsAffected(), "goods receipt", grn.ID)
}

func (t *txRepo) ReplaceGRNItems(ctx context.Context, grnID uuid.UUID, items []GRNItem) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM goods_receipt_items WHERE grn_id=$1`, grnID); err != nil {
		return err
	}
	return t.insertGRNItems(ctx, items)
}

func (t *txRepo) SetGRNQCStatus(ctx context.Context, id uuid.UUID, status QCStatus, remarks string) error {
	tag, err := t.q.Exec(ctx, `UPDATE goods_receipts SET qc_status=$2, qc_remarks=$3, updated_at=NOW() WHERE id=$1`, id, status, remarks)
	return affected(err, tag.RowsAffected(), "goods receipt", id)
}

func (t *txRepo) MarkGRNStockPosted(ctx context.Context, id uuid.UUID) error {
	tag, err := t.q.Exec(ctx, `UPDATE goods_receipts SET stock_posted=TRUE, updated_at=NOW() WHERE id=$1`, id)
	return affected(err, tag.RowsAffected(), "goods receipt", id)
}

func (t *txRepo) CreateInvoice(ctx context.Context, inv Invoice) error {
	_, err := t.q.Exec(ctx, `INSERT INTO invoices (id, number, invoice_date, due_date, vendor_id, po_id, grn_id, amount, currency, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		inv.ID, inv.Number, inv.InvoiceDate, inv.DueDate, inv.VendorID, inv.POID, inv.GRNID, inv.Amount, inv.Currency, inv.Status, inv.CreatedAt)
	return duplicateNumber(err, "invoices_number_key", inv.Number)
}

func (t *txRepo) UpdateInvoice(ctx context.Context, inv Invoice) error {
	tag, err := t.q.Exec(ctx, `UPDATE invoices SET invoice_date=$2, due_date=$3, amount=$4, currency=$5, status=$6 WHERE id=$1`,
		inv.ID, inv.InvoiceDate, inv.DueDate, inv.Amount, inv.Currency, inv.Status)
	return affected(err, tag.RowsAffected(), "invoice", inv.ID)
}

func (t *txRepo) CreatePayment(ctx context.Context, p Payment) error {
	_, err := t.q.Exec(ctx, `INSERT INTO payments (id, invoice_id, payment_date, method, amount_paid, tax_withheld, advance_adjustments,
reference, status, created_at)
VALUES ($1,$2,$3,NULLIF($4,''),$5,$6,$7,$8,$9,$10)`,
		p.ID, p.InvoiceID, p.PaymentDate, p.Method, p.AmountPaid, p.TaxWithheld, p.AdvanceAdjustments,
		p.Reference, p.Status, p.CreatedAt)
	return err
}

func (t *txRepo) UpdatePayment(ctx context.Context, p Payment) error {
	tag, err := t.q.Exec(ctx, `UPDATE payments SET payment_date=$2, method=NULLIF($3,''), amount_paid=$4, tax_withheld=$5,
advance_adjustments=$6, reference=$7, status=$8 WHERE id=$1`,
		p.ID, p.PaymentDate, p.Method, p.AmountPaid, p.TaxWithheld, p.AdvanceAdjustments, p.Reference, p.Status)
	return affected(err, tag.RowsAffected(), "payment", p.ID)
}
