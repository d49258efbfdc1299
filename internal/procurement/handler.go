package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/pharmaproc/internal/platform/httpx"
	"github.com/odyssey-erp/pharmaproc/internal/pricing"
	"github.com/odyssey-erp/pharmaproc/internal/shared"
)

// Handler exposes procurement documents as JSON endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/requisitions", func(r chi.Router) {
		r.Post("/", h.createRequisition)
		r.Get("/{id}", h.getRequisition)
		r.Put("/{id}", h.updateRequisition)
		r.Delete("/{id}", h.deleteRequisition)
		r.Get("/{id}/approvals", h.requisitionApprovals)
		r.Post("/{id}/submit", h.requisitionAction(h.service.SubmitRequisition))
		r.Post("/{id}/approve", h.requisitionAction(h.service.ApproveRequisition))
		r.Post("/{id}/reject", h.requisitionAction(h.service.RejectRequisition))
		r.Post("/{id}/convert", h.requisitionAction(h.service.ConvertRequisition))
	})
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Post("/", h.createPurchaseOrder)
		r.Get("/{id}", h.getPurchaseOrder)
	})
	r.Route("/grns", func(r chi.Router) {
		r.Post("/", h.createGRN)
		r.Get("/{id}", h.getGRN)
		r.Put("/{id}", h.updateGRN)
	})
	r.Route("/invoices", func(r chi.Router) {
		r.Post("/", h.createInvoice)
		r.Get("/{id}", h.getInvoice)
		r.Put("/{id}", h.updateInvoice)
	})
	r.Route("/payments", func(r chi.Router) {
		r.Post("/", h.createPayment)
		r.Get("/{id}", h.getPayment)
		r.Put("/{id}", h.updatePayment)
	})
}

type requisitionItemRequest struct {
	ItemCode          string          `json:"item_code"`
	ItemName          string          `json:"item_name" validate:"required"`
	Category          string          `json:"category"`
	UOM               string          `json:"uom"`
	Quantity          decimal.Decimal `json:"quantity"`
	EstimatedUnitCost decimal.Decimal `json:"estimated_unit_cost"`
	PreferredVendorID *uuid.UUID      `json:"preferred_vendor_id"`
	Specification     string          `json:"specification"`
}

type requisitionRequest struct {
	Number               string                   `json:"number"`
	RequisitionDate      *httpx.Date              `json:"requisition_date"`
	RequestedBy          string                   `json:"requested_by" validate:"required"`
	Department           string                   `json:"department"`
	CostCenter           string                   `json:"cost_center"`
	Priority             Priority                 `json:"priority" validate:"omitempty,oneof=Normal Urgent"`
	ExpectedDeliveryDate *httpx.Date              `json:"expected_delivery_date"`
	BudgetReference      string                   `json:"budget_reference"`
	Items                []requisitionItemRequest `json:"items" validate:"dive"`
}

type requisitionUpdateRequest struct {
	RequisitionDate      *httpx.Date               `json:"requisition_date"`
	RequestedBy          *string                   `json:"requested_by"`
	Department           *string                   `json:"department"`
	CostCenter           *string                   `json:"cost_center"`
	Priority             *Priority                 `json:"priority" validate:"omitempty,oneof=Normal Urgent"`
	ExpectedDeliveryDate *httpx.Date               `json:"expected_delivery_date"`
	BudgetReference      *string                   `json:"budget_reference"`
	Items                *[]requisitionItemRequest `json:"items" validate:"omitempty,dive"`
}

type poItemRequest struct {
	ItemCode        string          `json:"item_code"`
	Description     string          `json:"description"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	BatchRequired   bool            `json:"batch_required"`
}

type purchaseOrderRequest struct {
	Number           string          `json:"number"`
	PODate           *httpx.Date     `json:"po_date"`
	VendorID         uuid.UUID       `json:"vendor_id" validate:"required"`
	RequisitionID    *uuid.UUID      `json:"requisition_id"`
	Currency         string          `json:"currency"`
	PaymentTerms     string          `json:"payment_terms"`
	DeliveryLocation string          `json:"delivery_location"`
	TaxCategory      pricing.TaxMode `json:"tax_category" validate:"omitempty,oneof=Exclusive Inclusive"`
	FreightCharges   decimal.Decimal `json:"freight_charges"`
	InsuranceCharges decimal.Decimal `json:"insurance_charges"`
	Items            []poItemRequest `json:"items"`
}

type grnItemRequest struct {
	ItemCode         string          `json:"item_code"`
	ItemName         string          `json:"item_name"`
	OrderedQty       decimal.Decimal `json:"ordered_qty"`
	ReceivedQty      decimal.Decimal `json:"received_qty"`
	RejectedQty      decimal.Decimal `json:"rejected_qty"`
	BatchNumber      string          `json:"batch_number"`
	MfgDate          *httpx.Date     `json:"mfg_date"`
	ExpiryDate       *httpx.Date     `json:"expiry_date"`
	StorageCondition string          `json:"storage_condition"`
}

type grnRequest struct {
	Number            string           `json:"number"`
	GRNDate           *httpx.Date      `json:"grn_date"`
	POID              *uuid.UUID       `json:"po_id"`
	WarehouseLocation string           `json:"warehouse_location"`
	ReceivedBy        string           `json:"received_by"`
	QCRequired        bool             `json:"qc_required"`
	Urgency           Urgency          `json:"urgency" validate:"omitempty,oneof=Normal Urgent"`
	QCRemarks         string           `json:"qc_remarks"`
	Items             []grnItemRequest `json:"items"`
}

type grnUpdateRequest struct {
	GRNDate           *httpx.Date       `json:"grn_date"`
	WarehouseLocation *string           `json:"warehouse_location"`
	ReceivedBy        *string           `json:"received_by"`
	QCRequired        *bool             `json:"qc_required"`
	Urgency           *Urgency          `json:"urgency" validate:"omitempty,oneof=Normal Urgent"`
	QCRemarks         *string           `json:"qc_remarks"`
	Items             *[]grnItemRequest `json:"items"`
}

type invoiceRequest struct {
	Number      string          `json:"number"`
	InvoiceDate *httpx.Date     `json:"invoice_date"`
	DueDate     *httpx.Date     `json:"due_date"`
	VendorID    uuid.UUID       `json:"vendor_id"`
	POID        *uuid.UUID      `json:"po_id"`
	GRNID       *uuid.UUID      `json:"grn_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Status      InvoiceStatus   `json:"status" validate:"omitempty,oneof=Pending Paid Overdue Cancelled"`
}

type invoiceUpdateRequest struct {
	InvoiceDate *httpx.Date      `json:"invoice_date"`
	DueDate     *httpx.Date      `json:"due_date"`
	Amount      *decimal.Decimal `json:"amount"`
	Currency    *string          `json:"currency"`
	Status      *InvoiceStatus   `json:"status" validate:"omitempty,oneof=Pending Paid Overdue Cancelled"`
}

type paymentRequest struct {
	InvoiceID          uuid.UUID       `json:"invoice_id" validate:"required"`
	PaymentDate        *httpx.Date     `json:"payment_date"`
	Method             PaymentMethod   `json:"method" validate:"omitempty,oneof=Bank_Transfer Cheque Cash Online"`
	AmountPaid         decimal.Decimal `json:"amount_paid"`
	TaxWithheld        decimal.Decimal `json:"tax_withheld"`
	AdvanceAdjustments decimal.Decimal `json:"advance_adjustments"`
	Reference          string          `json:"reference"`
	Status             PaymentStatus   `json:"status" validate:"omitempty,oneof=Pending Completed Failed"`
}

type paymentUpdateRequest struct {
	PaymentDate        *httpx.Date      `json:"payment_date"`
	Method             *PaymentMethod   `json:"method" validate:"omitempty,oneof=Bank_Transfer Cheque Cash Online"`
	AmountPaid         *decimal.Decimal `json:"amount_paid"`
	TaxWithheld        *decimal.Decimal `json:"tax_withheld"`
	AdvanceAdjustments *decimal.Decimal `json:"advance_adjustments"`
	Reference          *string          `json:"reference"`
	Status             *PaymentStatus   `json:"status" validate:"omitempty,oneof=Pending Completed Failed"`
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid id", ErrValidation)
	}
	return id, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !shared.IsDomainError(err) {
		h.logger.Error("procurement request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func requisitionItems(in []requisitionItemRequest) []RequisitionItemInput {
	items := make([]RequisitionItemInput, len(in))
	for i, it := range in {
		items[i] = RequisitionItemInput{
			ItemCode:          it.ItemCode,
			ItemName:          it.ItemName,
			Category:          it.Category,
			UOM:               it.UOM,
			Quantity:          it.Quantity,
			EstimatedUnitCost: it.EstimatedUnitCost,
			PreferredVendorID: it.PreferredVendorID,
			Specification:     it.Specification,
		}
	}
	return items
}

func grnItems(in []grnItemRequest) []GRNItemInput {
	items := make([]GRNItemInput, len(in))
	for i, it := range in {
		items[i] = GRNItemInput{
			ItemCode:         it.ItemCode,
			ItemName:         it.ItemName,
			OrderedQty:       it.OrderedQty,
			ReceivedQty:      it.ReceivedQty,
			RejectedQty:      it.RejectedQty,
			BatchNumber:      it.BatchNumber,
			MfgDate:          it.MfgDate.Ptr(),
			ExpiryDate:       it.ExpiryDate.Ptr(),
			StorageCondition: it.StorageCondition,
		}
	}
	return items
}

func (h *Handler) createRequisition(w http.ResponseWriter, r *http.Request) {
	var req requisitionRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.service.CreateRequisition(r.Context(), RequisitionInput{
		Number:               req.Number,
		RequisitionDate:      req.RequisitionDate.Value(),
		RequestedBy:          req.RequestedBy,
		Department:           req.Department,
		CostCenter:           req.CostCenter,
		Priority:             req.Priority,
		ExpectedDeliveryDate: req.ExpectedDeliveryDate.Ptr(),
		BudgetReference:      req.BudgetReference,
		Items:                requisitionItems(req.Items),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) getRequisition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req, err := h.service.GetRequisition(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) updateRequisition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req requisitionUpdateRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	update := RequisitionUpdate{
		RequestedBy:          req.RequestedBy,
		Department:           req.Department,
		CostCenter:           req.CostCenter,
		Priority:             req.Priority,
		ExpectedDeliveryDate: req.ExpectedDeliveryDate.Ptr(),
		BudgetReference:      req.BudgetReference,
	}
	update.RequisitionDate = req.RequisitionDate.Ptr()
	if req.Items != nil {
		items := requisitionItems(*req.Items)
		update.Items = &items
	}
	updated, err := h.service.UpdateRequisition(r.Context(), id, update)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteRequisition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.DeleteRequisition(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requisitionApprovals(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	logs, err := h.service.RequisitionApprovals(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if logs == nil {
		logs = []shared.ApprovalLog{}
	}
	httpx.JSON(w, http.StatusOK, logs)
}

func (h *Handler) requisitionAction(action func(context.Context, uuid.UUID) (Requisition, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		req, err := action(r.Context(), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, req)
	}
}

func (h *Handler) createPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req purchaseOrderRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	items := make([]POItemInput, len(req.Items))
	for i, it := range req.Items {
		items[i] = POItemInput(it)
	}
	po, err := h.service.CreatePurchaseOrder(r.Context(), PurchaseOrderInput{
		Number:           req.Number,
		PODate:           req.PODate.Value(),
		VendorID:         req.VendorID,
		RequisitionID:    req.RequisitionID,
		Currency:         req.Currency,
		PaymentTerms:     req.PaymentTerms,
		DeliveryLocation: req.DeliveryLocation,
		TaxCategory:      req.TaxCategory,
		FreightCharges:   req.FreightCharges,
		InsuranceCharges: req.InsuranceCharges,
		Items:            items,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) getPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	po, err := h.service.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) createGRN(w http.ResponseWriter, r *http.Request) {
	var req grnRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	grn, err := h.service.CreateGRN(r.Context(), GRNInput{
		Number:            req.Number,
		GRNDate:           req.GRNDate.Value(),
		POID:              req.POID,
		WarehouseLocation: req.WarehouseLocation,
		ReceivedBy:        req.ReceivedBy,
		QCRequired:        req.QCRequired,
		Urgency:           req.Urgency,
		QCRemarks:         req.QCRemarks,
		Items:             grnItems(req.Items),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, grn)
}

func (h *Handler) getGRN(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	grn, err := h.service.GetGRN(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grn)
}

func (h *Handler) updateGRN(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req grnUpdateRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	update := GRNUpdate{
		GRNDate:           req.GRNDate.Ptr(),
		WarehouseLocation: req.WarehouseLocation,
		ReceivedBy:        req.ReceivedBy,
		QCRequired:        req.QCRequired,
		Urgency:           req.Urgency,
		QCRemarks:         req.QCRemarks,
	}
	if req.Items != nil {
		items := grnItems(*req.Items)
		update.Items = &items
	}
	grn, err := h.service.UpdateGRN(r.Context(), id, update)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grn)
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.service.CreateInvoice(r.Context(), InvoiceInput{
		Number:      req.Number,
		InvoiceDate: req.InvoiceDate.Value(),
		DueDate:     req.DueDate.Value(),
		VendorID:    req.VendorID,
		POID:        req.POID,
		GRNID:       req.GRNID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Status:      req.Status,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) updateInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req invoiceUpdateRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.service.UpdateInvoice(r.Context(), id, InvoiceUpdate{
		InvoiceDate: req.InvoiceDate.Ptr(),
		DueDate:     req.DueDate.Ptr(),
		Amount:      req.Amount,
		Currency:    req.Currency,
		Status:      req.Status,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	payment, err := h.service.CreatePayment(r.Context(), PaymentInput{
		InvoiceID:          req.InvoiceID,
		PaymentDate:        req.PaymentDate.Value(),
		Method:             req.Method,
		AmountPaid:         req.AmountPaid,
		TaxWithheld:        req.TaxWithheld,
		AdvanceAdjustments: req.AdvanceAdjustments,
		Reference:          req.Reference,
		Status:             req.Status,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	payment, err := h.service.GetPayment(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) updatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req paymentUpdateRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	payment, err := h.service.UpdatePayment(r.Context(), id, PaymentUpdate{
		PaymentDate:        req.PaymentDate.Ptr(),
		Method:             req.Method,
		AmountPaid:         req.AmountPaid,
		TaxWithheld:        req.TaxWithheld,
		AdvanceAdjustments: req.AdvanceAdjustments,
		Reference:          req.Reference,
		Status:             req.Status,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}
