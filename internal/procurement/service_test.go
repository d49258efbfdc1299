package procurement_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/pharmaproc/internal/pricing"
	"github.com/odyssey-erp/pharmaproc/internal/procurement"
	"github.com/odyssey-erp/pharmaproc/internal/shared"
	"github.com/odyssey-erp/pharmaproc/internal/testing/memstore"
)

var fixedNow = time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC)

type recordingTriggers struct {
	grn      []procurement.GRNQcRequired
	payments []procurement.PaymentCompleted
	err      error
}

func (r *recordingTriggers) HandleGRNQcRequired(_ context.Context, _ procurement.TxRepository, evt procurement.GRNQcRequired) error {
	r.grn = append(r.grn, evt)
	return r.err
}

func (r *recordingTriggers) HandlePaymentCompleted(_ context.Context, _ procurement.TxRepository, evt procurement.PaymentCompleted) error {
	r.payments = append(r.payments, evt)
	return r.err
}

type fixture struct {
	svc      *procurement.Service
	store    *memstore.Store
	triggers *recordingTriggers
}

func newFixture() fixture {
	store := memstore.New()
	store.Now = func() time.Time { return fixedNow }
	triggers := &recordingTriggers{}
	svc := procurement.NewService(procurement.ServiceConfig{
		Repo:      store,
		Numbers:   store,
		Triggers:  triggers,
		Approvals: store.Approvals(),
		Audit:     store.Audit(),
		Trash:     store,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:       func() time.Time { return fixedNow },
	})
	return fixture{svc: svc, store: store, triggers: triggers}
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func requisitionInput() procurement.RequisitionInput {
	return procurement.RequisitionInput{
		RequestedBy: "Ayesha",
		Department:  "Production",
		Items: []procurement.RequisitionItemInput{
			{ItemCode: "RM-1", ItemName: "Paracetamol API", Quantity: d("10"), EstimatedUnitCost: d("12.345")},
			{ItemCode: "RM-2", ItemName: "Lactose", Quantity: d("4"), EstimatedUnitCost: d("2.5")},
		},
	}
}

func (f fixture) approvedRequisition(t *testing.T) procurement.Requisition {
	t.Helper()
	ctx := context.Background()
	req, err := f.svc.CreateRequisition(ctx, requisitionInput())
	require.NoError(t, err)
	_, err = f.svc.SubmitRequisition(ctx, req.ID)
	require.NoError(t, err)
	req, err = f.svc.ApproveRequisition(ctx, req.ID)
	require.NoError(t, err)
	return req
}

func (f fixture) orderFor(t *testing.T, req procurement.Requisition) procurement.PurchaseOrder {
	t.Helper()
	po, err := f.svc.CreatePurchaseOrder(context.Background(), procurement.PurchaseOrderInput{
		VendorID:      uuid.New(),
		RequisitionID: &req.ID,
	})
	require.NoError(t, err)
	return po
}

func TestCreateRequisitionNumbersAndTotals(t *testing.T) {
	f := newFixture()
	ctx := shared.ContextWithActor(context.Background(), "ayesha")

	req, err := f.svc.CreateRequisition(ctx, requisitionInput())
	require.NoError(t, err)
	require.Equal(t, "PR-20250309-0001", req.Number)
	require.Equal(t, procurement.RequisitionDraft, req.Status)
	require.Equal(t, procurement.PriorityNormal, req.Priority)
	require.Len(t, req.Items, 2)
	require.Equal(t, "123.45", req.Items[0].TotalCost.StringFixed(2))
	require.Equal(t, "133.45", req.TotalEstimatedCost.StringFixed(2))

	entries := f.store.Audit().Entries()
	require.Len(t, entries, 1)
	require.Equal(t, "PR_CREATE", entries[0].Action)
	require.Equal(t, "ayesha", entries[0].Actor)
}

func TestCreateRequisitionValidates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	in := requisitionInput()
	in.RequestedBy = "  "
	_, err := f.svc.CreateRequisition(ctx, in)
	require.ErrorIs(t, err, shared.ErrValidation)

	in = requisitionInput()
	in.Priority = "Critical"
	_, err = f.svc.CreateRequisition(ctx, in)
	require.ErrorIs(t, err, shared.ErrValidation)

	in = requisitionInput()
	in.Items[1].Quantity = decimal.Zero
	_, err = f.svc.CreateRequisition(ctx, in)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Zero(t, f.store.Commits())
}

func TestCreateRequisitionRetriesTakenNumber(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.svc.CreateRequisition(ctx, requisitionInput())
	require.NoError(t, err)
	require.Equal(t, "PR-20250309-0001", first.Number)

	in := requisitionInput()
	in.Number = "PR-20250309-0002"
	_, err = f.svc.CreateRequisition(ctx, in)
	require.NoError(t, err)

	req, err := f.svc.CreateRequisition(ctx, requisitionInput())
	require.NoError(t, err)
	require.Equal(t, "PR-20250309-0003", req.Number)
}

func TestNumberingResumesAfterStoredDocuments(t *testing.T) {
	cases := []struct {
		name     string
		existing string
		want     string
	}{
		{"continues stored counter", "PR-20250301-0042", "PR-20250309-0043"},
		{"malformed number starts fresh", "PR-LEGACY-7", "PR-20250309-0001"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()

			in := requisitionInput()
			in.Number = tc.existing
			_, err := f.svc.CreateRequisition(ctx, in)
			require.NoError(t, err)

			req, err := f.svc.CreateRequisition(ctx, requisitionInput())
			require.NoError(t, err)
			require.Equal(t, tc.want, req.Number)
		})
	}
}

func TestCreateRequisitionExplicitDuplicateIsRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	in := requisitionInput()
	in.Number = "PR-MANUAL-1"
	_, err := f.svc.CreateRequisition(ctx, in)
	require.NoError(t, err)

	_, err = f.svc.CreateRequisition(ctx, in)
	require.ErrorIs(t, err, procurement.ErrDuplicateNumber)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestSequencerFailureIsTransactionFailure(t *testing.T) {
	f := newFixture()
	f.store.FailOn("Next", errors.New("counter unavailable"))

	_, err := f.svc.CreateRequisition(context.Background(), requisitionInput())
	require.ErrorIs(t, err, shared.ErrTransactionFailure)
}

func TestRequisitionApprovalFlow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	req, err := f.svc.CreateRequisition(ctx, requisitionInput())
	require.NoError(t, err)

	_, err = f.svc.ApproveRequisition(ctx, req.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	req, err = f.svc.SubmitRequisition(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.RequisitionPendingApproval, req.Status)

	req, err = f.svc.RejectRequisition(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.RequisitionDraft, req.Status)

	_, err = f.svc.SubmitRequisition(ctx, req.ID)
	require.NoError(t, err)
	req, err = f.svc.ApproveRequisition(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.RequisitionApproved, req.Status)

	approvals := f.store.Approvals().Entries(req.ID)
	require.Len(t, approvals, 4)
	require.Equal(t, shared.ApprovalSubmit, approvals[0].Action)
	require.Equal(t, shared.ApprovalReject, approvals[1].Action)
	require.Equal(t, shared.ApprovalApprove, approvals[3].Action)
	for _, a := range approvals {
		require.Equal(t, "PR", a.Module)
	}
}

func TestEditingApprovedRequisitionReturnsToPendingApproval(t *testing.T) {
	ctx := context.Background()
	department := "QA"
	items := []procurement.RequisitionItemInput{{ItemName: "Starch", Quantity: d("1"), EstimatedUnitCost: d("3")}}
	updates := map[string]procurement.RequisitionUpdate{
		"department": {Department: &department},
		"items":      {Items: &items},
		"nothing":    {},
	}
	for name, update := range updates {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			req := f.approvedRequisition(t)

			updated, err := f.svc.UpdateRequisition(ctx, req.ID, update)
			require.NoError(t, err)
			require.Equal(t, procurement.RequisitionPendingApproval, updated.Status)

			stored, err := f.svc.GetRequisition(ctx, req.ID)
			require.NoError(t, err)
			require.Equal(t, procurement.RequisitionPendingApproval, stored.Status)
		})
	}
}

func TestUpdateRequisitionReplacesItems(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	req, err := f.svc.CreateRequisition(ctx, requisitionInput())
	require.NoError(t, err)

	items := []procurement.RequisitionItemInput{{ItemName: "Starch", Quantity: d("3"), EstimatedUnitCost: d("1.5")}}
	updated, err := f.svc.UpdateRequisition(ctx, req.ID, procurement.RequisitionUpdate{Items: &items})
	require.NoError(t, err)
	require.Equal(t, procurement.RequisitionDraft, updated.Status)

	stored, err := f.svc.GetRequisition(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	require.Equal(t, "Starch", stored.Items[0].ItemName)
	require.Equal(t, "4.50", stored.TotalEstimatedCost.StringFixed(2))
}

func TestConvertedRequisitionIsImmutable(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	req := f.approvedRequisition(t)
	_, err := f.svc.ConvertRequisition(ctx, req.ID)
	require.NoError(t, err)

	dept := "Stores"
	_, err = f.svc.UpdateRequisition(ctx, req.ID, procurement.RequisitionUpdate{Department: &dept})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	err = f.svc.DeleteRequisition(ctx, req.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestDeleteRequisitionReferencedByOrderFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	req, err := f.svc.CreateRequisition(ctx, requisitionInput())
	require.NoError(t, err)
	po, err := f.svc.CreatePurchaseOrder(ctx, procurement.PurchaseOrderInput{VendorID: uuid.New(), RequisitionID: &req.ID})
	require.NoError(t, err)

	err = f.svc.DeleteRequisition(ctx, req.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	var inUse *procurement.RequisitionInUseError
	require.ErrorAs(t, err, &inUse)
	require.Equal(t, []string{po.Number}, inUse.PONumbers)

	stillThere, err := f.svc.GetRequisition(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.RequisitionDraft, stillThere.Status)
	order, err := f.svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, req.ID, *order.RequisitionID)
	require.Empty(t, f.store.Trash())
}

func TestDeleteRequisitionArchivesToTrash(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	req, err := f.svc.CreateRequisition(ctx, requisitionInput())
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteRequisition(ctx, req.ID))
	_, err = f.svc.GetRequisition(ctx, req.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	trash := f.store.Trash()
	require.Len(t, trash, 1)
	require.Equal(t, "purchase_requisitions", trash[0].Table)
	require.Equal(t, req.ID, trash[0].ID)
}

func TestPurchaseOrderFromApprovedRequisition(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	req := f.approvedRequisition(t)

	po := f.orderFor(t, req)
	require.Equal(t, "PO-20250309-0001", po.Number)
	require.Equal(t, pricing.TaxExclusive, po.TaxCategory)
	require.Len(t, po.Items, 2)
	require.Equal(t, "Paracetamol API", po.Items[0].Description)
	require.Equal(t, "133.45", po.TotalAmount.StringFixed(2))

	converted, err := f.svc.GetRequisition(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.RequisitionConverted, converted.Status)
}

func TestPurchaseOrderInclusiveTax(t *testing.T) {
	f := newFixture()
	po, err := f.svc.CreatePurchaseOrder(context.Background(), procurement.PurchaseOrderInput{
		VendorID:    uuid.New(),
		TaxCategory: pricing.TaxInclusive,
		Items: []procurement.POItemInput{
			{ItemCode: "RM-1", Quantity: d("10"), UnitPrice: d("110"), DiscountPercent: d("0"), TaxPercent: d("10")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "1100.00", po.TotalAmount.StringFixed(2))
	require.Equal(t, "1000.00", po.Subtotal.StringFixed(2))
	require.Equal(t, "100.00", po.TaxAmount.StringFixed(2))
	require.Equal(t, "1000.00", po.Items[0].NetAmount.StringFixed(2))
}

func TestPurchaseOrderRequiresVendor(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CreatePurchaseOrder(context.Background(), procurement.PurchaseOrderInput{})
	require.ErrorIs(t, err, shared.ErrValidation)

	missing := uuid.New()
	_, err = f.svc.CreatePurchaseOrder(context.Background(), procurement.PurchaseOrderInput{VendorID: uuid.New(), RequisitionID: &missing})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func grnInput(poID *uuid.UUID, qc bool) procurement.GRNInput {
	return procurement.GRNInput{
		POID:              poID,
		WarehouseLocation: "WH-A",
		ReceivedBy:        "Bilal",
		QCRequired:        qc,
		Items: []procurement.GRNItemInput{
			{ItemCode: "RM-1", ItemName: "Paracetamol API", ReceivedQty: d("50"), BatchNumber: "L-01"},
		},
	}
}

func TestCreateGRNPublishesOnlyWhenQCRequired(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	plain, err := f.svc.CreateGRN(ctx, grnInput(nil, false))
	require.NoError(t, err)
	require.Equal(t, "GRN-20250309-0001", plain.Number)
	require.Empty(t, f.triggers.grn)

	grn, err := f.svc.CreateGRN(ctx, grnInput(nil, true))
	require.NoError(t, err)
	require.Equal(t, procurement.QCPending, grn.QCStatus)
	require.Equal(t, procurement.UrgencyNormal, grn.Urgency)
	require.Len(t, f.triggers.grn, 1)
	evt := f.triggers.grn[0]
	require.Equal(t, grn.ID, evt.GRNID)
	require.False(t, evt.Regenerate)
	require.Len(t, evt.Items, 1)
	require.Equal(t, grn.ID, evt.Items[0].GRNID)
}

func TestCreateGRNValidatesItems(t *testing.T) {
	f := newFixture()
	in := grnInput(nil, true)
	mfg := fixedNow
	expiry := fixedNow.AddDate(0, 0, -1)
	in.Items[0].MfgDate = &mfg
	in.Items[0].ExpiryDate = &expiry
	_, err := f.svc.CreateGRN(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrValidation)

	in = grnInput(nil, true)
	in.Urgency = "Later"
	_, err = f.svc.CreateGRN(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, f.triggers.grn)
}

func TestCreateGRNRollsBackWhenTriggerFails(t *testing.T) {
	f := newFixture()
	f.triggers.err = errors.New("batch table locked")

	_, err := f.svc.CreateGRN(context.Background(), grnInput(nil, true))
	require.ErrorIs(t, err, shared.ErrTransactionFailure)
	require.Zero(t, f.store.Commits())

	_, err = f.svc.GetGRN(context.Background(), f.triggers.grn[0].GRNID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateGRNRegenerationRules(t *testing.T) {
	ctx := context.Background()
	yes := true
	location := "WH-B"
	items := []procurement.GRNItemInput{{ItemCode: "RM-2", ReceivedQty: d("5")}}

	cases := []struct {
		name       string
		qcRequired bool
		update     procurement.GRNUpdate
		regenerate bool
	}{
		{name: "set qc required", qcRequired: false, update: procurement.GRNUpdate{QCRequired: &yes}, regenerate: true},
		{name: "set qc required again", qcRequired: true, update: procurement.GRNUpdate{QCRequired: &yes}, regenerate: true},
		{name: "replace items with qc", qcRequired: true, update: procurement.GRNUpdate{Items: &items}, regenerate: true},
		{name: "replace items without qc", qcRequired: false, update: procurement.GRNUpdate{Items: &items}, regenerate: false},
		{name: "header only", qcRequired: true, update: procurement.GRNUpdate{WarehouseLocation: &location}, regenerate: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			grn, err := f.svc.CreateGRN(ctx, grnInput(nil, tc.qcRequired))
			require.NoError(t, err)
			published := len(f.triggers.grn)

			updated, err := f.svc.UpdateGRN(ctx, grn.ID, tc.update)
			require.NoError(t, err)
			if !tc.regenerate {
				require.Len(t, f.triggers.grn, published)
				return
			}
			require.Len(t, f.triggers.grn, published+1)
			evt := f.triggers.grn[len(f.triggers.grn)-1]
			require.True(t, evt.Regenerate)
			require.Equal(t, updated.Items, evt.Items)
		})
	}
}

func TestInvoiceAgainstReceiptIsGated(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po := f.orderFor(t, f.approvedRequisition(t))

	orphan, err := f.svc.CreateGRN(ctx, grnInput(nil, false))
	require.NoError(t, err)
	_, err = f.svc.CreateInvoice(ctx, procurement.InvoiceInput{GRNID: &orphan.ID, Amount: d("10")})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	gated, err := f.svc.CreateGRN(ctx, grnInput(&po.ID, true))
	require.NoError(t, err)
	_, err = f.svc.CreateInvoice(ctx, procurement.InvoiceInput{GRNID: &gated.ID, Amount: d("10")})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	_, err = f.svc.CreateInvoice(ctx, procurement.InvoiceInput{
		GRNID:       &gated.ID,
		Amount:      d("10"),
		InvoiceDate: fixedNow.AddDate(0, 0, -2),
	})
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestInvoiceDerivesVendorFromReceipt(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po := f.orderFor(t, f.approvedRequisition(t))
	grn, err := f.svc.CreateGRN(ctx, grnInput(&po.ID, false))
	require.NoError(t, err)

	inv, err := f.svc.CreateInvoice(ctx, procurement.InvoiceInput{GRNID: &grn.ID, Amount: d("133.449"), VendorID: uuid.New()})
	require.NoError(t, err)
	require.Equal(t, "INV-20250309-0001", inv.Number)
	require.Equal(t, po.VendorID, inv.VendorID)
	require.Equal(t, po.ID, *inv.POID)
	require.Equal(t, procurement.InvoicePending, inv.Status)
	require.Equal(t, procurement.DefaultCurrency, inv.Currency)
	require.Equal(t, "133.45", inv.Amount.StringFixed(2))

	earlier := fixedNow.AddDate(0, 0, -1)
	_, err = f.svc.UpdateInvoice(ctx, inv.ID, procurement.InvoiceUpdate{InvoiceDate: &earlier})
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestInvoiceWithoutReceiptNeedsVendor(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CreateInvoice(context.Background(), procurement.InvoiceInput{Amount: d("1")})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.CreateInvoice(context.Background(), procurement.InvoiceInput{
		VendorID:    uuid.New(),
		InvoiceDate: fixedNow,
		DueDate:     fixedNow.AddDate(0, 0, -1),
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCompletedPaymentsPublish(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	inv, err := f.svc.CreateInvoice(ctx, procurement.InvoiceInput{VendorID: uuid.New(), Amount: d("100")})
	require.NoError(t, err)

	pending, err := f.svc.CreatePayment(ctx, procurement.PaymentInput{InvoiceID: inv.ID, Method: procurement.MethodCheque, AmountPaid: d("100")})
	require.NoError(t, err)
	require.Equal(t, procurement.PaymentStatusPending, pending.Status)
	require.Empty(t, f.triggers.payments)

	completed := procurement.PaymentStatusCompleted
	_, err = f.svc.UpdatePayment(ctx, pending.ID, procurement.PaymentUpdate{Status: &completed})
	require.NoError(t, err)
	require.Len(t, f.triggers.payments, 1)
	require.Equal(t, inv.ID, f.triggers.payments[0].InvoiceID)

	ref := "CHQ-881"
	_, err = f.svc.UpdatePayment(ctx, pending.ID, procurement.PaymentUpdate{Reference: &ref})
	require.NoError(t, err)
	require.Len(t, f.triggers.payments, 2)

	direct, err := f.svc.CreatePayment(ctx, procurement.PaymentInput{InvoiceID: inv.ID, Status: procurement.PaymentStatusCompleted})
	require.NoError(t, err)
	require.Len(t, f.triggers.payments, 3)
	require.Equal(t, direct.ID, f.triggers.payments[2].PaymentID)
}

func TestPaymentValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreatePayment(ctx, procurement.PaymentInput{InvoiceID: uuid.New()})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.svc.CreatePayment(ctx, procurement.PaymentInput{InvoiceID: uuid.New(), Method: "Barter"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.CreatePayment(ctx, procurement.PaymentInput{InvoiceID: uuid.New(), Status: "Settled"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPaymentRollsBackWhenPostingFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	inv, err := f.svc.CreateInvoice(ctx, procurement.InvoiceInput{VendorID: uuid.New(), Amount: d("100")})
	require.NoError(t, err)
	commits := f.store.Commits()
	f.triggers.err = errors.New("inventory unavailable")

	_, err = f.svc.CreatePayment(ctx, procurement.PaymentInput{InvoiceID: inv.ID, Status: procurement.PaymentStatusCompleted})
	require.ErrorIs(t, err, shared.ErrTransactionFailure)
	require.Equal(t, commits, f.store.Commits())

	_, err = f.svc.GetPayment(ctx, f.triggers.payments[0].PaymentID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
