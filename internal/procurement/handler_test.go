package procurement_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/pharmaproc/internal/procurement"
	"github.com/odyssey-erp/pharmaproc/internal/shared"
)

func newRouter(f fixture) chi.Router {
	r := chi.NewRouter()
	procurement.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc).MountRoutes(r)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(method, path, reader))
	return rr
}

func TestHandlerRequisitionLifecycle(t *testing.T) {
	f := newFixture()
	r := newRouter(f)

	rr := do(r, http.MethodPost, "/requisitions", `{
		"requested_by": "Ayesha",
		"requisition_date": "2025-03-08",
		"items": [{"item_code": "RM-1", "item_name": "Paracetamol API", "quantity": "10", "estimated_unit_cost": 12.5}]
	}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var req procurement.Requisition
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &req))
	require.Equal(t, "125.00", req.TotalEstimatedCost.StringFixed(2))
	require.Equal(t, "2025-03-08", req.RequisitionDate.Format("2006-01-02"))

	for _, action := range []string{"submit", "approve"} {
		rr = do(r, http.MethodPost, "/requisitions/"+req.ID.String()+"/"+action, "")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}

	rr = do(r, http.MethodGet, "/requisitions/"+req.ID.String()+"/approvals", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var approvals []shared.ApprovalLog
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &approvals))
	require.Len(t, approvals, 2)
	require.Equal(t, shared.ApprovalApprove, approvals[1].Action)

	rr = do(r, http.MethodPut, "/requisitions/"+req.ID.String(), `{"department": "QA"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &req))
	require.Equal(t, procurement.RequisitionPendingApproval, req.Status)

	rr = do(r, http.MethodPost, "/requisitions/"+req.ID.String()+"/convert", "")
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandlerDeleteRequisitionInUse(t *testing.T) {
	f := newFixture()
	r := newRouter(f)
	req := f.approvedRequisition(t)
	f.orderFor(t, req)

	rr := do(r, http.MethodDelete, "/requisitions/"+req.ID.String(), "")
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "PO-20250309-0001")
}

func TestHandlerRejectsBadInput(t *testing.T) {
	f := newFixture()
	r := newRouter(f)

	cases := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodPost, "/requisitions", `{"items": []}`, http.StatusBadRequest},
		{http.MethodPost, "/requisitions", `{"requested_by": "A", "priority": "Critical"}`, http.StatusBadRequest},
		{http.MethodPost, "/purchase-orders", `{"tax_category": "Inclusive"}`, http.StatusBadRequest},
		{http.MethodPost, "/payments", `{"invoice_id": "00000000-0000-0000-0000-000000000009", "method": "Barter"}`, http.StatusBadRequest},
		{http.MethodPost, "/grns", `{"items": [{"item_code": "RM-1", "mfg_date": "yesterday"}]}`, http.StatusBadRequest},
		{http.MethodGet, "/grns/not-a-uuid", "", http.StatusBadRequest},
		{http.MethodGet, "/invoices/00000000-0000-0000-0000-000000000009", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		rr := do(r, tc.method, tc.path, tc.body)
		require.Equal(t, tc.want, rr.Code, "%s %s: %s", tc.method, tc.path, rr.Body.String())
	}
}

func TestHandlerCompletedPaymentPublishes(t *testing.T) {
	f := newFixture()
	r := newRouter(f)

	rr := do(r, http.MethodPost, "/invoices", `{"vendor_id": "7b0d6c1e-4f7c-4a55-9d0e-2d9a1c3b5e10", "amount": "250"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var inv procurement.Invoice
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &inv))

	rr = do(r, http.MethodPost, "/payments", `{"invoice_id": "`+inv.ID.String()+`", "method": "Bank_Transfer", "amount_paid": "250", "status": "Completed"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Len(t, f.triggers.payments, 1)
	require.Equal(t, inv.ID, f.triggers.payments[0].InvoiceID)
}
