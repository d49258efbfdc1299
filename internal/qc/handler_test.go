package qc_test

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
	"github.com/odyssey-erp/pharmaproc/internal/qc"
)

func TestHandlerListAndResolve(t *testing.T) {
	h := newHarness()
	h.store.AddMaterial("RM-1", "Paracetamol API")
	grn := h.receive(t, true, procurement.GRNItemInput{ItemCode: "RM-1", ReceivedQty: qty(5)})
	r := chi.NewRouter()
	qc.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), h.qc).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/inspections?grn_id="+grn.ID.String()+"&status=Pending", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var list qc.ListResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	id := list.Items[0].ID.String()

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/inspections/"+id+"/fail", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var insp qc.Inspection
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &insp))
	require.Equal(t, qc.StatusFailed, insp.Status)

	inspector := h.store.AddInspector("Sana", true)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/inspections/"+id+"/assign",
		strings.NewReader(`{"inspector_id":"`+inspector.ID.String()+`"}`)))
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandlerCreateValidates(t *testing.T) {
	h := newHarness()
	grn := h.receive(t, true)
	r := chi.NewRouter()
	qc.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), h.qc).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/inspections", strings.NewReader(`{"urgency":"Urgent"}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/inspections",
		strings.NewReader(`{"grn_id":"`+grn.ID.String()+`","urgency":"Urgent","inspection_date":"2025-03-10"}`)))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var insp qc.Inspection
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &insp))
	require.Equal(t, procurement.UrgencyUrgent, insp.Urgency)
	require.Equal(t, "2025-03-10", insp.InspectionDate.Format("2006-01-02"))

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/inspections?grn_id=nope", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
