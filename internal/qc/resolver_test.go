package qc_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/pharmaproc/internal/inventory"
	"github.com/odyssey-erp/pharmaproc/internal/procurement"
	"github.com/odyssey-erp/pharmaproc/internal/qc"
	"github.com/odyssey-erp/pharmaproc/internal/shared"
)

func TestResolveSyncsReceiptAndBatch(t *testing.T) {
	cases := []struct {
		verdict   qc.Status
		grnStatus procurement.QCStatus
		batch     inventory.BatchStatus
	}{
		{qc.StatusPassed, procurement.QCPassed, inventory.BatchApproved},
		{qc.StatusFailed, procurement.QCFailed, inventory.BatchRejected},
	}
	for _, tc := range cases {
		t.Run(string(tc.verdict), func(t *testing.T) {
			h := newHarness()
			ctx := context.Background()
			h.store.AddMaterial("RM-1", "Paracetamol API")
			grn := h.receive(t, true, procurement.GRNItemInput{ItemCode: "RM-1", ReceivedQty: qty(50)})
			insp := h.store.InspectionsForGRN(grn.ID)[0]

			resolved, err := h.resolver.Resolve(ctx, insp.ID, tc.verdict)
			require.NoError(t, err)
			require.Equal(t, tc.verdict, resolved.Status)
			require.NotNil(t, resolved.CompletedAt)

			stored, err := h.procurement.GetGRN(ctx, grn.ID)
			require.NoError(t, err)
			require.Equal(t, tc.grnStatus, stored.QCStatus)
			require.Contains(t, stored.QCRemarks, string(tc.verdict)+" via RMQC updated at")
			require.Equal(t, tc.batch, h.batchByID(t, *insp.BatchID).QCStatus)
			require.Equal(t, 1, h.metrics.verdicts[string(tc.verdict)])
		})
	}
}

func TestResolveWithoutBatchOnlyTouchesReceipt(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	grn := h.receive(t, true, procurement.GRNItemInput{ItemCode: "UNKNOWN", ReceivedQty: qty(1)})
	manual, err := h.qc.CreateInspection(ctx, qc.CreateInput{GRNID: grn.ID})
	require.NoError(t, err)

	_, err = h.qc.Fail(ctx, manual.ID)
	require.NoError(t, err)
	stored, err := h.procurement.GetGRN(ctx, grn.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.QCFailed, stored.QCStatus)
}

func TestResolveOverwritesEarlierVerdict(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.store.AddMaterial("RM-1", "Paracetamol API")
	grn := h.receive(t, true, procurement.GRNItemInput{ItemCode: "RM-1", ReceivedQty: qty(5)})
	insp := h.store.InspectionsForGRN(grn.ID)[0]

	_, err := h.qc.Fail(ctx, insp.ID)
	require.NoError(t, err)
	_, err = h.qc.Pass(ctx, insp.ID)
	require.NoError(t, err)

	require.Equal(t, inventory.BatchApproved, h.batchByID(t, *insp.BatchID).QCStatus)
	stored, err := h.procurement.GetGRN(ctx, grn.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.QCPassed, stored.QCStatus)
}

func TestResolveRollsBackWhenReceiptSyncFails(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.store.AddMaterial("RM-1", "Paracetamol API")
	grn := h.receive(t, true, procurement.GRNItemInput{ItemCode: "RM-1", ReceivedQty: qty(5)})
	insp := h.store.InspectionsForGRN(grn.ID)[0]
	h.store.FailOn("SetGRNQCStatus", errors.New("deadlock detected"))

	_, err := h.qc.Pass(ctx, insp.ID)
	require.ErrorIs(t, err, shared.ErrTransactionFailure)

	stored, err := h.qc.Get(ctx, insp.ID)
	require.NoError(t, err)
	require.Equal(t, qc.StatusPending, stored.Status)
	require.Nil(t, stored.CompletedAt)
	require.Equal(t, inventory.BatchQuarantine, h.batchByID(t, *insp.BatchID).QCStatus)
	require.Empty(t, h.metrics.verdicts)
}

func TestResolveRejectsUnknownVerdictAndInspection(t *testing.T) {
	h := newHarness()
	_, err := h.resolver.Resolve(context.Background(), uuid.New(), qc.StatusPending)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = h.resolver.Resolve(context.Background(), uuid.New(), qc.StatusPassed)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
