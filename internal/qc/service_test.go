package qc_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/pharmaproc/internal/procurement"
	"github.com/odyssey-erp/pharmaproc/internal/qc"
	"github.com/odyssey-erp/pharmaproc/internal/shared"
)

func TestCreateInspectionRequiresQCReceipt(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	plain := h.receive(t, false, procurement.GRNItemInput{ItemCode: "RM-1", ReceivedQty: qty(1)})

	_, err := h.qc.CreateInspection(ctx, qc.CreateInput{GRNID: plain.ID})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	_, err = h.qc.CreateInspection(ctx, qc.CreateInput{GRNID: uuid.New()})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = h.qc.CreateInspection(ctx, qc.CreateInput{})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateInspectionDefaults(t *testing.T) {
	h := newHarness()
	ctx := shared.ContextWithActor(context.Background(), "qa.lead")
	grn := h.receive(t, true)

	insp, err := h.qc.CreateInspection(ctx, qc.CreateInput{GRNID: grn.ID})
	require.NoError(t, err)
	require.Equal(t, qc.StatusPending, insp.Status)
	require.Equal(t, procurement.UrgencyNormal, insp.Urgency)
	require.Equal(t, qc.UnassignedInspector, insp.InspectorName)
	require.Equal(t, "Manual inspection for GRN "+grn.Number, insp.Description)
	require.Nil(t, insp.SourceKey)
	require.False(t, insp.InspectionDate.IsZero())

	entries := h.store.Audit().Entries()
	require.Equal(t, "QC_CREATE", entries[len(entries)-1].Action)
	require.Equal(t, "qa.lead", entries[len(entries)-1].Actor)
}

func TestAssignInspector(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.store.AddMaterial("RM-1", "Paracetamol API")
	grn := h.receive(t, true, procurement.GRNItemInput{ItemCode: "RM-1", ReceivedQty: qty(5)})
	insp := h.store.InspectionsForGRN(grn.ID)[0]
	active := h.store.AddInspector("Sana", true)
	retired := h.store.AddInspector("Imran", false)

	_, err := h.qc.AssignInspector(ctx, insp.ID, retired.ID)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, h.notifier.calls)

	assigned, err := h.qc.AssignInspector(ctx, insp.ID, active.ID)
	require.NoError(t, err)
	require.Equal(t, "Sana", assigned.InspectorName)
	require.Equal(t, active.ID, *assigned.InspectorID)
	require.Equal(t, [][2]uuid.UUID{{insp.ID, active.ID}}, h.notifier.calls)

	_, err = h.qc.Pass(ctx, insp.ID)
	require.NoError(t, err)
	_, err = h.qc.AssignInspector(ctx, insp.ID, active.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestAssignInspectorSurvivesNotifierFailure(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	grn := h.receive(t, true)
	insp, err := h.qc.CreateInspection(ctx, qc.CreateInput{GRNID: grn.ID})
	require.NoError(t, err)
	inspector := h.store.AddInspector("Sana", true)
	h.notifier.err = errors.New("redis down")

	_, err = h.qc.AssignInspector(ctx, insp.ID, inspector.ID)
	require.NoError(t, err)

	stored, err := h.qc.Get(ctx, insp.ID)
	require.NoError(t, err)
	require.Equal(t, "Sana", stored.InspectorName)
}

func TestListFiltersAndPaginates(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.store.AddMaterial("RM-1", "Paracetamol API")
	first := h.receive(t, true,
		procurement.GRNItemInput{ItemCode: "RM-1", ReceivedQty: qty(1), BatchNumber: "A"},
		procurement.GRNItemInput{ItemCode: "RM-1", ReceivedQty: qty(2), BatchNumber: "B"},
		procurement.GRNItemInput{ItemCode: "RM-1", ReceivedQty: qty(3), BatchNumber: "C"},
	)
	h.receive(t, true, procurement.GRNItemInput{ItemCode: "RM-1", ReceivedQty: qty(4)})

	all, err := h.qc.List(ctx, qc.ListFilter{})
	require.NoError(t, err)
	require.Equal(t, 4, all.Pagination.Total)

	page, err := h.qc.List(ctx, qc.ListFilter{GRNID: &first.ID, Page: 2, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, 3, page.Pagination.Total)
	require.Equal(t, 2, page.Pagination.TotalPages)

	_, err = h.qc.Pass(ctx, page.Items[0].ID)
	require.NoError(t, err)
	passed, err := h.qc.List(ctx, qc.ListFilter{Status: qc.StatusPassed})
	require.NoError(t, err)
	require.Len(t, passed.Items, 1)

	_, err = h.qc.List(ctx, qc.ListFilter{Status: "Maybe"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

type blockingList struct {
	qc.RepositoryPort
	started chan struct{}
	release chan struct{}
	seen    chan error
}

func (b *blockingList) List(ctx context.Context, _ qc.ListFilter, _, _ int) ([]qc.Inspection, int, error) {
	close(b.started)
	<-b.release
	b.seen <- ctx.Err()
	return nil, 0, ctx.Err()
}

func TestListOutlivesCancelledCaller(t *testing.T) {
	repo := &blockingList{
		started: make(chan struct{}),
		release: make(chan struct{}),
		seen:    make(chan error, 1),
	}
	svc := qc.NewService(qc.ServiceConfig{Repo: repo})

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := svc.List(ctx, qc.ListFilter{})
		errs <- err
	}()
	<-repo.started
	cancel()
	require.ErrorIs(t, <-errs, context.Canceled)

	close(repo.release)
	require.NoError(t, <-repo.seen)
}

func TestPendingDigestGroupsByUrgency(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.store.AddMaterial("RM-1", "Paracetamol API")
	h.receive(t, true, procurement.GRNItemInput{ItemCode: "RM-1", ReceivedQty: qty(1)})
	_, err := h.procurement.CreateGRN(ctx, procurement.GRNInput{
		QCRequired: true,
		Urgency:    procurement.UrgencyUrgent,
		Items: []procurement.GRNItemInput{
			{ItemCode: "RM-1", ReceivedQty: qty(1), BatchNumber: "U1"},
			{ItemCode: "RM-1", ReceivedQty: qty(1), BatchNumber: "U2"},
		},
	})
	require.NoError(t, err)

	digest, err := h.qc.PendingDigest(ctx)
	require.NoError(t, err)
	require.Len(t, digest, 2)
	require.Equal(t, procurement.UrgencyNormal, digest[0].Urgency)
	require.Equal(t, 1, digest[0].Count)
	require.Equal(t, procurement.UrgencyUrgent, digest[1].Urgency)
	require.Equal(t, 2, digest[1].Count)
}
