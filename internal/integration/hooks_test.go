package integration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/pharmaproc/internal/procurement"
)

type stubGRN struct {
	events []procurement.GRNQcRequired
	err    error
}

func (s *stubGRN) HandleGRNQcRequired(_ context.Context, _ procurement.TxRepository, evt procurement.GRNQcRequired) error {
	s.events = append(s.events, evt)
	return s.err
}

type stubPayment struct {
	events []procurement.PaymentCompleted
	err    error
}

func (s *stubPayment) HandlePaymentCompleted(_ context.Context, _ procurement.TxRepository, evt procurement.PaymentCompleted) error {
	s.events = append(s.events, evt)
	return s.err
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestHooksForwardEvents(t *testing.T) {
	grn := &stubGRN{}
	payment := &stubPayment{}
	hooks := NewHooks(grn, payment, discard())
	ctx := context.Background()

	require.NoError(t, hooks.HandleGRNQcRequired(ctx, nil, procurement.GRNQcRequired{GRNNumber: "GRN-1", Regenerate: true}))
	require.NoError(t, hooks.HandlePaymentCompleted(ctx, nil, procurement.PaymentCompleted{PaymentID: uuid.New()}))
	require.Len(t, grn.events, 1)
	require.True(t, grn.events[0].Regenerate)
	require.Len(t, payment.events, 1)
}

func TestHooksWrapHandlerErrors(t *testing.T) {
	cause := errors.New("boom")
	hooks := NewHooks(&stubGRN{err: cause}, &stubPayment{err: cause}, discard())

	err := hooks.HandleGRNQcRequired(context.Background(), nil, procurement.GRNQcRequired{GRNNumber: "GRN-7"})
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "GRN-7")

	err = hooks.HandlePaymentCompleted(context.Background(), nil, procurement.PaymentCompleted{})
	require.ErrorIs(t, err, cause)
}

func TestHooksWithoutHandlersAreNoops(t *testing.T) {
	hooks := NewHooks(nil, nil, nil)
	require.NoError(t, hooks.HandleGRNQcRequired(context.Background(), nil, procurement.GRNQcRequired{}))
	require.NoError(t, hooks.HandlePaymentCompleted(context.Background(), nil, procurement.PaymentCompleted{}))

	var unset *Hooks
	require.NoError(t, unset.HandlePaymentCompleted(context.Background(), nil, procurement.PaymentCompleted{}))
}
