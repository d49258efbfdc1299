package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/pharmaproc/internal/procurement"
	"github.com/odyssey-erp/pharmaproc/internal/shared"
)

func TestFailedStatementAbortsUnitOfWork(t *testing.T) {
	store := New()
	store.FailOn("CreateGRN", errors.New("deadlock detected"))
	payment := procurement.Payment{ID: uuid.New(), InvoiceID: uuid.New(), Status: procurement.PaymentStatusPending}

	err := store.WithTx(context.Background(), func(ctx context.Context, tx procurement.TxRepository) error {
		// the caller ignores the failure, the store does not
		_ = tx.CreateGRN(ctx, procurement.GoodsReceipt{ID: uuid.New(), Number: "GRN-1"})
		require.ErrorIs(t, tx.CreatePayment(ctx, payment), ErrTxAborted)
		return nil
	})
	require.ErrorIs(t, err, ErrTxAborted)
	require.Zero(t, store.Commits())

	_, err = store.GetPayment(context.Background(), payment.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestIdempotencyConflictKeepsUnitOfWorkUsable(t *testing.T) {
	store := New()
	ctx := context.Background()
	require.NoError(t, store.CheckAndInsert(ctx, "payment-posting:1", "posting.ledger"))
	payment := procurement.Payment{ID: uuid.New(), InvoiceID: uuid.New(), Status: procurement.PaymentStatusCompleted}

	err := store.WithTx(ctx, func(ctx context.Context, tx procurement.TxRepository) error {
		require.ErrorIs(t, store.CheckAndInsert(ctx, "payment-posting:1", "posting.ledger"), shared.ErrIdempotencyConflict)
		return tx.CreatePayment(ctx, payment)
	})
	require.NoError(t, err)
	require.Equal(t, 1, store.Commits())
}

func TestRolledBackUnitOfWorkDoesNotPoisonTheNext(t *testing.T) {
	store := New()
	ctx := context.Background()
	store.FailOn("UpdatePayment", errors.New("serialization failure"))

	err := store.WithTx(ctx, func(ctx context.Context, tx procurement.TxRepository) error {
		return tx.UpdatePayment(ctx, procurement.Payment{ID: uuid.New()})
	})
	require.Error(t, err)

	store.FailOn("UpdatePayment", nil)
	err = store.WithTx(ctx, func(ctx context.Context, tx procurement.TxRepository) error {
		return tx.CreatePayment(ctx, procurement.Payment{ID: uuid.New()})
	})
	require.NoError(t, err)
}
