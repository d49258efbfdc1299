package numbering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// documentTables maps a prefix to the table holding its numbers.
var documentTables = map[string]string{
	PrefixRequisition:   "purchase_requisitions",
	PrefixPurchaseOrder: "purchase_orders",
	PrefixGRN:           "goods_receipts",
	PrefixInvoice:       "invoices",
}

// Counter allocates document numbers from an atomic per-prefix counter. It
// always runs on the pool, outside any caller transaction, so a rolled back
// document never hands its number to a concurrent request.
type Counter struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewCounter constructs a Counter.
func NewCounter(pool *pgxpool.Pool) *Counter {
	return &Counter{pool: pool, now: time.Now}
}

// Next increments the counter for prefix and formats today's number. A prefix
// without a counter row resumes after the newest stored document number.
func (c *Counter) Next(ctx context.Context, prefix string) (string, error) {
	if c == nil || c.pool == nil {
		return "", errors.New("numbering: counter not initialised")
	}
	if prefix == "" {
		return "", errors.New("numbering: prefix required")
	}
	var n int64
	err := c.pool.QueryRow(ctx, `UPDATE doc_sequences SET current_val = current_val + 1, updated_at = NOW()
WHERE prefix=$1 RETURNING current_val`, prefix).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		n, err = c.seed(ctx, prefix)
	}
	if err != nil {
		return "", fmt.Errorf("numbering: next %s: %w", prefix, err)
	}
	return Format(prefix, c.now(), n), nil
}

// seed creates the counter row from the newest stored number. A concurrent
// request that created the row first simply gets incremented.
func (c *Counter) seed(ctx context.Context, prefix string) (int64, error) {
	last, err := c.lastNumber(ctx, prefix)
	if err != nil {
		return 0, err
	}
	const query = `
INSERT INTO doc_sequences (prefix, current_val, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (prefix) DO UPDATE
SET current_val = doc_sequences.current_val + 1, updated_at = NOW()
RETURNING current_val`
	var n int64
	if err := c.pool.QueryRow(ctx, query, prefix, Seed(last)+1).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *Counter) lastNumber(ctx context.Context, prefix string) (string, error) {
	table, ok := documentTables[prefix]
	if !ok {
		return "", nil
	}
	var last string
	err := c.pool.QueryRow(ctx, `SELECT number FROM `+table+`
WHERE number LIKE $1 ORDER BY created_at DESC, number DESC LIMIT 1`, prefix+"-%").Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return last, err
}
