package shared

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/pharmaproc/internal/platform/db"
)

// TrashArchiver keeps a JSON snapshot of deleted documents.
type TrashArchiver struct {
	pool *pgxpool.Pool
}

// NewTrashArchiver constructs the archiver.
func NewTrashArchiver(pool *pgxpool.Pool) *TrashArchiver {
	return &TrashArchiver{pool: pool}
}

// Archive stores data under the original table and id. It joins the
// transaction carried by ctx so the snapshot and the delete commit together.
func (a *TrashArchiver) Archive(ctx context.Context, table string, id uuid.UUID, data any) error {
	if a == nil {
		return errors.New("trash archiver not initialised")
	}
	if table == "" || id == uuid.Nil {
		return errors.New("trash requires table and id")
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = db.Conn(ctx, a.pool).Exec(ctx, `INSERT INTO trash (original_table, original_id, data, deleted_at) VALUES ($1, $2, $3, NOW())`, table, id, payload)
	return err
}
