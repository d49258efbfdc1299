package qc

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/pharmaproc/internal/platform/db"
)

// Repository persists inspections and inspectors. Writes join the transaction
// carried by ctx.
type Repository struct {
	pool *pgxpool.Pool
	psql sq.StatementBuilderType
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

const inspectionColumns = `id, source_key, grn_id, batch_id, material_id, description, inspector_id, inspector_name,
inspection_date, status, urgency, remarks, completed_at, created_at`

var inspectionColumnList = []string{
	"id", "source_key", "grn_id", "batch_id", "material_id", "description", "inspector_id", "inspector_name",
	"inspection_date", "status", "urgency", "remarks", "completed_at", "created_at",
}

// CreateInspection inserts an inspection. An inspection whose source key
// already exists is left alone and created reports false.
func (r *Repository) CreateInspection(ctx context.Context, in Inspection) (Inspection, bool, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	var out Inspection
	err := pgxscan.Get(ctx, db.Conn(ctx, r.pool), &out, `INSERT INTO quality_inspections
(id, source_key, grn_id, batch_id, material_id, description, inspector_id, inspector_name, inspection_date, status, urgency, remarks, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (source_key) DO NOTHING
RETURNING `+inspectionColumns,
		in.ID, in.SourceKey, in.GRNID, in.BatchID, in.MaterialID, in.Description, in.InspectorID, in.InspectorName,
		in.InspectionDate, in.Status, in.Urgency, in.Remarks, in.CreatedAt)
	if pgxscan.NotFound(err) {
		return Inspection{}, false, nil
	}
	if err != nil {
		return Inspection{}, false, err
	}
	return out, true, nil
}

// DeletePendingByGRN removes the open inspections of a goods receipt.
func (r *Repository) DeletePendingByGRN(ctx context.Context, grnID uuid.UUID) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM quality_inspections WHERE grn_id=$1 AND status='Pending'`, grnID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Get returns an inspection.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Inspection, error) {
	var out Inspection
	err := pgxscan.Get(ctx, db.Conn(ctx, r.pool), &out, `SELECT `+inspectionColumns+` FROM quality_inspections WHERE id=$1`, id)
	if pgxscan.NotFound(err) {
		return Inspection{}, fmt.Errorf("%w: inspection %s", ErrNotFound, id)
	}
	return out, err
}

// List returns a page of inspections and the total matching the filter.
func (r *Repository) List(ctx context.Context, filter ListFilter, limit, offset int) ([]Inspection, int, error) {
	q := r.psql.Select(inspectionColumnList...).From("quality_inspections")
	if filter.GRNID != nil {
		q = q.Where(sq.Eq{"grn_id": *filter.GRNID})
	}
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": filter.Status})
	}

	querier := db.Conn(ctx, r.pool)
	countSQL, countArgs, err := r.psql.Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	var total int
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	q = q.OrderBy("created_at DESC", "id").Limit(uint64(limit)).Offset(uint64(offset))
	query, args, err := q.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query: %w", err)
	}
	var items []Inspection
	if err := pgxscan.Select(ctx, querier, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("select: %w", err)
	}
	return items, total, nil
}

// UpdateStatus records a verdict.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, completedAt time.Time) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE quality_inspections SET status=$2, completed_at=$3 WHERE id=$1`, id, status, completedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: inspection %s", ErrNotFound, id)
	}
	return nil
}

// AssignInspector sets the inspector of an inspection.
func (r *Repository) AssignInspector(ctx context.Context, id uuid.UUID, inspector Inspector) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE quality_inspections SET inspector_id=$2, inspector_name=$3 WHERE id=$1`, id, inspector.ID, inspector.Name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: inspection %s", ErrNotFound, id)
	}
	return nil
}

// GetInspector returns an inspector.
func (r *Repository) GetInspector(ctx context.Context, id uuid.UUID) (Inspector, error) {
	var out Inspector
	err := pgxscan.Get(ctx, db.Conn(ctx, r.pool), &out, `SELECT id, name, active FROM qc_inspectors WHERE id=$1`, id)
	if pgxscan.NotFound(err) {
		return Inspector{}, fmt.Errorf("%w: inspector %s", ErrNotFound, id)
	}
	return out, err
}

// PendingSummary groups open inspections by urgency.
func (r *Repository) PendingSummary(ctx context.Context) ([]PendingCount, error) {
	var out []PendingCount
	err := pgxscan.Select(ctx, db.Conn(ctx, r.pool), &out, `SELECT urgency, COUNT(*) AS count, MIN(created_at) AS oldest
FROM quality_inspections WHERE status='Pending' GROUP BY urgency ORDER BY urgency`)
	return out, err
}
