package inventory

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/pharmaproc/internal/platform/db"
)

// Repository persists raw materials, inventory records and batches. Every
// method joins the transaction carried by ctx when there is one.
type Repository struct {
	pool *pgxpool.Pool
	psql sq.StatementBuilderType
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

const materialColumns = `id, code, name, COALESCE(category,'') AS category, COALESCE(uom,'') AS uom, created_at`

const batchColumns = `id, inventory_id, source_key, batch_number, quantity_available, mfg_date, expiry_date,
COALESCE(warehouse_location,'') AS warehouse_location, qc_status, created_at, updated_at`

func notFound(err error, what string) error {
	if pgxscan.NotFound(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}

// FindMaterialByCode matches a raw material by exact code.
func (r *Repository) FindMaterialByCode(ctx context.Context, code string) (RawMaterial, error) {
	var m RawMaterial
	err := pgxscan.Get(ctx, db.Conn(ctx, r.pool), &m, `SELECT `+materialColumns+` FROM raw_materials WHERE code=$1`, code)
	if err != nil {
		return RawMaterial{}, notFound(err, "raw material "+code)
	}
	return m, nil
}

// FindMaterialByCodeOrName matches by code first and then by name.
func (r *Repository) FindMaterialByCodeOrName(ctx context.Context, code, name string) (RawMaterial, error) {
	var m RawMaterial
	err := pgxscan.Get(ctx, db.Conn(ctx, r.pool), &m, `SELECT `+materialColumns+` FROM raw_materials
WHERE ($1 <> '' AND code=$1) OR ($2 <> '' AND name=$2)
ORDER BY (code=$1) DESC, created_at ASC LIMIT 1`, code, name)
	if err != nil {
		return RawMaterial{}, notFound(err, fmt.Sprintf("raw material %s/%s", code, name))
	}
	return m, nil
}

// CreateMaterial inserts master data.
func (r *Repository) CreateMaterial(ctx context.Context, m RawMaterial) (RawMaterial, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	err := pgxscan.Get(ctx, db.Conn(ctx, r.pool), &m, `INSERT INTO raw_materials (id, code, name, category, uom, created_at)
VALUES ($1, $2, $3, NULLIF($4,''), NULLIF($5,''), NOW()) RETURNING `+materialColumns, m.ID, m.Code, m.Name, m.Category, m.UOM)
	if err != nil {
		if db.IsUniqueViolation(err, "raw_materials_code_key") {
			return RawMaterial{}, fmt.Errorf("%w: raw material code %s exists", ErrValidation, m.Code)
		}
		return RawMaterial{}, err
	}
	return m, nil
}

// UpsertRecord returns the inventory record of a material, creating it when
// missing. The storage condition of an existing record is left untouched.
func (r *Repository) UpsertRecord(ctx context.Context, materialID uuid.UUID, storageCondition string) (Record, error) {
	var rec Record
	err := pgxscan.Get(ctx, db.Conn(ctx, r.pool), &rec, `INSERT INTO raw_material_inventory (id, material_id, storage_condition, status, created_at)
VALUES ($1, $2, $3, 'Active', NOW())
ON CONFLICT (material_id) DO UPDATE SET material_id = EXCLUDED.material_id
RETURNING id, material_id, storage_condition, status, reorder_level, safety_stock`, uuid.New(), materialID, storageCondition)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// UpsertQuarantineBatch inserts a batch keyed by its source key. A batch that
// already exists keeps its identity; while still in quarantine its quantity,
// dates and location follow the latest receipt. created reports an insert.
func (r *Repository) UpsertQuarantineBatch(ctx context.Context, b Batch) (Batch, bool, error) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	var row struct {
		Batch
		Inserted bool `db:"inserted"`
	}
	err := pgxscan.Get(ctx, db.Conn(ctx, r.pool), &row, `INSERT INTO raw_material_batches
(id, inventory_id, source_key, batch_number, quantity_available, mfg_date, expiry_date, warehouse_location, qc_status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'Quarantine', NOW(), NOW())
ON CONFLICT (source_key) DO UPDATE SET
	quantity_available = CASE WHEN raw_material_batches.qc_status = 'Quarantine' THEN EXCLUDED.quantity_available ELSE raw_material_batches.quantity_available END,
	mfg_date = CASE WHEN raw_material_batches.qc_status = 'Quarantine' THEN EXCLUDED.mfg_date ELSE raw_material_batches.mfg_date END,
	expiry_date = CASE WHEN raw_material_batches.qc_status = 'Quarantine' THEN EXCLUDED.expiry_date ELSE raw_material_batches.expiry_date END,
	warehouse_location = CASE WHEN raw_material_batches.qc_status = 'Quarantine' THEN EXCLUDED.warehouse_location ELSE raw_material_batches.warehouse_location END,
	updated_at = NOW()
RETURNING `+batchColumns+`, (xmax = 0) AS inserted`,
		b.ID, b.InventoryID, b.SourceKey, b.BatchNumber, b.QuantityAvailable, b.MfgDate, b.ExpiryDate, b.WarehouseLocation)
	if err != nil {
		return Batch{}, false, err
	}
	return row.Batch, row.Inserted, nil
}

// SetBatchStatus records a QC outcome on a batch.
func (r *Repository) SetBatchStatus(ctx context.Context, id uuid.UUID, status BatchStatus) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE raw_material_batches SET qc_status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: batch %s", ErrNotFound, id)
	}
	return nil
}

// GetBatch loads a batch.
func (r *Repository) GetBatch(ctx context.Context, id uuid.UUID) (Batch, error) {
	var b Batch
	err := pgxscan.Get(ctx, db.Conn(ctx, r.pool), &b, `SELECT `+batchColumns+` FROM raw_material_batches WHERE id=$1`, id)
	if err != nil {
		return Batch{}, notFound(err, "batch "+id.String())
	}
	return b, nil
}

// ListBatches returns batches matching filter, newest first.
func (r *Repository) ListBatches(ctx context.Context, filter BatchFilter) ([]Batch, error) {
	query := r.psql.Select(batchColumns).From("raw_material_batches").OrderBy("created_at DESC")
	if filter.InventoryID != uuid.Nil {
		query = query.Where(sq.Eq{"inventory_id": filter.InventoryID})
	}
	if filter.Status != "" {
		query = query.Where(sq.Eq{"qc_status": string(filter.Status)})
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	var batches []Batch
	if err := pgxscan.Select(ctx, db.Conn(ctx, r.pool), &batches, sql, args...); err != nil {
		return nil, err
	}
	return batches, nil
}
