package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/pharmaproc/internal/shared"
)

// Defaults applied when receipts carry no explicit value.
const (
	DefaultStorageCondition  = "Ambient"
	DefaultWarehouseLocation = "Main Warehouse"
)

// RecordStatus marks whether an inventory record is in use.
type RecordStatus string

const (
	RecordActive   RecordStatus = "Active"
	RecordInactive RecordStatus = "Inactive"
)

// BatchStatus is the QC state of a raw material batch.
type BatchStatus string

const (
	BatchQuarantine BatchStatus = "Quarantine"
	BatchApproved   BatchStatus = "Approved"
	BatchRejected   BatchStatus = "Rejected"
)

// RawMaterial is master data matched by triggers.
type RawMaterial struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Category  string    `db:"category" json:"category"`
	UOM       string    `db:"uom" json:"uom"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Record is the single inventory record kept per raw material.
type Record struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	MaterialID       uuid.UUID       `db:"material_id" json:"material_id"`
	StorageCondition string          `db:"storage_condition" json:"storage_condition"`
	Status           RecordStatus    `db:"status" json:"status"`
	ReorderLevel     decimal.Decimal `db:"reorder_level" json:"reorder_level"`
	SafetyStock      decimal.Decimal `db:"safety_stock" json:"safety_stock"`
}

// Batch is a received lot of a raw material.
type Batch struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	InventoryID       uuid.UUID       `db:"inventory_id" json:"inventory_id"`
	SourceKey         uuid.UUID       `db:"source_key" json:"source_key"`
	BatchNumber       string          `db:"batch_number" json:"batch_number"`
	QuantityAvailable decimal.Decimal `db:"quantity_available" json:"quantity_available"`
	MfgDate           *time.Time      `db:"mfg_date" json:"mfg_date,omitempty"`
	ExpiryDate        *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	WarehouseLocation string          `db:"warehouse_location" json:"warehouse_location"`
	QCStatus          BatchStatus     `db:"qc_status" json:"qc_status"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// BatchFilter narrows batch listings.
type BatchFilter struct {
	InventoryID uuid.UUID
	Status      BatchStatus
	Limit       int
}

// QuarantineInput describes stock received pending QC.
type QuarantineInput struct {
	MaterialID        uuid.UUID
	StorageCondition  string
	SourceKey         uuid.UUID
	BatchNumber       string
	Quantity          decimal.Decimal
	MfgDate           *time.Time
	ExpiryDate        *time.Time
	WarehouseLocation string
}

var (
	// ErrNotFound indicates a missing material, record or batch.
	ErrNotFound = shared.ErrNotFound
	// ErrValidation indicates invalid receipt input.
	ErrValidation = shared.ErrValidation
)
