// Package qc generates, assigns and resolves quality inspections of received
// raw materials.
package qc

import (
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/pharmaproc/internal/procurement"
	"github.com/odyssey-erp/pharmaproc/internal/shared"
)

// Status of an inspection. Values match the goods receipt QC status.
type Status = procurement.QCStatus

const (
	StatusPending = procurement.QCPending
	StatusPassed  = procurement.QCPassed
	StatusFailed  = procurement.QCFailed
)

// Inspector names used before a person is assigned.
const (
	UnassignedInspector = "Pending Assignment"
	SystemInspector     = "System"
)

// Inspection is a quality check of a received lot.
type Inspection struct {
	ID             uuid.UUID           `db:"id" json:"id"`
	SourceKey      *uuid.UUID          `db:"source_key" json:"-"`
	GRNID          uuid.UUID           `db:"grn_id" json:"grn_id"`
	BatchID        *uuid.UUID          `db:"batch_id" json:"batch_id,omitempty"`
	MaterialID     *uuid.UUID          `db:"material_id" json:"material_id,omitempty"`
	Description    string              `db:"description" json:"description"`
	InspectorID    *uuid.UUID          `db:"inspector_id" json:"inspector_id,omitempty"`
	InspectorName  string              `db:"inspector_name" json:"inspector_name"`
	InspectionDate time.Time           `db:"inspection_date" json:"inspection_date"`
	Status         Status              `db:"status" json:"status"`
	Urgency        procurement.Urgency `db:"urgency" json:"urgency"`
	Remarks        string              `db:"remarks" json:"remarks"`
	CompletedAt    *time.Time          `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
}

// Resolved reports whether the inspection carries a verdict.
func (i Inspection) Resolved() bool {
	return i.Status == StatusPassed || i.Status == StatusFailed
}

// Inspector is a person who can be assigned inspections.
type Inspector struct {
	ID     uuid.UUID `db:"id" json:"id"`
	Name   string    `db:"name" json:"name"`
	Active bool      `db:"active" json:"active"`
}

// ListFilter narrows inspection listings.
type ListFilter struct {
	GRNID   *uuid.UUID
	Status  Status
	Page    int
	PerPage int
}

// PendingCount summarises open inspections per urgency.
type PendingCount struct {
	Urgency procurement.Urgency `db:"urgency"`
	Count   int                 `db:"count"`
	Oldest  time.Time           `db:"oldest"`
}

var (
	// ErrNotFound indicates a missing inspection or inspector.
	ErrNotFound = shared.ErrNotFound
	// ErrInvalidState indicates an inspection cannot change.
	ErrInvalidState = shared.ErrInvalidState
	// ErrValidation indicates bad input.
	ErrValidation = shared.ErrValidation
)
