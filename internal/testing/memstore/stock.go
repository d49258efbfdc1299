package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/pharmaproc/internal/inventory"
	"github.com/odyssey-erp/pharmaproc/internal/qc"
	"github.com/odyssey-erp/pharmaproc/internal/shared"
)

var _ inventory.RepositoryPort = (*Store)(nil)
var _ qc.RepositoryPort = (*Store)(nil)

// AddMaterial seeds raw material master data.
func (s *Store) AddMaterial(code, name string) inventory.RawMaterial {
	m, err := s.CreateMaterial(context.Background(), inventory.RawMaterial{Code: code, Name: name})
	if err != nil {
		panic(err)
	}
	return m
}

// AddInspector seeds an inspector.
func (s *Store) AddInspector(name string, active bool) qc.Inspector {
	s.mu.Lock()
	defer s.mu.Unlock()
	in := qc.Inspector{ID: uuid.New(), Name: name, Active: active}
	s.st.inspectors[in.ID] = in
	return in
}

// Batches returns every batch.
func (s *Store) Batches() []inventory.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inventory.Batch, 0, len(s.st.batches))
	for _, b := range s.st.batches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BatchNumber < out[j].BatchNumber })
	return out
}

// Records returns every inventory record.
func (s *Store) Records() []inventory.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inventory.Record, 0, len(s.st.records))
	for _, r := range s.st.records {
		out = append(out, r)
	}
	return out
}

// InspectionsForGRN returns the inspections of a goods receipt.
func (s *Store) InspectionsForGRN(grnID uuid.UUID) []qc.Inspection {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []qc.Inspection
	for _, in := range s.st.inspections {
		if in.GRNID == grnID {
			out = append(out, in)
		}
	}
	sortInspections(out)
	return out
}

func (s *Store) FindMaterialByCode(_ context.Context, code string) (inventory.RawMaterial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.st.materials {
		if m.Code == code {
			return m, nil
		}
	}
	return inventory.RawMaterial{}, fmt.Errorf("%w: raw material %s", shared.ErrNotFound, code)
}

func (s *Store) FindMaterialByCodeOrName(_ context.Context, code, name string) (inventory.RawMaterial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code != "" {
		for _, m := range s.st.materials {
			if m.Code == code {
				return m, nil
			}
		}
	}
	if name != "" {
		for _, m := range s.st.materials {
			if m.Name == name {
				return m, nil
			}
		}
	}
	return inventory.RawMaterial{}, fmt.Errorf("%w: raw material %s/%s", shared.ErrNotFound, code, name)
}

func (s *Store) CreateMaterial(ctx context.Context, m inventory.RawMaterial) (inventory.RawMaterial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "CreateMaterial"); err != nil {
		return inventory.RawMaterial{}, err
	}
	for _, existing := range s.st.materials {
		if existing.Code == m.Code {
			return inventory.RawMaterial{}, s.abort(ctx, fmt.Errorf("%w: raw material code %s exists", shared.ErrValidation, m.Code))
		}
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now().UTC()
	s.st.materials[m.ID] = m
	return m, nil
}

func (s *Store) UpsertRecord(ctx context.Context, materialID uuid.UUID, storageCondition string) (inventory.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "UpsertRecord"); err != nil {
		return inventory.Record{}, err
	}
	if rec, ok := s.st.records[materialID]; ok {
		return rec, nil
	}
	rec := inventory.Record{
		ID:               uuid.New(),
		MaterialID:       materialID,
		StorageCondition: storageCondition,
		Status:           inventory.RecordActive,
	}
	s.st.records[materialID] = rec
	return rec, nil
}

func (s *Store) UpsertQuarantineBatch(ctx context.Context, b inventory.Batch) (inventory.Batch, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "UpsertQuarantineBatch"); err != nil {
		return inventory.Batch{}, false, err
	}
	now := time.Now().UTC()
	if id, ok := s.st.batchBySource[b.SourceKey]; ok {
		existing := s.st.batches[id]
		if existing.QCStatus == inventory.BatchQuarantine {
			existing.QuantityAvailable = b.QuantityAvailable
			existing.MfgDate = b.MfgDate
			existing.ExpiryDate = b.ExpiryDate
			existing.WarehouseLocation = b.WarehouseLocation
		}
		existing.UpdatedAt = now
		s.st.batches[id] = existing
		return existing, false, nil
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.QCStatus = inventory.BatchQuarantine
	b.CreatedAt = now
	b.UpdatedAt = now
	s.st.batches[b.ID] = b
	s.st.batchBySource[b.SourceKey] = b.ID
	return b, true, nil
}

func (s *Store) SetBatchStatus(ctx context.Context, id uuid.UUID, status inventory.BatchStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "SetBatchStatus"); err != nil {
		return err
	}
	b, ok := s.st.batches[id]
	if !ok {
		return missing("batch", id)
	}
	b.QCStatus = status
	b.UpdatedAt = time.Now().UTC()
	s.st.batches[id] = b
	return nil
}

func (s *Store) GetBatch(_ context.Context, id uuid.UUID) (inventory.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.st.batches[id]
	if !ok {
		return inventory.Batch{}, missing("batch", id)
	}
	return b, nil
}

func (s *Store) ListBatches(_ context.Context, filter inventory.BatchFilter) ([]inventory.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.Batch
	for _, b := range s.st.batches {
		if filter.InventoryID != uuid.Nil && b.InventoryID != filter.InventoryID {
			continue
		}
		if filter.Status != "" && b.QCStatus != filter.Status {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) CreateInspection(ctx context.Context, in qc.Inspection) (qc.Inspection, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "CreateInspection"); err != nil {
		return qc.Inspection{}, false, err
	}
	if in.SourceKey != nil {
		if _, ok := s.st.inspectionByKey[*in.SourceKey]; ok {
			return qc.Inspection{}, false, nil
		}
	}
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	s.st.inspections[in.ID] = in
	if in.SourceKey != nil {
		s.st.inspectionByKey[*in.SourceKey] = in.ID
	}
	return in, true, nil
}

func (s *Store) DeletePendingByGRN(ctx context.Context, grnID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "DeletePendingByGRN"); err != nil {
		return 0, err
	}
	var removed int64
	for id, in := range s.st.inspections {
		if in.GRNID != grnID || in.Status != qc.StatusPending {
			continue
		}
		delete(s.st.inspections, id)
		if in.SourceKey != nil {
			delete(s.st.inspectionByKey, *in.SourceKey)
		}
		removed++
	}
	return removed, nil
}

func (s *Store) Get(_ context.Context, id uuid.UUID) (qc.Inspection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.st.inspections[id]
	if !ok {
		return qc.Inspection{}, missing("inspection", id)
	}
	return in, nil
}

func (s *Store) List(_ context.Context, filter qc.ListFilter, limit, offset int) ([]qc.Inspection, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []qc.Inspection
	for _, in := range s.st.inspections {
		if filter.GRNID != nil && in.GRNID != *filter.GRNID {
			continue
		}
		if filter.Status != "" && in.Status != filter.Status {
			continue
		}
		matched = append(matched, in)
	}
	sortInspections(matched)
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status qc.Status, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "UpdateStatus"); err != nil {
		return err
	}
	in, ok := s.st.inspections[id]
	if !ok {
		return missing("inspection", id)
	}
	in.Status = status
	in.CompletedAt = &completedAt
	s.st.inspections[id] = in
	return nil
}

func (s *Store) AssignInspector(ctx context.Context, id uuid.UUID, inspector qc.Inspector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "AssignInspector"); err != nil {
		return err
	}
	in, ok := s.st.inspections[id]
	if !ok {
		return missing("inspection", id)
	}
	inspectorID := inspector.ID
	in.InspectorID = &inspectorID
	in.InspectorName = inspector.Name
	s.st.inspections[id] = in
	return nil
}

func (s *Store) GetInspector(_ context.Context, id uuid.UUID) (qc.Inspector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.st.inspectors[id]
	if !ok {
		return qc.Inspector{}, missing("inspector", id)
	}
	return in, nil
}

func (s *Store) PendingSummary(_ context.Context) ([]qc.PendingCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUrgency := map[string]*qc.PendingCount{}
	for _, in := range s.st.inspections {
		if in.Status != qc.StatusPending {
			continue
		}
		pc, ok := byUrgency[string(in.Urgency)]
		if !ok {
			pc = &qc.PendingCount{Urgency: in.Urgency, Oldest: in.CreatedAt}
			byUrgency[string(in.Urgency)] = pc
		}
		pc.Count++
		if in.CreatedAt.Before(pc.Oldest) {
			pc.Oldest = in.CreatedAt
		}
	}
	out := make([]qc.PendingCount, 0, len(byUrgency))
	for _, pc := range byUrgency {
		out = append(out, *pc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Urgency < out[j].Urgency })
	return out, nil
}

func sortInspections(in []qc.Inspection) {
	sort.Slice(in, func(i, j int) bool {
		if !in[i].CreatedAt.Equal(in[j].CreatedAt) {
			return in[i].CreatedAt.After(in[j].CreatedAt)
		}
		return in[i].ID.String() < in[j].ID.String()
	})
}
