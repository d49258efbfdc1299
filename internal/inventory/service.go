package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	FindMaterialByCode(ctx context.Context, code string) (RawMaterial, error)
	FindMaterialByCodeOrName(ctx context.Context, code, name string) (RawMaterial, error)
	CreateMaterial(ctx context.Context, m RawMaterial) (RawMaterial, error)
	UpsertRecord(ctx context.Context, materialID uuid.UUID, storageCondition string) (Record, error)
	UpsertQuarantineBatch(ctx context.Context, b Batch) (Batch, bool, error)
	SetBatchStatus(ctx context.Context, id uuid.UUID, status BatchStatus) error
	GetBatch(ctx context.Context, id uuid.UUID) (Batch, error)
	ListBatches(ctx context.Context, filter BatchFilter) ([]Batch, error)
}

// Service coordinates raw material stock held for QC.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// MaterialByCode matches a material by exact code.
func (s *Service) MaterialByCode(ctx context.Context, code string) (RawMaterial, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return RawMaterial{}, fmt.Errorf("%w: empty material code", ErrNotFound)
	}
	return s.repo.FindMaterialByCode(ctx, code)
}

// MaterialByCodeOrName matches a material by code, falling back to name.
func (s *Service) MaterialByCodeOrName(ctx context.Context, code, name string) (RawMaterial, error) {
	code, name = strings.TrimSpace(code), strings.TrimSpace(name)
	if code == "" && name == "" {
		return RawMaterial{}, fmt.Errorf("%w: empty material reference", ErrNotFound)
	}
	return s.repo.FindMaterialByCodeOrName(ctx, code, name)
}

// RegisterMaterial adds raw material master data.
func (s *Service) RegisterMaterial(ctx context.Context, m RawMaterial) (RawMaterial, error) {
	m.Code = strings.TrimSpace(m.Code)
	m.Name = strings.TrimSpace(m.Name)
	if m.Code == "" || m.Name == "" {
		return RawMaterial{}, fmt.Errorf("%w: material code and name required", ErrValidation)
	}
	return s.repo.CreateMaterial(ctx, m)
}

// ReceiveIntoQuarantine finds or creates the material's inventory record and
// places the received quantity in a quarantine batch keyed by in.SourceKey.
// Receiving the same key twice returns the existing batch and created false.
func (s *Service) ReceiveIntoQuarantine(ctx context.Context, in QuarantineInput) (Batch, bool, error) {
	if in.MaterialID == uuid.Nil {
		return Batch{}, false, fmt.Errorf("%w: material required", ErrValidation)
	}
	if in.SourceKey == uuid.Nil {
		return Batch{}, false, fmt.Errorf("%w: source key required", ErrValidation)
	}
	if in.Quantity.IsNegative() {
		return Batch{}, false, fmt.Errorf("%w: negative quantity", ErrValidation)
	}
	storage := strings.TrimSpace(in.StorageCondition)
	if storage == "" {
		storage = DefaultStorageCondition
	}
	record, err := s.repo.UpsertRecord(ctx, in.MaterialID, storage)
	if err != nil {
		return Batch{}, false, fmt.Errorf("inventory: upsert record: %w", err)
	}
	batch, created, err := s.repo.UpsertQuarantineBatch(ctx, Batch{
		InventoryID:       record.ID,
		SourceKey:         in.SourceKey,
		BatchNumber:       in.BatchNumber,
		QuantityAvailable: in.Quantity,
		MfgDate:           in.MfgDate,
		ExpiryDate:        in.ExpiryDate,
		WarehouseLocation: in.WarehouseLocation,
	})
	if err != nil {
		return Batch{}, false, fmt.Errorf("inventory: upsert batch: %w", err)
	}
	if !created {
		s.logger.Debug("quarantine batch reused",
			slog.String("batch_id", batch.ID.String()),
			slog.String("batch_number", batch.BatchNumber),
			slog.String("qc_status", string(batch.QCStatus)))
	}
	return batch, created, nil
}

// ApplyVerdict moves a batch out of quarantine.
func (s *Service) ApplyVerdict(ctx context.Context, batchID uuid.UUID, passed bool) error {
	status := BatchRejected
	if passed {
		status = BatchApproved
	}
	return s.repo.SetBatchStatus(ctx, batchID, status)
}

// Batch returns a batch by id.
func (s *Service) Batch(ctx context.Context, id uuid.UUID) (Batch, error) {
	return s.repo.GetBatch(ctx, id)
}

// Batches lists batches.
func (s *Service) Batches(ctx context.Context, filter BatchFilter) ([]Batch, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.ListBatches(ctx, filter)
}
