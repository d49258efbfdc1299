package qc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/pharmaproc/internal/procurement"
	"github.com/odyssey-erp/pharmaproc/internal/shared"
)

// RepositoryPort is the inspection store used by Service.
type RepositoryPort interface {
	CreateInspection(ctx context.Context, in Inspection) (Inspection, bool, error)
	Get(ctx context.Context, id uuid.UUID) (Inspection, error)
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]Inspection, int, error)
	AssignInspector(ctx context.Context, id uuid.UUID, inspector Inspector) error
	GetInspector(ctx context.Context, id uuid.UUID) (Inspector, error)
	PendingSummary(ctx context.Context) ([]PendingCount, error)
}

// AssignmentNotifier is told about assignments after they commit.
type AssignmentNotifier interface {
	NotifyInspectionAssigned(ctx context.Context, inspectionID, inspectorID uuid.UUID) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	UnitOfWork UnitOfWork
	Repo       RepositoryPort
	Resolver   *Resolver
	Notifier   AssignmentNotifier
	Audit      AuditPort
	Metrics    Metrics
	Logger     *slog.Logger
}

// Service exposes inspection operations.
type Service struct {
	uow      UnitOfWork
	repo     RepositoryPort
	resolver *Resolver
	notifier AssignmentNotifier
	audit    AuditPort
	metrics  Metrics
	logger   *slog.Logger
	now      func() time.Time
	lists    singleflight.Group
}

// NewService constructs Service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		uow:      cfg.UnitOfWork,
		repo:     cfg.Repo,
		resolver: cfg.Resolver,
		notifier: cfg.Notifier,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		now:      time.Now,
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// CreateInput describes a manually opened inspection.
type CreateInput struct {
	GRNID          uuid.UUID
	BatchID        *uuid.UUID
	MaterialID     *uuid.UUID
	Description    string
	InspectorName  string
	InspectionDate time.Time
	Urgency        procurement.Urgency
	Remarks        string
}

// ListResult is a page of inspections.
type ListResult struct {
	Items      []Inspection      `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// CreateInspection opens an inspection by hand. The goods receipt must exist
// and require QC.
func (s *Service) CreateInspection(ctx context.Context, in CreateInput) (Inspection, error) {
	if in.GRNID == uuid.Nil {
		return Inspection{}, fmt.Errorf("%w: goods receipt is required", ErrValidation)
	}
	urgency := in.Urgency
	if urgency == "" {
		urgency = procurement.UrgencyNormal
	}
	if urgency != procurement.UrgencyNormal && urgency != procurement.UrgencyUrgent {
		return Inspection{}, fmt.Errorf("%w: unknown urgency %q", ErrValidation, urgency)
	}
	now := s.now().UTC()
	date := in.InspectionDate
	if date.IsZero() {
		date = now
	}
	inspector := strings.TrimSpace(in.InspectorName)
	if inspector == "" {
		inspector = UnassignedInspector
	}

	var created Inspection
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx procurement.TxRepository) error {
		grn, err := tx.GetGRN(ctx, in.GRNID)
		if err != nil {
			return err
		}
		if !grn.QCRequired {
			return fmt.Errorf("%w: goods receipt %s does not require QC", ErrInvalidState, grn.Number)
		}
		description := in.Description
		if description == "" {
			description = "Manual inspection for GRN " + grn.Number
		}
		created, _, err = s.repo.CreateInspection(ctx, Inspection{
			ID:             uuid.New(),
			GRNID:          grn.ID,
			BatchID:        in.BatchID,
			MaterialID:     in.MaterialID,
			Description:    description,
			InspectorName:  inspector,
			InspectionDate: date,
			Status:         StatusPending,
			Urgency:        urgency,
			Remarks:        in.Remarks,
			CreatedAt:      now,
		})
		return err
	})
	if err != nil {
		return Inspection{}, shared.WrapTxError(err)
	}
	s.metrics.InspectionCreated("manual")
	s.recordAudit(ctx, "QC_CREATE", created.ID, map[string]any{"grn_id": created.GRNID.String()})
	return created, nil
}

// AssignInspector hands an open inspection to an active inspector. The
// notifier runs after commit; its failure is logged, not returned.
func (s *Service) AssignInspector(ctx context.Context, id, inspectorID uuid.UUID) (Inspection, error) {
	var assigned Inspection
	err := s.uow.WithTx(ctx, func(ctx context.Context, _ procurement.TxRepository) error {
		inspector, err := s.repo.GetInspector(ctx, inspectorID)
		if err != nil {
			return err
		}
		if !inspector.Active {
			return fmt.Errorf("%w: inspector %s is inactive", ErrValidation, inspector.Name)
		}
		insp, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if insp.Resolved() {
			return fmt.Errorf("%w: inspection %s is already %s", ErrInvalidState, id, insp.Status)
		}
		if err := s.repo.AssignInspector(ctx, id, inspector); err != nil {
			return err
		}
		insp.InspectorID = &inspector.ID
		insp.InspectorName = inspector.Name
		assigned = insp
		return nil
	})
	if err != nil {
		return Inspection{}, shared.WrapTxError(err)
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyInspectionAssigned(ctx, id, inspectorID); err != nil {
			s.logger.Warn("notify inspection assignment",
				slog.String("inspection_id", id.String()),
				slog.Any("error", err))
		}
	}
	s.recordAudit(ctx, "QC_ASSIGN", id, map[string]any{"inspector": assigned.InspectorName})
	return assigned, nil
}

// Get returns an inspection.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Inspection, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of inspections. Identical concurrent requests share one
// query, which runs detached from any single caller's cancellation. A caller
// whose context ends stops waiting without cancelling the others.
func (s *Service) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	if filter.Status != "" && filter.Status != StatusPending && filter.Status != StatusPassed && filter.Status != StatusFailed {
		return ListResult{}, fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
	}
	page, perPage := shared.NormalisePage(filter.Page, filter.PerPage)
	grn := ""
	if filter.GRNID != nil {
		grn = filter.GRNID.String()
	}
	key := fmt.Sprintf("%s|%s|%d|%d", grn, filter.Status, page, perPage)
	detached := context.WithoutCancel(ctx)
	ch := s.lists.DoChan(key, func() (any, error) {
		items, total, err := s.repo.List(detached, filter, perPage, shared.Offset(page, perPage))
		if err != nil {
			return nil, err
		}
		return ListResult{Items: items, Pagination: shared.NewPagination(page, perPage, total)}, nil
	})
	select {
	case <-ctx.Done():
		return ListResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return ListResult{}, res.Err
		}
		return res.Val.(ListResult), nil
	}
}

// Pass records a passing verdict.
func (s *Service) Pass(ctx context.Context, id uuid.UUID) (Inspection, error) {
	return s.resolver.Pass(ctx, id)
}

// Fail records a failing verdict.
func (s *Service) Fail(ctx context.Context, id uuid.UUID) (Inspection, error) {
	return s.resolver.Fail(ctx, id)
}

// PendingDigest summarises open inspections per urgency.
func (s *Service) PendingDigest(ctx context.Context) ([]PendingCount, error) {
	return s.repo.PendingSummary(ctx)
}

func (s *Service) recordAudit(ctx context.Context, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "qc",
		EntityID: id.String(),
		Meta:     meta,
		At:       s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}
