package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/pharmaproc/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRequisition(ctx context.Context, id uuid.UUID) (Requisition, error)
	GetPurchaseOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error)
	GetGRN(ctx context.Context, id uuid.UUID) (GoodsReceipt, error)
	GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error)
	GetPayment(ctx context.Context, id uuid.UUID) (Payment, error)
}

// Sequencer allocates document numbers.
type Sequencer interface {
	Next(ctx context.Context, prefix string) (string, error)
}

// ApprovalPort records requisition approval history inside the unit of work.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// TrashPort archives deleted documents inside the unit of work.
type TrashPort interface {
	Archive(ctx context.Context, table string, id uuid.UUID, data any) error
}

// Locker serialises edits of one document across requests.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// ServiceConfig groups Service dependencies. Repo and Numbers are required.
type ServiceConfig struct {
	Repo          RepositoryPort
	Numbers       Sequencer
	Triggers      TriggerHandler
	Approvals     ApprovalPort
	Audit         AuditPort
	Trash         TrashPort
	Locker        Locker
	Logger        *slog.Logger
	NumberRetries int
	Now           func() time.Time
}

// Service orchestrates the procurement document lifecycle.
type Service struct {
	repo          RepositoryPort
	numbers       Sequencer
	triggers      TriggerHandler
	approvals     ApprovalPort
	audit         AuditPort
	trash         TrashPort
	locker        Locker
	logger        *slog.Logger
	numberRetries int
	now           func() time.Time
}

// NewService constructs procurement service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:          cfg.Repo,
		numbers:       cfg.Numbers,
		triggers:      cfg.Triggers,
		approvals:     cfg.Approvals,
		audit:         cfg.Audit,
		trash:         cfg.Trash,
		locker:        cfg.Locker,
		logger:        cfg.Logger,
		numberRetries: cfg.NumberRetries,
		now:           cfg.Now,
	}
	if s.triggers == nil {
		s.triggers = noopTriggers{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.numberRetries <= 0 {
		s.numberRetries = 3
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// inTx runs fn in a unit of work and classifies escaping store errors.
func (s *Service) inTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return shared.WrapTxError(s.repo.WithTx(ctx, fn))
}

// withNumber runs create with the caller's number, or with freshly allocated
// numbers until one is not taken.
func (s *Service) withNumber(ctx context.Context, prefix, explicit string, create func(number string) error) error {
	if explicit != "" {
		return create(explicit)
	}
	if s.numbers == nil {
		return errors.New("procurement: number sequencer not configured")
	}
	var err error
	for attempt := 1; attempt <= s.numberRetries; attempt++ {
		number, nerr := s.numbers.Next(ctx, prefix)
		if nerr != nil {
			return fmt.Errorf("%w: %w", shared.ErrTransactionFailure, nerr)
		}
		err = create(number)
		if !errors.Is(err, ErrDuplicateNumber) {
			return err
		}
		s.logger.Warn("document number collision",
			slog.String("prefix", prefix),
			slog.String("number", number),
			slog.Int("attempt", attempt))
	}
	return err
}

func (s *Service) withLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	err := s.locker.WithLock(ctx, key, fn)
	if errors.Is(err, shared.ErrLockBusy) {
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	return err
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "procurement",
		EntityID: entityID.String(),
		Meta:     meta,
		At:       s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}

const approvalModule = "PR"

func (s *Service) recordApproval(ctx context.Context, ref uuid.UUID, action shared.ApprovalAction, note string) error {
	if s.approvals == nil {
		return nil
	}
	return s.approvals.Record(ctx, shared.ApprovalLog{
		Module: approvalModule,
		RefID:  ref,
		Actor:  shared.ActorFromContext(ctx),
		Action: action,
		Note:   note,
		At:     s.now().UTC(),
	})
}

func (s *Service) today(value time.Time) time.Time {
	if value.IsZero() {
		return s.now().UTC()
	}
	return value
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
