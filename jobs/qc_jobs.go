package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/pharmaproc/internal/jobs"
	"github.com/odyssey-erp/pharmaproc/internal/procurement"
	"github.com/odyssey-erp/pharmaproc/internal/qc"
	"github.com/odyssey-erp/pharmaproc/internal/shared"
)

// InspectionReader loads inspections for notification.
type InspectionReader interface {
	Get(ctx context.Context, id uuid.UUID) (qc.Inspection, error)
}

// InspectionAssignedJob announces assignments. Stale tasks, where the
// inspection was resolved or handed to someone else, are dropped.
type InspectionAssignedJob struct {
	Reader  InspectionReader
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewInspectionAssignedJob wires the handler.
func NewInspectionAssignedJob(reader InspectionReader, logger *slog.Logger, metrics *jobmetrics.Metrics) *InspectionAssignedJob {
	return &InspectionAssignedJob{Reader: reader, Logger: logger, Metrics: metrics}
}

// Handle processes TaskInspectionAssigned.
func (j *InspectionAssignedJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Reader == nil {
		return errors.New("inspection assigned: handler not configured")
	}
	var payload InspectionAssignedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskInspectionAssigned)
	defer func() { err = tracker.End(err) }()

	logger := loggerOrDefault(j.Logger).With(slog.String("inspection_id", payload.InspectionID.String()))
	insp, err := j.Reader.Get(ctx, payload.InspectionID)
	if errors.Is(err, shared.ErrNotFound) {
		logger.Warn("assigned inspection no longer exists")
		return nil
	}
	if err != nil {
		return err
	}
	if insp.Resolved() || insp.InspectorID == nil || *insp.InspectorID != payload.InspectorID {
		logger.Info("skip stale assignment notification", slog.String("status", string(insp.Status)))
		return nil
	}
	logger.Info("inspection assigned",
		slog.String("inspector", insp.InspectorName),
		slog.String("urgency", string(insp.Urgency)),
		slog.String("description", insp.Description),
	)
	j.Metrics.AddItems(TaskInspectionAssigned, 1)
	return nil
}

// KeyCleaner prunes idempotency keys older than a cutoff.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob removes expired idempotency keys. Posting ledger
// keys are kept by the store.
type IdempotencyCleanupJob struct {
	Store     KeyCleaner
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob wires the handler.
func NewIdempotencyCleanupJob(store KeyCleaner, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, Retention: retention, Logger: logger, Metrics: metrics}
}

// Handle processes TaskIdempotencyCleanup.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	retention := j.Retention
	if payload.RetentionHours > 0 {
		retention = time.Duration(payload.RetentionHours) * time.Hour
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	defer func() { err = tracker.End(err) }()

	removed, err := j.Store.Cleanup(ctx, retention)
	if err != nil {
		loggerOrDefault(j.Logger).Error("idempotency cleanup failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddItems(TaskIdempotencyCleanup, removed)
	loggerOrDefault(j.Logger).Info("idempotency cleanup",
		slog.Int64("removed", removed),
		slog.Duration("retention", retention),
	)
	return nil
}

// DigestSource reports open inspections per urgency.
type DigestSource interface {
	PendingDigest(ctx context.Context) ([]qc.PendingCount, error)
}

// PendingDigestJob logs and publishes the open inspection backlog.
type PendingDigestJob struct {
	Source  DigestSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewPendingDigestJob wires the handler.
func NewPendingDigestJob(source DigestSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *PendingDigestJob {
	return &PendingDigestJob{
		Source:  source,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskPendingDigest.
func (j *PendingDigestJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Source == nil {
		return errors.New("pending digest: handler not configured")
	}
	tracker := j.Metrics.Track(TaskPendingDigest)
	defer func() { err = tracker.End(err) }()

	counts, err := j.Source.PendingDigest(ctx)
	if err != nil {
		return err
	}
	logger := loggerOrDefault(j.Logger)
	now := j.clock()
	seen := map[string]bool{}
	total := 0
	for _, c := range counts {
		seen[string(c.Urgency)] = true
		total += c.Count
		j.Metrics.SetPending(string(c.Urgency), c.Count)
		logger.Info("pending inspections",
			slog.String("urgency", string(c.Urgency)),
			slog.Int("count", c.Count),
			slog.Duration("oldest_age", now.Sub(c.Oldest).Truncate(time.Minute)),
		)
	}
	for _, u := range []procurement.Urgency{procurement.UrgencyNormal, procurement.UrgencyUrgent} {
		if !seen[string(u)] {
			j.Metrics.SetPending(string(u), 0)
		}
	}
	logger.Info("pending inspection digest", slog.Int("total", total))
	return nil
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
