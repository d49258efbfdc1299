package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInspectionAssigned notifies an inspector about a new assignment.
	TaskInspectionAssigned = "qc:inspection-assigned"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency-cleanup"
	// TaskPendingDigest summarises open inspections.
	TaskPendingDigest = "qc:pending-digest"
)

// InspectionAssignedPayload identifies an assignment.
type InspectionAssignedPayload struct {
	InspectionID uuid.UUID `json:"inspection_id"`
	InspectorID  uuid.UUID `json:"inspector_id"`
}

// NewInspectionAssignedTask builds the notification task. The task id is
// derived from the assignment so a replayed request enqueues it once.
func NewInspectionAssignedTask(payload InspectionAssignedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	id := fmt.Sprintf("qc-assigned:%s:%s", payload.InspectionID, payload.InspectorID)
	return asynq.NewTask(TaskInspectionAssigned, data,
		asynq.Queue(QueueDefault), asynq.TaskID(id), asynq.MaxRetry(5)), nil
}

// IdempotencyCleanupPayload carries the retention override in hours.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask builds the cleanup task.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.Queue(QueueDefault)), nil
}

// NewPendingDigestTask builds the digest task.
func NewPendingDigestTask() *asynq.Task {
	return asynq.NewTask(TaskPendingDigest, nil, asynq.Queue(QueueDefault))
}
