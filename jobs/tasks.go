package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPointExpirySweep removes point credits past their expiry date.
	TaskPointExpirySweep = "points:expiry_sweep"
	// TaskProcessedCleanup prunes old idempotency records.
	TaskProcessedCleanup = "sync:processed_cleanup"
)

// ExpirySweepPayload bounds a single sweep run.
type ExpirySweepPayload struct {
	BatchLimit int `json:"batch_limit"`
}

// NewExpirySweepTask constructs an Asynq task for the expiry sweep.
func NewExpirySweepTask(payload ExpirySweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPointExpirySweep, data), nil
}

// ProcessedCleanupPayload sets how long idempotency records are retained.
type ProcessedCleanupPayload struct {
	RetentionDays int `json:"retention_days"`
}

// NewProcessedCleanupTask constructs an Asynq task for the idempotency prune.
func NewProcessedCleanupTask(payload ProcessedCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProcessedCleanup, data), nil
}
