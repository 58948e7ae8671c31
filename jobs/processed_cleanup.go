package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/buildpoint/buildpoint/internal/jobs"
)

// ProcessedStore is the slice of the idempotency store the prune needs.
type ProcessedStore interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// ProcessedCleanupJob prunes idempotency records older than the retention
// window. Terminals hold offline queues for days at most, so records past the
// window can never be resubmitted.
type ProcessedCleanupJob struct {
	Store   ProcessedStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewProcessedCleanupJob initialises the prune handler.
func NewProcessedCleanupJob(store ProcessedStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *ProcessedCleanupJob {
	return &ProcessedCleanupJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle executes the prune.
func (j *ProcessedCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("processed cleanup: store not configured")
	}
	var payload ProcessedCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetentionDays <= 0 {
		payload.RetentionDays = 90
	}

	tracker := j.metrics().Track(TaskProcessedCleanup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("retention_days", payload.RetentionDays))
	if err := j.Store.Cleanup(ctx, time.Duration(payload.RetentionDays)*24*time.Hour); err != nil {
		resultErr = err
		logger.Error("prune failed", slog.Any("error", err))
		return resultErr
	}
	logger.Info("pruned processed entries")
	return resultErr
}

func (j *ProcessedCleanupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskProcessedCleanup))
	}
	return slog.Default().With(slog.String("job", TaskProcessedCleanup))
}

func (j *ProcessedCleanupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
