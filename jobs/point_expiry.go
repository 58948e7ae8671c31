package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/buildpoint/buildpoint/internal/jobs"
	"github.com/buildpoint/buildpoint/internal/points"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ExpiryRunner is the slice of the ledger service the sweep needs.
type ExpiryRunner interface {
	ProcessExpiry(ctx context.Context, batchLimit int) (points.ExpiryRunResult, error)
}

// PointExpiryJob expires point credits whose expires_at has passed.
type PointExpiryJob struct {
	Service ExpiryRunner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewPointExpiryJob initialises the expiry sweep handler.
func NewPointExpiryJob(service ExpiryRunner, logger *slog.Logger, metrics *jobmetrics.Metrics) *PointExpiryJob {
	return &PointExpiryJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the expiry sweep.
func (j *PointExpiryJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("point expiry: handler not configured")
	}
	if j.Service == nil {
		return errors.New("point expiry: service not configured")
	}
	var payload ExpirySweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.BatchLimit <= 0 {
		payload.BatchLimit = 500
	}

	start := j.now()
	tracker := j.metrics().Track(TaskPointExpirySweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("batch_limit", payload.BatchLimit))
	logger.Info("starting expiry sweep")

	result, err := j.Service.ProcessExpiry(ctx, payload.BatchLimit)
	if err != nil {
		resultErr = err
		logger.Error("sweep failed", slog.Any("error", err))
		return resultErr
	}
	for category, expired := range result.ExpiredByCategory {
		j.metrics().AddExpiredPoints(string(category), expired)
	}

	logger.Info("completed expiry sweep",
		slog.Int("processed", result.ProcessedCount),
		slog.Int64("points_expired", result.TotalPointsExpired),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *PointExpiryJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPointExpirySweep))
	}
	return slog.Default().With(slog.String("job", TaskPointExpirySweep))
}

func (j *PointExpiryJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PointExpiryJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
