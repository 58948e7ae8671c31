package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/buildpoint/buildpoint/internal/app"
	jobmetrics "github.com/buildpoint/buildpoint/internal/jobs"
	"github.com/buildpoint/buildpoint/internal/platform/cache"
	"github.com/buildpoint/buildpoint/internal/platform/db"
	"github.com/buildpoint/buildpoint/internal/points"
	"github.com/buildpoint/buildpoint/internal/shared"
	"github.com/buildpoint/buildpoint/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	balanceCache := points.NewBalanceCache(redisClient, cfg.BalanceCacheTTL)
	pointsRepo := points.NewRepository(pool)
	pointsService := points.NewService(pointsRepo, auditLogger, balanceCache, cfg.PointsConfig(), logger)

	metrics := jobmetrics.NewMetrics(nil)
	expiryJob := jobs.NewPointExpiryJob(pointsService, logger, metrics)
	cleanupJob := jobs.NewProcessedCleanupJob(shared.NewProcessedLookup(pool), logger, metrics)

	sweepTask, err := jobs.NewExpirySweepTask(jobs.ExpirySweepPayload{BatchLimit: cfg.ExpirySweepBatchLimit})
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewProcessedCleanupTask(jobs.ProcessedCleanupPayload{RetentionDays: cfg.ProcessedRetentionDays})
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPointExpirySweep, Handler: expiryJob.Handle},
			{Type: jobs.TaskProcessedCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 1 * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 3 * * 0", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
