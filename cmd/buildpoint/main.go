package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/buildpoint/buildpoint/internal/app"
	"github.com/buildpoint/buildpoint/internal/cards"
	"github.com/buildpoint/buildpoint/internal/observability"
	"github.com/buildpoint/buildpoint/internal/platform/cache"
	"github.com/buildpoint/buildpoint/internal/platform/db"
	"github.com/buildpoint/buildpoint/internal/points"
	"github.com/buildpoint/buildpoint/internal/shared"
	syncapi "github.com/buildpoint/buildpoint/internal/sync"
	"github.com/buildpoint/buildpoint/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	auditLogger := shared.NewAuditLogger(dbpool)
	processedLookup := shared.NewProcessedLookup(dbpool)

	cardsRepo := cards.NewRepository(dbpool)
	cardsService := cards.NewService(cardsRepo, auditLogger)
	cardsHandler := cards.NewHandler(logger, cardsService)

	balanceCache := points.NewBalanceCache(redisClient, cfg.BalanceCacheTTL)
	pointsRepo := points.NewRepository(dbpool)
	pointsService := points.NewService(pointsRepo, auditLogger, balanceCache, cfg.PointsConfig(), logger)
	rates := cfg.ConversionRates()
	pointsHandler := points.NewHandler(logger, pointsService, rates)

	syncService := syncapi.NewService(pointsService, cardsService, processedLookup, rates, logger)
	syncHandler := syncapi.NewHandler(logger, syncService, cfg.MaxOfflineQueue)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		CardsHandler:  cardsHandler,
		PointsHandler: pointsHandler,
		SyncHandler:   syncHandler,
		JobHandler:    jobHandler,
		Pool:          dbpool,
		Metrics:       metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
