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

	"github.com/buildledger/statements/internal/app"
	jobmetrics "github.com/buildledger/statements/internal/jobs"
	"github.com/buildledger/statements/internal/ledger/policy"
	"github.com/buildledger/statements/internal/observability"
	"github.com/buildledger/statements/internal/platform/cache"
	"github.com/buildledger/statements/internal/platform/db"
	"github.com/buildledger/statements/internal/statements"
	"github.com/buildledger/statements/jobs"
)

// metricsAddr serves the worker's /metrics endpoint.
const metricsAddr = ":9091"

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pol, err := policy.Load(cfg.LedgerPolicyFile)
	if err != nil {
		logger.Error("load ledger policy", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.WithMaxConns(cfg.PGMaxConns), db.WithStatementTimeout(cfg.PGStatementTimeout))
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var statementCache *statements.Cache
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		statementCache = statements.NewCache(redisClient, cfg.StatementCacheTTL)
	}

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	service := statements.NewService(statements.ServiceConfig{
		Source:  statements.NewRepository(pool),
		Cache:   statementCache,
		Policy:  pol,
		Metrics: statements.NewMetrics(metrics.Registerer()),
		Logger:  logger,
	})

	warmupJob := jobs.NewWarmupJob(service, logger, jobMetrics, cfg.IntegrityLookback)
	integrityJob := jobs.NewIntegrityJob(service, logger, jobMetrics, cfg.IntegrityLookback)

	warmupTask, err := jobs.NewWarmupTask(cfg.IntegrityLookback)
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}
	integrityTask, err := jobs.NewIntegrityTask(cfg.IntegrityLookback)
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: warmupJob.Task(), Handler: warmupJob.Handle},
			{Type: integrityJob.Task(), Handler: integrityJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.WarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.IntegrityCron, Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: metricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
