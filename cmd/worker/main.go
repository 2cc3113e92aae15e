package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-ops/meridian-ops/internal/app"
	"github.com/meridian-ops/meridian-ops/internal/catalog"
	"github.com/meridian-ops/meridian-ops/internal/negotiation"
	"github.com/meridian-ops/meridian-ops/internal/observability"
	"github.com/meridian-ops/meridian-ops/internal/platform/cache"
	"github.com/meridian-ops/meridian-ops/internal/platform/db"
	"github.com/meridian-ops/meridian-ops/internal/shared"
	"github.com/meridian-ops/meridian-ops/jobs"
)

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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
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
	sequences := shared.NewSequenceAllocator(pool)
	metrics := observability.NewMetrics()

	catalogCache := catalog.NewCache(redisClient, cfg.CacheTTL)
	catalogService := catalog.NewService(catalog.NewRepository(pool), auditLogger, catalogCache)
	negotiationService := negotiation.NewService(negotiation.NewRepository(pool), catalogService, sequences, auditLogger)

	var mailer jobs.Mailer
	if cfg.SMTPHost != "" {
		mailer = jobs.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	} else {
		mailer = &jobs.LogMailer{Logger: logger}
	}

	expiryTask, err := jobs.NewQuoteExpiryTask(time.Now())
	if err != nil {
		logger.Error("build quote expiry task", slog.Any("error", err))
		os.Exit(1)
	}
	alertTask, err := jobs.NewStockAlertTask(time.Now())
	if err != nil {
		logger.Error("build stock alert task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: jobs.NewSendEmailHandler(mailer)},
			{Type: jobs.TaskQuoteExpiry, Handler: jobs.NewQuoteExpiryHandler(negotiationService, metrics, logger)},
			{Type: jobs.TaskStockAlerts, Handler: jobs.NewStockAlertHandler(catalogService, mailer, cfg.StockAlertRecipients, metrics, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.QuoteExpiryCron, Task: expiryTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.StockAlertCron, Task: alertTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
