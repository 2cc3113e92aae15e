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

	"github.com/meridian-ops/meridian-ops/internal/app"
	"github.com/meridian-ops/meridian-ops/internal/auth"
	"github.com/meridian-ops/meridian-ops/internal/catalog"
	"github.com/meridian-ops/meridian-ops/internal/negotiation"
	"github.com/meridian-ops/meridian-ops/internal/observability"
	"github.com/meridian-ops/meridian-ops/internal/party"
	"github.com/meridian-ops/meridian-ops/internal/platform/cache"
	"github.com/meridian-ops/meridian-ops/internal/platform/db"
	"github.com/meridian-ops/meridian-ops/internal/purchasing"
	"github.com/meridian-ops/meridian-ops/internal/sales"
	"github.com/meridian-ops/meridian-ops/internal/shared"
	"github.com/meridian-ops/meridian-ops/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
	idempotencyStore := shared.NewIdempotencyStore(pool)
	sequences := shared.NewSequenceAllocator(pool)

	tokenStore := auth.NewTokenStore(redisClient, cfg.TokenTTL)
	authService := auth.NewService(auth.NewRepository(pool), tokenStore, auditLogger)
	authHandler := auth.NewHandler(logger, authService)

	catalogCache := catalog.NewCache(redisClient, cfg.CacheTTL)
	catalogService := catalog.NewService(catalog.NewRepository(pool), auditLogger, catalogCache)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	partyService := party.NewService(party.NewRepository(pool), auditLogger)
	partyHandler := party.NewHandler(logger, partyService)

	purchasingService := purchasing.NewService(purchasing.NewRepository(pool), sequences, auditLogger)
	purchasingHandler := purchasing.NewHandler(logger, purchasingService)

	salesService := sales.NewService(sales.NewRepository(pool), sequences, auditLogger, idempotencyStore)
	salesHandler := sales.NewHandler(logger, salesService)

	negotiationService := negotiation.NewService(negotiation.NewRepository(pool), catalogService, sequences, auditLogger)
	negotiationHandler := negotiation.NewHandler(logger, negotiationService)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthHandler:        authHandler,
		TokenStore:         tokenStore,
		CatalogHandler:     catalogHandler,
		PartyHandler:       partyHandler,
		PurchasingHandler:  purchasingHandler,
		SalesHandler:       salesHandler,
		NegotiationHandler: negotiationHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
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
