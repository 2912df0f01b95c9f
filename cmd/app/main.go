// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"theglocal-monetization/internal/config"
	"theglocal-monetization/internal/domain/model"
	pg "theglocal-monetization/internal/infra/db/postgres"
	"theglocal-monetization/internal/infra/logging"
	"theglocal-monetization/internal/infra/metrics"
	red "theglocal-monetization/internal/infra/redis"
	"theglocal-monetization/internal/infra/sched"
	"theglocal-monetization/internal/infra/web"
	"theglocal-monetization/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, verbose level)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}

	// ---- Metrics ----
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 30*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()

	// ---- Repositories ----
	paymentRepo := pg.NewPaymentRepoCacheDecorator(pg.NewPaymentRepo(pool), redisClient, cfg.Redis.TTL)
	stateRepo := pg.NewSubscriptionStateRepo(pool)
	conflictRepo := pg.NewConflictRepo(pool, logger)
	notifRepo := pg.NewNotificationRepo(pool)

	// ---- Use cases ----
	paymentUC := usecase.NewPaymentUseCase(paymentRepo, cfg.Payment.MaxRetries, logger)
	subUC := usecase.NewSubscriptionUseCase(stateRepo, notifRepo, usecase.GraceSettings{
		GracePeriodDays: cfg.Grace.PeriodDays,
		ReminderDays:    cfg.Grace.ReminderDays,
	}, logger)
	strategy, ok := model.NormalizeStrategy(cfg.Conflict.DefaultStrategy)
	if !ok {
		logger.Fatal().Str("strategy", cfg.Conflict.DefaultStrategy).Msg("unknown conflict.default_strategy")
	}
	conflictUC := usecase.NewConflictUseCase(conflictRepo, !cfg.Conflict.DisableAutoResolve, strategy, logger)

	// ---- Workers ----
	retryWorker := sched.NewRetryWorker(paymentUC, cfg.Payment.RetrySweepEvery, cfg.Payment.RetryIntervalHours, logger)
	graceWorker := sched.NewGraceWorker(subUC, cfg.Grace.SweepEvery, logger)
	cleanupWorker := sched.NewCleanupWorker(paymentUC, cfg.Payment.CleanupSweepEvery, cfg.Payment.CleanupDaysOld, logger)
	go func() { _ = retryWorker.Run(ctx) }()
	go func() { _ = graceWorker.Run(ctx) }()
	go func() { _ = cleanupWorker.Run(ctx) }()

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.SessionTTL)
	srv := web.NewServer(paymentUC, subUC, conflictUC, auth, cfg.Admin.APISecret, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Admin.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
