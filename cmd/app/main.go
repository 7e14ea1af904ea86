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

	"ai-image-queue/internal/config"
	"ai-image-queue/internal/domain/ports/adapter"
	"ai-image-queue/internal/infra/adapters/alert"
	"ai-image-queue/internal/infra/adapters/billing"
	"ai-image-queue/internal/infra/adapters/imagegen"
	pg "ai-image-queue/internal/infra/db/postgres"
	"ai-image-queue/internal/infra/logging"
	"ai-image-queue/internal/infra/metrics"
	red "ai-image-queue/internal/infra/redis"
	"ai-image-queue/internal/infra/scheduler"
	"ai-image-queue/internal/infra/web"
	"ai-image-queue/internal/infra/worker"
	"ai-image-queue/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "development mode (noop alerter, relaxed auth checks)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// ---- Redis (job store) ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	jobRepo := red.NewJobRepo(redisClient)

	// ---- Postgres (analytics/audit events) ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	if err := pg.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("postgres schema")
	}
	events := pg.NewEventRepo(pool)

	// ---- Collaborator adapters ----
	dispatcher := imagegen.NewHTTPDispatcher(&cfg.Worker, logger)
	credits := billing.NewHTTPCreditGateway(&cfg.Billing)

	var alerter adapter.AlertNotifier
	if cfg.Alert.TelegramToken != "" {
		alerter, err = alert.NewTelegramAlerter(cfg.Alert.TelegramToken, cfg.Alert.ChatID)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram alerter")
		}
	} else {
		if !cfg.Runtime.Dev {
			logger.Warn().Msg("alert.telegram_token not set, operator alerts disabled")
		}
		alerter = alert.NewNoopAlerter(logger)
	}

	// ---- Async task pool (dispatch, admission nudges) ----
	taskPool := worker.NewPool(8, logger)
	taskPool.Start(ctx)
	defer taskPool.Stop()

	// ---- Use cases ----
	queueUC := usecase.NewQueueUseCase(jobRepo, dispatcher, events, taskPool, cfg.Queue.Capacity, logger)
	webhookUC := usecase.NewWebhookUseCase(jobRepo, credits, events, alerter, logger)
	janitorUC := usecase.NewJanitorUseCase(jobRepo, credits, events, alerter, cfg.Queue.StaleAfter, cfg.Queue.Retention, logger)

	// ---- Internal janitor schedule (cleanup endpoints stay available for
	// external schedulers; these tickers are the safety net) ----
	staleSched := scheduler.NewScheduler("stale-processing", cfg.Queue.StaleSweepEvery, janitorUC.SweepStaleProcessing, logger)
	staleSched.Start(ctx)
	defer staleSched.Stop()
	retentionSched := scheduler.NewScheduler("terminal-retention", cfg.Queue.RetentionSweepEvery, janitorUC.SweepExpiredTerminal, logger)
	retentionSched.Start(ctx)
	defer retentionSched.Stop()

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.SessionTTL)
	srv := web.NewServer(queueUC, webhookUC, janitorUC, auth, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Router(),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
}
