package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"kcs-server/outbox-relay/internal/config"
	"kcs-server/outbox-relay/internal/relay"
	"kcs-server/shared/database"
	"kcs-server/shared/logger"
	"kcs-server/shared/metrics"
	"kcs-server/shared/webhook"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// --- 1. Загрузка конфигурации ---
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// --- 2. Инициализация логгера ---
	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()
	appLogger.Info("Starting Outbox Relay...", zap.String("env", cfg.AppEnv))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- 3. Подключение к PostgreSQL ---
	pool, err := database.Connect(ctx, database.PoolConfig{
		DSN:         cfg.Database.DSN(),
		MaxConns:    cfg.Database.MaxConns,
		IdleTimeout: cfg.Database.IdleTimeout,
	}, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pool.Close()

	// --- 4. Relay и расписание ---
	outboxRelay := relay.New(relay.Deps{
		Tx:        database.NewTransactionHelper(pool, appLogger),
		Partners:  database.NewPgPartnerRepository(appLogger),
		Outbox:    database.NewPgOutboxRepository(appLogger),
		Sender:    webhook.NewHTTPSender(cfg.Relay.WebhookTimeout, appLogger),
		Policy:    cfg.Relay.RetryPolicy(),
		BatchSize: cfg.Relay.BatchSize,
		Logger:    appLogger,
	})
	scheduler := relay.NewScheduler(outboxRelay, cfg.Relay.DrainTimeout, appLogger)
	if err := scheduler.Start(ctx, cfg.Relay.Schedule); err != nil {
		appLogger.Fatal("Invalid outbox schedule", zap.String("schedule", cfg.Relay.Schedule), zap.Error(err))
	}

	// --- 5. Метрики ---
	metricsServer := metrics.StartServer(":"+cfg.Metrics.Port, appLogger)
	go metrics.NewPusher(cfg.Metrics.PushGatewayURL, "outbox-relay", cfg.Metrics.PushInterval, appLogger).Run(ctx)

	<-ctx.Done()
	appLogger.Info("Shutting down outbox relay...")

	// --- 6. Graceful Shutdown ---
	scheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("Failed to stop metrics server", zap.Error(err))
	}
	appLogger.Info("Outbox relay stopped")
}
