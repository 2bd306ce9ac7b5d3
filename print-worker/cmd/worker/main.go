package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"kcs-server/print-worker/internal/config"
	"kcs-server/print-worker/internal/drive"
	"kcs-server/print-worker/internal/stages"
	"kcs-server/shared/database"
	"kcs-server/shared/ledger"
	"kcs-server/shared/logger"
	"kcs-server/shared/messaging"
	"kcs-server/shared/metrics"
	"kcs-server/shared/pipeline"
	"kcs-server/shared/provider"
	"kcs-server/shared/storage"
	"kcs-server/shared/webhook"
)

const shutdownTimeout = 15 * time.Second

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
	appLogger.Info("Starting Print Worker...", zap.String("env", cfg.AppEnv))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.Fatal("Print worker stopped with error", zap.Error(err))
	}
	appLogger.Info("Print worker shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, appLogger *zap.Logger) error {
	// --- 3. Верстка и хранилища ---
	layouts, err := config.LoadLayouts(cfg.Print.LayoutsFile)
	if err != nil {
		return err
	}

	pool, err := database.Connect(ctx, database.PoolConfig{
		DSN:         cfg.Database.DSN(),
		MaxConns:    cfg.Database.MaxConns,
		IdleTimeout: cfg.Database.IdleTimeout,
	}, appLogger)
	if err != nil {
		return err
	}
	defer pool.Close()

	store, err := storage.NewGCSStore(ctx, storage.Config{
		Bucket:          cfg.Storage.Bucket,
		PublicBaseURL:   cfg.Storage.PublicBaseURL,
		EmulatorHost:    cfg.Storage.EmulatorHost,
		CredentialsFile: cfg.Storage.CredentialsFile,
	}, appLogger)
	if err != nil {
		return err
	}

	ledgerStore, err := newLedgerStore(ctx, cfg.Redis, pool, appLogger)
	if err != nil {
		return err
	}

	// --- 4. Провайдеры и доставка ---
	client, err := provider.Setup(ctx, provider.Config{
		OpenAIKey:     cfg.Provider.OpenAIKey,
		OpenAIBaseURL: cfg.Provider.OpenAIBaseURL,
		OllamaURL:     cfg.Provider.OllamaURL,
		AnthropicKey:  cfg.Provider.AnthropicKey,
		GeminiKey:     cfg.Provider.GeminiKey,
		Timeout:       cfg.Provider.Timeout,
	}, cfg.Provider.RoutesFile, ledgerStore, appLogger)
	if err != nil {
		return err
	}

	var uploader drive.Uploader
	if cfg.Delivery.DriveEnabled {
		driveClient, err := drive.New(ctx, cfg.Delivery.DriveCredentials, appLogger)
		if err != nil {
			return err
		}
		uploader = driveClient
	} else {
		appLogger.Info("Drive delivery disabled")
	}

	// --- 5. Пайплайн ---
	publisher := messaging.NewRabbitPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.ConsumerName, appLogger)
	defer func() { _ = publisher.Close() }()

	stories := database.NewPgStoryRepository(appLogger)
	runner := pipeline.NewRunner(pipeline.Deps{
		DB:        pool,
		Tx:        database.NewTransactionHelper(pool, appLogger),
		Partners:  database.NewPgPartnerRepository(appLogger),
		Orders:    database.NewPgOrderRepository(appLogger),
		Assets:    database.NewPgAssetRepository(appLogger),
		Stories:   stories,
		Events:    database.NewPgEventRepository(appLogger),
		Publisher: publisher,
		Logger:    appLogger,
	})

	consumer := messaging.NewConsumer(cfg.RabbitMQ.URL, cfg.RabbitMQ.ConsumerName, cfg.RabbitMQ.RetryPolicy(), publisher, appLogger)
	for _, st := range stages.All(stages.Deps{
		Caller:   client,
		Store:    store,
		Drive:    uploader,
		Webhooks: webhook.NewHTTPSender(cfg.Delivery.WebhookTimeout, appLogger),
		Forcer:   stages.NewStoryForcer(pool, stories),
		Options: stages.Options{
			Layouts:    layouts,
			ICCProfile: cfg.Print.ICCProfile,
			CaliperMM:  cfg.Print.PaperCaliperMM,
			FanOut:     cfg.Print.InteriorFanOut,
			Candidates: cfg.Print.InteriorCandidates,
			PromoPage:  cfg.Print.PromoPage,
			PromoText:  cfg.Print.PromoText,
			ImageSize:  cfg.Provider.ImageSize,
		},
		Now: time.Now,
	}) {
		consumer.Register(runner.Binding(st, cfg.RabbitMQ.Concurrency(st.Name())))
	}

	// --- 6. Метрики и запуск ---
	metricsServer := metrics.StartServer(":"+cfg.Metrics.Port, appLogger)
	go metrics.NewPusher(cfg.Metrics.PushGatewayURL, "print-worker", cfg.Metrics.PushInterval, appLogger).Run(ctx)

	appLogger.Info("Print worker started", zap.Int("stages", len(consumer.Stages())))
	runErr := consumer.Run(ctx)

	// --- 7. Graceful Shutdown ---
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("Failed to stop metrics server", zap.Error(err))
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// newLedgerStore выбирает Redis, если он настроен, иначе таблицу stage_ledger.
func newLedgerStore(ctx context.Context, cfg config.RedisConfig, pool *pgxpool.Pool, appLogger *zap.Logger) (ledger.Store, error) {
	if cfg.Addr == "" {
		return ledger.NewPgStore(pool), nil
	}
	rdb, err := database.ConnectRedis(ctx, database.RedisConfig{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}, appLogger)
	if err != nil {
		return nil, err
	}
	return ledger.NewRedisStore(rdb, cfg.LedgerTTL), nil
}
