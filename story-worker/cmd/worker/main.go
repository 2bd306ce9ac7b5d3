package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"kcs-server/shared/database"
	"kcs-server/shared/ledger"
	"kcs-server/shared/logger"
	"kcs-server/shared/messaging"
	"kcs-server/shared/metrics"
	"kcs-server/shared/pipeline"
	"kcs-server/shared/provider"
	"kcs-server/shared/storage"
	"kcs-server/story-worker/internal/config"
	"kcs-server/story-worker/internal/stages"
)

const (
	portraitCropSize = 512
	shutdownTimeout  = 15 * time.Second
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Ручной перезапуск стадии: worker requeue <stage> <orderId>
	if len(os.Args) > 1 && os.Args[1] == "requeue" {
		if err := requeue(ctx, cfg, os.Args[2:], log); err != nil {
			log.Fatal("Requeue failed", zap.Error(err))
		}
		return
	}

	cfg.LogSummary(log)
	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("Story worker stopped with error", zap.Error(err))
	}
	log.Info("Story worker stopped")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	pool, err := database.Connect(ctx, database.PoolConfig{
		DSN:         cfg.GetDSN(),
		MaxConns:    cfg.DBMaxConns,
		IdleTimeout: cfg.DBIdleTimeout,
	}, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	store, err := storage.NewGCSStore(ctx, storage.Config{
		Bucket:          cfg.GCSBucket,
		PublicBaseURL:   cfg.GCSPublicBaseURL,
		EmulatorHost:    cfg.GCSEmulatorHost,
		CredentialsFile: cfg.GCSCredentials,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to init object store: %w", err)
	}

	ledgerStore, err := newLedgerStore(ctx, cfg, pool, log)
	if err != nil {
		return err
	}

	client, err := provider.Setup(ctx, provider.Config{
		OpenAIKey:     cfg.OpenAIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		OllamaURL:     cfg.OllamaURL,
		AnthropicKey:  cfg.AnthropicKey,
		GeminiKey:     cfg.GeminiKey,
		Timeout:       cfg.ProviderTimeout,
	}, cfg.ProviderRoutesFile, ledgerStore, log)
	if err != nil {
		return err
	}

	publisher := messaging.NewRabbitPublisher(cfg.RabbitMQURL, cfg.ConsumerTag, log)
	defer func() { _ = publisher.Close() }()

	runner := pipeline.NewRunner(pipeline.Deps{
		DB:        pool,
		Tx:        database.NewTransactionHelper(pool, log),
		Partners:  database.NewPgPartnerRepository(log),
		Orders:    database.NewPgOrderRepository(log),
		Assets:    database.NewPgAssetRepository(log),
		Stories:   database.NewPgStoryRepository(log),
		Events:    database.NewPgEventRepository(log),
		Publisher: publisher,
		Logger:    log,
	})

	consumer := messaging.NewConsumer(cfg.RabbitMQURL, cfg.ConsumerTag, cfg.RetryPolicy(), publisher, log)
	for _, st := range stages.All(stages.Deps{
		Caller:  client,
		Assets:  stages.NewAssetGenerator(client, store, cfg.AssetsPerMinute, cfg.ImageSize),
		Cropper: stages.NewPortraitCropper(store, portraitCropSize),
	}) {
		consumer.Register(runner.Binding(st, cfg.Concurrency(st.Name())))
	}

	metricsServer := metrics.StartServer(":"+cfg.MetricsPort, log)
	go metrics.NewPusher(cfg.PushgatewayURL, "story-worker", cfg.PushInterval, log).Run(ctx)

	log.Info("Story worker started", zap.Int("stages", len(consumer.Stages())))
	runErr := consumer.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to stop metrics server", zap.Error(err))
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// newLedgerStore выбирает Redis, если он настроен, иначе таблицу stage_ledger.
func newLedgerStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, log *zap.Logger) (ledger.Store, error) {
	if cfg.RedisAddr == "" {
		return ledger.NewPgStore(pool), nil
	}
	rdb, err := database.ConnectRedis(ctx, database.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, log)
	if err != nil {
		return nil, err
	}
	return ledger.NewRedisStore(rdb, cfg.LedgerTTL), nil
}

func requeue(ctx context.Context, cfg *config.Config, args []string, log *zap.Logger) error {
	if len(args) != 2 {
		return errors.New("usage: worker requeue <stage> <orderId>")
	}
	stage, err := messaging.ParseStage(args[0])
	if err != nil {
		return err
	}
	orderID, err := uuid.Parse(args[1])
	if err != nil {
		return fmt.Errorf("invalid order id %q: %w", args[1], err)
	}

	publisher := messaging.NewRabbitPublisher(cfg.RabbitMQURL, cfg.ConsumerTag, log)
	defer func() { _ = publisher.Close() }()

	if err := publisher.PublishStage(ctx, stage, messaging.StageJob{OrderID: orderID}); err != nil {
		return err
	}
	log.Info("Stage job requeued", zap.String("stage", stage.String()), zap.String("order_id", orderID.String()))
	return nil
}
