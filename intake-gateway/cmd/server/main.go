package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"kcs-server/intake-gateway/internal/cache"
	"kcs-server/intake-gateway/internal/config"
	"kcs-server/intake-gateway/internal/handler"
	"kcs-server/intake-gateway/internal/service"
	"kcs-server/shared/database"
	"kcs-server/shared/logger"
	"kcs-server/shared/messaging"
	"kcs-server/shared/metrics"
	"kcs-server/shared/middleware"
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
	zap.ReplaceGlobals(appLogger)
	appLogger.Info("Starting Intake Gateway...", zap.String("env", cfg.AppEnv))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.Fatal("Intake gateway stopped with error", zap.Error(err))
	}
	appLogger.Info("Server exiting")
}

func run(ctx context.Context, cfg *config.Config, appLogger *zap.Logger) error {
	// --- 3. Миграции и подключения ---
	if cfg.Intake.AutoMigrate {
		if err := database.MigrateUp(cfg.Database.DSN(), appLogger); err != nil {
			return err
		}
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

	var partners cache.PartnerLookup = cache.NewRepoLookup(pool, database.NewPgPartnerRepository(appLogger))
	if cfg.Redis.Addr != "" {
		rdb, err := database.ConnectRedis(ctx, database.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, appLogger)
		if err != nil {
			return err
		}
		defer rdb.Close()
		partners = cache.NewRedisPartnerCache(rdb, partners, cfg.Redis.PartnerCacheTTL, appLogger)
		appLogger.Info("Partner cache enabled", zap.Duration("ttl", cfg.Redis.PartnerCacheTTL))
	}

	publisher := messaging.NewRabbitPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.ConsumerName, appLogger)
	defer func() { _ = publisher.Close() }()

	// --- 4. Сервис и обработчики ---
	intakeService := service.NewIntakeService(service.Deps{
		DB:        pool,
		Tx:        database.NewTransactionHelper(pool, appLogger),
		Partners:  partners,
		Orders:    database.NewPgOrderRepository(appLogger),
		Assets:    database.NewPgAssetRepository(appLogger),
		Events:    database.NewPgEventRepository(appLogger),
		Outbox:    database.NewPgOutboxRepository(appLogger),
		Publisher: publisher,
		Skew:      cfg.Intake.SignatureSkew,
		Logger:    appLogger,
	})
	intakeHandler := handler.NewIntakeHandler(intakeService, cfg.Server.MaxBodyBytes, appLogger)

	// --- 5. HTTP сервер (Gin) ---
	gin.SetMode(gin.ReleaseMode)
	if cfg.AppEnv == "development" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(middleware.ZapLoggingMiddlewareForGin(appLogger))
	router.Use(gin.Recovery())

	p := ginprometheus.NewPrometheus("gin")

	corsConfig := cors.DefaultConfig()
	if origins := cfg.Server.GetAllowedOrigins(); len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
		appLogger.Info("CORS_ALLOWED_ORIGINS not set, allowing default", zap.String("origin", "http://localhost:3000"))
	}
	corsConfig.AllowMethods = []string{"POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{
		"Origin", "Content-Length", "Content-Type", "Authorization",
		handler.IdempotencyKeyHeader, handler.TimestampHeader, handler.SignatureHeader, middleware.RequestIDHeader,
	}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	intakeHandler.RegisterRoutes(router)
	p.Use(router)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// --- 6. Метрики пайплайна и запуск ---
	metricsServer := metrics.StartServer(":"+cfg.Metrics.Port, appLogger)
	go metrics.NewPusher(cfg.Metrics.PushGatewayURL, "intake-gateway", cfg.Metrics.PushInterval, appLogger).Run(ctx)

	serveErr := make(chan error, 1)
	go func() {
		appLogger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		appLogger.Info("Shutting down server...")
	case runErr = <-serveErr:
		appLogger.Error("HTTP server listen error", zap.Error(runErr))
	}

	// --- 7. Graceful Shutdown ---
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("Failed to stop metrics server", zap.Error(err))
	}
	return runErr
}
