package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"kcs-server/shared/logger"
	"kcs-server/shared/messaging"
	"kcs-server/shared/utils"
)

// Config структура для хранения всей конфигурации relay вебхуков.
type Config struct {
	AppEnv   string `env:"APP_ENV" env-default:"development"`
	Logger   logger.Config
	Database DatabaseConfig
	Relay    RelayConfig
	Metrics  MetricsConfig
}

// DatabaseConfig параметры PostgreSQL. Пароль читается из секрета.
type DatabaseConfig struct {
	Host        string        `env:"DB_HOST" env-default:"localhost"`
	Port        string        `env:"DB_PORT" env-default:"5432"`
	User        string        `env:"DB_USER" env-default:"postgres"`
	Name        string        `env:"DB_NAME" env-default:"kcs"`
	SSLMode     string        `env:"DB_SSL_MODE" env-default:"disable"`
	MaxConns    int           `env:"DB_MAX_CONNECTIONS" env-default:"4"`
	IdleTimeout time.Duration `env:"DB_MAX_IDLE_MINUTES" env-default:"5m"`
	Password    string        `env:"-"`
}

// RelayConfig расписание выборки и политика повторов.
type RelayConfig struct {
	Schedule       string        `env:"OUTBOX_SCHEDULE" env-default:"@every 10s"`
	BatchSize      int           `env:"OUTBOX_BATCH_SIZE" env-default:"50"`
	DrainTimeout   time.Duration `env:"OUTBOX_DRAIN_TIMEOUT" env-default:"2m"`
	MaxAttempts    int           `env:"OUTBOX_MAX_ATTEMPTS" env-default:"8"`
	BaseBackoff    time.Duration `env:"OUTBOX_BASE_BACKOFF" env-default:"30s"`
	MaxBackoff     time.Duration `env:"OUTBOX_MAX_BACKOFF" env-default:"1h"`
	WebhookTimeout time.Duration `env:"WEBHOOK_TIMEOUT" env-default:"10s"`
}

type MetricsConfig struct {
	Port           string        `env:"METRICS_PORT" env-default:"9092"`
	PushGatewayURL string        `env:"PUSHGATEWAY_URL"`
	PushInterval   time.Duration `env:"PUSH_INTERVAL" env-default:"15s"`
}

// Load загружает конфигурацию из переменных окружения и .env файла.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}
	if cfg.Logger.Service == "" {
		cfg.Logger.Service = "outbox-relay"
	}
	if cfg.Relay.BatchSize <= 0 {
		return nil, fmt.Errorf("OUTBOX_BATCH_SIZE must be positive, got %d", cfg.Relay.BatchSize)
	}

	var err error
	cfg.Database.Password, err = utils.ReadSecretOrEnv("db_password", "DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DSN возвращает строку подключения к PostgreSQL.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// RetryPolicy - backoff повторной доставки.
func (c RelayConfig) RetryPolicy() messaging.RetryPolicy {
	return messaging.RetryPolicy{
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   c.BaseBackoff,
		MaxDelay:    c.MaxBackoff,
	}
}
