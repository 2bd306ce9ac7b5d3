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

// Config структура для хранения всей конфигурации воркера печати.
type Config struct {
	AppEnv   string `env:"APP_ENV" env-default:"development"`
	Logger   logger.Config
	RabbitMQ RabbitMQConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Provider ProviderConfig
	Redis    RedisConfig
	Print    PrintConfig
	Delivery DeliveryConfig
	Metrics  MetricsConfig
}

// RabbitMQConfig конфигурация очередей и повторов.
type RabbitMQConfig struct {
	URL                string         `env:"RABBITMQ_URL" env-required:"true"`
	ConsumerName       string         `env:"RABBITMQ_CONSUMER_NAME" env-default:"print-worker"`
	DefaultConcurrency int            `env:"DEFAULT_CONCURRENCY" env-default:"1"`
	StageConcurrency   map[string]int `env:"STAGE_CONCURRENCY" env-default:"story.interior:1"`
	MaxAttempts        int            `env:"MAX_ATTEMPTS" env-default:"5"`
	RetryBaseDelay     time.Duration  `env:"RETRY_BASE_DELAY" env-default:"5s"`
	MaxRetryDelay      time.Duration  `env:"MAX_RETRY_DELAY" env-default:"10m"`
}

// DatabaseConfig параметры PostgreSQL. Пароль читается из секрета.
type DatabaseConfig struct {
	Host        string        `env:"DB_HOST" env-default:"localhost"`
	Port        string        `env:"DB_PORT" env-default:"5432"`
	User        string        `env:"DB_USER" env-default:"postgres"`
	Name        string        `env:"DB_NAME" env-default:"kcs"`
	SSLMode     string        `env:"DB_SSL_MODE" env-default:"disable"`
	MaxConns    int           `env:"DB_MAX_CONNECTIONS" env-default:"10"`
	IdleTimeout time.Duration `env:"DB_MAX_IDLE_MINUTES" env-default:"5m"`
	Password    string        `env:"-"`
}

// StorageConfig бакет для артефактов печати.
type StorageConfig struct {
	Bucket          string `env:"GCS_BUCKET" env-default:"kcs-artifacts"`
	PublicBaseURL   string `env:"GCS_PUBLIC_BASE_URL"`
	EmulatorHost    string `env:"STORAGE_EMULATOR_HOST"`
	CredentialsFile string `env:"-"`
}

// ProviderConfig маршруты и ключи провайдеров.
type ProviderConfig struct {
	RoutesFile    string        `env:"PROVIDER_ROUTES_FILE" env-default:"config/provider_routes.yaml"`
	Timeout       time.Duration `env:"PROVIDER_TIMEOUT" env-default:"180s"`
	OpenAIBaseURL string        `env:"OPENAI_BASE_URL"`
	OllamaURL     string        `env:"OLLAMA_URL"`
	ImageSize     string        `env:"IMAGE_SIZE" env-default:"1024x1024"`
	OpenAIKey     string        `env:"-"`
	AnthropicKey  string        `env:"-"`
	GeminiKey     string        `env:"-"`
}

// RedisConfig леджер стадий. Пустой адрес - леджер в PostgreSQL.
type RedisConfig struct {
	Addr      string        `env:"REDIS_ADDR"`
	DB        int           `env:"REDIS_DB" env-default:"0"`
	LedgerTTL time.Duration `env:"LEDGER_TTL" env-default:"168h"`
	Password  string        `env:"-"`
}

// PrintConfig параметры печати.
type PrintConfig struct {
	LayoutsFile        string  `env:"PRINT_CONFIG_FILE" env-default:"config/print_config.yaml"`
	ICCProfile         string  `env:"PRINT_ICC_PROFILE" env-default:"ISOcoated_v2_300_eci"`
	PaperCaliperMM     float64 `env:"PRINT_PAPER_CALIPER_MM" env-default:"0.1"`
	InteriorFanOut     int     `env:"PRINT_INTERIOR_FANOUT" env-default:"4"`
	InteriorCandidates int     `env:"PRINT_INTERIOR_CANDIDATES" env-default:"2"`
	PromoPage          bool    `env:"PRINT_PROMO_PAGE" env-default:"true"`
	PromoText          string  `env:"PRINT_PROMO_TEXT" env-default:"Made with love by KCS. Create your own book at kcs.example"`
}

// DeliveryConfig выгрузка в Drive и вебхук handoff.
type DeliveryConfig struct {
	DriveEnabled     bool          `env:"DRIVE_ENABLED" env-default:"true"`
	WebhookTimeout   time.Duration `env:"WEBHOOK_TIMEOUT" env-default:"15s"`
	DriveCredentials string        `env:"-"`
}

// MetricsConfig сервер метрик и Pushgateway.
type MetricsConfig struct {
	Port           string        `env:"METRICS_PORT" env-default:"9092"`
	PushGatewayURL string        `env:"PUSHGATEWAY_URL"`
	PushInterval   time.Duration `env:"PUSH_INTERVAL" env-default:"15s"`
}

// Load загружает конфигурацию из переменных окружения и .env файла.
func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку, если файла нет)
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}
	if cfg.Logger.Service == "" {
		cfg.Logger.Service = "print-worker"
	}

	var err error
	cfg.Database.Password, err = utils.ReadSecretOrEnv("db_password", "DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.Provider.OpenAIKey = utils.OptionalSecret("openai_api_key", "OPENAI_API_KEY")
	cfg.Provider.AnthropicKey = utils.OptionalSecret("anthropic_api_key", "ANTHROPIC_API_KEY")
	cfg.Provider.GeminiKey = utils.OptionalSecret("gemini_api_key", "GEMINI_API_KEY")
	cfg.Redis.Password = utils.OptionalSecret("redis_password", "REDIS_PASSWORD")
	cfg.Storage.CredentialsFile = utils.OptionalSecret("gcs_credentials_file", "GOOGLE_APPLICATION_CREDENTIALS")
	cfg.Delivery.DriveCredentials = utils.OptionalSecret("drive_credentials_file", "DRIVE_CREDENTIALS_FILE")
	if cfg.Delivery.DriveCredentials == "" {
		cfg.Delivery.DriveCredentials = cfg.Storage.CredentialsFile
	}

	return &cfg, nil
}

// DSN возвращает строку подключения к PostgreSQL.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// Concurrency возвращает размер пула для стадии.
func (c RabbitMQConfig) Concurrency(stage messaging.Stage) int {
	if n, ok := c.StageConcurrency[stage.String()]; ok && n > 0 {
		return n
	}
	if c.DefaultConcurrency > 0 {
		return c.DefaultConcurrency
	}
	return 1
}

// RetryPolicy собирает политику повторов очереди.
func (c RabbitMQConfig) RetryPolicy() messaging.RetryPolicy {
	return messaging.RetryPolicy{
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   c.RetryBaseDelay,
		MaxDelay:    c.MaxRetryDelay,
	}
}
