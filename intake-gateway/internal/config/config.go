package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"kcs-server/shared/logger"
	"kcs-server/shared/utils"
)

// Config структура для хранения всей конфигурации шлюза приема заказов.
type Config struct {
	AppEnv   string `env:"APP_ENV" env-default:"development"`
	Logger   logger.Config
	Server   ServerConfig
	Intake   IntakeConfig
	Database DatabaseConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	Metrics  MetricsConfig
}

// ServerConfig параметры HTTP-сервера.
type ServerConfig struct {
	Port           string        `env:"SERVER_PORT" env-default:"8080"`
	AllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" env-separator:","`
	ReadTimeout    time.Duration `env:"SERVER_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout   time.Duration `env:"SERVER_WRITE_TIMEOUT" env-default:"15s"`
	MaxBodyBytes   int64         `env:"MAX_BODY_BYTES" env-default:"1048576"`
}

// IntakeConfig правила приема заказов.
type IntakeConfig struct {
	SignatureSkew time.Duration `env:"SIGNATURE_SKEW" env-default:"5m"`
	AutoMigrate   bool          `env:"AUTO_MIGRATE" env-default:"false"`
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

// RedisConfig кэш партнеров. Пустой адрес - кэш выключен.
type RedisConfig struct {
	Addr            string        `env:"REDIS_ADDR"`
	DB              int           `env:"REDIS_DB" env-default:"0"`
	PartnerCacheTTL time.Duration `env:"PARTNER_CACHE_TTL" env-default:"1m"`
	Password        string        `env:"-"`
}

type RabbitMQConfig struct {
	URL          string `env:"RABBITMQ_URL" env-required:"true"`
	ConsumerName string `env:"RABBITMQ_CONSUMER_NAME" env-default:"intake-gateway"`
}

type MetricsConfig struct {
	Port           string        `env:"METRICS_PORT" env-default:"9090"`
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
		cfg.Logger.Service = "intake-gateway"
	}

	var err error
	cfg.Database.Password, err = utils.ReadSecretOrEnv("db_password", "DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.Redis.Password = utils.OptionalSecret("redis_password", "REDIS_PASSWORD")
	return &cfg, nil
}

// DSN возвращает строку подключения к PostgreSQL.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// GetAllowedOrigins возвращает список origin для CORS; пустой список - только localhost.
func (c ServerConfig) GetAllowedOrigins() []string {
	origins := make([]string, 0, len(c.AllowedOrigins))
	for _, o := range c.AllowedOrigins {
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
