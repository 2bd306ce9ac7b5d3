package provider

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kcs-server/shared/ledger"
)

// Config - ключи и адреса провайдеров. Пустой ключ отключает провайдер.
type Config struct {
	OpenAIKey     string
	OpenAIBaseURL string
	OllamaURL     string
	AnthropicKey  string
	GeminiKey     string
	Timeout       time.Duration
}

// BuildProviders создает адаптеры для настроенных провайдеров.
func BuildProviders(ctx context.Context, cfg Config, logger *zap.Logger) ([]Provider, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	var providers []Provider
	if cfg.OpenAIKey != "" {
		providers = append(providers, NewOpenAIProvider(cfg.OpenAIKey, cfg.OpenAIBaseURL, timeout))
	}
	if cfg.OllamaURL != "" {
		p, err := NewOllamaProvider(cfg.OllamaURL, timeout)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if cfg.AnthropicKey != "" {
		providers = append(providers, NewAnthropicProvider(cfg.AnthropicKey))
	}
	if cfg.GeminiKey != "" {
		p, err := NewGeminiProvider(ctx, cfg.GeminiKey)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	logger.Info("AI providers configured", zap.Strings("providers", names))
	return providers, nil
}

// Setup собирает Client: адаптеры, маршруты из файла и ledger.
func Setup(ctx context.Context, cfg Config, routesFile string, store ledger.Store, logger *zap.Logger) (*Client, error) {
	providers, err := BuildProviders(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build providers: %w", err)
	}
	routes, err := LoadRoutes(routesFile)
	if err != nil {
		return nil, err
	}
	registry, err := NewRegistry(routes, providers...)
	if err != nil {
		return nil, err
	}
	return NewClient(registry, ledger.NewGuard(store, logger), logger), nil
}
