// Package cache - кэш партнеров в Redis перед таблицей partners.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"kcs-server/shared/interfaces"
	"kcs-server/shared/models"
)

const keyPrefix = "kcs:partner:"

// PartnerLookup - поиск партнера по публичному ключу.
type PartnerLookup interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*models.Partner, error)
}

// cachedPartner хранит и секреты, которые models.Partner не сериализует.
type cachedPartner struct {
	ID            uuid.UUID `json:"id"`
	APIKey        string    `json:"api_key"`
	Name          string    `json:"name"`
	Active        bool      `json:"active"`
	SigningSecret string    `json:"signing_secret"`
	WebhookURL    *string   `json:"webhook_url,omitempty"`
	WebhookSecret *string   `json:"webhook_secret,omitempty"`
	DriveFolderID *string   `json:"drive_folder_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func toCached(p *models.Partner) cachedPartner {
	return cachedPartner{
		ID:            p.ID,
		APIKey:        p.APIKey,
		Name:          p.Name,
		Active:        p.Active,
		SigningSecret: p.SigningSecret,
		WebhookURL:    p.WebhookURL,
		WebhookSecret: p.WebhookSecret,
		DriveFolderID: p.DriveFolderID,
		CreatedAt:     p.CreatedAt,
	}
}

func (c cachedPartner) toModel() *models.Partner {
	return &models.Partner{
		ID:            c.ID,
		APIKey:        c.APIKey,
		Name:          c.Name,
		Active:        c.Active,
		SigningSecret: c.SigningSecret,
		WebhookURL:    c.WebhookURL,
		WebhookSecret: c.WebhookSecret,
		DriveFolderID: c.DriveFolderID,
		CreatedAt:     c.CreatedAt,
	}
}

// RepoLookup читает партнера напрямую из PostgreSQL.
type RepoLookup struct {
	db   interfaces.DBTX
	repo interfaces.PartnerRepository
}

func NewRepoLookup(db interfaces.DBTX, repo interfaces.PartnerRepository) *RepoLookup {
	return &RepoLookup{db: db, repo: repo}
}

func (l *RepoLookup) GetByAPIKey(ctx context.Context, apiKey string) (*models.Partner, error) {
	return l.repo.GetByAPIKey(ctx, l.db, apiKey)
}

// RedisPartnerCache - read-through кэш. Ошибки Redis не мешают приему заказа:
// запрос уходит в базу.
type RedisPartnerCache struct {
	client redis.UniversalClient
	next   PartnerLookup
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisPartnerCache(client redis.UniversalClient, next PartnerLookup, ttl time.Duration, logger *zap.Logger) *RedisPartnerCache {
	return &RedisPartnerCache{
		client: client,
		next:   next,
		ttl:    ttl,
		logger: logger.Named("PartnerCache"),
	}
}

func (c *RedisPartnerCache) GetByAPIKey(ctx context.Context, apiKey string) (*models.Partner, error) {
	key := keyPrefix + apiKey
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached cachedPartner
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			return cached.toModel(), nil
		}
		c.logger.Warn("Corrupted partner cache entry, dropping", zap.String("key", key))
		c.client.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("Partner cache read failed", zap.Error(err))
	}

	partner, err := c.next.GetByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(toCached(partner))
	if err == nil {
		if setErr := c.client.Set(ctx, key, data, c.ttl).Err(); setErr != nil {
			c.logger.Warn("Partner cache write failed", zap.Error(setErr))
		}
	}
	return partner, nil
}
