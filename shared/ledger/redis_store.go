package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "kcs:ledger:"

// RedisStore - ledger в Redis: SETNX с TTL.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, token string) ([]byte, error) {
	out, err := s.client.Get(ctx, redisKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis ledger get: %w", err)
	}
	return out, nil
}

func (s *RedisStore) Put(ctx context.Context, token string, orderID uuid.UUID, stage string, output []byte) error {
	if err := s.client.SetNX(ctx, redisKeyPrefix+token, output, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis ledger put (order %s, stage %s): %w", orderID, stage, err)
	}
	return nil
}
