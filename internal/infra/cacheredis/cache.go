// Package cacheredis is a Redis-backed TTL cache for integrity results,
// for deployments where several readers share verification load.
package cacheredis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"torrens/internal/domain"
	"torrens/internal/usecase"
)

const keyPrefix = "torrens:integrity:"

// Cache stores JSON-encoded integrity results under a fixed TTL. The
// cache is advisory; Redis and decoding failures degrade to misses.
type Cache struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

var _ usecase.IntegrityCache = (*Cache)(nil)

func New(client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// NewFromAddr dials a standalone Redis at addr.
func NewFromAddr(addr, password string, db int, ttl time.Duration, logger *zap.Logger) (*Cache, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return New(client, ttl, logger), nil
}

func cacheKey(resourceType, resourceID string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, resourceType, resourceID)
}

func (c *Cache) Get(ctx context.Context, resourceType, resourceID string) (domain.IntegrityResult, bool) {
	key := cacheKey(resourceType, resourceID)
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.IntegrityResult{}, false
	}
	if err != nil {
		c.logger.Debug("integrity cache read failed", zap.String("key", key), zap.Error(err))
		return domain.IntegrityResult{}, false
	}
	var result domain.IntegrityResult
	if err := json.Unmarshal(raw, &result); err != nil {
		c.logger.Debug("integrity cache entry undecodable", zap.String("key", key), zap.Error(err))
		return domain.IntegrityResult{}, false
	}
	return result, true
}

func (c *Cache) Set(ctx context.Context, resourceType, resourceID string, res domain.IntegrityResult) {
	if c.ttl <= 0 {
		return
	}
	payload, err := json.Marshal(res)
	if err != nil {
		c.logger.Debug("integrity cache encode failed", zap.Error(err))
		return
	}
	key := cacheKey(resourceType, resourceID)
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Debug("integrity cache write failed", zap.String("key", key), zap.Error(err))
	}
}
