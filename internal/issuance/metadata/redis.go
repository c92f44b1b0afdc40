package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"vcwallet/internal/issuance/models"
)

const keyPrefix = "vcwallet:issuer-metadata:"

// RedisCache shares metadata between replicas. Backend failures degrade to
// cache misses.
type RedisCache struct {
	client redis.Cmdable
	logger *slog.Logger
}

// NewRedisCache returns a cache stored in client.
func NewRedisCache(client redis.Cmdable, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{client: client, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, issuerURL string) (*models.IssuerMetadata, bool) {
	raw, err := c.client.Get(ctx, keyPrefix+issuerURL).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "metadata_cache_read_failed", "issuer_url", issuerURL, "error", err)
		}
		return nil, false
	}
	var md models.IssuerMetadata
	if err := json.Unmarshal(raw, &md); err != nil {
		c.logger.WarnContext(ctx, "metadata_cache_corrupt", "issuer_url", issuerURL, "error", err)
		return nil, false
	}
	return &md, true
}

func (c *RedisCache) Set(ctx context.Context, issuerURL string, md *models.IssuerMetadata, ttl time.Duration) {
	raw, err := json.Marshal(md)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, keyPrefix+issuerURL, raw, ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "metadata_cache_write_failed", "issuer_url", issuerURL, "error", err)
	}
}
