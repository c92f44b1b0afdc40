// Package metadata caches credential issuer discovery documents.
package metadata

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"vcwallet/internal/issuance/models"
)

// Fetcher retrieves issuer metadata from the issuer.
type Fetcher interface {
	IssuerMetadata(ctx context.Context, issuerURL string) (*models.IssuerMetadata, error)
}

// Cache stores metadata by issuer URL. Misses and backend failures both
// report ok=false.
type Cache interface {
	Get(ctx context.Context, issuerURL string) (*models.IssuerMetadata, bool)
	Set(ctx context.Context, issuerURL string, md *models.IssuerMetadata, ttl time.Duration)
}

// Resolver serves metadata from the cache and fetches on a miss.
// Concurrent misses for one issuer share a single fetch.
type Resolver struct {
	fetcher Fetcher
	cache   Cache
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
}

// NewResolver returns a caching resolver.
func NewResolver(fetcher Fetcher, cache Cache, ttl time.Duration, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{fetcher: fetcher, cache: cache, ttl: ttl, logger: logger}
}

func (r *Resolver) IssuerMetadata(ctx context.Context, issuerURL string) (*models.IssuerMetadata, error) {
	key := strings.TrimSuffix(issuerURL, "/")
	if md, ok := r.cache.Get(ctx, key); ok {
		return md, nil
	}
	v, err, _ := r.group.Do(key, func() (any, error) {
		md, err := r.fetcher.IssuerMetadata(ctx, key)
		if err != nil {
			return nil, err
		}
		r.cache.Set(ctx, key, md, r.ttl)
		return md, nil
	})
	if err != nil {
		return nil, err
	}
	md := *v.(*models.IssuerMetadata)
	return &md, nil
}
