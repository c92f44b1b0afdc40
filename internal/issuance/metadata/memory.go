package metadata

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"vcwallet/internal/issuance/models"
)

// MemoryCache keeps metadata in process.
type MemoryCache struct {
	cache *gocache.Cache
}

// NewMemoryCache returns a cache whose entries expire after ttl by default.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{cache: gocache.New(ttl, 2*ttl)}
}

func (c *MemoryCache) Get(_ context.Context, issuerURL string) (*models.IssuerMetadata, bool) {
	v, ok := c.cache.Get(issuerURL)
	if !ok {
		return nil, false
	}
	md := v.(models.IssuerMetadata)
	return &md, true
}

func (c *MemoryCache) Set(_ context.Context, issuerURL string, md *models.IssuerMetadata, ttl time.Duration) {
	c.cache.Set(issuerURL, *md, ttl)
}
