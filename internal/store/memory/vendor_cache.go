// Package memory provides in-process caching decorators for deployments that
// run without Redis.
package memory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mshadianto/mnee-sentinel/internal/cache"
	"github.com/mshadianto/mnee-sentinel/internal/domain/model"
	"github.com/mshadianto/mnee-sentinel/internal/metrics"
	"github.com/mshadianto/mnee-sentinel/internal/store"
)

const defaultVendorCacheSize = 1024

// VendorCache is a read-through in-process cache in front of a
// VendorRepository. Like the Redis variant, cached snapshots may be up to TTL
// stale and the mutation path never reads through the cache; Upserts
// invalidate the key.
type VendorCache struct {
	lru    *cache.LRU[string, model.WhitelistedVendor]
	inner  store.VendorRepository
	logger *slog.Logger
}

func NewVendorCache(inner store.VendorRepository, ttl time.Duration, logger *slog.Logger) *VendorCache {
	return &VendorCache{
		lru:    cache.New[string, model.WhitelistedVendor](defaultVendorCacheSize, ttl),
		inner:  inner,
		logger: logger.With("component", "vendor_cache"),
	}
}

func (c *VendorCache) FindByAddress(ctx context.Context, address string) (*model.WhitelistedVendor, error) {
	key := strings.ToLower(address)

	if v, ok := c.lru.Get(key); ok {
		metrics.VendorCacheLookups.WithLabelValues("hit").Inc()
		return &v, nil
	}
	metrics.VendorCacheLookups.WithLabelValues("miss").Inc()

	vendor, err := c.inner.FindByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if vendor == nil {
		return nil, nil
	}

	c.lru.Put(key, *vendor)
	return vendor, nil
}

func (c *VendorCache) Upsert(ctx context.Context, vendor *model.WhitelistedVendor) error {
	if err := c.inner.Upsert(ctx, vendor); err != nil {
		return err
	}
	c.lru.Delete(strings.ToLower(vendor.WalletAddress))
	return nil
}

func (c *VendorCache) ListActive(ctx context.Context) ([]model.WhitelistedVendor, error) {
	return c.inner.ListActive(ctx)
}
