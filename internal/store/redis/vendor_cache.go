package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mshadianto/mnee-sentinel/internal/domain/model"
	"github.com/mshadianto/mnee-sentinel/internal/metrics"
	"github.com/mshadianto/mnee-sentinel/internal/store"
	"github.com/redis/go-redis/v9"
)

const vendorKeyPrefix = "sentinel:vendor:"

// VendorCache is a read-through cache in front of a VendorRepository. Cached
// snapshots may be up to TTL stale, which decision-time checks tolerate; the
// mutation path never reads through the cache. Upserts invalidate the key.
type VendorCache struct {
	client *redis.Client
	inner  store.VendorRepository
	ttl    time.Duration
	logger *slog.Logger
}

func NewVendorCache(url string, inner store.VendorRepository, ttl time.Duration, logger *slog.Logger) (*VendorCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &VendorCache{
		client: client,
		inner:  inner,
		ttl:    ttl,
		logger: logger.With("component", "vendor_cache"),
	}, nil
}

func (c *VendorCache) Close() error {
	return c.client.Close()
}

func vendorKey(address string) string {
	return vendorKeyPrefix + strings.ToLower(address)
}

func (c *VendorCache) FindByAddress(ctx context.Context, address string) (*model.WhitelistedVendor, error) {
	key := vendorKey(address)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var v model.WhitelistedVendor
		if err := json.Unmarshal(raw, &v); err == nil {
			metrics.VendorCacheLookups.WithLabelValues("hit").Inc()
			return &v, nil
		}
		// Corrupt entry: drop it and fall through to the store.
		c.client.Del(ctx, key)
	} else if err != redis.Nil {
		// Cache unavailability must not fail the lookup.
		c.logger.Warn("vendor cache read failed", "error", err)
	}
	metrics.VendorCacheLookups.WithLabelValues("miss").Inc()

	vendor, err := c.inner.FindByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if vendor == nil {
		return nil, nil
	}

	if encoded, err := json.Marshal(vendor); err == nil {
		if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			c.logger.Warn("vendor cache write failed", "error", err)
		}
	}
	return vendor, nil
}

func (c *VendorCache) Upsert(ctx context.Context, vendor *model.WhitelistedVendor) error {
	if err := c.inner.Upsert(ctx, vendor); err != nil {
		return err
	}
	if err := c.client.Del(ctx, vendorKey(vendor.WalletAddress)).Err(); err != nil {
		c.logger.Warn("vendor cache invalidation failed",
			"address", vendor.WalletAddress,
			"error", err,
		)
	}
	return nil
}

func (c *VendorCache) ListActive(ctx context.Context) ([]model.WhitelistedVendor, error) {
	return c.inner.ListActive(ctx)
}
