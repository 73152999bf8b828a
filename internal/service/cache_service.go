package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"stash-api/internal/domain"
	"stash-api/pkg/redis"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// sharedFetchTimeout bounds an upstream call made on behalf of every
// caller waiting on the same key
const sharedFetchTimeout = 20 * time.Second

// CacheService fronts an AssetSource with Redis. Concurrent misses for the
// same key share one upstream call. Without Redis it only deduplicates.
type CacheService struct {
	AssetSource

	redis  *redis.Client
	group  singleflight.Group
	logger *zap.Logger
}

// NewCacheService creates a new cache service. redisClient may be nil.
func NewCacheService(source AssetSource, redisClient *redis.Client, logger *zap.Logger) *CacheService {
	return &CacheService{
		AssetSource: source,
		redis:       redisClient,
		logger:      logger,
	}
}

// ListAssets returns a cached listing when one exists. Empty listings are
// never cached so a transient backend failure is not remembered.
func (c *CacheService) ListAssets(ctx context.Context, filters domain.AssetFilters) []domain.Asset {
	hash := filtersHash(filters)

	var cacheKey string
	if c.redis != nil {
		cacheKey = c.redis.KeyBuilder.KeyAssetList(hash)
		var assets []domain.Asset
		if c.getCached(ctx, cacheKey, &assets) {
			c.logger.Debug("Asset list cache hit", zap.String("filters_hash", hash))
			return assets
		}
	}

	v, _, _ := c.group.Do("list:"+hash, func() (interface{}, error) {
		fetchCtx, cancel := sharedContext(ctx)
		defer cancel()
		return c.AssetSource.ListAssets(fetchCtx, filters), nil
	})
	assets, _ := v.([]domain.Asset)

	if c.redis != nil && len(assets) > 0 {
		go c.cacheAsync(cacheKey, assets, redis.TTLAssetList)
	}
	return assets
}

// GetAssetBySlug returns a cached asset when one exists. Misses are not cached.
func (c *CacheService) GetAssetBySlug(ctx context.Context, slug string) *domain.Asset {
	var cacheKey string
	if c.redis != nil {
		cacheKey = c.redis.KeyBuilder.KeyAssetBySlug(slug)
		var asset domain.Asset
		if c.getCached(ctx, cacheKey, &asset) {
			c.logger.Debug("Asset slug cache hit", zap.String("slug", slug))
			return &asset
		}
	}

	v, _, _ := c.group.Do("slug:"+slug, func() (interface{}, error) {
		fetchCtx, cancel := sharedContext(ctx)
		defer cancel()
		return c.AssetSource.GetAssetBySlug(fetchCtx, slug), nil
	})
	asset, _ := v.(*domain.Asset)

	if c.redis != nil && asset != nil {
		go c.cacheAsync(cacheKey, asset, redis.TTLAssetBySlug)
	}
	return asset
}

// SubmitAsset forwards the submission and drops cached listings on success
func (c *CacheService) SubmitAsset(ctx context.Context, sub domain.AssetSubmission) (string, error) {
	id, err := c.AssetSource.SubmitAsset(ctx, sub)
	if err != nil {
		return "", err
	}
	c.InvalidateAssets(ctx)
	return id, nil
}

// InvalidateAssets removes all cached asset data
func (c *CacheService) InvalidateAssets(ctx context.Context) {
	if c.redis == nil {
		return
	}

	deleted, err := c.redis.InvalidatePattern(ctx, c.redis.KeyBuilder.KeyAssetsAll())
	if err != nil {
		c.logger.Warn("Failed to invalidate asset caches", zap.Error(err))
		return
	}
	c.logger.Debug("Asset caches invalidated", zap.Int("deleted", deleted))
}

// HealthCheck verifies the cache backend is reachable
func (c *CacheService) HealthCheck(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Health(ctx)
}

func (c *CacheService) getCached(ctx context.Context, key string, dst interface{}) bool {
	data, err := c.redis.Get(ctx, key)
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.logger.Warn("Asset cache error, falling back to source", zap.Error(err))
		return false
	}
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		c.logger.Warn("Asset cache corrupted, falling back to source", zap.Error(err))
		return false
	}
	return true
}

// cacheAsync writes a value in the background with its own deadline
func (c *CacheService) cacheAsync(key string, value interface{}, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("Failed to marshal asset for cache", zap.Error(err))
		return
	}

	if err := c.redis.Set(ctx, key, data, ttl); err != nil {
		c.logger.Warn("Failed to cache assets", zap.Error(err))
	}
}

// sharedContext keeps the first caller's values but not its cancellation,
// so one client going away does not fail the others sharing the call
func sharedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
}

// filtersHash is a stable key for a filter combination
func filtersHash(filters domain.AssetFilters) string {
	data, _ := json.Marshal(filters)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
