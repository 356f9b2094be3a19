package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/corpsj/weet-ai/internal/adapter/metrics"
	"github.com/corpsj/weet-ai/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// ResultCache stores encoded upscale results as JSON with a fixed TTL.
type ResultCache struct {
	rdb      goredis.Cmdable
	ttl      time.Duration
	maxBytes int
	metrics  *metrics.ResultCacheMetrics
}

var _ domain.ResultCache = (*ResultCache)(nil)

// NewResultCache returns a cache whose entries expire after ttl. Entries whose encoded size
// exceeds maxBytes are not stored; maxBytes <= 0 disables the limit. m may be nil.
func NewResultCache(rdb goredis.Cmdable, ttl time.Duration, maxBytes int, m *metrics.ResultCacheMetrics) *ResultCache {
	return &ResultCache{rdb: rdb, ttl: ttl, maxBytes: maxBytes, metrics: m}
}

func (c *ResultCache) Get(ctx context.Context, key string) (*domain.CachedResult, bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("result cache get: %w", err)
	}

	var res domain.CachedResult
	if err := json.Unmarshal(data, &res); err != nil {
		// A corrupt entry is dropped so the next request repopulates it.
		_ = c.rdb.Del(ctx, key).Err()
		return nil, false, fmt.Errorf("result cache decode %s: %w", key, err)
	}
	return &res, true, nil
}

func (c *ResultCache) Set(ctx context.Context, key string, res *domain.CachedResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("result cache encode: %w", err)
	}

	if c.maxBytes > 0 && len(data) > c.maxBytes {
		if c.metrics != nil {
			c.metrics.Skipped.WithLabelValues("too_large").Inc()
		}
		return nil
	}

	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("result cache set: %w", err)
	}
	return nil
}

const purgeScanCount = 100

// Purge deletes cached results, optionally only those produced by model. With dryRun set it
// only counts matching keys. It returns the number of keys matched.
func (c *ResultCache) Purge(ctx context.Context, model domain.ModelName, dryRun bool) (int, error) {
	pattern := domain.ResultKeyPrefix + "*"
	if model != "" {
		pattern = domain.ResultKeyPrefix + "*:" + string(model) + ":*"
	}

	var (
		cursor  uint64
		matched int
	)
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, purgeScanCount).Result()
		if err != nil {
			return matched, fmt.Errorf("scan %s: %w", pattern, err)
		}

		if len(keys) > 0 && !dryRun {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return matched, fmt.Errorf("delete cached results: %w", err)
			}
		}
		matched += len(keys)

		cursor = next
		if cursor == 0 {
			return matched, nil
		}
	}
}
