// Package redis holds the Redis-backed result cache and the client hooks every command passes through.
package redis

import (
	"context"
	"fmt"

	"github.com/corpsj/weet-ai/internal/adapter/metrics"
	goredis "github.com/redis/go-redis/v9"
)

// NewClient connects to redisURL, installs the metrics and circuit breaker hooks, and verifies
// the connection with PING. m may be nil.
func NewClient(ctx context.Context, redisURL string, m *metrics.RedisMetrics) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	if m != nil {
		rdb.AddHook(NewMetricsHook(m))
	}
	rdb.AddHook(NewCircuitBreakerHook(DefaultBreakerSettings(), m))

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}
