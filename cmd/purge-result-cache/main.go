// Command purge-result-cache removes cached upscale results from Redis, for example after
// replacing a model's weights.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/corpsj/weet-ai/internal/adapter/redis"
	"github.com/corpsj/weet-ai/internal/domain"
	"github.com/corpsj/weet-ai/internal/platform/logging"
)

func main() {
	var (
		redisURL = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL (or set REDIS_URL env)")
		model    = flag.String("model", "", "Only purge results of this model (default: all)")
		dryRun   = flag.Bool("dry-run", false, "Count matching keys without deleting them")
		verbose  = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *redisURL == "" {
		log.Fatal("Redis URL required (--redis or REDIS_URL env)")
	}

	level := "info"
	if *verbose {
		level = "debug"
	}
	logging.InitLogger(level, "text")

	var name domain.ModelName
	if *model != "" {
		n, err := domain.ParseModelName(*model)
		if err != nil {
			log.Fatalf("Invalid -model: %v", err)
		}
		name = n
	}

	ctx := context.Background()
	rdb, err := redis.NewClient(ctx, *redisURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() { _ = rdb.Close() }()
	slog.Info("Connected to Redis", "url", sanitizeURL(*redisURL))

	start := time.Now()
	cache := redis.NewResultCache(rdb, 0, 0, nil)
	matched, err := cache.Purge(ctx, name, *dryRun)
	if err != nil {
		log.Fatalf("Purge failed after %d keys: %v", matched, err)
	}

	slog.Info("Purge summary",
		"model", name,
		"matched", matched,
		"dry_run", *dryRun,
		"duration_ms", time.Since(start).Milliseconds())
}

// sanitizeURL hides the password of a Redis URL for logging.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	return u.Redacted()
}
