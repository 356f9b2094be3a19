package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corpsj/weet-ai/internal/accel"
	"github.com/corpsj/weet-ai/internal/adapter/httpserver"
	"github.com/corpsj/weet-ai/internal/adapter/metrics"
	"github.com/corpsj/weet-ai/internal/adapter/postgres"
	"github.com/corpsj/weet-ai/internal/adapter/redis"
	"github.com/corpsj/weet-ai/internal/app"
	"github.com/corpsj/weet-ai/internal/codec"
	"github.com/corpsj/weet-ai/internal/domain"
	"github.com/corpsj/weet-ai/internal/platform/config"
	apperrors "github.com/corpsj/weet-ai/internal/platform/errors"
	"github.com/corpsj/weet-ai/internal/platform/logging"
	"github.com/corpsj/weet-ai/internal/platform/version"
	"github.com/corpsj/weet-ai/internal/registry"
	"github.com/corpsj/weet-ai/internal/upscale"
	"github.com/corpsj/weet-ai/internal/weights"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
)

const (
	shutdownTimeout = 10 * time.Second
	connectTimeout  = 10 * time.Second
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// slog is not configured yet
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

type inference struct {
	runtime domain.Runtime
	weights domain.WeightsProvider
	device  domain.Device
	close   func() error
}

func setupInference(cfg *config.Config) inference {
	if cfg.Runtime == config.RuntimeReference {
		device, _ := accel.ProbeDevice(accel.PreferCPU, 0)
		return inference{
			runtime: accel.ReferenceRuntime{},
			weights: weights.Noop{Dir: cfg.ModelDir},
			device:  device,
			close:   func() error { return nil },
		}
	}

	device, err := accel.ProbeDevice(cfg.Device, cfg.DeviceID)
	if err != nil {
		slog.Error("Failed to probe device", "device", cfg.Device, "error", err)
		os.Exit(1)
	}

	rt, err := accel.NewONNXRuntime(cfg.ONNXRuntimeLib, device, cfg.DeviceID)
	if err != nil {
		slog.Error("Failed to initialize ONNX Runtime", "error", err)
		os.Exit(1)
	}

	return inference{
		runtime: rt,
		weights: weights.NewFetcher(cfg.ModelDir, cfg.WeightsBaseURL, cfg.WeightsDownloadTimeout),
		device:  device,
		close:   rt.Close,
	}
}

func setupRedis(cfg *config.Config, reg prometheus.Registerer) *goredis.Client {
	if cfg.RedisURL == "" {
		slog.Info("REDIS_URL not set, result cache disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL, metrics.NewRedisMetrics(reg))
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupDB(cfg *config.Config, reg prometheus.Registerer) *pgxpool.Pool {
	if cfg.DatabaseURL == "" {
		slog.Info("DATABASE_URL not set, upscale history disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, metrics.NewDatabaseMetrics(reg))
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	return pool
}

func prewarm(cfg *config.Config, reg *registry.Registry) {
	keys, err := cfg.PrewarmKeys()
	if err != nil || len(keys) == 0 {
		return
	}

	slog.Info("Prewarming sessions", "count", len(keys))
	if err := reg.Warm(context.Background(), keys...); err != nil {
		// Cold starts are retried on first request.
		slog.Warn("Prewarm incomplete", "error", err)
	}
}

func runGracefulShutdown(srv *httpserver.Server) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()
	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Version, "runtime", cfg.Runtime)

	promReg := metrics.NewRegistry()
	apperrors.RegisterMetrics(promReg)

	inf := setupInference(cfg)
	defer func() {
		if err := inf.close(); err != nil {
			slog.Error("Failed to close runtime", "error", err)
		}
	}()
	slog.Info("Device selected", "kind", inf.device.Kind, "gpu", inf.device.Name, "cpu", inf.device.CPUModel, "half", inf.device.HalfCapable)

	sessions := registry.New(inf.runtime, inf.weights, cfg.TileConfig(inf.device.HalfCapable),
		registry.WithMetrics(metrics.NewSessionMetrics(promReg)),
		registry.WithClock(clock),
	)
	defer func() {
		if err := sessions.Close(); err != nil {
			slog.Error("Failed to close sessions", "error", err)
		}
	}()
	prewarm(cfg, sessions)

	upscaler := upscale.New(sessions, codec.NewDecoder(cfg.MaxImagePixels),
		upscale.WithMetrics(metrics.NewInferenceMetrics(promReg)),
		upscale.WithClock(clock),
	)

	var healthChecks []httpserver.HealthCheck

	var (
		cache        domain.ResultCache
		cacheMetrics *metrics.ResultCacheMetrics
	)
	if redisClient := setupRedis(cfg, promReg); redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		cacheMetrics = metrics.NewResultCacheMetrics(promReg)
		cache = redis.NewResultCache(redisClient, cfg.ResultCacheTTL, cfg.ResultCacheMaxBytes, cacheMetrics)
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	var history domain.HistoryRepository
	if pool := setupDB(cfg, promReg); pool != nil {
		defer pool.Close()
		history = postgres.NewHistoryRepo(pool)
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  "postgres",
			Check: pool.Ping,
		})
	}

	appSvc := app.NewService(upscaler, cache, history, cacheMetrics, clock)

	srv := httpserver.NewServer(cfg, httpserver.Dependencies{
		App:            appSvc,
		Sessions:       sessions,
		Weights:        inf.weights,
		Device:         inf.device,
		RuntimeName:    inf.runtime.Name(),
		HealthChecks:   healthChecks,
		HTTPMetrics:    metrics.NewHTTPMetrics(promReg),
		MetricsHandler: metrics.Handler(promReg),
		Clock:          clock,
	})

	done := runGracefulShutdown(srv)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Server stopped")
}
