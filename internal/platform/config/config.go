package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/corpsj/weet-ai/internal/domain"
	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8000"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// Inference
	Runtime        string `env:"RUNTIME" default:"onnx"`
	ONNXRuntimeLib string `env:"ONNXRUNTIME_LIB"`
	Device         string `env:"DEVICE" default:"auto"`
	DeviceID       int    `env:"DEVICE_ID" default:"0"`
	TileSize       int    `env:"TILE_SIZE" default:"512"`
	TilePad        int    `env:"TILE_PAD" default:"10"`
	PrePad         int    `env:"PRE_PAD" default:"0"`
	Prewarm        string `env:"PREWARM"`

	// Weights
	ModelDir               string        `env:"MODEL_DIR" default:"weights"`
	WeightsBaseURL         string        `env:"WEIGHTS_BASE_URL" default:"https://github.com/corpsj/weet-ai/releases/download"`
	WeightsDownloadTimeout time.Duration `env:"WEIGHTS_DOWNLOAD_TIMEOUT" default:"10m"`

	// HTTP
	CORSAllowedOrigins string  `env:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:3001"`
	MaxUploadSize      string  `env:"MAX_UPLOAD_SIZE" default:"32M"`
	MaxImagePixels     int     `env:"MAX_IMAGE_PIXELS" default:"16777216"`
	RateLimitPerSecond float64 `env:"RATE_LIMIT_PER_SECOND" default:"2"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" default:"5"`

	// Optional adapters, disabled when empty
	RedisURL            string        `env:"REDIS_URL"`
	ResultCacheTTL      time.Duration `env:"RESULT_CACHE_TTL" default:"1h"`
	ResultCacheMaxBytes int           `env:"RESULT_CACHE_MAX_BYTES" default:"33554432"`
	DatabaseURL         string        `env:"DATABASE_URL"`
}

const (
	RuntimeONNX      = "onnx"
	RuntimeReference = "reference"
)

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.Runtime {
	case RuntimeONNX, RuntimeReference:
	default:
		return fmt.Errorf("RUNTIME must be %q or %q, got %q", RuntimeONNX, RuntimeReference, cfg.Runtime)
	}

	switch cfg.Device {
	case "auto", "cuda", "cpu":
	default:
		return fmt.Errorf("DEVICE must be auto, cuda or cpu, got %q", cfg.Device)
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	if cfg.DeviceID < 0 {
		return errors.New("DEVICE_ID must not be negative")
	}
	if cfg.TileSize < 0 || cfg.TilePad < 0 || cfg.PrePad < 0 {
		return errors.New("TILE_SIZE, TILE_PAD and PRE_PAD must not be negative")
	}
	if cfg.MaxImagePixels <= 0 {
		return errors.New("MAX_IMAGE_PIXELS must be positive")
	}
	if cfg.RateLimitPerSecond <= 0 || cfg.RateLimitBurst <= 0 {
		return errors.New("RATE_LIMIT_PER_SECOND and RATE_LIMIT_BURST must be positive")
	}
	if cfg.ResultCacheTTL <= 0 {
		return errors.New("RESULT_CACHE_TTL must be positive")
	}

	if cfg.WeightsBaseURL != "" {
		u, err := url.Parse(cfg.WeightsBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("WEIGHTS_BASE_URL must be an http(s) URL, got %q", cfg.WeightsBaseURL)
		}
	}

	if _, err := cfg.PrewarmKeys(); err != nil {
		return fmt.Errorf("PREWARM: %w", err)
	}

	if cfg.IsProduction() && cfg.DatabaseURL != "" {
		if err := validateSSLMode(cfg.DatabaseURL); err != nil {
			return err
		}
	}

	return nil
}

func validateSSLMode(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}
	mode := strings.ToLower(u.Query().Get("sslmode"))
	if mode == "disable" || mode == "allow" {
		return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// PrewarmKeys parses PREWARM, a comma-separated list of model:scale pairs.
func (c *Config) PrewarmKeys() ([]domain.SessionKey, error) {
	var keys []domain.SessionKey
	for _, part := range splitList(c.Prewarm) {
		key, err := domain.ParseSessionKey(part)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (c *Config) AllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

// TileConfig returns the tiling parameters sessions are built with. half enables reduced
// precision and should only be set when a CUDA device is in use.
func (c *Config) TileConfig(half bool) domain.TileConfig {
	return domain.TileConfig{
		TileSize: c.TileSize,
		TilePad:  c.TilePad,
		PrePad:   c.PrePad,
		Half:     half,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
