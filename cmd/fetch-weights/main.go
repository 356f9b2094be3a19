// Command fetch-weights downloads model weights ahead of time so the first request for each
// model does not pay for the download.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/corpsj/weet-ai/internal/domain"
	"github.com/corpsj/weet-ai/internal/platform/logging"
	"github.com/corpsj/weet-ai/internal/weights"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("fetch-weights", flag.ContinueOnError)
	var (
		dir     = fs.String("dir", envOr("MODEL_DIR", "weights"), "Weights directory (or set MODEL_DIR env)")
		baseURL = fs.String("base-url", envOr("WEIGHTS_BASE_URL", domain.DefaultWeightsBaseURL), "Download base URL (or set WEIGHTS_BASE_URL env)")
		models  = fs.String("models", "", "Comma-separated model names (default: all)")
		timeout = fs.Duration("timeout", 10*time.Minute, "Per-file download timeout")
		verbose = fs.Bool("verbose", false, "Verbose logging")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	level := "info"
	if *verbose {
		level = "debug"
	}
	logging.InitLogger(level, "text")

	specs, err := selectModels(*models)
	if err != nil {
		slog.Error("Invalid -models", "error", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher := weights.NewFetcher(*dir, *baseURL, *timeout)

	failed := 0
	for _, spec := range specs {
		path, err := fetcher.Ensure(ctx, spec)
		if err != nil {
			slog.Error("Failed to fetch weights", "model", spec.Name, "error", err)
			failed++
			continue
		}
		slog.Info("Weights ready", "model", spec.Name, "path", path)
	}

	slog.Info("Fetch summary", "requested", len(specs), "failed", failed)
	if failed > 0 {
		return 1
	}
	return 0
}

func selectModels(list string) ([]domain.ModelSpec, error) {
	if strings.TrimSpace(list) == "" {
		return domain.Catalog(), nil
	}

	var specs []domain.ModelSpec
	for _, name := range strings.Split(list, ",") {
		spec, err := domain.LookupModel(domain.ModelName(strings.TrimSpace(name)))
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
