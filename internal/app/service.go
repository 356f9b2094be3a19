package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/corpsj/weet-ai/internal/adapter/metrics"
	"github.com/corpsj/weet-ai/internal/codec"
	"github.com/corpsj/weet-ai/internal/domain"
	"github.com/corpsj/weet-ai/internal/upscale"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Upscaler runs a single upscale request. Implemented by upscale.Upscaler.
type Upscaler interface {
	Upscale(ctx context.Context, req upscale.Request) (*upscale.Result, error)
}

// Input is one upscale request as received from a client. Image holds raw file bytes;
// when nil, Base64 is decoded instead.
type Input struct {
	Image  []byte
	Base64 string
	Scale  int
	Model  string
	Source domain.UpscaleSource
}

// Output is the encoded result handed back to the client.
type Output struct {
	PNG          []byte
	OriginalSize domain.Dimensions
	UpscaledSize domain.Dimensions
	Model        domain.ModelName
	Scale        int
	CacheHit     bool
}

// Service is the application layer. cache and history may be nil, which disables them.
type Service struct {
	upscaler     Upscaler
	cache        domain.ResultCache
	history      domain.HistoryRepository
	cacheMetrics *metrics.ResultCacheMetrics
	clock        clockwork.Clock
}

func NewService(upscaler Upscaler, cache domain.ResultCache, history domain.HistoryRepository, cacheMetrics *metrics.ResultCacheMetrics, clock clockwork.Clock) *Service {
	return &Service{
		upscaler:     upscaler,
		cache:        cache,
		history:      history,
		cacheMetrics: cacheMetrics,
		clock:        clock,
	}
}

// Upscale serves the request from the result cache when possible, otherwise runs the upscaler
// and encodes its output as PNG. Cache and history failures are logged, never returned.
func (s *Service) Upscale(ctx context.Context, in Input) (*Output, error) {
	start := s.clock.Now()

	out, err := s.upscale(ctx, in)

	s.record(ctx, in, out, err, s.clock.Since(start))
	return out, err
}

func (s *Service) upscale(ctx context.Context, in Input) (*Output, error) {
	raw := in.Image
	if raw == nil {
		b, err := codec.DecodeBase64(in.Base64)
		if err != nil {
			return nil, err
		}
		raw = b
	}

	// An unresolvable request skips the cache and lets the upscaler report it.
	var key string
	if model, err := upscale.ResolveModel(in.Scale, in.Model); err == nil && s.cache != nil {
		key = cacheKey(raw, model, in.Scale)
		if out := s.lookup(ctx, key); out != nil {
			return out, nil
		}
	}

	res, err := s.upscaler.Upscale(ctx, upscale.Request{Raw: raw, Scale: in.Scale, Model: in.Model})
	if err != nil {
		return nil, err
	}

	png, err := codec.EncodePNG(res.Image)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInference, err)
	}

	out := &Output{
		PNG:          png,
		OriginalSize: res.OriginalSize,
		UpscaledSize: res.UpscaledSize,
		Model:        res.Model,
		Scale:        res.Scale,
	}

	if key != "" {
		s.store(ctx, key, out)
	}
	return out, nil
}

func (s *Service) lookup(ctx context.Context, key string) *Output {
	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("Result cache lookup failed", "error", err)
		if s.cacheMetrics != nil {
			s.cacheMetrics.Errors.WithLabelValues("get").Inc()
		}
		return nil
	}
	if !ok {
		if s.cacheMetrics != nil {
			s.cacheMetrics.Misses.Inc()
		}
		return nil
	}

	if s.cacheMetrics != nil {
		s.cacheMetrics.Hits.Inc()
	}
	return &Output{
		PNG:          cached.PNG,
		OriginalSize: cached.OriginalSize,
		UpscaledSize: cached.UpscaledSize,
		Model:        cached.Model,
		Scale:        cached.Scale,
		CacheHit:     true,
	}
}

func (s *Service) store(ctx context.Context, key string, out *Output) {
	err := s.cache.Set(ctx, key, &domain.CachedResult{
		PNG:          out.PNG,
		OriginalSize: out.OriginalSize,
		UpscaledSize: out.UpscaledSize,
		Model:        out.Model,
		Scale:        out.Scale,
	})
	if err != nil {
		slog.Warn("Result cache store failed", "error", err)
		if s.cacheMetrics != nil {
			s.cacheMetrics.Errors.WithLabelValues("set").Inc()
		}
	}
}

func (s *Service) record(ctx context.Context, in Input, out *Output, upscaleErr error, elapsed time.Duration) {
	if s.history == nil {
		return
	}

	rec := domain.UpscaleRecord{
		ID:        uuid.New(),
		Scale:     in.Scale,
		Source:    in.Source,
		Duration:  elapsed,
		Status:    domain.StatusSucceeded,
		CreatedAt: s.clock.Now().UTC(),
	}

	if upscaleErr != nil {
		rec.Status = domain.StatusFailed
		rec.Error = upscaleErr.Error()
		if model, err := upscale.ResolveModel(in.Scale, in.Model); err == nil {
			rec.Model = model
		}
	} else {
		rec.Model = out.Model
		rec.OriginalSize = out.OriginalSize
		rec.UpscaledSize = out.UpscaledSize
		rec.CacheHit = out.CacheHit
	}

	if err := s.history.Insert(context.WithoutCancel(ctx), rec); err != nil {
		slog.Warn("Failed to record upscale history", "id", rec.ID.String(), "error", err)
	}
}

// ListHistory returns the most recent records, newest first. limit is clamped to [1, 100]
// with 20 used for non-positive values.
func (s *Service) ListHistory(ctx context.Context, limit int) ([]domain.UpscaleRecord, error) {
	if s.history == nil {
		return nil, domain.ErrHistoryDisabled
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)
	return s.history.List(ctx, limit)
}

func (s *Service) GetHistory(ctx context.Context, id uuid.UUID) (*domain.UpscaleRecord, error) {
	if s.history == nil {
		return nil, domain.ErrHistoryDisabled
	}
	rec, err := s.history.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.ErrRecordNotFound
	}
	return rec, nil
}

// DeleteHistory removes one record from the history.
func (s *Service) DeleteHistory(ctx context.Context, id uuid.UUID) error {
	if s.history == nil {
		return domain.ErrHistoryDisabled
	}
	return s.history.Delete(ctx, id)
}

// HistoryEnabled reports whether upscale history is persisted.
func (s *Service) HistoryEnabled() bool {
	return s.history != nil
}

func cacheKey(raw []byte, model domain.ModelName, scale int) string {
	sum := sha256.Sum256(raw)
	return domain.ResultKeyPrefix + hex.EncodeToString(sum[:]) + ":" + string(model) + ":" + strconv.Itoa(scale)
}
