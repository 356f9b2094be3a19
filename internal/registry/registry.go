// Package registry keeps one inference session per (model, scale) pair alive for the lifetime
// of the process. Sessions are built lazily on first use; concurrent requests for a key that is
// still loading share a single construction.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/corpsj/weet-ai/internal/adapter/metrics"
	"github.com/corpsj/weet-ai/internal/domain"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

type Registry struct {
	runtime domain.Runtime
	weights domain.WeightsProvider
	tile    domain.TileConfig
	metrics *metrics.SessionMetrics
	clock   clockwork.Clock

	group    singleflight.Group
	mu       sync.RWMutex
	sessions map[domain.SessionKey]domain.Session
	closed   bool
}

type Option func(*Registry)

// WithMetrics records hits, cold starts and the live session count.
func WithMetrics(m *metrics.SessionMetrics) Option {
	return func(r *Registry) { r.metrics = m }
}

func WithClock(c clockwork.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// New creates an empty registry. Every session it builds uses tile.
func New(runtime domain.Runtime, weights domain.WeightsProvider, tile domain.TileConfig, opts ...Option) *Registry {
	r := &Registry{
		runtime:  runtime,
		weights:  weights,
		tile:     tile,
		clock:    clockwork.NewRealClock(),
		sessions: make(map[domain.SessionKey]domain.Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetSession returns the session for (model, scale), building it on first request.
//
// The model's native scale is not checked against scale; a mismatched session resamples its
// output to the requested factor. Construction failures are returned to every waiting caller
// and nothing is cached, so the next request tries again.
func (r *Registry) GetSession(ctx context.Context, model domain.ModelName, scale int) (domain.Session, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("%w: got %d", domain.ErrInvalidScale, scale)
	}
	spec, err := domain.LookupModel(model)
	if err != nil {
		return nil, err
	}

	key := domain.SessionKey{Model: spec.Name, Scale: scale}

	sess, ok, err := r.cached(key)
	if err != nil {
		return nil, err
	}
	if ok {
		if r.metrics != nil {
			r.metrics.Hits.WithLabelValues(string(key.Model)).Inc()
		}
		return sess, nil
	}

	// Construction is detached from the caller so an abandoned request does not fail the others.
	buildCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key.String(), func() (any, error) {
		return r.build(buildCtx, key, spec)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(domain.Session), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) cached(key domain.SessionKey) (domain.Session, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, false, domain.ErrRegistryClosed
	}
	sess, ok := r.sessions[key]
	return sess, ok, nil
}

func (r *Registry) build(ctx context.Context, key domain.SessionKey, spec domain.ModelSpec) (domain.Session, error) {
	// A previous flight may have finished between the read-locked lookup and joining this one.
	if sess, ok, err := r.cached(key); err != nil || ok {
		return sess, err
	}

	if spec.NativeScale != key.Scale {
		slog.Warn("Model native scale differs from requested scale, output will be resampled",
			"model", spec.Name, "native_scale", spec.NativeScale, "scale", key.Scale)
	}

	start := r.clock.Now()
	slog.Info("Building inference session", "session", key.String(), "runtime", r.runtime.Name())

	path, err := r.weights.Ensure(ctx, spec)
	if err != nil {
		r.recordColdStart(key, "weights_error")
		return nil, wrapAs(domain.ErrWeightFetch, key, err)
	}

	sess, err := r.runtime.NewSession(ctx, key, spec, path, r.tile)
	if err != nil {
		r.recordColdStart(key, "runtime_error")
		return nil, wrapAs(domain.ErrInference, key, err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = sess.Close()
		return nil, domain.ErrRegistryClosed
	}
	r.sessions[key] = sess
	live := len(r.sessions)
	r.mu.Unlock()

	elapsed := r.clock.Since(start)
	r.recordColdStart(key, "success")
	if r.metrics != nil {
		r.metrics.ColdStartDuration.WithLabelValues(string(key.Model)).Observe(elapsed.Seconds())
		r.metrics.Live.Set(float64(live))
	}

	slog.Info("Inference session ready", "session", key.String(), "duration", elapsed, "live_sessions", live)
	return sess, nil
}

func (r *Registry) recordColdStart(key domain.SessionKey, result string) {
	if result != "success" {
		slog.Error("Failed to build inference session", "session", key.String(), "result", result)
	}
	if r.metrics != nil {
		r.metrics.ColdStarts.WithLabelValues(string(key.Model), result).Inc()
	}
}

func wrapAs(sentinel error, key domain.SessionKey, err error) error {
	if errors.Is(err, sentinel) {
		return fmt.Errorf("session %s: %w", key, err)
	}
	return fmt.Errorf("session %s: %w: %w", key, sentinel, err)
}

// Warm builds the given sessions ahead of traffic. All keys are attempted; the returned
// error joins every failure.
func (r *Registry) Warm(ctx context.Context, keys ...domain.SessionKey) error {
	var errs []error
	for _, key := range keys {
		if _, err := r.GetSession(ctx, key.Model, key.Scale); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Loaded lists the keys with a live session, sorted by name.
func (r *Registry) Loaded() []domain.SessionKey {
	r.mu.RLock()
	keys := make([]domain.SessionKey, 0, len(r.sessions))
	for key := range r.sessions {
		keys = append(keys, key)
	}
	r.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close releases every session. Later GetSession calls fail with ErrRegistryClosed.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for key, sess := range r.sessions {
		if err := sess.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session %s: %w", key, err))
		}
	}
	clear(r.sessions)

	if r.metrics != nil {
		r.metrics.Live.Set(0)
	}
	return errors.Join(errs...)
}
