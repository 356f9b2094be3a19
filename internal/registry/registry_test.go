package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/corpsj/weet-ai/internal/adapter/metrics"
	"github.com/corpsj/weet-ai/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockSession struct {
	key     domain.SessionKey
	closed  atomic.Bool
	closeFn func() error
}

func (m *mockSession) Key() domain.SessionKey { return m.key }

func (m *mockSession) Enhance(_ context.Context, img *domain.ImageBuffer, outscale int) (*domain.ImageBuffer, error) {
	return domain.NewImageBuffer(img.Width*outscale, img.Height*outscale), nil
}

func (m *mockSession) Close() error {
	m.closed.Store(true)
	if m.closeFn != nil {
		return m.closeFn()
	}
	return nil
}

type mockRuntime struct {
	calls        atomic.Int32
	newSessionFn func(ctx context.Context, key domain.SessionKey, spec domain.ModelSpec, path string, tile domain.TileConfig) (domain.Session, error)
}

func (m *mockRuntime) Name() string { return "mock" }

func (m *mockRuntime) NewSession(ctx context.Context, key domain.SessionKey, spec domain.ModelSpec, path string, tile domain.TileConfig) (domain.Session, error) {
	m.calls.Add(1)
	if m.newSessionFn != nil {
		return m.newSessionFn(ctx, key, spec, path, tile)
	}
	return &mockSession{key: key}, nil
}

type mockWeights struct {
	calls    atomic.Int32
	ensureFn func(ctx context.Context, spec domain.ModelSpec) (string, error)
}

func (m *mockWeights) Ensure(ctx context.Context, spec domain.ModelSpec) (string, error) {
	m.calls.Add(1)
	if m.ensureFn != nil {
		return m.ensureFn(ctx, spec)
	}
	return "/models/" + spec.WeightsFile, nil
}

func (m *mockWeights) Status(domain.ModelSpec) domain.WeightsState {
	return domain.WeightsReady
}

func newTestRegistry(rt *mockRuntime, w *mockWeights, opts ...Option) *Registry {
	return New(rt, w, domain.DefaultTileConfig(false), opts...)
}

// --- Tests ---

func TestGetSession_BuildsOnceAndCaches(t *testing.T) {
	rt, w := &mockRuntime{}, &mockWeights{}
	var gotPath string
	var gotTile domain.TileConfig
	rt.newSessionFn = func(_ context.Context, key domain.SessionKey, _ domain.ModelSpec, path string, tile domain.TileConfig) (domain.Session, error) {
		gotPath, gotTile = path, tile
		return &mockSession{key: key}, nil
	}
	reg := newTestRegistry(rt, w)

	first, err := reg.GetSession(context.Background(), domain.ModelX4Plus, 4)
	require.NoError(t, err)
	second, err := reg.GetSession(context.Background(), domain.ModelX4Plus, 4)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), rt.calls.Load())
	assert.Equal(t, int32(1), w.calls.Load())
	assert.Equal(t, "/models/RealESRGAN_x4plus.onnx", gotPath)
	assert.Equal(t, domain.DefaultTileConfig(false), gotTile)
	assert.Equal(t, domain.SessionKey{Model: domain.ModelX4Plus, Scale: 4}, first.Key())
}

func TestGetSession_ConcurrentColdStartIsSerialized(t *testing.T) {
	release := make(chan struct{})
	rt, w := &mockRuntime{}, &mockWeights{}
	rt.newSessionFn = func(_ context.Context, key domain.SessionKey, _ domain.ModelSpec, _ string, _ domain.TileConfig) (domain.Session, error) {
		<-release
		return &mockSession{key: key}, nil
	}
	reg := newTestRegistry(rt, w)

	const callers = 16
	results := make([]domain.Session, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = reg.GetSession(context.Background(), domain.ModelX4PlusAnime, 4)
		}(i)
	}

	require.Eventually(t, func() bool { return rt.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, int32(1), rt.calls.Load())
	assert.Equal(t, 1, reg.Len())
}

func TestGetSession_DistinctKeysGetDistinctSessions(t *testing.T) {
	reg := newTestRegistry(&mockRuntime{}, &mockWeights{})

	a, err := reg.GetSession(context.Background(), domain.ModelX4Plus, 4)
	require.NoError(t, err)
	b, err := reg.GetSession(context.Background(), domain.ModelX4PlusAnime, 4)
	require.NoError(t, err)
	c, err := reg.GetSession(context.Background(), domain.ModelX4Plus, 2)
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, []domain.SessionKey{
		{Model: domain.ModelX4Plus, Scale: 2},
		{Model: domain.ModelX4Plus, Scale: 4},
		{Model: domain.ModelX4PlusAnime, Scale: 4},
	}, reg.Loaded())
}

func TestGetSession_RejectsInvalidInputWithoutIO(t *testing.T) {
	rt, w := &mockRuntime{}, &mockWeights{}
	reg := newTestRegistry(rt, w)

	_, err := reg.GetSession(context.Background(), domain.ModelX4Plus, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidScale)

	_, err = reg.GetSession(context.Background(), domain.ModelX4Plus, -2)
	assert.ErrorIs(t, err, domain.ErrInvalidScale)

	_, err = reg.GetSession(context.Background(), "RealESRGAN_x16", 4)
	assert.ErrorIs(t, err, domain.ErrUnknownModel)

	assert.Equal(t, int32(0), w.calls.Load())
	assert.Equal(t, int32(0), rt.calls.Load())
	assert.Equal(t, 0, reg.Len())
}

func TestGetSession_WeightFailureIsNotCached(t *testing.T) {
	rt, w := &mockRuntime{}, &mockWeights{}
	fail := true
	w.ensureFn = func(_ context.Context, spec domain.ModelSpec) (string, error) {
		if fail {
			return "", errors.New("connection reset")
		}
		return "/models/" + spec.WeightsFile, nil
	}
	reg := newTestRegistry(rt, w)

	_, err := reg.GetSession(context.Background(), domain.ModelX2Plus, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrWeightFetch)
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, int32(0), rt.calls.Load())

	fail = false
	sess, err := reg.GetSession(context.Background(), domain.ModelX2Plus, 2)
	require.NoError(t, err)
	assert.NotNil(t, sess)
	assert.Equal(t, int32(2), w.calls.Load())
}

func TestGetSession_WeightErrorKeepsSentinelOnce(t *testing.T) {
	w := &mockWeights{ensureFn: func(context.Context, domain.ModelSpec) (string, error) {
		return "", fmt.Errorf("%w: status 404", domain.ErrWeightFetch)
	}}
	reg := newTestRegistry(&mockRuntime{}, w)

	_, err := reg.GetSession(context.Background(), domain.ModelX4Plus, 4)
	require.ErrorIs(t, err, domain.ErrWeightFetch)
	assert.Equal(t, "session RealESRGAN_x4plus_4: weight fetch failed: status 404", err.Error())
}

func TestGetSession_RuntimeFailureIsInferenceError(t *testing.T) {
	rt := &mockRuntime{newSessionFn: func(context.Context, domain.SessionKey, domain.ModelSpec, string, domain.TileConfig) (domain.Session, error) {
		return nil, errors.New("out of device memory")
	}}
	reg := newTestRegistry(rt, &mockWeights{})

	_, err := reg.GetSession(context.Background(), domain.ModelX4Plus, 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInference)
	assert.NotErrorIs(t, err, domain.ErrWeightFetch)
	assert.Equal(t, 0, reg.Len())
}

func TestGetSession_NativeScaleMismatchIsAllowed(t *testing.T) {
	reg := newTestRegistry(&mockRuntime{}, &mockWeights{})

	sess, err := reg.GetSession(context.Background(), domain.ModelX4Plus, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionKey{Model: domain.ModelX4Plus, Scale: 2}, sess.Key())
}

func TestGetSession_AbandonedCallerDoesNotCancelConstruction(t *testing.T) {
	release := make(chan struct{})
	var buildCtxErr error
	rt := &mockRuntime{newSessionFn: func(ctx context.Context, key domain.SessionKey, _ domain.ModelSpec, _ string, _ domain.TileConfig) (domain.Session, error) {
		<-release
		buildCtxErr = ctx.Err()
		return &mockSession{key: key}, nil
	}}
	reg := newTestRegistry(rt, &mockWeights{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := reg.GetSession(ctx, domain.ModelX4Plus, 4)
		done <- err
	}()

	require.Eventually(t, func() bool { return rt.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(release)
	require.Eventually(t, func() bool { return reg.Len() == 1 }, time.Second, time.Millisecond)
	assert.NoError(t, buildCtxErr)

	_, err := reg.GetSession(context.Background(), domain.ModelX4Plus, 4)
	require.NoError(t, err)
	assert.Equal(t, int32(1), rt.calls.Load())
}

func TestWarm(t *testing.T) {
	rt := &mockRuntime{}
	reg := newTestRegistry(rt, &mockWeights{})

	err := reg.Warm(context.Background(),
		domain.SessionKey{Model: domain.ModelX4Plus, Scale: 4},
		domain.SessionKey{Model: domain.ModelX2Plus, Scale: 2},
		domain.SessionKey{Model: "bogus", Scale: 4},
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownModel)
	assert.Equal(t, 2, reg.Len())
}

func TestClose(t *testing.T) {
	reg := newTestRegistry(&mockRuntime{}, &mockWeights{})

	sess, err := reg.GetSession(context.Background(), domain.ModelX4Plus, 4)
	require.NoError(t, err)

	require.NoError(t, reg.Close())
	assert.True(t, sess.(*mockSession).closed.Load())
	assert.Equal(t, 0, reg.Len())

	_, err = reg.GetSession(context.Background(), domain.ModelX4Plus, 4)
	assert.ErrorIs(t, err, domain.ErrRegistryClosed)

	assert.NoError(t, reg.Close())
}

func TestClose_JoinsSessionErrors(t *testing.T) {
	rt := &mockRuntime{newSessionFn: func(_ context.Context, key domain.SessionKey, _ domain.ModelSpec, _ string, _ domain.TileConfig) (domain.Session, error) {
		return &mockSession{key: key, closeFn: func() error { return errors.New("busy") }}, nil
	}}
	reg := newTestRegistry(rt, &mockWeights{})
	_, err := reg.GetSession(context.Background(), domain.ModelX4Plus, 4)
	require.NoError(t, err)

	err = reg.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RealESRGAN_x4plus_4")
}

func TestMetrics(t *testing.T) {
	m := metrics.NewSessionMetrics(prometheus.NewRegistry())
	fail := true
	w := &mockWeights{ensureFn: func(_ context.Context, spec domain.ModelSpec) (string, error) {
		if fail {
			return "", errors.New("offline")
		}
		return spec.WeightsFile, nil
	}}
	reg := newTestRegistry(&mockRuntime{}, w, WithMetrics(m))

	_, _ = reg.GetSession(context.Background(), domain.ModelX4Plus, 4)
	fail = false
	_, _ = reg.GetSession(context.Background(), domain.ModelX4Plus, 4)
	_, _ = reg.GetSession(context.Background(), domain.ModelX4Plus, 4)

	model := string(domain.ModelX4Plus)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ColdStarts.WithLabelValues(model, "weights_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ColdStarts.WithLabelValues(model, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Hits.WithLabelValues(model)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Live))

	require.NoError(t, reg.Close())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Live))
}
