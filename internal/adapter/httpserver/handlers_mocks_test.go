package httpserver

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/corpsj/weet-ai/internal/app"
	"github.com/corpsj/weet-ai/internal/domain"
	"github.com/corpsj/weet-ai/internal/platform/config"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockAppService struct {
	upscaleFn     func(ctx context.Context, in app.Input) (*app.Output, error)
	listHistoryFn func(ctx context.Context, limit int) ([]domain.UpscaleRecord, error)
	getHistoryFn  func(ctx context.Context, id uuid.UUID) (*domain.UpscaleRecord, error)
	deleteFn      func(ctx context.Context, id uuid.UUID) error
}

func (m *mockAppService) Upscale(ctx context.Context, in app.Input) (*app.Output, error) {
	if m.upscaleFn != nil {
		return m.upscaleFn(ctx, in)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAppService) ListHistory(ctx context.Context, limit int) ([]domain.UpscaleRecord, error) {
	if m.listHistoryFn != nil {
		return m.listHistoryFn(ctx, limit)
	}
	return nil, domain.ErrHistoryDisabled
}

func (m *mockAppService) GetHistory(ctx context.Context, id uuid.UUID) (*domain.UpscaleRecord, error) {
	if m.getHistoryFn != nil {
		return m.getHistoryFn(ctx, id)
	}
	return nil, domain.ErrHistoryDisabled
}

func (m *mockAppService) DeleteHistory(ctx context.Context, id uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return domain.ErrHistoryDisabled
}

type mockSessions struct {
	loadedFn func() []domain.SessionKey
}

func (m *mockSessions) Loaded() []domain.SessionKey {
	if m.loadedFn != nil {
		return m.loadedFn()
	}
	return nil
}

type mockWeights struct {
	statusFn func(spec domain.ModelSpec) domain.WeightsState
}

func (m *mockWeights) Status(spec domain.ModelSpec) domain.WeightsState {
	if m.statusFn != nil {
		return m.statusFn(spec)
	}
	return domain.WeightsNotFound
}

// --- Test helpers ---

func testConfig() *config.Config {
	return &config.Config{
		Port:               "8000",
		CORSAllowedOrigins: "http://localhost:3000",
		MaxUploadSize:      "1M",
		RateLimitPerSecond: 100,
		RateLimitBurst:     100,
	}
}

func newTestServer(t *testing.T, svc appService, opts ...func(*Dependencies, *config.Config)) *Server {
	t.Helper()

	cfg := testConfig()
	deps := Dependencies{
		App:         svc,
		Sessions:    &mockSessions{},
		Weights:     &mockWeights{},
		Device:      domain.Device{Kind: domain.DeviceCPU, Available: true},
		RuntimeName: "reference",
		Clock:       clockwork.NewFakeClock(),
	}
	for _, opt := range opts {
		opt(&deps, cfg)
	}
	return NewServer(cfg, deps)
}

func withHealthChecks(checks ...HealthCheck) func(*Dependencies, *config.Config) {
	return func(d *Dependencies, _ *config.Config) {
		d.HealthChecks = checks
	}
}

func withSessions(keys ...domain.SessionKey) func(*Dependencies, *config.Config) {
	return func(d *Dependencies, _ *config.Config) {
		d.Sessions = &mockSessions{loadedFn: func() []domain.SessionKey { return keys }}
	}
}

func withDevice(dev domain.Device) func(*Dependencies, *config.Config) {
	return func(d *Dependencies, _ *config.Config) {
		d.Device = dev
	}
}

func doRequest(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
