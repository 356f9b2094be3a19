// Package httpserver exposes the upscaling service over HTTP using echo.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/corpsj/weet-ai/internal/adapter/metrics"
	"github.com/corpsj/weet-ai/internal/app"
	"github.com/corpsj/weet-ai/internal/domain"
	"github.com/corpsj/weet-ai/internal/platform/config"
	apperrors "github.com/corpsj/weet-ai/internal/platform/errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
)

const readHeaderTimeout = 10 * time.Second

type appService interface {
	Upscale(ctx context.Context, in app.Input) (*app.Output, error)
	ListHistory(ctx context.Context, limit int) ([]domain.UpscaleRecord, error)
	GetHistory(ctx context.Context, id uuid.UUID) (*domain.UpscaleRecord, error)
	DeleteHistory(ctx context.Context, id uuid.UUID) error
}

type sessionInventory interface {
	Loaded() []domain.SessionKey
}

type weightsStatus interface {
	Status(spec domain.ModelSpec) domain.WeightsState
}

// Dependencies are the collaborators the server routes requests to.
// HTTPMetrics and MetricsHandler may be nil, which disables request metrics and /metrics.
type Dependencies struct {
	App            appService
	Sessions       sessionInventory
	Weights        weightsStatus
	Device         domain.Device
	RuntimeName    string
	HealthChecks   []HealthCheck
	HTTPMetrics    *metrics.HTTPMetrics
	MetricsHandler http.Handler
	Clock          clockwork.Clock
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app            appService
	sessions       sessionInventory
	weights        weightsStatus
	device         domain.Device
	runtimeName    string
	healthChecks   []HealthCheck
	httpMetrics    *metrics.HTTPMetrics
	metricsHandler http.Handler

	clock     clockwork.Clock
	startTime time.Time
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadHeaderTimeout = readHeaderTimeout
	e.HTTPErrorHandler = renderError

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	srv := &Server{
		echo:           e,
		config:         cfg,
		app:            deps.App,
		sessions:       deps.Sessions,
		weights:        deps.Weights,
		device:         deps.Device,
		runtimeName:    deps.RuntimeName,
		healthChecks:   deps.HealthChecks,
		httpMetrics:    deps.HTTPMetrics,
		metricsHandler: deps.MetricsHandler,
		clock:          clock,
		startTime:      clock.Now(),
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP lets the server be mounted or exercised without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// renderError handles errors middleware reports through c.Error rather than returning them.
func renderError(err error, c echo.Context) {
	if err == nil || c.Response().Committed {
		return
	}
	if werr := apperrors.HandleError(c, err); werr != nil {
		slog.ErrorContext(c.Request().Context(), "Failed to render error", "error", werr)
	}
}
