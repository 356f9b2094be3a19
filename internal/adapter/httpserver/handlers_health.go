package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/corpsj/weet-ai/internal/platform/version"
	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

const readinessProbeTimeout = 5 * time.Second

// HealthCheck is a named health check function.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := c.JSON(http.StatusOK, map[string]string{"status": "healthy"}); err != nil {
		return fmt.Errorf("failed to write health response: %w", err)
	}
	return nil
}

func (s *Server) handleLiveness(c echo.Context) error {
	response := map[string]any{
		"status":          "ok",
		"runtime":         s.runtimeName,
		"loaded_sessions": len(s.sessions.Loaded()),
		"uptime":          s.clock.Since(s.startTime).Seconds(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// handleReadiness runs every check concurrently and reports each outcome. Any failure
// makes the instance unready.
func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessProbeTimeout)
	defer cancel()

	results := make([]error, len(s.healthChecks))
	var g errgroup.Group
	for i, hc := range s.healthChecks {
		g.Go(func() error {
			results[i] = hc.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	resp := readinessResponse{Status: "ready", Checks: make(map[string]string, len(results))}
	code := http.StatusOK
	for i, hc := range s.healthChecks {
		if err := results[i]; err != nil {
			resp.Checks[hc.Name] = err.Error()
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
			slog.WarnContext(ctx, "Readiness check failed", "check", hc.Name, "error", err)
			continue
		}
		resp.Checks[hc.Name] = "ok"
	}

	if err := c.JSON(code, resp); err != nil {
		return fmt.Errorf("failed to write readiness response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
