package httpserver

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/corpsj/weet-ai/internal/domain"
	apperrors "github.com/corpsj/weet-ai/internal/platform/errors"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func (s *Server) registerHistoryRoutes() {
	s.echo.GET("/api/upscales", s.handleListUpscales)
	s.echo.GET("/api/upscales/:id", s.handleGetUpscale)
	s.echo.DELETE("/api/upscales/:id", s.handleDeleteUpscale)
}

func (s *Server) handleListUpscales(c echo.Context) error {
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return apperrors.ValidationError("limit must be an integer").WithContext("limit", v)
		}
		limit = n
	}

	records, err := s.app.ListHistory(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	if records == nil {
		records = []domain.UpscaleRecord{}
	}

	if err := c.JSON(http.StatusOK, map[string]any{"upscales": records}); err != nil {
		return fmt.Errorf("failed to write history response: %w", err)
	}
	return nil
}

func parseUpscaleID(c echo.Context) (uuid.UUID, error) {
	raw := c.Param("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.ValidationError("invalid upscale ID").WithContext("id", raw)
	}
	return id, nil
}

func (s *Server) handleGetUpscale(c echo.Context) error {
	id, err := parseUpscaleID(c)
	if err != nil {
		return err
	}

	rec, err := s.app.GetHistory(c.Request().Context(), id)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, rec); err != nil {
		return fmt.Errorf("failed to write history response: %w", err)
	}
	return nil
}

func (s *Server) handleDeleteUpscale(c echo.Context) error {
	id, err := parseUpscaleID(c)
	if err != nil {
		return err
	}

	if err := s.app.DeleteHistory(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
