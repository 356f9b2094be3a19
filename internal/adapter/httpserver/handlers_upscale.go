package httpserver

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/corpsj/weet-ai/internal/app"
	"github.com/corpsj/weet-ai/internal/codec"
	"github.com/corpsj/weet-ai/internal/domain"
	apperrors "github.com/corpsj/weet-ai/internal/platform/errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const defaultScale = 4

func (s *Server) registerUpscaleRoutes() {
	limits := []echo.MiddlewareFunc{
		middleware.BodyLimit(s.config.MaxUploadSize),
		newRateLimiter(s.config.RateLimitPerSecond, s.config.RateLimitBurst),
	}

	s.echo.POST("/upscale", s.handleUpscale, limits...)
	s.echo.POST("/upscale-file", s.handleUpscaleFile, limits...)
}

type upscaleRequest struct {
	Image string `json:"image" form:"image"`
	Scale int    `json:"scale" form:"scale"`
	Model string `json:"model" form:"model"`
}

type upscaleResponse struct {
	Success       bool              `json:"success"`
	UpscaledImage string            `json:"upscaled_image"`
	OriginalSize  domain.Dimensions `json:"original_size"`
	UpscaledSize  domain.Dimensions `json:"upscaled_size"`
	Scale         int               `json:"scale"`
	Model         domain.ModelName  `json:"model"`
	CacheHit      bool              `json:"cache_hit"`
}

// handleUpscale accepts a base64 image as form fields or a JSON body.
func (s *Server) handleUpscale(c echo.Context) error {
	req := upscaleRequest{Scale: defaultScale}
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.Image == "" {
		return apperrors.ValidationError("image is required")
	}

	out, err := s.app.Upscale(c.Request().Context(), app.Input{
		Base64: req.Image,
		Scale:  req.Scale,
		Model:  req.Model,
		Source: domain.SourceInline,
	})
	if err != nil {
		return err
	}
	return writeUpscaleResponse(c, out)
}

// handleUpscaleFile accepts a multipart upload in the "file" field.
func (s *Server) handleUpscaleFile(c echo.Context) error {
	scale, err := formScale(c)
	if err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return apperrors.ValidationError("file is required")
	}

	f, err := fh.Open()
	if err != nil {
		return apperrors.ValidationError("failed to open uploaded file")
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(f)
	if err != nil {
		return apperrors.ValidationError("failed to read uploaded file")
	}
	if len(raw) == 0 {
		return apperrors.ValidationError("uploaded file is empty")
	}

	out, err := s.app.Upscale(c.Request().Context(), app.Input{
		Image:  raw,
		Scale:  scale,
		Model:  c.FormValue("model"),
		Source: domain.SourceUpload,
	})
	if err != nil {
		return err
	}
	return writeUpscaleResponse(c, out)
}

func formScale(c echo.Context) (int, error) {
	v := c.FormValue("scale")
	if v == "" {
		return defaultScale, nil
	}
	scale, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperrors.ValidationError("scale must be an integer").WithContext("scale", v)
	}
	return scale, nil
}

func writeUpscaleResponse(c echo.Context, out *app.Output) error {
	resp := upscaleResponse{
		Success:       true,
		UpscaledImage: codec.DataURI(out.PNG),
		OriginalSize:  out.OriginalSize,
		UpscaledSize:  out.UpscaledSize,
		Scale:         out.Scale,
		Model:         out.Model,
		CacheHit:      out.CacheHit,
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write upscale response: %w", err)
	}
	return nil
}
