package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPErrorsTotal counts error responses by type. Register it with RegisterMetrics.
var HTTPErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "weetai",
		Name:      "http_errors_total",
		Help:      "Total HTTP errors by error type",
	},
	[]string{"type"},
)

// RegisterMetrics adds the error counter to reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(HTTPErrorsTotal)
}

// Middleware converts errors returned by handlers into JSON error responses.
// Echo HTTP errors (404 routes, body limit, rate limiter) are rendered in the same shape.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}
			if c.Response().Committed {
				slog.ErrorContext(c.Request().Context(), "Error after response was written", "path", c.Request().URL.Path, "error", err)
				return nil
			}
			return HandleError(c, err)
		}
	}
}

// HandleError logs err and writes it as a structured JSON response.
func HandleError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		structuredErr = WrapHTTPError(httpErr)
	} else {
		structuredErr = AsStructuredError(err)
	}

	HTTPErrorsTotal.WithLabelValues(string(structuredErr.Type)).Inc()
	logError(c, structuredErr)

	if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
		return fmt.Errorf("failed to write error response: %w", err)
	}
	return nil
}

func logError(c echo.Context, err *Error) {
	ctx := c.Request().Context()
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}
	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}
	if err.Cause != nil {
		attrs = append(attrs, "cause", err.Cause)
	}

	switch err.Type {
	case TypeValidation, TypeNotFound, TypeTooLarge, TypeRateLimited:
		slog.InfoContext(ctx, "Request rejected", attrs...)
	case TypeUnavailable:
		slog.WarnContext(ctx, "Service unavailable", attrs...)
	case TypeExternal:
		slog.ErrorContext(ctx, "External service error", attrs...)
	default:
		slog.ErrorContext(ctx, "Internal error", attrs...)
	}
}

// WrapHTTPError converts Echo's HTTPError to a structured error.
func WrapHTTPError(httpErr *echo.HTTPError) *Error {
	message := http.StatusText(httpErr.Code)
	if msg, ok := httpErr.Message.(string); ok && msg != "" {
		message = msg
	}

	var errType ErrorType
	switch httpErr.Code {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusMethodNotAllowed:
		errType = TypeValidation
	case http.StatusNotFound:
		errType = TypeNotFound
	case http.StatusRequestEntityTooLarge:
		errType = TypeTooLarge
	case http.StatusTooManyRequests:
		errType = TypeRateLimited
	case http.StatusBadGateway:
		errType = TypeExternal
	case http.StatusServiceUnavailable:
		errType = TypeUnavailable
	default:
		errType = TypeInternal
	}

	err := newError(errType, message, nil)
	if httpErr.Internal != nil {
		err.Cause = httpErr.Internal
	}
	return err
}
