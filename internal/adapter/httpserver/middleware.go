package httpserver

import (
	"github.com/corpsj/weet-ai/internal/platform/correlation"
	"github.com/labstack/echo/v4"
)

const correlationHeader = correlation.Header

// correlationMiddleware tags the request context with the caller's X-Request-ID, or a fresh one,
// and echoes it back on the response.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := correlation.FromHeader(c.Request().Header.Get(correlationHeader))
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlationHeader, id)
		return next(c)
	}
}
