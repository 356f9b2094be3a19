package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRemoteAddr = "1.2.3.4:1234"

const rateLimitedBody = `{"success":false,"error":"rate limit exceeded","type":"rate_limited"}`

func callLimited(t *testing.T, handler echo.HandlerFunc, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/upscale", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	require.NoError(t, handler(e.NewContext(req, rec)))
	return rec
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestRateLimiterAllowsRequestsUnderLimit(t *testing.T) {
	handler := newRateLimiter(10, 3)(okHandler)

	for range 3 {
		rec := callLimited(t, handler, testRemoteAddr)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiterBlocksExcessiveRequests(t *testing.T) {
	handler := newRateLimiter(0.01, 1)(okHandler)

	rec := callLimited(t, handler, testRemoteAddr)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = callLimited(t, handler, testRemoteAddr)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, rateLimitedBody, rec.Body.String())
}

func TestRateLimiterDifferentIPsAreIndependent(t *testing.T) {
	handler := newRateLimiter(0.01, 1)(okHandler)

	rec := callLimited(t, handler, testRemoteAddr)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = callLimited(t, handler, "5.6.7.8:5678")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = callLimited(t, handler, testRemoteAddr)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, rateLimitedBody, rec.Body.String())
}
