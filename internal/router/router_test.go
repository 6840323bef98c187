package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/intake-api/internal/handler"
	"github.com/jwalitptl/intake-api/internal/middleware"
)

type pingHandler struct{}

func (pingHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
}

func newRouter(t *testing.T, checks map[string]handler.Check, limited bool) *Router {
	t.Helper()
	reg := prometheus.NewRegistry()
	r := NewRouter(RouterConfig{
		Mode:             gin.TestMode,
		RateLimitEnabled: limited,
		RateLimit:        0.001,
		RateBurst:        1,
		CORSConfig:       middleware.DefaultCORSConfig(),
		MetricsNamespace: "test",
		Registerer:       reg,
	}, handler.NewHandler(reg, checks), pingHandler{})
	r.Setup()
	return r
}

func get(r *Router, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRouter_RoutesAndHeaders(t *testing.T) {
	r := newRouter(t, nil, false)

	w := get(r, "/api/v1/ping")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
	assert.Equal(t, "1.0", w.Header().Get("X-API-Version"))
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	assert.Equal(t, http.StatusOK, get(r, "/api/v1/health/live").Code)
	assert.Equal(t, http.StatusOK, get(r, "/api/v1/health/ready").Code)

	metrics := get(r, "/metrics")
	require.Equal(t, http.StatusOK, metrics.Code)
	assert.True(t, strings.Contains(metrics.Body.String(), "test_http_requests_total"))
}

func TestRouter_ReadinessReportsFailures(t *testing.T) {
	r := newRouter(t, map[string]handler.Check{
		"redis": func(ctx context.Context) error { return errors.New("connection refused") },
	}, false)

	w := get(r, "/api/v1/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestRouter_RateLimitSkipsHealth(t *testing.T) {
	r := newRouter(t, nil, true)

	assert.Equal(t, http.StatusOK, get(r, "/api/v1/ping").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/api/v1/ping").Code)
	assert.Equal(t, http.StatusOK, get(r, "/api/v1/health/live").Code)
	assert.Equal(t, http.StatusOK, get(r, "/api/v1/health/live").Code)
}
