package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"collaborative-grid/internal/middleware"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func get(r http.Handler, method string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, "/ping", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimit_RejectsAfterLimit(t *testing.T) {
	// Arrange
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	r := newRouter(middleware.RateLimit(client, "test:", 2, time.Minute))

	// Act & Assert
	assert.Equal(t, http.StatusOK, get(r, http.MethodGet).Code)
	assert.Equal(t, http.StatusOK, get(r, http.MethodGet).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, http.MethodGet).Code)
	assert.Equal(t, "3", mustGet(t, mr, "test:ratelimit:10.0.0.1"))

	// 窗口过期后计数重置
	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, get(r, http.MethodGet).Code)
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}

func TestRateLimit_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	r := newRouter(middleware.RateLimit(client, "test:", 2, time.Minute))
	mr.Close()

	assert.Equal(t, http.StatusInternalServerError, get(r, http.MethodGet).Code)
}

func TestRateLimit_PanicsOnInvalidArguments(t *testing.T) {
	assert.Panics(t, func() { middleware.RateLimit(nil, "", 1, time.Second) })
}

func TestCORS(t *testing.T) {
	r := newRouter(middleware.CORS("http://localhost:5173"))

	w := get(r, http.MethodGet)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	preflight := get(r, http.MethodOptions)
	assert.Equal(t, http.StatusNoContent, preflight.Code)
}

func TestCORS_NoOrigin(t *testing.T) {
	r := newRouter(middleware.CORS(""))

	w := get(r, http.MethodGet)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
