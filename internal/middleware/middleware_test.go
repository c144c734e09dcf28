package middleware_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskflow/backend/internal/middleware"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(handlers...)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": middleware.GetRequestID(c)})
	})
	router.GET("/missing", func(c *gin.Context) {
		c.JSON(http.StatusNotFound, middleware.ErrorBody("not_found", "Task not found"))
	})
	return router
}

func TestRequestID_Generated(t *testing.T) {
	router := newTestRouter(middleware.RequestID())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/ping", nil)
	router.ServeHTTP(w, req)

	id := w.Header().Get(middleware.RequestIDHeader)
	parsed, err := uuid.FromString(id)
	require.NoError(t, err, "generated request id must be a UUID")
	assert.Equal(t, byte(4), parsed.Version())
	assert.Contains(t, w.Body.String(), id)
}

func TestRequestID_Propagated(t *testing.T) {
	router := newTestRouter(middleware.RequestID())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/ping", nil)
	req.Header.Set(middleware.RequestIDHeader, "client-supplied")
	router.ServeHTTP(w, req)

	assert.Equal(t, "client-supplied", w.Header().Get(middleware.RequestIDHeader))
}

func TestRequestLogger_Levels(t *testing.T) {
	var logs bytes.Buffer
	logger := log.NewWithOptions(&logs, log.Options{Level: log.DebugLevel, Formatter: log.LogfmtFormatter})
	router := newTestRouter(middleware.RequestID(), middleware.RequestLogger(logger))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/ping", nil)
	router.ServeHTTP(w, req)
	assert.Contains(t, logs.String(), "level=info")
	assert.Contains(t, logs.String(), "path=/ping")
	assert.Contains(t, logs.String(), "status=200")

	logs.Reset()
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/missing", nil)
	router.ServeHTTP(w, req)
	assert.Contains(t, logs.String(), "level=warn")
	assert.Contains(t, logs.String(), "status=404")
}

func TestRateLimiter_RejectsBurstOverflow(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerMin: 60,
		BurstSize:      2,
	})
	router := newTestRouter(limiter.Middleware())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests {
			assert.Equal(t, "1", w.Header().Get("Retry-After"))
			assert.JSONEq(t, `{"error":"rate_limited","message":"Too many requests"}`, w.Body.String())
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/ping", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "other clients keep their own bucket")
}

func TestCORS_ReflectsAnyOriginWithCredentials(t *testing.T) {
	corsMiddleware, err := middleware.NewCORS(middleware.CORSConfig{MaxAge: time.Hour})
	require.NoError(t, err)
	router := newTestRouter(corsMiddleware)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/ping", nil)
	req.Header.Set("Origin", "https://frontend.example.com")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://frontend.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_Preflight(t *testing.T) {
	corsMiddleware, err := middleware.NewCORS(middleware.CORSConfig{})
	require.NoError(t, err)
	router := newTestRouter(corsMiddleware)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("OPTIONS", "/ping", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "DELETE")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "DELETE")
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_PreflightEchoesRequestedHeaders(t *testing.T) {
	corsMiddleware, err := middleware.NewCORS(middleware.CORSConfig{})
	require.NoError(t, err)
	router := newTestRouter(corsMiddleware)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("OPTIONS", "/ping", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "x-client-version, content-type")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "x-client-version, content-type", w.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_RestrictedOriginsKeepHeaderList(t *testing.T) {
	corsMiddleware, err := middleware.NewCORS(middleware.CORSConfig{
		AllowedOrigins: []string{"https://app.example.com"},
	})
	require.NoError(t, err)
	router := newTestRouter(corsMiddleware)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("OPTIONS", "/ping", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "x-client-version")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	allowed := w.Header().Get("Access-Control-Allow-Headers")
	assert.Contains(t, allowed, "Content-Type")
	assert.NotContains(t, allowed, "X-Client-Version")
}

func TestCORS_RestrictedOrigins(t *testing.T) {
	corsMiddleware, err := middleware.NewCORS(middleware.CORSConfig{
		AllowedOrigins: []string{"https://app.example.com"},
	})
	require.NoError(t, err)
	router := newTestRouter(corsMiddleware)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/ping", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCORS_InvalidOrigin(t *testing.T) {
	_, err := middleware.NewCORS(middleware.CORSConfig{AllowedOrigins: []string{"app.example.com"}})
	assert.Error(t, err)
}
