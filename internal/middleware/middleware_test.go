package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newLimiter(now *time.Time) *rateLimiter {
	return &rateLimiter{
		every:         10 * time.Second,
		burst:         1,
		entries:       make(map[string]*limiterEntry),
		sweepInterval: 10 * time.Second,
		now:           func() time.Time { return *now },
	}
}

func limitedRequest(l *rateLimiter, userID string) *gin.Context {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/imports", nil)
	c.Set(ContextUserIDKey, userID)
	l.handle(c)
	return c
}

func TestRateLimiterBlocksWithinWindow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Now()
	limiter := newLimiter(&now)

	require.False(t, limitedRequest(limiter, "u1").IsAborted())
	require.True(t, limitedRequest(limiter, "u1").IsAborted())
	require.False(t, limitedRequest(limiter, "u2").IsAborted())

	now = now.Add(11 * time.Second)
	require.False(t, limitedRequest(limiter, "u1").IsAborted())
}

func TestRateLimiterCleanupExpiredLocked(t *testing.T) {
	base := time.Now()
	limiter := newLimiter(&base)
	limiter.entries["expired"] = &limiterEntry{limiter: rate.NewLimiter(1, 1), seen: base.Add(-20 * time.Second)}
	limiter.entries["active"] = &limiterEntry{limiter: rate.NewLimiter(1, 1), seen: base.Add(-2 * time.Second)}

	limiter.mu.Lock()
	limiter.cleanupExpiredLocked(base)
	limiter.mu.Unlock()

	require.NotContains(t, limiter.entries, "expired")
	require.Contains(t, limiter.entries, "active")
	require.False(t, limiter.lastSweep.IsZero())
}

func TestUserIDRequiresHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), UserID())
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextUserIDKey)+" "+c.GetString(ContextRequestIDKey))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(HeaderUserID, "u1")
	req.Header.Set(HeaderRequestID, "req-1")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "u1 req-1", rec.Body.String())
	require.Equal(t, "req-1", rec.Header().Get(HeaderRequestID))
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"https://quiz.example"}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://quiz.example")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://quiz.example", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), HeaderUserID)

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
