package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xxxsen/quizpack/internal/pkg/errcode"
	"github.com/xxxsen/quizpack/internal/pkg/response"
)

type limiterEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

type rateLimiter struct {
	mu            sync.Mutex
	every         time.Duration
	burst         int
	entries       map[string]*limiterEntry
	sweepInterval time.Duration
	lastSweep     time.Time
	now           func() time.Time
}

// RateLimit allows burst requests per user and route, refilled one every
// interval. A non-positive interval disables limiting.
func RateLimit(every time.Duration, burst int) gin.HandlerFunc {
	if burst <= 0 {
		burst = 1
	}
	limiter := &rateLimiter{
		every:         every,
		burst:         burst,
		entries:       make(map[string]*limiterEntry),
		sweepInterval: time.Minute,
		now:           time.Now,
	}
	return limiter.handle
}

func (l *rateLimiter) handle(c *gin.Context) {
	if l.every <= 0 {
		c.Next()
		return
	}
	uid := c.GetString(ContextUserIDKey)
	if uid == "" {
		uid = c.ClientIP()
	}
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	key := strings.Join([]string{uid, c.Request.Method, path}, "|")

	now := l.now()
	l.mu.Lock()
	if now.Sub(l.lastSweep) >= l.sweepInterval {
		l.cleanupExpiredLocked(now)
	}
	entry, ok := l.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Every(l.every), l.burst)}
		l.entries[key] = entry
	}
	entry.seen = now
	allowed := entry.limiter.AllowN(now, 1)
	l.mu.Unlock()

	if !allowed {
		logutil.GetLogger(c.Request.Context()).Warn("rate limit hit",
			zap.String("user_id", uid),
			zap.String("path", path),
		)
		response.Error(c, http.StatusTooManyRequests, errcode.ErrTooMany, http.StatusText(http.StatusTooManyRequests))
		return
	}
	c.Next()
}

// cleanupExpiredLocked drops limiters idle long enough to have refilled.
func (l *rateLimiter) cleanupExpiredLocked(now time.Time) {
	idle := l.every * time.Duration(l.burst)
	for key, entry := range l.entries {
		if now.Sub(entry.seen) > idle {
			delete(l.entries, key)
		}
	}
	l.lastSweep = now
}
