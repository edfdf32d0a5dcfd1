package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Default rate limit: 60 requests per client IP per minute.
const (
	DefaultRateLimit  = 60
	DefaultRateWindow = time.Minute
)

type client struct {
	windowStart time.Time
	count       int
}

type limiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   int
	window  time.Duration
	now     func() time.Time
}

func (l *limiter) allow(ip string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	// drop idle clients so the map does not grow without bound
	for k, cl := range l.clients {
		if now.Sub(cl.windowStart) > 2*l.window {
			delete(l.clients, k)
		}
	}
	cl, ok := l.clients[ip]
	if !ok || now.Sub(cl.windowStart) > l.window {
		l.clients[ip] = &client{windowStart: now, count: 1}
		return true
	}
	cl.count++
	return cl.count <= l.limit
}

// RateLimiter limits each client IP to limit requests per window.
// Non-positive arguments fall back to DefaultRateLimit and DefaultRateWindow.
// Each call keeps its own in-memory counters.
//
// Response when limit exceeded:
//
//	HTTP/1.1 429 Too Many Requests
//	{"message": "rate limit exceeded", "timestamp": "..."}
func RateLimiter(limit int, window time.Duration) gin.HandlerFunc {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	l := &limiter{clients: map[string]*client{}, limit: limit, window: window, now: time.Now}
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			AbortWithError(c, http.StatusTooManyRequests, "rate limit exceeded", nil)
			return
		}
		c.Next()
	}
}
