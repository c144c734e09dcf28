package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	RequestsPerMin  int
	BurstSize       int
	CleanupInterval time.Duration
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per client IP. Idle buckets are evicted
// on the request path once per CleanupInterval.
type RateLimiter struct {
	mu          sync.Mutex
	clients     map[string]*clientLimiter
	limit       rate.Limit
	burst       int
	cleanup     time.Duration
	lastCleanup time.Time
	now         func() time.Time
}

func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.RequestsPerMin <= 0 {
		config.RequestsPerMin = 100
	}
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 10 * time.Minute
	}

	return &RateLimiter{
		clients:     make(map[string]*clientLimiter),
		limit:       rate.Limit(float64(config.RequestsPerMin) / 60.0),
		burst:       config.BurstSize,
		cleanup:     config.CleanupInterval,
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (rl *RateLimiter) reserve(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastCleanup) >= rl.cleanup {
		for k, cl := range rl.clients {
			if now.Sub(cl.lastSeen) >= rl.cleanup {
				delete(rl.clients, k)
			}
		}
		rl.lastCleanup = now
	}

	cl, ok := rl.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = cl
	}
	cl.lastSeen = now

	if cl.limiter.AllowN(now, 1) {
		return true, 0
	}

	r := cl.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return false, delay
}

func (rl *RateLimiter) clientCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter := rl.reserve(c.ClientIP())
		if !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				ErrorBody("rate_limited", "Too many requests"))
			return
		}
		c.Next()
	}
}
