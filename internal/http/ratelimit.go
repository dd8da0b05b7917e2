package http

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ipRateLimiter mantiene un token bucket por IP de cliente.
type ipRateLimiter struct {
	limiters    sync.Map // map[string]*rate.Limiter
	rate        rate.Limit
	burst       int
	mu          sync.Mutex
	lastCleanup time.Time
}

func newIPRateLimiter(requestsPerMinute int) *ipRateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 30
	}
	return &ipRateLimiter{
		rate:        rate.Limit(float64(requestsPerMinute) / time.Minute.Seconds()),
		burst:       requestsPerMinute,
		lastCleanup: time.Now(),
	}
}

func (rl *ipRateLimiter) get(key string) *rate.Limiter {
	if limiter, ok := rl.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}
	actual, _ := rl.limiters.LoadOrStore(key, rate.NewLimiter(rl.rate, rl.burst))
	rl.maybeCleanup()
	return actual.(*rate.Limiter)
}

// maybeCleanup descarta limiters con el bucket lleno, es decir inactivos.
func (rl *ipRateLimiter) maybeCleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if time.Since(rl.lastCleanup) < 5*time.Minute {
		return
	}
	rl.lastCleanup = time.Now()
	rl.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(rl.burst) {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// IPRateLimitMiddleware limita peticiones por IP en rutas públicas de auth.
func IPRateLimitMiddleware(logger *zap.Logger, requestsPerMinute int) gin.HandlerFunc {
	rl := newIPRateLimiter(requestsPerMinute)
	return func(c *gin.Context) {
		key := c.ClientIP()
		if key == "" {
			c.Next()
			return
		}
		limiter := rl.get(key)
		if !limiter.Allow() {
			reservation := limiter.Reserve()
			delay := reservation.Delay()
			reservation.Cancel()

			retryAfter := max(int(delay.Seconds()), 1)
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			logger.Warn("rate limit exceeded",
				zap.String("client_ip", key),
				zap.String("path", c.Request.URL.Path),
				zap.Int("retry_after", retryAfter),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}
