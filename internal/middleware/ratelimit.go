package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/campuslink/portal/internal/common/config"
	"github.com/campuslink/portal/internal/principal"
)

// RateLimiter keeps a token bucket per (principal, category). Writes are
// limited tighter than reads, uploads tightest.
type RateLimiter struct {
	cfg      config.RateLimitConfig
	mu       sync.Mutex
	limiters map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		cfg:      cfg,
		limiters: make(map[string]*limiterEntry),
	}

	if cfg.Enabled {
		go rl.cleanup()
	}

	return rl
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		for key, entry := range rl.limiters {
			if time.Since(entry.lastSeen) > 10*time.Minute {
				delete(rl.limiters, key)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *RateLimiter) categoryLimits(method, path string) (string, int) {
	switch {
	case method == http.MethodPost && strings.HasPrefix(path, "/api/v1/upload"):
		return "upload", rl.cfg.RequestsPerMinute / 10
	case method == http.MethodPost && strings.HasPrefix(path, "/api/v1/messages"):
		return "send", rl.cfg.RequestsPerMinute / 3
	case method == http.MethodGet:
		return "read", rl.cfg.RequestsPerMinute
	default:
		return "write", rl.cfg.RequestsPerMinute / 2
	}
}

func (rl *RateLimiter) allow(key string, rpm int) bool {
	if rpm < 1 {
		rpm = 1
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.limiters[key]
	if !ok {
		burst := rl.cfg.Burst
		if burst < 1 {
			burst = 1
		}
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst),
		}
		rl.limiters[key] = entry
	}
	entry.lastSeen = time.Now()

	return entry.limiter.Allow()
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.cfg.Enabled {
			c.Next()
			return
		}

		caller := principal.GetUserID(c.Request.Context())
		if caller == "" {
			caller = c.ClientIP()
		}

		category, rpm := rl.categoryLimits(c.Request.Method, c.Request.URL.Path)
		if !rl.allow(caller+":"+category, rpm) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		c.Next()
	}
}
