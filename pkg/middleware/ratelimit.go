package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-client limiter of the admin API
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	BurstSize         int           // defaults to RequestsPerMinute/6, at least 1
	CleanupInterval   time.Duration // defaults to 10 minutes
}

// RateLimiter manages per-client rate limiting
type RateLimiter struct {
	config RateLimitConfig
	logger *zap.Logger

	mu      sync.Mutex
	clients map[string]*clientLimiter

	stop     chan struct{}
	stopOnce sync.Once
}

// clientLimiter holds the rate limiter for a single client
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter and starts its cleanup loop. Call Stop
// to end the loop.
func NewRateLimiter(cfg RateLimitConfig, logger *zap.Logger) *RateLimiter {
	if cfg.BurstSize < 1 {
		cfg.BurstSize = max(int(math.Ceil(float64(cfg.RequestsPerMinute)/6.0)), 1)
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}

	rl := &RateLimiter{
		config:  cfg,
		logger:  logger.Named("ratelimit"),
		clients: make(map[string]*clientLimiter),
		stop:    make(chan struct{}),
	}
	if cfg.Enabled {
		go rl.cleanupLoop()
	}
	return rl
}

func (r *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(r.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.cleanup(time.Now().Add(-3 * r.config.CleanupInterval))
		case <-r.stop:
			return
		}
	}
}

// cleanup removes limiters not used since cutoff
func (r *RateLimiter) cleanup(cutoff time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, limiter := range r.clients {
		if limiter.lastSeen.Before(cutoff) {
			delete(r.clients, key)
		}
	}
}

// getLimiter returns the rate limiter for a client, creating it if needed
func (r *RateLimiter) getLimiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	limiter, exists := r.clients[key]
	if !exists {
		limiter = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(float64(r.config.RequestsPerMinute)/60.0), r.config.BurstSize),
		}
		r.clients[key] = limiter
	}
	limiter.lastSeen = time.Now()
	return limiter.limiter
}

// Allow reports whether a request from key may proceed
func (r *RateLimiter) Allow(key string) bool {
	if !r.config.Enabled {
		return true
	}
	return r.getLimiter(key).Allow()
}

// retryAfter is the number of whole seconds until one token is available
func (r *RateLimiter) retryAfter() int {
	if r.config.RequestsPerMinute <= 0 {
		return 60
	}
	return max(int(math.Ceil(60.0/float64(r.config.RequestsPerMinute))), 1)
}

// Stop ends the cleanup loop
func (r *RateLimiter) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// RateLimitMiddleware returns a Gin middleware that limits requests per client IP
func RateLimitMiddleware(rl *RateLimiter, rec RejectRecorder, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.config.Enabled {
			c.Next()
			return
		}

		clientIP := c.ClientIP()
		if !rl.Allow(clientIP) {
			logger.Debug("Rate limit exceeded",
				zap.String("client_ip", clientIP),
				zap.String("path", c.Request.URL.Path))
			c.Header("Retry-After", strconv.Itoa(rl.retryAfter()))
			reject(c, rec, http.StatusTooManyRequests, RejectRateLimited, "Too many requests")
			return
		}

		c.Next()
	}
}
