package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/stemsi/cbt-backend/internal/config"
	"github.com/stemsi/cbt-backend/internal/response"
)

// RateLimiter is a fixed-window per-IP limiter backed by Redis, so every
// server instance shares the same counters.
type RateLimiter struct {
	rdb    *redis.Client
	scope  string
	rate   int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter creates a RateLimiter allowing rate requests per window.
func NewRateLimiter(rdb *redis.Client, scope string, rate int, window time.Duration) *RateLimiter {
	return &RateLimiter{rdb: rdb, scope: scope, rate: rate, window: window, now: time.Now}
}

// Middleware returns a Gin middleware that rate-limits requests by IP.
// Redis failures let the request through.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.rate <= 0 {
			c.Next()
			return
		}

		slot := rl.now().UnixNano() / int64(rl.window)
		key := config.CacheKey.RateLimitKey(rl.scope, c.ClientIP(), slot)

		pipe := rl.rdb.TxPipeline()
		incr := pipe.Incr(c.Request.Context(), key)
		pipe.Expire(c.Request.Context(), key, rl.window)
		if _, err := pipe.Exec(c.Request.Context()); err != nil {
			log.Warn().Err(err).Str("scope", rl.scope).Msg("Rate limiter unavailable")
			c.Next()
			return
		}

		count := int(incr.Val())
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.rate))
		if remaining := rl.rate - count; remaining > 0 {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		} else {
			c.Header("X-RateLimit-Remaining", "0")
		}

		if count > rl.rate {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}
