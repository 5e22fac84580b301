package relay

import (
	"time"

	"github.com/didip/tollbooth/v7"
	tollLimiter "github.com/didip/tollbooth/v7/limiter"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// newIPRateLimiter limits requests per client IP: rps sustained, burst
// instantaneous. Idle buckets expire after ttl.
func newIPRateLimiter(rps float64, burst int, ttl time.Duration) gin.HandlerFunc {
	lim := tollbooth.NewLimiter(rps, &tollLimiter.ExpirableOptions{
		DefaultExpirationTTL: ttl,
	})
	lim.SetBurst(burst)
	lim.SetIPLookups([]string{"RemoteAddr"})

	return func(c *gin.Context) {
		if httpErr := tollbooth.LimitByRequest(lim, c.Writer, c.Request); httpErr != nil {
			c.AbortWithStatusJSON(httpErr.StatusCode, gin.H{
				"error":       "too many connection attempts, try again later",
				"retry_after": c.Writer.Header().Get("Retry-After"),
			})
			return
		}
		c.Next()
	}
}

// accessLog records method, path, remote, status, bytes and duration.
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("remote", c.ClientIP()).
			Int("status", c.Writer.Status()).
			Int("bytes", c.Writer.Size()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	}
}
