package middlewares

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// QuotaRule caps requests per key within a fixed window.
type QuotaRule struct {
	Limit  int                       // requests allowed per window
	Window time.Duration             // e.g. 24h; starts at the first request
	KeyFn  func(*gin.Context) string // picks the counter; "" skips the quota
}

// SubjectQuotaKey counts per authenticated subject.
func SubjectQuotaKey(c *gin.Context) string {
	sub := Subject(c)
	if sub == "" {
		return ""
	}
	return "quota:subject:" + sha1Hex(sub)
}

// Quota enforces rule with a Redis counter that expires with the window.
// If Redis is unreachable the request is let through.
func Quota(rdb *redis.Client, rule QuotaRule) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rule.KeyFn(c)
		if key == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()

		// INCR creates the key at 0 when missing, so n is the count
		// including this request.
		n, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			// Redis down: let the request through.
			slog.Warn("quota check skipped", slog.String("key", key), slog.Any("error", err))
			c.Next()
			return
		}
		// First hit in this window starts the clock.
		if n == 1 {
			_ = rdb.Expire(ctx, key, rule.Window).Err()
		}

		if int(n) > rule.Limit {
			// Retry-After: seconds until the window resets.
			if ttl, err := rdb.TTL(ctx, key).Result(); err == nil && ttl > 0 {
				c.Header("Retry-After", fmt.Sprintf("%d", int(ttl.Seconds())+1))
			}
			abortJSON(c, http.StatusTooManyRequests, "Usage quota exceeded. Please try again later.")
			return
		}
		c.Header("X-Quota-Used", fmt.Sprintf("%d/%d", n, rule.Limit)) // X-Quota-Used: 5/2000
		c.Next()
	}
}
