package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"coursepilot/internal/ratelimit"
	"coursepilot/internal/transport/http/response"
)

// RateLimit gates the endpoint with the given limiter, keyed by the
// authenticated user (or client IP when unauthenticated).
func RateLimit(limiter *ratelimit.Limiter, endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := c.ClientIP()
		if userIDAny, exists := c.Get(ContextUserIDKey); exists {
			if userID, ok := userIDAny.(uint); ok {
				identifier = fmt.Sprintf("user:%d", userID)
			}
		}

		allowed, retryAfter := limiter.Allow(identifier, endpoint)
		if !allowed {
			seconds := int(retryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			response.Error(c, http.StatusTooManyRequests, response.CodeRateLimited, ratelimit.RetryAfterMessage(retryAfter))
			c.Abort()
			return
		}
		c.Next()
	}
}
