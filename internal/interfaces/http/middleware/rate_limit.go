// Package middleware holds the Gin middleware of the service: rate limit
// enforcement, admin authentication and the observability chain.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pollyhq/ratekeeper/internal/domain/models"
	"github.com/pollyhq/ratekeeper/internal/domain/service"
)

// RateLimit enforces one operation's limits on every request passing
// through it. Allowed requests continue with quota headers attached;
// rejected ones are answered here.
func RateLimit(svc service.RateLimitService, op models.Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		verdict := svc.Check(c.Request.Context(), c.Request, op, "")
		WriteVerdictHeaders(c, verdict)
		if verdict.Allowed {
			c.Next()
			return
		}
		AbortWithVerdict(c, verdict)
	}
}

// WriteVerdictHeaders attaches the quota headers every response carries,
// allowed or not. Reset is unix seconds.
func WriteVerdictHeaders(c *gin.Context, v models.Verdict) {
	c.Header("X-RateLimit-Type", string(v.Type))
	c.Header("X-RateLimit-Limit", strconv.Itoa(v.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(v.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(v.ResetTime.Unix(), 10))
}

// AbortWithVerdict writes the rejection response: 503 for strict-mode
// store failures, the structured 429 body otherwise. No store internals
// ever reach the body.
func AbortWithVerdict(c *gin.Context, v models.Verdict) {
	c.Header("Retry-After", strconv.Itoa(v.RetryAfter(time.Now())))

	if v.Unavailable {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error": v.Message,
		})
		return
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":             v.Message,
		"rateLimitExceeded": true,
		"type":              string(v.Type),
		"limit":             v.Limit,
		"remaining":         v.Remaining,
		"resetTime":         v.ResetTime.Unix(),
	})
}
