package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pollyhq/ratekeeper/internal/infrastructure/monitoring"
	"github.com/pollyhq/ratekeeper/pkg/constants"
	"github.com/pollyhq/ratekeeper/pkg/logger"
)

// RequestID assigns each request a correlation ID, honoring one supplied by
// an upstream proxy, and echoes it in the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(c.Request.Context(), constants.ContextKeyRequestID, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// Tracing starts a server span per request and propagates it through the
// request context, so downstream logs and the limiter span attach to it.
func Tracing(tm *monitoring.TracingManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tm.StartSpan(c.Request.Context(), c.Request.Method+" "+route,
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
		)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
		span.End()
	}
}

// Logging logs one line per request with status and latency.
func Logging(log logger.Logger) gin.HandlerFunc {
	httpLog := log.WithComponent("http")

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("duration", time.Since(start)),
			logger.String("remote", c.ClientIP()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			httpLog.Error(c.Request.Context(), "request failed", nil, fields...)
			return
		}
		httpLog.Info(c.Request.Context(), "request completed", fields...)
	}
}

// Recovery converts panics into 500 responses instead of dropping the
// connection.
func Recovery(log logger.Logger) gin.HandlerFunc {
	recoveryLog := log.WithComponent("recovery")

	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				recoveryLog.Error(c.Request.Context(), "panic recovered", nil,
					logger.Any("panic", r),
					logger.String("path", c.Request.URL.Path),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "internal server error",
				})
			}
		}()
		c.Next()
	}
}

// Metrics records HTTP request counts and latency. Paths are recorded by
// route template so cardinality stays bounded.
func Metrics(m *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method, path, strconv.Itoa(c.Writer.Status()),
		).Inc()
		m.HTTPRequestDuration.WithLabelValues(
			c.Request.Method, path,
		).Observe(time.Since(start).Seconds())
	}
}
