package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/intake-api/pkg/logger"
)

// Logger returns a middleware that logs HTTP requests and attaches a
// request-scoped logger to the request context. Bodies are never logged;
// they carry patient text.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		reqLog := log.With("request_id", RequestIDFrom(c))
		c.Request = c.Request.WithContext(reqLog.IntoContext(c.Request.Context()))

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}
		statusCode := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"ip", c.ClientIP(),
			"status", statusCode,
			"duration", time.Since(start).String(),
			"user_agent", c.Request.UserAgent(),
		}

		switch {
		case statusCode >= 500:
			reqLog.Error(c.Errors.Last(), "Server error", fields...)
		case statusCode >= 400:
			reqLog.Warn("Client error", fields...)
		default:
			reqLog.Info("Request processed", fields...)
		}
	}
}
