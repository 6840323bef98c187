package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/intake-api/pkg/errors"
	"github.com/jwalitptl/intake-api/pkg/httputil"
	"github.com/jwalitptl/intake-api/pkg/logger"
)

// ErrorHandler logs errors attached to the context and renders the last
// one when the handler did not write a response itself.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		reqLog := logger.FromContext(c.Request.Context(), log)
		for _, e := range c.Errors {
			if appErr, ok := errors.As(e.Err); ok && appErr.Code.HTTPStatus() < 500 {
				reqLog.Debug("Request rejected", "error", e.Err.Error(), "path", c.Request.URL.Path)
				continue
			}
			reqLog.Error(e.Err, "Request error",
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"client_ip", c.ClientIP(),
			)
		}

		if c.Writer.Written() {
			return
		}
		httputil.RespondWithError(c, c.Errors.Last().Err)
	}
}
