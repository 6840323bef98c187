package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityConfig controls Strict-Transport-Security. A zero HSTSMaxAge
// leaves it to the TLS terminator.
type SecurityConfig struct {
	HSTSMaxAge            time.Duration
	HSTSIncludeSubdomains bool
}

func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{HSTSIncludeSubdomains: true}
}

// SecurityHeaders marks every response as an uncacheable JSON document.
// Responses carry patient conversations and notes.
func SecurityHeaders(config SecurityConfig) gin.HandlerFunc {
	headers := http.Header{}
	headers.Set("Cache-Control", "no-store")
	headers.Set("Pragma", "no-cache")
	headers.Set("X-Content-Type-Options", "nosniff")
	headers.Set("X-Frame-Options", "DENY")
	headers.Set("Referrer-Policy", "no-referrer")
	headers.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	if secs := int64(config.HSTSMaxAge / time.Second); secs > 0 {
		value := "max-age=" + strconv.FormatInt(secs, 10)
		if config.HSTSIncludeSubdomains {
			value += "; includeSubDomains"
		}
		headers.Set("Strict-Transport-Security", value)
	}

	return func(c *gin.Context) {
		dst := c.Writer.Header()
		for name := range headers {
			dst.Set(name, headers.Get(name))
		}
		c.Next()
	}
}
