package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// The storefront sends the refresh cookie cross-origin, so every CORS
// response must carry Allow-Credentials. Browsers refuse that combination
// with a wildcard origin, which is why the allowlist is always echoed
// per-origin and "*" entries are ignored.
const (
	corsAllowMethods  = "GET,POST,DELETE,OPTIONS"
	corsAllowHeaders  = "Origin,Content-Type,Accept,Authorization,X-Request-ID,X-Trace-ID"
	corsExposeHeaders = "X-Request-ID,X-Trace-ID,Retry-After"
	corsMaxAge        = "600"
)

// CORS restricts cross-origin access to the configured storefront origins.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" || origin == "*" {
			continue
		}
		allowed[strings.ToLower(origin)] = true
	}

	return func(c *gin.Context) {
		// Cache layers must key on Origin even for denied requests.
		c.Header("Vary", "Origin")

		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			// Same-origin or non-browser traffic; nothing to negotiate.
			c.Next()
			return
		}

		if !allowed[strings.ToLower(origin)] {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Expose-Headers", corsExposeHeaders)

		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", corsAllowMethods)
			c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
			c.Header("Access-Control-Max-Age", corsMaxAge)

			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
