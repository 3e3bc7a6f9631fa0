package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPMetrics receives one observation per request.
type HTTPMetrics interface {
	ObserveHTTPRequest(method, path string, statusCode int, d time.Duration)
}

// Metrics records request counts and latency labelled by route template, so
// that path parameters do not explode label cardinality.  Unmatched routes
// are reported as "unmatched".
func Metrics(m HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
