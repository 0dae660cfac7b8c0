package middleware

import (
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/performance"
	"github.com/gin-gonic/gin"
)

// RequestMetrics records request counts and latency per matched route.
func RequestMetrics(perfTracker *performance.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		perfTracker.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
