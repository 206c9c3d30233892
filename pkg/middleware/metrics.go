package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meal-program/production-service/pkg/metrics"
)

// MetricsMiddleware records request count, latency and in-flight gauge per
// route pattern, so /batches/:id stays one series regardless of the id
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		m.IncrementHTTPRequestsInFlight()
		start := time.Now()
		defer func() {
			m.DecrementHTTPRequestsInFlight()
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			m.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
		}()

		c.Next()
	}
}

// MetricsEndpoint serves the service registry in Prometheus text format
func MetricsEndpoint(m *metrics.Metrics) gin.HandlerFunc {
	return gin.WrapH(m.Handler())
}
