package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	prom "github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/prometheus"
)

// Metrics records request count and latency per route template.
func Metrics(metrics *prom.AppMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		metrics.RecordHTTPRequest(c.Request.Method, routeOf(c), c.Writer.Status(), time.Since(start))
	}
}

//Personal.AI order the ending
