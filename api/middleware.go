package api

import (
	"strconv"
	"time"

	"github.com/Domenick1991/tourbooking/internal/logger"
	"github.com/Domenick1991/tourbooking/internal/metrics"
	"github.com/gin-gonic/gin"
)

// RequestLogger logs each request and records its latency.
func RequestLogger(log logger.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(started)
		m.HTTPDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())

		fields := []interface{}{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "error", c.Errors.Last().Error())
		}
		switch {
		case status >= 500:
			m.ErrorsCount.WithLabelValues(route).Inc()
			log.Error("request failed", fields...)
		case status >= 400:
			log.Warn("request rejected", fields...)
		default:
			log.Debug("request served", fields...)
		}
	}
}
