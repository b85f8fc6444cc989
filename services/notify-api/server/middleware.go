package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cannetwork/notifier/pkg/logx"
	"github.com/cannetwork/notifier/pkg/metrics"
)

const requestIDHeader = "X-Request-ID"

// Observability tags every request with an id and records access logs and
// request metrics.
func Observability() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid := c.Request.Header.Get(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Set("request_id", rid)

		c.Next()

		lat := time.Since(start).Seconds()
		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		metrics.APIRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(c.Request.Method, path).Observe(lat)

		logx.L().Infow("http_access",
			"rid", rid,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"bytes_in", c.Request.ContentLength,
			"bytes_out", c.Writer.Size(),
			"duration", lat,
			"client_ip", c.ClientIP(),
		)
	}
}
