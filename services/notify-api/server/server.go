package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cannetwork/notifier/docs"
	"github.com/cannetwork/notifier/pkg/metrics"
)

// NewRouter builds the gin engine; it is shared by the HTTP server and the
// Lambda entrypoint.
func NewRouter(h *Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), Observability())

	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.GET("/docs", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", docs.NotifySwaggerHTML)
	})
	r.GET("/docs/notify-api/openapi.yaml", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", docs.NotifyOpenAPI)
	})

	api := r.Group("/api")
	api.POST("/notifications/enqueue", h.EnqueueNotifications)
	api.GET("/campaigns/:id/dispatches", h.ListDispatches)

	return r
}

func NewHTTPServer(addr string, h *Handlers) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
}
