package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewStatusRouter serves the status listener: liveness, readiness and the
// prometheus exposition. Liveness succeeds once the process is up;
// readiness is delegated to the service loop.
func NewStatusRouter(ready func() bool, registry *prometheus.Registry) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/liveness", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/readiness", func(c *gin.Context) {
		if ready() {
			c.Status(http.StatusOK)
			return
		}
		c.Status(http.StatusServiceUnavailable)
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return router
}
