// Package server carries the HTTP surface shared by both services: gin
// middleware, the error body contract, the status listener, and graceful
// serving.
package server

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openshift/cincinnati/internal/metrics"
)

const (
	// RequestIDHeader carries the correlation id to and from clients.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin context key holding the correlation id.
	RequestIDKey = "request_id"
)

// RequestID assigns each request a correlation id, preserving one supplied
// by the client, and echoes it in the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

// GetRequestID retrieves the correlation id from the gin context.
func GetRequestID(c *gin.Context) string {
	if v, exists := c.Get(RequestIDKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// Logger emits one structured log line per request. 2xx log at info, 4xx
// at warn, 5xx at error.
func Logger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		event := logger.Info()
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		}
		event.
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

// Observe records request counters and latency for the route.
func Observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(path, fmt.Sprintf("%d", c.Writer.Status())).Inc()
		metrics.HTTPDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	}
}

// NewRouter assembles a gin engine with the shared middleware stack.
func NewRouter(logger zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), Logger(logger), Observe())
	return router
}
