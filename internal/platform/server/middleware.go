package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-Id"

// RequestID attaches a request id, preserving one supplied by an upstream
// proxy.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// RequestLogger emits one structured line per request.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// observeAuthFailures counts rejected requests after the handler chain has
// settled the response status.
func (s *Server) observeAuthFailures() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		switch c.Writer.Status() {
		case http.StatusUnauthorized:
			s.Metrics.ObserveAuthFailure("authentication")
		case http.StatusForbidden:
			s.Metrics.ObserveAuthFailure("authorization")
		}
	}
}
