// middleware.go - Request logging and rate limiting for the REST surface.

package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RequestLoggerMiddleware logs every request with method, path, status and
// latency as structured fields.
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next()

	log.WithFields(log.Fields{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
	}).Info("http request")
}

// RateLimitMiddleware rejects requests once the shared token bucket is empty.
func RateLimitMiddleware(allow func() bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !allow() {
			JSONError(c, http.StatusTooManyRequests, "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}
