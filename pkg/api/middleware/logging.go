package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nautkit/anchor/pkg/xlog"
)

// Logging returns a request logging middleware recording method, path,
// status and latency.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)

		log := xlog.FromContext(c.Request.Context())
		log.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
		)
	}
}
