package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nautkit/anchor/pkg/xlog"
)

// Recovery returns a panic recovery middleware. A panic yields a 500
// response and an error log entry.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log := xlog.FromContext(c.Request.Context())
				log.Error("panic recovered in http handler", "panic", r)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code":    http.StatusInternalServerError,
					"message": "internal server error",
				})
			}
		}()

		c.Next()
	}
}
