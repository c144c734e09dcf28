package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// RecoveryWithLog turns a panic into the generic 500 body. The stack goes to
// the log, never to the client.
func RecoveryWithLog(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic recovered",
					"panic", rec,
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"request_id", GetRequestID(c),
					"stack", string(debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					ErrorBody("internal_error", "Internal server error"))
			}
		}()
		c.Next()
	}
}
