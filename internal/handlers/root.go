package handlers

import (
	"net/http"
	"time"

	"taskflow/backend/internal/models"

	"github.com/gin-gonic/gin"
)

// Root answers GET / so load balancers and humans can see the API is up.
func Root(now func() time.Time) gin.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "online",
			"message":   "TaskFlow API is running",
			"timestamp": models.FormatTimestamp(now()),
		})
	}
}
