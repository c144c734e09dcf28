package middleware

import "github.com/gin-gonic/gin"

// ErrorBody is the JSON shape of every error response.
func ErrorBody(code, message string) gin.H {
	return gin.H{
		"error":   code,
		"message": message,
	}
}
