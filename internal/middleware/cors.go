package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type CORSConfig struct {
	// AllowedOrigins empty reflects the request Origin and any requested
	// headers back.
	AllowedOrigins []string
	MaxAge         time.Duration
}

func NewCORS(config CORSConfig) (gin.HandlerFunc, error) {
	cfg := cors.Config{
		AllowMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
			http.MethodDelete, http.MethodHead, http.MethodOptions,
		},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Content-Length", "Accept", "Accept-Encoding",
			"Authorization", "X-Requested-With", RequestIDHeader,
		},
		ExposeHeaders:    []string{RequestIDHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           config.MaxAge,
	}

	if len(config.AllowedOrigins) > 0 {
		cfg.AllowOrigins = config.AllowedOrigins
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid CORS configuration: %w", err)
		}
		return cors.New(cfg), nil
	}

	// Requested headers are echoed; AllowHeaders stays empty so cors leaves
	// them in place.
	cfg.AllowOriginFunc = func(origin string) bool { return true }
	cfg.AllowHeaders = nil
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid CORS configuration: %w", err)
	}
	handler := cors.New(cfg)
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			if requested := c.GetHeader("Access-Control-Request-Headers"); requested != "" {
				c.Header("Access-Control-Allow-Headers", requested)
			}
		}
		handler(c)
	}, nil
}
