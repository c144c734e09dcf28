package handlers

import (
	"net/http"

	"taskflow/backend/internal/middleware"
	"taskflow/backend/internal/monitoring"
	"taskflow/backend/internal/services"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	TaskService services.TaskService
	Logger      *log.Logger
	CORS        middleware.CORSConfig
	// RateLimiter nil disables rate limiting.
	RateLimiter *middleware.RateLimiter
	Metrics     *monitoring.Metrics
	Health      *monitoring.HealthChecker
}

func SetupRouter(cfg RouterConfig) (*gin.Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = monitoring.NewMetrics()
	}
	if cfg.Health == nil {
		cfg.Health = monitoring.NewHealthChecker(0, cfg.Logger)
	}

	corsMiddleware, err := middleware.NewCORS(cfg.CORS)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.RecoveryWithLog(cfg.Logger),
		middleware.RequestLogger(cfg.Logger),
		corsMiddleware,
		cfg.Metrics.Middleware(),
	)
	if cfg.RateLimiter != nil {
		router.Use(cfg.RateLimiter.Middleware())
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, middleware.ErrorBody("not_found", "Not found"))
	})

	router.GET("/", Root(nil))
	router.GET("/health", cfg.Health.HealthHandler())
	router.GET("/health/ready", cfg.Health.ReadinessHandler())
	router.GET("/health/live", cfg.Health.LivenessHandler())
	router.GET("/metrics", cfg.Metrics.Handler())

	taskHandler := NewTaskHandler(cfg.TaskService, cfg.Logger)
	tasks := router.Group("/tasks")
	{
		tasks.GET("", taskHandler.ListTasks)
		tasks.POST("", taskHandler.CreateTask)
		tasks.GET("/:id", taskHandler.GetTask)
		tasks.PUT("/:id", taskHandler.UpdateTask)
		tasks.DELETE("/:id", taskHandler.DeleteTask)
	}

	return router, nil
}
