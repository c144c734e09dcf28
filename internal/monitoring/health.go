package monitoring

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"

	messageCheckFailed   = "check failed"
	messageCheckTimedOut = "check timed out"
)

type HealthCheckFunc func(ctx context.Context) error

type HealthCheck struct {
	Name     string    `json:"name"`
	Status   string    `json:"status"`
	Message  string    `json:"message,omitempty"`
	Duration string    `json:"duration"`
	LastRun  time.Time `json:"last_run"`
}

// HealthChecker runs every registered check on each call, in parallel, each
// bounded by the checker timeout. Failure details go to the log only; the
// response carries a fixed message.
type HealthChecker struct {
	mu      sync.RWMutex
	checks  map[string]HealthCheckFunc
	timeout time.Duration
	started time.Time
	logger  *log.Logger
}

func NewHealthChecker(timeout time.Duration, logger *log.Logger) *HealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &HealthChecker{
		checks:  make(map[string]HealthCheckFunc),
		timeout: timeout,
		started: time.Now(),
		logger:  logger.WithPrefix("health"),
	}
}

func (h *HealthChecker) Register(name string, check HealthCheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

func (h *HealthChecker) Run(ctx context.Context) []HealthCheck {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	funcs := make([]HealthCheckFunc, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		funcs = append(funcs, h.checks[name])
	}
	h.mu.RUnlock()

	results := make([]HealthCheck, len(names))
	var wg sync.WaitGroup
	for i := range names {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = h.runOne(ctx, names[i], funcs[i])
		}(i)
	}
	wg.Wait()

	return results
}

func (h *HealthChecker) runOne(ctx context.Context, name string, check HealthCheckFunc) HealthCheck {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	result := HealthCheck{Name: name, Status: StatusHealthy, LastRun: start.UTC()}
	if err := check(ctx); err != nil {
		h.logger.Warn("health check failed", "check", name, "err", err)
		result.Status = StatusUnhealthy
		result.Message = messageCheckFailed
		if errors.Is(err, context.DeadlineExceeded) {
			result.Message = messageCheckTimedOut
		}
	}
	result.Duration = time.Since(start).String()
	return result
}

func overallStatus(checks []HealthCheck) string {
	for _, check := range checks {
		if check.Status != StatusHealthy {
			return StatusUnhealthy
		}
	}
	return StatusHealthy
}

func (h *HealthChecker) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := h.Run(c.Request.Context())
		status := overallStatus(checks)

		code := http.StatusOK
		if status != StatusHealthy {
			code = http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().UTC(),
			"checks":    checks,
			"uptime":    time.Since(h.started).String(),
		})
	}
}

func (h *HealthChecker) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if overallStatus(h.Run(c.Request.Context())) == StatusHealthy {
			c.JSON(http.StatusOK, gin.H{"status": "ready", "timestamp": time.Now().UTC()})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "timestamp": time.Now().UTC()})
	}
}

func (h *HealthChecker) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "alive",
			"timestamp": time.Now().UTC(),
			"uptime":    time.Since(h.started).String(),
		})
	}
}
