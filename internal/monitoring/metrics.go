// Package monitoring serves /metrics and /health for the API process.
package monitoring

import (
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// StatsFunc reports component statistics, such as cache hit rates or pool usage.
type StatsFunc func() map[string]interface{}

type Metrics struct {
	mu            sync.RWMutex
	requestCount  int64
	activeCount   int64
	errorCount    int64
	statusCodes   map[string]int64
	endpoints     map[string]int64
	startTime     time.Time
	lastRequest   time.Time
	totalDuration time.Duration
	components    map[string]StatsFunc
}

// MetricsSnapshot is a consistent copy of the counters at one point in time.
type MetricsSnapshot struct {
	RequestCount   int64            `json:"request_count"`
	AvgDurationMs  float64          `json:"avg_request_duration_ms"`
	ActiveRequests int64            `json:"active_requests"`
	ErrorCount     int64            `json:"error_count"`
	StatusCodes    map[string]int64 `json:"status_codes"`
	Endpoints      map[string]int64 `json:"endpoint_calls"`
	StartTime      time.Time        `json:"start_time"`
	LastRequest    time.Time        `json:"last_request"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		statusCodes: make(map[string]int64),
		endpoints:   make(map[string]int64),
		components:  make(map[string]StatsFunc),
		startTime:   time.Now(),
	}
}

func (m *Metrics) RegisterComponent(name string, stats StatsFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[name] = stats
}

// Middleware counts a request even when a later handler panics; the panic is
// recorded as a 500 and keeps propagating to the recovery middleware.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		m.mu.Lock()
		m.activeCount++
		m.mu.Unlock()

		panicked := true
		defer func() {
			statusCode := c.Writer.Status()
			if panicked {
				statusCode = http.StatusInternalServerError
			}
			m.record(c, statusCode, time.Since(start))
		}()

		c.Next()
		panicked = false
	}
}

func (m *Metrics) record(c *gin.Context, statusCode int, duration time.Duration) {
	endpoint := c.FullPath()
	if endpoint == "" {
		endpoint = "unmatched"
	}
	endpoint = c.Request.Method + " " + endpoint

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requestCount++
	m.activeCount--
	m.totalDuration += duration
	m.lastRequest = time.Now()
	if statusCode >= http.StatusBadRequest {
		m.errorCount++
	}
	m.statusCodes[http.StatusText(statusCode)]++
	m.endpoints[endpoint]++
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := MetricsSnapshot{
		RequestCount:   m.requestCount,
		ActiveRequests: m.activeCount,
		ErrorCount:     m.errorCount,
		StatusCodes:    make(map[string]int64, len(m.statusCodes)),
		Endpoints:      make(map[string]int64, len(m.endpoints)),
		StartTime:      m.startTime,
		LastRequest:    m.lastRequest,
	}
	if m.requestCount > 0 {
		avg := m.totalDuration / time.Duration(m.requestCount)
		snapshot.AvgDurationMs = float64(avg) / float64(time.Millisecond)
	}
	for k, v := range m.statusCodes {
		snapshot.StatusCodes[k] = v
	}
	for k, v := range m.endpoints {
		snapshot.Endpoints[k] = v
	}

	return snapshot
}

func (m *Metrics) componentStats() map[string]interface{} {
	m.mu.RLock()
	funcs := make(map[string]StatsFunc, len(m.components))
	for name, fn := range m.components {
		funcs[name] = fn
	}
	m.mu.RUnlock()

	stats := make(map[string]interface{}, len(funcs))
	for name, fn := range funcs {
		stats[name] = fn()
	}
	return stats
}

func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}

type SystemMetrics struct {
	Uptime         string      `json:"uptime"`
	MemoryUsage    MemoryStats `json:"memory"`
	GoroutineCount int         `json:"goroutine_count"`
	CPUCount       int         `json:"cpu_count"`
	GoVersion      string      `json:"go_version"`
}

type MemoryStats struct {
	Alloc        uint64 `json:"alloc_mb"`
	TotalAlloc   uint64 `json:"total_alloc_mb"`
	Sys          uint64 `json:"sys_mb"`
	NumGC        uint32 `json:"num_gc"`
	NextGC       uint64 `json:"next_gc_mb"`
	GCPauseTotal string `json:"gc_pause_total"`
}

func (m *Metrics) SystemMetrics() SystemMetrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return SystemMetrics{
		Uptime: m.Uptime().String(),
		MemoryUsage: MemoryStats{
			Alloc:        bToMb(ms.Alloc),
			TotalAlloc:   bToMb(ms.TotalAlloc),
			Sys:          bToMb(ms.Sys),
			NumGC:        ms.NumGC,
			NextGC:       bToMb(ms.NextGC),
			GCPauseTotal: time.Duration(ms.PauseTotalNs).String(),
		},
		GoroutineCount: runtime.NumGoroutine(),
		CPUCount:       runtime.NumCPU(),
		GoVersion:      runtime.Version(),
	}
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}

func (m *Metrics) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"application": m.Snapshot(),
			"components":  m.componentStats(),
			"system":      m.SystemMetrics(),
			"timestamp":   time.Now().UTC(),
		})
	}
}
