package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// WarmupJob loads a set of entries from the backing store. Every returned
// key is written with the job TTL.
type WarmupJob struct {
	Name     string
	Priority int
	TTL      time.Duration
	Load     func(ctx context.Context) (map[string]interface{}, error)
}

// FencedWriter is the write side of a cache. A job takes a global fence
// before loading, so any invalidation during the load drops its writes.
type FencedWriter interface {
	GlobalFence(ctx context.Context) (Fence, error)
	SetFenced(ctx context.Context, fence Fence, entries map[string]interface{}, expiration time.Duration) error
}

type WarmupStrategy struct {
	// Interval zero warms once on Start.
	Interval       time.Duration
	ConcurrentJobs int
	// HealthCheck skips a round when it returns an error.
	HealthCheck func(ctx context.Context) error
}

type WarmerStats struct {
	Runs        int64     `json:"runs"`
	Skipped     int64     `json:"skipped"`
	KeysWritten int64     `json:"keys_written"`
	JobFailures int64     `json:"job_failures"`
	StaleJobs   int64     `json:"stale_jobs"`
	LastRun     time.Time `json:"last_run"`
}

type CacheWarmer struct {
	cache    FencedWriter
	strategy WarmupStrategy
	queue    *PriorityQueue
	logger   *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
	stats   WarmerStats
}

func NewCacheWarmer(cache FencedWriter, strategy WarmupStrategy, logger *log.Logger) *CacheWarmer {
	if strategy.ConcurrentJobs <= 0 {
		strategy.ConcurrentJobs = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	return &CacheWarmer{
		cache:    cache,
		strategy: strategy,
		queue:    NewPriorityQueue(),
		logger:   logger.WithPrefix("warmer"),
	}
}

func (cw *CacheWarmer) AddJob(job WarmupJob) {
	cw.queue.Push(job)
}

// Start runs one warmup round immediately, then one per Interval until Stop
// is called or ctx is done.
func (cw *CacheWarmer) Start(ctx context.Context) {
	cw.mu.Lock()
	if cw.running {
		cw.mu.Unlock()
		return
	}
	cw.running = true
	cw.stopCh = make(chan struct{})
	cw.done = make(chan struct{})
	stopCh, done := cw.stopCh, cw.done
	cw.mu.Unlock()

	go func() {
		defer close(done)
		cw.Warm(ctx)
		if cw.strategy.Interval <= 0 {
			return
		}

		ticker := time.NewTicker(cw.strategy.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cw.Warm(ctx)
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop waits for the round in progress to finish.
func (cw *CacheWarmer) Stop() {
	cw.mu.Lock()
	if !cw.running {
		cw.mu.Unlock()
		return
	}
	cw.running = false
	close(cw.stopCh)
	done := cw.done
	cw.mu.Unlock()

	<-done
}

// Warm runs every queued job once, highest priority first, and returns the
// number of keys written.
func (cw *CacheWarmer) Warm(ctx context.Context) int {
	if cw.strategy.HealthCheck != nil {
		if err := cw.strategy.HealthCheck(ctx); err != nil {
			cw.logger.Warn("skipping warmup, cache unhealthy", "err", err)
			cw.mu.Lock()
			cw.stats.Skipped++
			cw.mu.Unlock()
			return 0
		}
	}

	jobs := cw.queue.Ordered()
	jobCh := make(chan WarmupJob)
	var (
		wg      sync.WaitGroup
		written int64
		failed  int64
		stale   int64
		countMu sync.Mutex
	)

	for i := 0; i < cw.strategy.ConcurrentJobs && i < len(jobs); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				n, err := cw.runJob(ctx, job)
				countMu.Lock()
				written += int64(n)
				switch {
				case errors.Is(err, ErrStaleWrite):
					stale++
				case err != nil:
					failed++
				}
				countMu.Unlock()
			}
		}()
	}

dispatch:
	for _, job := range jobs {
		select {
		case jobCh <- job:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobCh)
	wg.Wait()

	cw.mu.Lock()
	cw.stats.Runs++
	cw.stats.KeysWritten += written
	cw.stats.JobFailures += failed
	cw.stats.StaleJobs += stale
	cw.stats.LastRun = time.Now()
	cw.mu.Unlock()

	cw.logger.Debug("warmup finished", "jobs", len(jobs), "keys", written, "failures", failed, "stale", stale)
	return int(written)
}

// runJob writes all of a job's entries or none of them.
func (cw *CacheWarmer) runJob(ctx context.Context, job WarmupJob) (int, error) {
	fence, err := cw.cache.GlobalFence(ctx)
	if err != nil {
		cw.logger.Warn("warmup job failed", "job", job.Name, "err", err)
		return 0, err
	}

	entries, err := job.Load(ctx)
	if err != nil {
		cw.logger.Warn("warmup job failed", "job", job.Name, "err", err)
		return 0, err
	}

	err = cw.cache.SetFenced(ctx, fence, entries, job.TTL)
	switch {
	case errors.Is(err, ErrStaleWrite):
		cw.logger.Debug("warmup job superseded by invalidation", "job", job.Name)
		return 0, err
	case err != nil:
		cw.logger.Warn("failed to warm keys", "job", job.Name, "err", err)
		return 0, err
	}
	return len(entries), nil
}

func (cw *CacheWarmer) Stats() WarmerStats {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.stats
}

func (cw *CacheWarmer) StatsMap() map[string]interface{} {
	stats := cw.Stats()
	return map[string]interface{}{
		"runs":         stats.Runs,
		"skipped":      stats.Skipped,
		"keys_written": stats.KeysWritten,
		"job_failures": stats.JobFailures,
		"stale_jobs":   stats.StaleJobs,
		"last_run":     stats.LastRun,
		"queued_jobs":  cw.queue.Len(),
		"interval":     cw.strategy.Interval.String(),
	}
}
