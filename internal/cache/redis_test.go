package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

type cachedTask struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

func TestDefaultCacheConfig(t *testing.T) {
	config := DefaultCacheConfig()

	if config.Addr != "localhost:6379" {
		t.Errorf("Expected Addr to be localhost:6379, got %s", config.Addr)
	}

	if config.PoolSize != 10 {
		t.Errorf("Expected PoolSize to be 10, got %d", config.PoolSize)
	}

	if config.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries to be 3, got %d", config.MaxRetries)
	}

	if config.OperationTimeout != 3*time.Second {
		t.Errorf("Expected OperationTimeout to be 3s, got %v", config.OperationTimeout)
	}

	if config.CircuitBreaker == nil || config.CircuitBreaker.MaxFailures != 5 {
		t.Errorf("Expected default circuit breaker with 5 max failures, got %+v", config.CircuitBreaker)
	}
}

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	config := DefaultCacheConfig()
	config.Addr = mr.Addr()
	config.MaxRetries = 0
	config.DialTimeout = 200 * time.Millisecond
	config.CircuitBreaker = &CircuitBreakerConfig{
		MaxFailures:      2,
		Timeout:          time.Minute,
		HalfOpenMaxCalls: 1,
	}

	cache := NewRedisCache(config)
	t.Cleanup(func() { cache.Close() })
	return cache, mr
}

func TestNewRedisCache_WithNilConfig(t *testing.T) {
	cache := NewRedisCache(nil)
	defer cache.Close()

	if cache.client == nil || cache.breaker == nil || cache.metrics == nil {
		t.Error("Expected client, breaker and metrics to be initialized")
	}
}

func TestRedisCache_SetAndGet(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	task := cachedTask{ID: "65f0c0ffee0000000000beef", Title: "Write report", Status: "done"}
	fence, err := cache.KeyFence(ctx, "task:"+task.ID)
	if err != nil {
		t.Fatalf("Expected no error reading fence, got: %v", err)
	}
	if err := cache.SetFenced(ctx, fence, map[string]interface{}{"task:" + task.ID: task}, time.Minute); err != nil {
		t.Fatalf("Expected no error setting value, got: %v", err)
	}

	if ttl := mr.TTL("task:" + task.ID); ttl != time.Minute {
		t.Errorf("Expected TTL of 1m, got %v", ttl)
	}

	var got cachedTask
	if err := cache.Get(ctx, "task:"+task.ID, &got); err != nil {
		t.Fatalf("Expected no error getting value, got: %v", err)
	}

	if got != task {
		t.Errorf("Expected %+v, got %+v", task, got)
	}

	if cache.Metrics().GetStats().Hits != 1 {
		t.Errorf("Expected one recorded hit, got %d", cache.Metrics().GetStats().Hits)
	}
}

func TestRedisCache_Get_CacheMiss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	var got cachedTask
	err := cache.Get(context.Background(), "task:missing", &got)
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}

	if cache.breaker.GetState() != CircuitBreakerClosed {
		t.Error("Expected cache misses not to trip the circuit breaker")
	}
}

func TestRedisCache_SetFenced_InvalidData(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	fence, _ := cache.GlobalFence(ctx)
	err := cache.SetFenced(ctx, fence, map[string]interface{}{
		"good": "value",
		"bad":  make(chan int),
	}, time.Minute)
	if err == nil {
		t.Error("Expected error marshaling a channel, got nil")
	}
	if mr.Exists("good") {
		t.Error("Expected no entry to be written when one fails to marshal")
	}
}

func TestRedisCache_SetFenced_RequiresFence(t *testing.T) {
	cache, _ := setupTestRedis(t)

	err := cache.SetFenced(context.Background(), Fence{}, map[string]interface{}{"k": "v"}, time.Minute)
	if err == nil {
		t.Error("Expected an error for a zero fence")
	}
}

func TestRedisCache_SetFenced_DroppedAfterInvalidate(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	keyFence, err := cache.KeyFence(ctx, "task:a")
	if err != nil {
		t.Fatalf("Expected no error reading fence, got: %v", err)
	}
	globalFence, err := cache.GlobalFence(ctx)
	if err != nil {
		t.Fatalf("Expected no error reading fence, got: %v", err)
	}

	if err := cache.Invalidate(ctx, "task:a"); err != nil {
		t.Fatalf("Expected no error invalidating, got: %v", err)
	}

	err = cache.SetFenced(ctx, keyFence, map[string]interface{}{"task:a": cachedTask{ID: "a"}}, time.Minute)
	if !errors.Is(err, ErrStaleWrite) {
		t.Errorf("Expected ErrStaleWrite for a key fence taken before invalidation, got %v", err)
	}
	err = cache.SetFenced(ctx, globalFence, map[string]interface{}{"task:b": cachedTask{ID: "b"}}, time.Minute)
	if !errors.Is(err, ErrStaleWrite) {
		t.Errorf("Expected ErrStaleWrite for a global fence taken before invalidation, got %v", err)
	}
	if mr.Exists("task:a") || mr.Exists("task:b") {
		t.Error("Expected stale writes to leave the cache untouched")
	}

	fresh, _ := cache.KeyFence(ctx, "task:a")
	if err := cache.SetFenced(ctx, fresh, map[string]interface{}{"task:a": cachedTask{ID: "a"}}, time.Minute); err != nil {
		t.Errorf("Expected a fence taken after invalidation to write, got %v", err)
	}

	stats := cache.Metrics().GetStats()
	if stats.Stale != 2 || stats.Sets != 1 {
		t.Errorf("Expected 2 stale writes and 1 set, got %d/%d", stats.Stale, stats.Sets)
	}
	if stats.Errors != 0 || cache.breaker.GetState() != CircuitBreakerClosed {
		t.Error("Expected stale writes not to count against the circuit breaker")
	}
}

func TestRedisCache_SetFenced_OtherKeyInvalidationKeepsKeyFence(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	fence, _ := cache.KeyFence(ctx, "task:a")
	if err := cache.Invalidate(ctx, "task:b"); err != nil {
		t.Fatalf("Expected no error invalidating, got: %v", err)
	}

	if err := cache.SetFenced(ctx, fence, map[string]interface{}{"task:a": cachedTask{ID: "a"}}, time.Minute); err != nil {
		t.Errorf("Expected write to land, got %v", err)
	}
	if !mr.Exists("task:a") {
		t.Error("Expected task:a to be cached")
	}
}

func TestRedisCache_Get_InvalidJSON(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.Set("task:corrupt", "{not json")

	var got cachedTask
	err := cache.Get(context.Background(), "task:corrupt", &got)
	if err == nil || errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected decode error, got %v", err)
	}
}

func TestRedisCache_Invalidate(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	mr.Set("task:a", `{"id":"a"}`)
	mr.Set("all_tasks", `[]`)

	if err := cache.Invalidate(ctx, "task:a", "all_tasks"); err != nil {
		t.Fatalf("Expected no error invalidating keys, got: %v", err)
	}

	if mr.Exists("task:a") || mr.Exists("all_tasks") {
		t.Error("Expected both keys to be removed")
	}
	if got, _ := mr.Get("gen:task:a"); got != "1" {
		t.Errorf("Expected task:a generation 1, got %q", got)
	}
	if ttl := mr.TTL("gen:task:a"); ttl <= 0 {
		t.Errorf("Expected generation key to expire, got TTL %v", ttl)
	}
	if got, _ := mr.Get("gen:__all__"); got != "1" {
		t.Errorf("Expected global generation 1, got %q", got)
	}

	if err := cache.Invalidate(ctx); err != nil {
		t.Errorf("Expected invalidating no keys to be a no-op, got: %v", err)
	}
}

func TestRedisCache_Health(t *testing.T) {
	cache, mr := setupTestRedis(t)

	if err := cache.Health(context.Background()); err != nil {
		t.Errorf("Expected healthy cache, got: %v", err)
	}

	mr.Close()
	if err := cache.Health(context.Background()); err == nil {
		t.Error("Expected health check to fail once Redis is down")
	}
}

func TestRedisCache_OutageOpensBreaker(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()
	mr.Close()

	var got cachedTask
	for i := 0; i < 2; i++ {
		if err := cache.Get(ctx, "task:x", &got); !errors.Is(err, ErrCacheDown) {
			t.Fatalf("Expected ErrCacheDown on attempt %d, got %v", i+1, err)
		}
	}

	if cache.breaker.GetState() != CircuitBreakerOpen {
		t.Fatalf("Expected breaker to open after repeated failures, got %v", cache.breaker.GetState())
	}

	err := cache.SetFenced(ctx, Fence{Key: "gen:task:x"}, map[string]interface{}{"task:x": cachedTask{ID: "x"}}, time.Minute)
	if !errors.Is(err, ErrCacheDown) || !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Errorf("Expected open breaker to short-circuit writes, got %v", err)
	}

	stats := cache.Metrics().GetStats()
	if stats.Errors != 2 || stats.Bypassed != 1 {
		t.Errorf("Expected 2 errors and 1 bypass, got %d/%d", stats.Errors, stats.Bypassed)
	}
}

func TestRedisCache_Stats(t *testing.T) {
	cache, _ := setupTestRedis(t)

	stats := cache.Stats()
	for _, key := range []string{"hits", "misses", "stale_writes", "hit_rate", "circuit_breaker", "pool_total"} {
		if _, ok := stats[key]; !ok {
			t.Errorf("Expected stats to contain %q", key)
		}
	}
}

func TestCacheMetrics_HitRate(t *testing.T) {
	m := NewCacheMetrics()
	if m.HitRate() != 0 {
		t.Errorf("Expected 0 hit rate with no lookups, got %v", m.HitRate())
	}

	m.RecordHit()
	m.RecordHit()
	m.RecordHit()
	m.RecordMiss()
	if m.HitRate() != 75 {
		t.Errorf("Expected 75%% hit rate, got %v", m.HitRate())
	}

	m.Reset()
	if m.GetStats().Hits != 0 {
		t.Error("Expected Reset to clear counters")
	}
}

func BenchmarkRedisCache_SetFenced(b *testing.B) {
	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		b.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	config := DefaultCacheConfig()
	config.Addr = mr.Addr()
	cache := NewRedisCache(config)
	defer cache.Close()

	ctx := context.Background()
	entries := map[string]interface{}{"task:bench": cachedTask{ID: "bench", Title: "bench", Status: "pending"}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fence, _ := cache.KeyFence(ctx, "task:bench")
		cache.SetFenced(ctx, fence, entries, time.Minute)
	}
}
