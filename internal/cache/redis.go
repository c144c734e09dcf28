// Package cache is the optional Redis read-through layer in front of the task
// store. It never holds task data in process memory.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss  = errors.New("cache miss")
	ErrCacheDown  = errors.New("cache unavailable")
	ErrStaleWrite = errors.New("cache write superseded by invalidation")
)

const (
	generationPrefix    = "gen:"
	globalGenerationKey = "gen:__all__"
	// Must outlive any store read a fence guards.
	generationTTL = 24 * time.Hour
)

type CacheConfig struct {
	Addr             string
	Password         string
	DB               int
	PoolSize         int
	MinIdleConns     int
	MaxRetries       int
	DialTimeout      time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	OperationTimeout time.Duration
	CircuitBreaker   *CircuitBreakerConfig
}

func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Addr:             "localhost:6379",
		Password:         "",
		DB:               0,
		PoolSize:         10,
		MinIdleConns:     5,
		MaxRetries:       3,
		DialTimeout:      5 * time.Second,
		ReadTimeout:      3 * time.Second,
		WriteTimeout:     3 * time.Second,
		OperationTimeout: 3 * time.Second,
		CircuitBreaker:   DefaultCircuitBreakerConfig(),
	}
}

type RedisCache struct {
	client    *redis.Client
	breaker   *CircuitBreaker
	metrics   *CacheMetrics
	opTimeout time.Duration
}

func NewRedisCache(config *CacheConfig) *RedisCache {
	if config == nil {
		config = DefaultCacheConfig()
	}
	if config.OperationTimeout <= 0 {
		config.OperationTimeout = 3 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	return &RedisCache{
		client:    rdb,
		breaker:   NewCircuitBreaker(config.CircuitBreaker),
		metrics:   NewCacheMetrics(),
		opTimeout: config.OperationTimeout,
	}
}

// do runs op under the circuit breaker with the per-operation timeout.
func (r *RedisCache) do(ctx context.Context, op func(ctx context.Context) error) error {
	err := r.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
		defer cancel()
		return op(ctx)
	})
	if errors.Is(err, ErrCircuitBreakerOpen) {
		r.metrics.RecordBypass()
		return fmt.Errorf("%w: %w", ErrCacheDown, err)
	}
	if err != nil {
		r.metrics.RecordError()
		return fmt.Errorf("%w: %w", ErrCacheDown, err)
	}
	return nil
}

// Get decodes the value at key into dest. A missing key is ErrCacheMiss and
// does not count against the circuit breaker.
func (r *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	var data []byte
	miss := false

	err := r.do(ctx, func(ctx context.Context) error {
		b, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			miss = true
			return nil
		}
		data = b
		return err
	})
	if err != nil {
		return err
	}
	if miss {
		r.metrics.RecordMiss()
		return ErrCacheMiss
	}

	if err := json.Unmarshal(data, dest); err != nil {
		r.metrics.RecordError()
		return fmt.Errorf("failed to unmarshal cached data: %w", err)
	}

	r.metrics.RecordHit()
	return nil
}

// Fence is a snapshot of an invalidation counter. A fenced write lands only
// while the counter still holds Generation.
type Fence struct {
	Key        string
	Generation int64
}

func generationKey(key string) string {
	return generationPrefix + key
}

// KeyFence snapshots the invalidation counter of a single key. Take it before
// reading the value to cache from the store.
func (r *RedisCache) KeyFence(ctx context.Context, key string) (Fence, error) {
	return r.readFence(ctx, generationKey(key))
}

// GlobalFence snapshots the counter bumped by every invalidation. Used when
// the keys to write are not known before the store read.
func (r *RedisCache) GlobalFence(ctx context.Context) (Fence, error) {
	return r.readFence(ctx, globalGenerationKey)
}

func (r *RedisCache) readFence(ctx context.Context, counterKey string) (Fence, error) {
	var generation int64
	err := r.do(ctx, func(ctx context.Context) error {
		var err error
		generation, err = readGeneration(ctx, r.client, counterKey)
		return err
	})
	if err != nil {
		return Fence{}, err
	}
	return Fence{Key: counterKey, Generation: generation}, nil
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readGeneration(ctx context.Context, c stringGetter, counterKey string) (int64, error) {
	generation, err := c.Get(ctx, counterKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return generation, err
}

// SetFenced writes every entry in one transaction, provided no invalidation
// moved the fence since it was taken. A moved fence writes nothing and
// returns ErrStaleWrite.
func (r *RedisCache) SetFenced(ctx context.Context, fence Fence, entries map[string]interface{}, expiration time.Duration) error {
	if len(entries) == 0 {
		return nil
	}
	if fence.Key == "" {
		return errors.New("cache fence is required")
	}

	payload := make(map[string][]byte, len(entries))
	for key, value := range entries {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal value for %s: %w", key, err)
		}
		payload[key] = data
	}

	stale := false
	err := r.do(ctx, func(ctx context.Context) error {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := readGeneration(ctx, tx, fence.Key)
			if err != nil {
				return err
			}
			if current != fence.Generation {
				stale = true
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for key, data := range payload {
					pipe.Set(ctx, key, data, expiration)
				}
				return nil
			})
			return err
		}, fence.Key)
		if errors.Is(err, redis.TxFailedErr) {
			stale = true
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	if stale {
		r.metrics.RecordStale()
		return ErrStaleWrite
	}

	r.metrics.RecordSet()
	return nil
}

// Invalidate deletes keys and bumps their counters and the global counter in
// one transaction, so any fenced write prepared before this call is dropped.
func (r *RedisCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	err := r.do(ctx, func(ctx context.Context) error {
		_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, key := range keys {
				pipe.Incr(ctx, generationKey(key))
				pipe.Expire(ctx, generationKey(key), generationTTL)
			}
			pipe.Incr(ctx, globalGenerationKey)
			pipe.Del(ctx, keys...)
			return nil
		})
		return err
	})
	if err != nil {
		return err
	}

	r.metrics.RecordDelete()
	return nil
}

// Health pings Redis directly, bypassing the breaker, so health checks always
// reflect the live server.
func (r *RedisCache) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Metrics() *CacheMetrics {
	return r.metrics
}

func (r *RedisCache) Stats() map[string]interface{} {
	poolStats := r.client.PoolStats()
	metrics := r.metrics.GetStats()

	return map[string]interface{}{
		"hits":            metrics.Hits,
		"misses":          metrics.Misses,
		"errors":          metrics.Errors,
		"bypassed":        metrics.Bypassed,
		"sets":            metrics.Sets,
		"stale_writes":    metrics.Stale,
		"deletes":         metrics.Deletes,
		"hit_rate":        r.metrics.HitRate(),
		"circuit_breaker": r.breaker.GetStats(),
		"pool_hits":       poolStats.Hits,
		"pool_misses":     poolStats.Misses,
		"pool_timeouts":   poolStats.Timeouts,
		"pool_total":      poolStats.TotalConns,
		"pool_idle":       poolStats.IdleConns,
		"pool_stale":      poolStats.StaleConns,
	}
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
