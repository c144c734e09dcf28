package cache

import (
	"sync/atomic"
	"time"
)

type CacheMetrics struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Errors   int64 `json:"errors"`
	Bypassed int64 `json:"bypassed"`

	Sets      int64 `json:"sets"`
	Deletes   int64 `json:"deletes"`
	Stale     int64 `json:"stale_writes"`
	StartTime int64 `json:"start_time"`
}

func NewCacheMetrics() *CacheMetrics {
	return &CacheMetrics{
		StartTime: time.Now().Unix(),
	}
}

func (m *CacheMetrics) RecordHit()    { atomic.AddInt64(&m.Hits, 1) }
func (m *CacheMetrics) RecordMiss()   { atomic.AddInt64(&m.Misses, 1) }
func (m *CacheMetrics) RecordError()  { atomic.AddInt64(&m.Errors, 1) }
func (m *CacheMetrics) RecordBypass() { atomic.AddInt64(&m.Bypassed, 1) }
func (m *CacheMetrics) RecordSet()    { atomic.AddInt64(&m.Sets, 1) }
func (m *CacheMetrics) RecordDelete() { atomic.AddInt64(&m.Deletes, 1) }
func (m *CacheMetrics) RecordStale()  { atomic.AddInt64(&m.Stale, 1) }

func (m *CacheMetrics) GetStats() CacheMetrics {
	return CacheMetrics{
		Hits:      atomic.LoadInt64(&m.Hits),
		Misses:    atomic.LoadInt64(&m.Misses),
		Errors:    atomic.LoadInt64(&m.Errors),
		Bypassed:  atomic.LoadInt64(&m.Bypassed),
		Sets:      atomic.LoadInt64(&m.Sets),
		Deletes:   atomic.LoadInt64(&m.Deletes),
		Stale:     atomic.LoadInt64(&m.Stale),
		StartTime: atomic.LoadInt64(&m.StartTime),
	}
}

// HitRate is the percentage of lookups answered from Redis.
func (m *CacheMetrics) HitRate() float64 {
	hits := atomic.LoadInt64(&m.Hits)
	misses := atomic.LoadInt64(&m.Misses)
	total := hits + misses

	if total == 0 {
		return 0.0
	}

	return float64(hits) / float64(total) * 100.0
}

func (m *CacheMetrics) Reset() {
	atomic.StoreInt64(&m.Hits, 0)
	atomic.StoreInt64(&m.Misses, 0)
	atomic.StoreInt64(&m.Errors, 0)
	atomic.StoreInt64(&m.Bypassed, 0)
	atomic.StoreInt64(&m.Sets, 0)
	atomic.StoreInt64(&m.Deletes, 0)
	atomic.StoreInt64(&m.Stale, 0)
	atomic.StoreInt64(&m.StartTime, time.Now().Unix())
}
