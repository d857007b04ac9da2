// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Memory store defaults.
const (
	// DefaultCleanupInterval is the interval at which the background goroutine
	// removes stale buckets.
	DefaultCleanupInterval = 5 * time.Minute

	// DefaultBucketMaxAge is how long after its window opened a bucket is
	// kept. It must be at least the longest period in use.
	DefaultBucketMaxAge = time.Hour
)

// MemoryConfig configures a MemoryStore.
type MemoryConfig struct {
	// CleanupInterval defaults to DefaultCleanupInterval if zero or negative.
	CleanupInterval time.Duration

	// BucketMaxAge defaults to DefaultBucketMaxAge if zero or negative.
	BucketMaxAge time.Duration

	// Registerer, if set, receives a gauge of tracked buckets.
	Registerer prometheus.Registerer
}

type bucket struct {
	windowStart time.Time
	count       int
}

// MemoryStore keeps buckets in process memory. It is safe for concurrent use.
//
// MemoryStore runs a background goroutine to periodically remove stale
// buckets. Call Close() to stop the goroutine.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	maxAge  time.Duration
	now     func() time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
	closed   sync.Once

	bucketGauge prometheus.Gauge
}

// NewMemoryStore creates a MemoryStore and starts its cleanup goroutine.
func NewMemoryStore(cfg MemoryConfig) *MemoryStore {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	maxAge := cfg.BucketMaxAge
	if maxAge <= 0 {
		maxAge = DefaultBucketMaxAge
	}

	m := &MemoryStore{
		buckets:  make(map[string]*bucket),
		maxAge:   maxAge,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	if cfg.Registerer != nil {
		m.bucketGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "codebot_ratelimit_buckets",
			Help: "Current number of tracked in-memory rate limit buckets",
		})
		cfg.Registerer.MustRegister(m.bucketGauge)
	}

	m.wg.Add(1)
	go m.cleanupLoop(interval)

	return m
}

// IsLimited implements BucketStore.
func (m *MemoryStore) IsLimited(_ context.Context, identifier string, now time.Time, limit int, period time.Duration) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[identifier]
	if !ok || now.Sub(b.windowStart) >= period {
		m.buckets[identifier] = &bucket{windowStart: now, count: 1}
		return Result{RetryAfter: period}, nil
	}

	wait := retryAfter(b.windowStart, now, period)
	if b.count >= limit {
		return Result{Limited: true, RetryAfter: wait}, nil
	}
	b.count++
	return Result{RetryAfter: wait}, nil
}

// Prune implements Pruner.
func (m *MemoryStore) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pruneLocked(cutoff), nil
}

// Len returns the number of tracked buckets.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

func (m *MemoryStore) pruneLocked(cutoff time.Time) int64 {
	var n int64
	for id, b := range m.buckets {
		if b.windowStart.Before(cutoff) {
			delete(m.buckets, id)
			n++
		}
	}
	if m.bucketGauge != nil {
		m.bucketGauge.Set(float64(len(m.buckets)))
	}
	return n
}

func (m *MemoryStore) cleanupLoop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.mu.Lock()
			m.pruneLocked(m.now().Add(-m.maxAge))
			m.mu.Unlock()
		}
	}
}

// Close stops the cleanup goroutine. It blocks until the goroutine has
// stopped and may be called more than once.
func (m *MemoryStore) Close() {
	m.closed.Do(func() { close(m.stopChan) })
	m.wg.Wait()
}

var (
	_ BucketStore = (*MemoryStore)(nil)
	_ Pruner      = (*MemoryStore)(nil)
)
