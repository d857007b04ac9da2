// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

// Package ratelimit implements fixed-window request counting per client
// identifier.
//
// A window opens on the first request from an identifier. Within the window
// the first limit requests are admitted and later ones are rejected without
// being counted. The first request after the window has elapsed opens a new
// window with a count of one.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/codebot/codebot/pkg/errutil"
)

// Default budget.
const (
	DefaultLimit  = 60
	DefaultPeriod = 60 * time.Second
)

// Result is the outcome of counting one request.
type Result struct {
	Limited bool
	// RetryAfter is the time left in the current window.
	RetryAfter time.Duration
}

// BucketStore counts requests per identifier. Each call is atomic per
// identifier.
type BucketStore interface {
	IsLimited(ctx context.Context, identifier string, now time.Time, limit int, period time.Duration) (Result, error)
}

// Pruner is implemented by stores that need stale buckets removed.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Recorder counts limiter decisions.
type Recorder interface {
	RecordRateLimit(outcome string)
}

// Limiter applies one budget to every identifier.
type Limiter struct {
	store    BucketStore
	limit    int
	period   time.Duration
	now      func() time.Time
	logger   *slog.Logger
	recorder Recorder
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithBudget sets the number of requests admitted per period.
func WithBudget(limit int, period time.Duration) Option {
	return func(l *Limiter) {
		l.limit = limit
		l.period = period
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the limiter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithRecorder sets the decision recorder.
func WithRecorder(r Recorder) Option {
	return func(l *Limiter) {
		if r != nil {
			l.recorder = r
		}
	}
}

// NewLimiter creates a Limiter over store with the default budget unless
// WithBudget is given.
func NewLimiter(store BucketStore, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, oops.In("ratelimit").Errorf("bucket store is required")
	}
	l := &Limiter{
		store:    store,
		limit:    DefaultLimit,
		period:   DefaultPeriod,
		now:      time.Now,
		logger:   slog.Default(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.limit < 1 {
		return nil, oops.In("ratelimit").Code("RATELIMIT_INVALID_BUDGET").
			With("limit", l.limit).
			Errorf("limit must be at least 1")
	}
	if l.period <= 0 {
		return nil, oops.In("ratelimit").Code("RATELIMIT_INVALID_BUDGET").
			With("period", l.period.String()).
			Errorf("period must be positive")
	}
	return l, nil
}

// Limit returns the number of requests admitted per window.
func (l *Limiter) Limit() int { return l.limit }

// Period returns the window length.
func (l *Limiter) Period() time.Duration { return l.period }

// Check counts one request for identifier. Store failures are logged and
// the request is admitted.
func (l *Limiter) Check(ctx context.Context, identifier string) Result {
	res, err := l.store.IsLimited(ctx, identifier, l.now().UTC(), l.limit, l.period)
	if err != nil {
		errutil.LogErrorContext(ctx, l.logger, "rate limit check failed, admitting request", err,
			"identifier", identifier)
		l.recorder.RecordRateLimit("error")
		return Result{}
	}
	if res.Limited {
		l.recorder.RecordRateLimit("limited")
	} else {
		l.recorder.RecordRateLimit("allowed")
	}
	return res
}

// IsLimited reports whether the request should be rejected.
func (l *Limiter) IsLimited(ctx context.Context, identifier string) bool {
	return l.Check(ctx, identifier).Limited
}

// RunJanitor prunes buckets older than one period every interval until ctx
// is done. It returns immediately if the store does not need pruning. A
// non-positive interval means DefaultCleanupInterval.
func (l *Limiter) RunJanitor(ctx context.Context, interval time.Duration) {
	pruner, ok := l.store.(Pruner)
	if !ok {
		return
	}
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := pruner.Prune(ctx, l.now().UTC().Add(-l.period))
			if err != nil && ctx.Err() == nil {
				errutil.LogErrorContext(ctx, l.logger, "rate limit janitor failed", err)
				continue
			}
			if n > 0 {
				l.logger.DebugContext(ctx, "pruned rate limit buckets", "count", n)
			}
		}
	}
}

// retryAfter is the time left in a window that started at start.
func retryAfter(start, now time.Time, period time.Duration) time.Duration {
	d := start.Add(period).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

type nopRecorder struct{}

func (nopRecorder) RecordRateLimit(string) {}
