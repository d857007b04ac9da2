// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMemoryStore_Prune(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	reg := prometheus.NewRegistry()
	s := NewMemoryStore(MemoryConfig{Registerer: reg})
	defer s.Close()

	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.IsLimited(ctx, "old", base, 5, time.Minute)
	require.NoError(t, err)
	_, err = s.IsLimited(ctx, "new", base.Add(10*time.Minute), 5, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	n, err := s.Prune(ctx, base.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(s.bucketGauge))
}

func TestMemoryStore_CleanupLoopRemovesStaleBuckets(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := NewMemoryStore(MemoryConfig{
		CleanupInterval: 5 * time.Millisecond,
		BucketMaxAge:    time.Minute,
	})
	defer s.Close()

	_, err := s.IsLimited(context.Background(), "stale", time.Now().Add(-2*time.Minute), 5, time.Minute)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemoryStore_CloseIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := NewMemoryStore(MemoryConfig{})
	s.Close()
	s.Close()
}
