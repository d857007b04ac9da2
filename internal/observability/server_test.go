// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, ready ReadinessChecker) *Server {
	t.Helper()
	s := NewServer("127.0.0.1:0", ready)
	_, err := s.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func get(t *testing.T, s *Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + s.Addr() + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, strings.TrimSpace(string(body))
}

func TestMetrics_AuthOutcomes(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordAuthAttempt("login", "invalid_credentials")
	m.RecordAuthAttempt("login", "invalid_credentials")
	m.RecordAuthAttempt("login", "success")
	m.RecordAuthAttempt("register", "conflict")

	assert.InDelta(t, 2, testutil.ToFloat64(m.AuthAttempts.WithLabelValues("login", "invalid_credentials")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.AuthAttempts.WithLabelValues("login", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.AuthAttempts.WithLabelValues("register", "conflict")), 0)
}

func TestMetrics_SessionAndRateLimit(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordSessionEvent("created")
	m.RecordSessionEvent("expired")
	m.RecordSessionEvent("expired")
	for range 3 {
		m.RecordRateLimit("allowed")
	}
	m.RecordRateLimit("limited")

	assert.InDelta(t, 2, testutil.ToFloat64(m.SessionEvents.WithLabelValues("expired")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.RateLimitDecisions.WithLabelValues("allowed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RateLimitDecisions.WithLabelValues("limited")), 0)
}

func TestMetrics_HTTPRequests(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordHTTPRequest(http.MethodPost, "/api/auth", http.StatusTooManyRequests, 3*time.Millisecond)
	m.RecordHTTPRequest(http.MethodPost, "/api/auth", http.StatusOK, 40*time.Millisecond)
	m.RecordHTTPRequest(http.MethodGet, "unmatched", http.StatusNotFound, time.Millisecond)

	assert.InDelta(t, 1, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/api/auth", "429")), 0)
	assert.Equal(t, 3, testutil.CollectAndCount(m.HTTPRequests))
	assert.Equal(t, 2, testutil.CollectAndCount(m.HTTPDuration), "latency is keyed by method and route only")
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}

func TestServer_ExposesAuthMetrics(t *testing.T) {
	s := startServer(t, nil)
	s.Metrics().RecordAuthAttempt("login", "success")
	s.Metrics().RecordRateLimit("limited")

	status, body := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `codebot_auth_attempts_total{operation="login",outcome="success"} 1`)
	assert.Contains(t, body, `codebot_ratelimit_decisions_total{outcome="limited"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestServer_RegistryIsScraped(t *testing.T) {
	s := startServer(t, nil)
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "codebot_ratelimit_buckets", Help: "buckets"})
	require.NoError(t, s.Registry().Register(gauge))
	gauge.Set(7)

	_, body := get(t, s, "/metrics")
	assert.Contains(t, body, "codebot_ratelimit_buckets 7")
}

func TestServer_HealthEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		ready      ReadinessChecker
		path       string
		wantStatus int
		wantBody   string
	}{
		{"liveness ignores readiness", func() bool { return false }, "/healthz/liveness", http.StatusOK, "ok"},
		{"ready", func() bool { return true }, "/healthz/readiness", http.StatusOK, "ok"},
		{"starting or draining", func() bool { return false }, "/healthz/readiness", http.StatusServiceUnavailable, "not ready"},
		{"no checker means ready", nil, "/healthz/readiness", http.StatusOK, "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := get(t, startServer(t, tt.ready), tt.path)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestServer_Lifecycle(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil)
	require.NoError(t, s.Stop(context.Background()), "stop before start")

	errCh, err := s.Start()
	require.NoError(t, err)
	_, err = s.Start()
	assert.Error(t, err, "second start")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	select {
	case err, ok := <-errCh:
		assert.False(t, ok && err != nil, "clean shutdown reports no error")
	case <-time.After(2 * time.Second):
		t.Fatal("error channel not closed after stop")
	}
}

func TestServer_ReportsListenerFailure(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil)
	errCh, err := s.Start()
	require.NoError(t, err)
	defer func() { _ = s.Stop(context.Background()) }()

	require.NoError(t, s.listener.Close())

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener failure not reported")
	}
}
