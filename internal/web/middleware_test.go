// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package web_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/codebot/codebot/internal/audit"
	"github.com/codebot/codebot/internal/ratelimit"
	"github.com/codebot/codebot/internal/web"
)

type httpRecord struct {
	method, route string
	status        int
}

type recordingMetrics struct {
	mu      sync.Mutex
	records []httpRecord
}

func (m *recordingMetrics) RecordHTTPRequest(method, route string, status int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, httpRecord{method, route, status})
}

type fixedLimiter struct {
	result ratelimit.Result
	seen   []string
}

func (f *fixedLimiter) Check(_ context.Context, identifier string) ratelimit.Result {
	f.seen = append(f.seen, identifier)
	return f.result
}

type ctxCapture struct {
	info audit.RequestInfo
}

func (c *ctxCapture) Publish(ctx context.Context, ev audit.Event) error {
	c.info = audit.RequestInfo{RemoteAddr: ev.RemoteAddr, RequestID: ev.RequestID}
	return nil
}

func TestSecurityHeaders(t *testing.T) {
	router, _, _ := newTestRouter(t, web.Config{})

	for _, path := range []string{"/api/auth/status", "/missing"} {
		rec := getPath(router, path)
		h := rec.Header()
		assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"), path)
		assert.Equal(t, "DENY", h.Get("X-Frame-Options"), path)
		assert.Equal(t, "1; mode=block", h.Get("X-XSS-Protection"), path)
		assert.Equal(t, "strict-origin-when-cross-origin", h.Get("Referrer-Policy"), path)
	}
}

func TestRequestID(t *testing.T) {
	router, _, _ := newTestRouter(t, web.Config{})

	t.Run("minted", func(t *testing.T) {
		rec := getPath(router, "/api/auth/status")
		_, err := uuid.Parse(rec.Header().Get(web.RequestIDHeader))
		assert.NoError(t, err)
	})

	t.Run("echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/status", nil)
		req.Header.Set(web.RequestIDHeader, "req-abc-123")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, "req-abc-123", rec.Header().Get(web.RequestIDHeader))
	})

	t.Run("replaced when malformed", func(t *testing.T) {
		for _, bad := range []string{strings.Repeat("x", 65), "has space", "tab\there"} {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/status", nil)
			req.Header.Set(web.RequestIDHeader, bad)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			got := rec.Header().Get(web.RequestIDHeader)
			assert.NotEqual(t, bad, got)
			_, err := uuid.Parse(got)
			assert.NoError(t, err)
		}
	})
}

func TestAccessLog_RecordsMetrics(t *testing.T) {
	svc := &mockAuth{}
	svc.On("HasPermission", mock.Anything, "", "read").Return(false)
	metrics := &recordingMetrics{}

	router, err := web.NewRouter(web.NewHandler(svc, &mockCSRF{}, web.Config{}, web.WithMetrics(metrics)))
	require.NoError(t, err)

	getPath(router, "/api/auth/permissions/read")
	getPath(router, "/nowhere")

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	require.Len(t, metrics.records, 2)
	assert.Equal(t, httpRecord{http.MethodGet, "/api/auth/permissions/:capability", http.StatusOK}, metrics.records[0])
	assert.Equal(t, httpRecord{http.MethodGet, "unmatched", http.StatusNotFound}, metrics.records[1])
}

func TestRateLimit(t *testing.T) {
	t.Run("limited", func(t *testing.T) {
		limiter := &fixedLimiter{result: ratelimit.Result{Limited: true, RetryAfter: 1500 * time.Millisecond}}
		events := &ctxCapture{}
		router, err := web.NewRouter(web.NewHandler(&mockAuth{}, &mockCSRF{}, web.Config{},
			web.WithRateLimiter(limiter), web.WithAuditPublisher(events)))
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/auth/status", nil)
		req.RemoteAddr = "198.51.100.7:4000"
		req.Header.Set(web.RequestIDHeader, "rid-1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("Retry-After"), "rounded up to whole seconds")
		assert.Equal(t, []string{"198.51.100.7"}, limiter.seen)
		assert.Equal(t, audit.RequestInfo{RemoteAddr: "198.51.100.7", RequestID: "rid-1"}, events.info)
	})

	t.Run("sub-second wait still advertises one second", func(t *testing.T) {
		limiter := &fixedLimiter{result: ratelimit.Result{Limited: true}}
		router, err := web.NewRouter(web.NewHandler(&mockAuth{}, &mockCSRF{}, web.Config{}, web.WithRateLimiter(limiter)))
		require.NoError(t, err)

		rec := getPath(router, "/api/auth/status")
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	})

	t.Run("not applied outside the auth routes", func(t *testing.T) {
		limiter := &fixedLimiter{result: ratelimit.Result{Limited: true}}
		router, err := web.NewRouter(web.NewHandler(&mockAuth{}, &mockCSRF{}, web.Config{}, web.WithRateLimiter(limiter)))
		require.NoError(t, err)

		rec := getPath(router, "/elsewhere")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Empty(t, limiter.seen)
	})
}

func TestServer_StartStop(t *testing.T) {
	router, _, _ := newTestRouter(t, web.Config{})
	srv := web.NewServer("127.0.0.1:0", router)

	errCh, err := srv.Start()
	require.NoError(t, err)

	_, err = srv.Start()
	require.Error(t, err, "double start")

	resp, err := http.Get("http://" + srv.Addr() + "/api/auth/status")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	_, open := <-errCh
	assert.False(t, open, "error channel closes on clean shutdown")
}

func TestServer_StopBeforeStart(t *testing.T) {
	srv := web.NewServer("127.0.0.1:0", http.NotFoundHandler())
	assert.NoError(t, srv.Stop(context.Background()))
	assert.Equal(t, "127.0.0.1:0", srv.Addr())
}
