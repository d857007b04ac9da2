// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package web

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codebot/codebot/internal/audit"
	"github.com/codebot/codebot/internal/auth"
)

// RequestIDHeader carries the request correlation id.
const RequestIDHeader = "X-Request-ID"

const (
	requestIDKey    = "request_id"
	maxRequestIDLen = 64
)

// requestID accepts a well-formed inbound X-Request-ID or mints one, echoes
// it on the response and attaches it to the request context for audit events.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)

		ctx := audit.WithRequestInfo(c.Request.Context(), audit.RequestInfo{
			RemoteAddr: c.ClientIP(),
			RequestID:  id,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return false
		}
	}
	return true
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// accessLog logs every request and records its metrics once the handler chain
// has finished.
func (h *Handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		h.metrics.RecordHTTPRequest(c.Request.Method, route, status, elapsed)

		h.logger.InfoContext(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"route", route,
			"status", status,
			"latency_ms", elapsed.Milliseconds(),
			"client_ip", c.ClientIP(),
			"request_id", c.GetString(requestIDKey),
		)
	}
}

// rateLimit rejects clients over budget before any handler runs, whatever
// credentials they present.
func (h *Handler) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.limiter == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		res := h.limiter.Check(ctx, c.ClientIP())
		if !res.Limited {
			c.Next()
			return
		}

		secs := int(math.Ceil(res.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))

		h.logger.WarnContext(ctx, "rate limit exceeded",
			"client_ip", c.ClientIP(),
			"path", c.Request.URL.Path)
		if err := h.events.Publish(ctx, audit.NewEvent(ctx, audit.EventRateLimited, "", "")); err != nil {
			h.logger.WarnContext(ctx, "audit publish failed", "event", string(audit.EventRateLimited), "error", err)
		}

		c.AbortWithStatusJSON(http.StatusTooManyRequests, failure(auth.MsgRateLimited))
	}
}
