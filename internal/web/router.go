// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
)

// NewRouter builds the gin engine serving h.
func NewRouter(h *Handler) (*gin.Engine, error) {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	if err := r.SetTrustedProxies(h.cfg.TrustedProxies); err != nil {
		return nil, oops.Code("HTTP_TRUSTED_PROXIES_INVALID").
			With("trusted_proxies", h.cfg.TrustedProxies).
			Wrap(err)
	}

	r.Use(gin.Recovery(), requestID(), securityHeaders(), h.accessLog())

	h.RegisterRoutes(r)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, failure(MsgNotFound))
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, failure(http.StatusText(http.StatusMethodNotAllowed)))
	})
	return r, nil
}

// Server runs the HTTP surface on its own listener.
type Server struct {
	addr     string
	handler  http.Handler
	server   *http.Server
	listener net.Listener
	mu       sync.Mutex
	errCh    chan error
}

// NewServer creates a Server for handler on addr.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{addr: addr, handler: handler}
}

// Start binds the listener and serves in the background. Serve errors are
// delivered on the returned channel, which closes when the server stops.
func (s *Server) Start() (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return nil, oops.Code("HTTP_ALREADY_STARTED").Errorf("http server already started")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, oops.Code("HTTP_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	s.errCh = make(chan error, 1)

	go func() {
		defer close(s.errCh)
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errCh <- oops.Code("HTTP_SERVE_FAILED").Wrap(err)
		}
	}()
	return s.errCh, nil
}

// Stop gracefully shuts the server down. Calling Stop on a server that never
// started is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return oops.Code("HTTP_SHUTDOWN_FAILED").Wrap(err)
	}
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
