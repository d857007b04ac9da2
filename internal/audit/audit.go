// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

// Package audit records security-relevant authentication events.
//
// Events never carry passwords, digests or session tokens.
package audit

import (
	"context"
	"log/slog"
	"time"
)

// EventType names an auth event. It doubles as the NATS subject suffix.
type EventType string

// Event types.
const (
	EventUserRegistered EventType = "user.registered"
	EventLoginSucceeded EventType = "login.succeeded"
	EventLoginFailed    EventType = "login.failed"
	EventLogout         EventType = "logout"
	EventRateLimited    EventType = "ratelimit.exceeded"
)

// Event is one audit record.
type Event struct {
	Type       EventType `json:"type"`
	UserID     string    `json:"user_id,omitempty"`
	Username   string    `json:"username,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	Time       time.Time `json:"time"`
}

// NewEvent builds an event stamped with the request info carried by ctx.
func NewEvent(ctx context.Context, typ EventType, userID, username string) Event {
	info := RequestInfoFrom(ctx)
	return Event{
		Type:       typ,
		UserID:     userID,
		Username:   username,
		RemoteAddr: info.RemoteAddr,
		RequestID:  info.RequestID,
		Time:       time.Now().UTC(),
	}
}

// Publisher delivers audit events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// LogPublisher writes events to a structured logger.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a LogPublisher. A nil logger uses slog.Default().
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger.With("component", "audit")}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(ctx context.Context, ev Event) error {
	p.logger.InfoContext(ctx, "audit event",
		"event", string(ev.Type),
		"user_id", ev.UserID,
		"username", ev.Username,
		"remote_addr", ev.RemoteAddr,
		"request_id", ev.RequestID,
		"time", ev.Time,
	)
	return nil
}

type requestInfoKey struct{}

// RequestInfo identifies the inbound request an event belongs to.
type RequestInfo struct {
	RemoteAddr string
	RequestID  string
}

// WithRequestInfo attaches info to ctx.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFrom returns the request info on ctx, or the zero value.
func RequestInfoFrom(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}
