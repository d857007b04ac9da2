// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/samber/oops"
)

// DefaultSubjectPrefix is prepended to the event type to form the subject.
const DefaultSubjectPrefix = "auth.events"

// natsConn is the subset of *nats.Conn used for publishing.
type natsConn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes events as JSON on core NATS subjects
// "<prefix>.<event type>", e.g. auth.events.login.failed.
type NATSPublisher struct {
	conn   natsConn
	prefix string
}

// NewNATSPublisher creates a publisher on an established connection.
func NewNATSPublisher(conn *nats.Conn, prefix string) *NATSPublisher {
	return newNATSPublisher(conn, prefix)
}

func newNATSPublisher(conn natsConn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Subject returns the subject an event of typ is published on.
func (p *NATSPublisher) Subject(typ EventType) string {
	return p.prefix + "." + string(typ)
}

// Publish implements Publisher. Core NATS publishes are buffered by the
// client, so this does not block on the server.
func (p *NATSPublisher) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return oops.In("audit").Code("AUDIT_ENCODE_FAILED").Wrap(err)
	}
	subject := p.Subject(ev.Type)
	if err := p.conn.Publish(subject, data); err != nil {
		return oops.In("audit").Code("AUDIT_PUBLISH_FAILED").With("subject", subject).Wrap(err)
	}
	return nil
}

// ConnectNATS dials the NATS server(s) at url with reconnects enabled.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(3*time.Second),
	)
	if err != nil {
		return nil, oops.In("audit").Code("NATS_CONNECT_FAILED").With("url", url).Wrap(err)
	}
	return nc, nil
}
