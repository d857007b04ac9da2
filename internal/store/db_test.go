// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebot/codebot/pkg/errutil"
)

type flakyPinger struct {
	failures int
	calls    int
}

func (p *flakyPinger) Ping(context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestPingFunc_RetriesUntilReady(t *testing.T) {
	p := &flakyPinger{failures: 2}
	backoff := retry.WithMaxRetries(5, retry.NewConstant(time.Millisecond))

	err := retry.Do(context.Background(), backoff, pingFunc(p, nil))
	require.NoError(t, err)
	assert.Equal(t, 3, p.calls)
}

func TestPingFunc_GivesUp(t *testing.T) {
	p := &flakyPinger{failures: 100}
	backoff := retry.WithMaxRetries(2, retry.NewConstant(time.Millisecond))

	err := retry.Do(context.Background(), backoff, pingFunc(p, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 3, p.calls, "one attempt plus two retries")
}

func TestConnectBackoff_Attempts(t *testing.T) {
	b := connectBackoff(ConnectConfig{Attempts: 3, InitialBackoff: time.Millisecond})

	var n int
	for {
		if _, stop := b.Next(); stop {
			break
		}
		n++
	}
	assert.Equal(t, 2, n, "three attempts means two retries")
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), ConnectConfig{URL: "://not a url"})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_CONFIG_INVALID")
}
