// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebot/codebot/internal/access"
	"github.com/codebot/codebot/internal/session"
)

func storeFactories() map[string]func(t *testing.T) session.Store {
	return map[string]func(t *testing.T) session.Store{
		"memory": func(*testing.T) session.Store {
			return session.NewMemoryStore()
		},
		"redis": func(t *testing.T) session.Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return session.NewRedisStore(client, "", 0)
		},
	}
}

func seed(t *testing.T, store session.Store, hash string, at time.Time) *session.Session {
	t.Helper()
	s := &session.Session{
		ID:           ulid.Make(),
		TokenHash:    hash,
		UserID:       "user-1",
		Username:     "alice",
		Role:         access.RoleModerator,
		CreatedAt:    at,
		LastActivity: at,
	}
	require.NoError(t, store.Create(context.Background(), s))
	return s
}

func TestStores_Touch(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	idle := session.IdleTimeout

	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("boundary is inclusive", func(t *testing.T) {
				store := newStore(t)
				created := seed(t, store, "h", start)

				got, err := store.Touch(ctx, "h", start.Add(idle), idle)
				require.NoError(t, err)
				assert.Equal(t, created.ID, got.ID)
				assert.Equal(t, "alice", got.Username)
				assert.Equal(t, access.RoleModerator, got.Role)
				assert.True(t, start.Add(idle).Equal(got.LastActivity))
				assert.True(t, start.Equal(got.CreatedAt))
			})

			t.Run("past the boundary deletes", func(t *testing.T) {
				store := newStore(t)
				seed(t, store, "h", start)

				_, err := store.Touch(ctx, "h", start.Add(idle+time.Second), idle)
				assert.True(t, errors.Is(err, session.ErrExpired))

				_, err = store.Touch(ctx, "h", start, idle)
				assert.True(t, errors.Is(err, session.ErrNotFound))
			})

			t.Run("unknown hash", func(t *testing.T) {
				store := newStore(t)
				_, err := store.Touch(ctx, "nope", start, idle)
				assert.True(t, errors.Is(err, session.ErrNotFound))
			})

			t.Run("older clock never moves activity back", func(t *testing.T) {
				store := newStore(t)
				seed(t, store, "h", start)

				got, err := store.Touch(ctx, "h", start.Add(-time.Minute), idle)
				require.NoError(t, err)
				assert.True(t, start.Equal(got.LastActivity))
			})
		})
	}
}

func TestStores_BindCSRFAndDelete(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			seed(t, store, "h", start)

			first, err := store.BindCSRFToken(ctx, "h", "one")
			require.NoError(t, err)
			second, err := store.BindCSRFToken(ctx, "h", "two")
			require.NoError(t, err)
			assert.Equal(t, "one", first)
			assert.Equal(t, "one", second)

			got, err := store.Touch(ctx, "h", start, session.IdleTimeout)
			require.NoError(t, err)
			assert.Equal(t, "one", got.CSRFToken)

			_, err = store.BindCSRFToken(ctx, "missing", "x")
			assert.True(t, errors.Is(err, session.ErrNotFound))

			require.NoError(t, store.Delete(ctx, "h"))
			require.NoError(t, store.Delete(ctx, "h"), "delete is idempotent")
			_, err = store.Touch(ctx, "h", start, session.IdleTimeout)
			assert.True(t, errors.Is(err, session.ErrNotFound))
		})
	}
}

func TestRedisStore_KeysExpire(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := session.NewRedisStore(client, "test:", time.Hour)
	seed(t, store, "h", time.Now().UTC())

	assert.True(t, mr.Exists("test:h"))
	assert.Equal(t, time.Hour+time.Minute, mr.TTL("test:h"))

	mr.FastForward(2 * time.Hour)
	assert.False(t, mr.Exists("test:h"))

	n, err := store.DeleteIdle(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}
