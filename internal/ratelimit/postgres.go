// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package ratelimit

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/codebot/codebot/internal/store"
)

// PostgresStore keeps buckets in the rate_limit_buckets table.
type PostgresStore struct {
	pool store.Querier
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(pool store.Querier) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// A single upsert decides and records the request, so concurrent requests for
// one identifier serialize on the row lock. Inside the SET list, column
// references read the row as it was before this statement.
const hitSQL = `
	INSERT INTO rate_limit_buckets AS b (identifier, window_start, count, limited)
	VALUES ($1, $2, 1, false)
	ON CONFLICT (identifier) DO UPDATE SET
		window_start = CASE WHEN b.window_start <= $2 - make_interval(secs => $3) THEN $2 ELSE b.window_start END,
		count = CASE
			WHEN b.window_start <= $2 - make_interval(secs => $3) THEN 1
			WHEN b.count >= $4 THEN b.count
			ELSE b.count + 1
		END,
		limited = b.window_start > $2 - make_interval(secs => $3) AND b.count >= $4
	RETURNING window_start, limited
`

// IsLimited implements BucketStore.
func (p *PostgresStore) IsLimited(ctx context.Context, identifier string, now time.Time, limit int, period time.Duration) (Result, error) {
	var (
		start   time.Time
		limited bool
	)
	err := p.pool.QueryRow(ctx, hitSQL, identifier, now, period.Seconds(), limit).Scan(&start, &limited)
	if err != nil {
		return Result{}, oops.In("ratelimit").Code("RATELIMIT_STORE_FAILED").
			With("store", "postgres").
			Wrap(err)
	}
	return Result{Limited: limited, RetryAfter: retryAfter(start, now, period)}, nil
}

// Prune implements Pruner.
func (p *PostgresStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM rate_limit_buckets WHERE window_start < $1`, cutoff)
	if err != nil {
		return 0, oops.In("ratelimit").Code("RATELIMIT_PRUNE_FAILED").Wrap(err)
	}
	return tag.RowsAffected(), nil
}

var (
	_ BucketStore = (*PostgresStore)(nil)
	_ Pruner      = (*PostgresStore)(nil)
)
