// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

//go:build integration

package store_test

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

var _ = Describe("Schema", func() {
	ctx := context.Background()

	insertUser := func(id, username, email string) error {
		_, err := migrated.Pool.Exec(ctx,
			`INSERT INTO users (id, username, email, password_hash) VALUES ($1, $2, $3, 'x')`,
			id, username, email)
		return err
	}

	isUniqueViolation := func(err error) bool {
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
	}

	It("treats usernames case-insensitively", func() {
		Expect(insertUser("01A", "Alice", "a@example.com")).To(Succeed())
		Expect(isUniqueViolation(insertUser("01B", "alice", "b@example.com"))).To(BeTrue())
	})

	It("treats emails case-insensitively", func() {
		Expect(insertUser("01A", "alice", "Alice@Example.com")).To(Succeed())
		Expect(isUniqueViolation(insertUser("01B", "bob", "alice@example.com"))).To(BeTrue())
	})

	It("rejects unknown roles", func() {
		_, err := migrated.Pool.Exec(ctx,
			`INSERT INTO users (id, username, email, password_hash, role) VALUES ('01C', 'carol', 'c@example.com', 'x', 'root')`)
		Expect(err).To(HaveOccurred())
	})

	It("rejects sessions for unknown users", func() {
		_, err := migrated.Pool.Exec(ctx,
			`INSERT INTO sessions (id, token_hash, user_id, username, role, created_at, last_activity)
			 VALUES ('01S', 'hash', '01NOBODY', 'ghost', 'user', now(), now())`)
		var pgErr *pgconn.PgError
		Expect(errors.As(err, &pgErr)).To(BeTrue())
		Expect(pgErr.Code).To(Equal(pgerrcode.ForeignKeyViolation))
	})

	It("keeps bucket counts non-negative", func() {
		_, err := migrated.Pool.Exec(ctx,
			`INSERT INTO rate_limit_buckets (identifier, window_start, count) VALUES ('198.51.100.7', now(), -1)`)
		var pgErr *pgconn.PgError
		Expect(errors.As(err, &pgErr)).To(BeTrue())
		Expect(pgErr.Code).To(Equal(pgerrcode.CheckViolation))
	})
})
