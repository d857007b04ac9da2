// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

//go:build integration

package store_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/codebot/codebot/internal/store"
	"github.com/codebot/codebot/internal/store/storetest"
)

var _ = Describe("Migrator", Ordered, func() {
	var (
		pg       *storetest.Postgres
		migrator *store.Migrator
	)

	tables := func(ctx context.Context) map[string]bool {
		out := make(map[string]bool)
		for _, name := range []string{"users", "sessions", "rate_limit_buckets"} {
			exists, err := pg.TableExists(ctx, name)
			Expect(err).NotTo(HaveOccurred())
			out[name] = exists
		}
		return out
	}

	BeforeAll(func(ctx context.Context) {
		var err error
		pg, err = storetest.StartEmptyPostgres(ctx)
		Expect(err).NotTo(HaveOccurred())

		migrator, err = store.NewMigrator(pg.URL)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func(ctx context.Context) {
		if migrator != nil {
			Expect(migrator.Close()).To(Succeed())
		}
		if pg != nil {
			pg.Stop(ctx)
		}
	})

	It("reports every migration pending on an empty database", func() {
		st, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Version).To(BeZero())
		Expect(st.Applied).To(BeEmpty())
		Expect(st.Pending).To(Equal([]uint{1, 2, 3}))
	})

	It("creates the auth tables", func(ctx context.Context) {
		Expect(migrator.Up()).To(Succeed())
		Expect(tables(ctx)).To(Equal(map[string]bool{"users": true, "sessions": true, "rate_limit_buckets": true}))

		st, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Applied).To(Equal([]uint{1, 2, 3}))
		Expect(st.Pending).To(BeEmpty())
	})

	It("is idempotent", func() {
		Expect(migrator.Up()).To(Succeed())
	})

	It("rolls back the bucket table first", func(ctx context.Context) {
		Expect(migrator.Steps(-1)).To(Succeed())
		Expect(tables(ctx)).To(Equal(map[string]bool{"users": true, "sessions": true, "rate_limit_buckets": false}))

		st, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Version).To(Equal(uint(2)))
		Expect(st.Pending).To(Equal([]uint{3}))
	})

	It("drops everything on down", func(ctx context.Context) {
		Expect(migrator.Down()).To(Succeed())
		Expect(tables(ctx)).To(Equal(map[string]bool{"users": false, "sessions": false, "rate_limit_buckets": false}))

		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())
	})

	It("forces a version without running it", func(ctx context.Context) {
		Expect(migrator.Force(2)).To(Succeed())
		Expect(tables(ctx)["users"]).To(BeFalse(), "force records the version only")

		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(2)))
		Expect(dirty).To(BeFalse())
	})
})
