// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package store

import (
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebot/codebot/pkg/errutil"
)

// fakeMigrate records what the Migrator asked of golang-migrate.
type fakeMigrate struct {
	err      error
	version  uint
	dirty    bool
	steps    []int
	forced   []int
	closeSrc error
	closeDB  error
}

func (f *fakeMigrate) Up() error   { return f.err }
func (f *fakeMigrate) Down() error { return f.err }

func (f *fakeMigrate) Steps(n int) error {
	f.steps = append(f.steps, n)
	return f.err
}

func (f *fakeMigrate) Version() (uint, bool, error) {
	if f.err != nil {
		return 0, false, f.err
	}
	return f.version, f.dirty, nil
}

func (f *fakeMigrate) Force(v int) error {
	f.forced = append(f.forced, v)
	return f.err
}

func (f *fakeMigrate) Close() (error, error) { return f.closeSrc, f.closeDB }

func TestMigrateURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"postgres://codebot:secret@db:5432/codebot?sslmode=disable", "pgx5://codebot:secret@db:5432/codebot?sslmode=disable"},
		{"postgresql://db/codebot", "pgx5://db/codebot"},
		{"pgx5://db/codebot", "pgx5://db/codebot"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, migrateURL(tt.in))
	}
}

func TestNewMigrator_RejectsUnknownScheme(t *testing.T) {
	_, err := NewMigrator("mysql://db/codebot")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
	assert.NotContains(t, err.Error(), "unknown driver postgres")
}

func TestMigrator_ErrorCodes(t *testing.T) {
	failure := errors.New("connection reset")

	tests := []struct {
		name string
		call func(*Migrator) error
		code string
	}{
		{"up", (*Migrator).Up, "MIGRATION_UP_FAILED"},
		{"down", (*Migrator).Down, "MIGRATION_DOWN_FAILED"},
		{"steps", func(m *Migrator) error { return m.Steps(-1) }, "MIGRATION_STEPS_FAILED"},
		{"force", func(m *Migrator) error { return m.Force(2) }, "MIGRATION_FORCE_FAILED"},
		{"version", func(m *Migrator) error { _, _, err := m.Version(); return err }, "MIGRATION_VERSION_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call(&Migrator{m: &fakeMigrate{err: failure}})
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.code)
			assert.ErrorIs(t, err, failure)
		})
	}
}

func TestMigrator_NoChangeIsSuccess(t *testing.T) {
	fake := &fakeMigrate{err: migrate.ErrNoChange}
	m := &Migrator{m: fake}

	assert.NoError(t, m.Up(), "schema already current")
	assert.NoError(t, m.Down(), "nothing left to roll back")
	assert.NoError(t, m.Steps(-1))
	assert.Equal(t, []int{-1}, fake.steps)
}

func TestMigrator_VersionOfFreshDatabase(t *testing.T) {
	m := &Migrator{m: &fakeMigrate{err: migrate.ErrNilVersion}}

	v, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)
}

func TestMigrator_Force(t *testing.T) {
	fake := &fakeMigrate{}
	m := &Migrator{m: fake}

	require.NoError(t, m.Force(2))
	err := m.Force(-1)
	errutil.AssertErrorCode(t, err, "INVALID_VERSION")
	assert.Equal(t, []int{2}, fake.forced, "negative versions never reach the driver")
}

func TestMigrator_Status(t *testing.T) {
	tests := []struct {
		name    string
		fake    *fakeMigrate
		version uint
		dirty   bool
		applied []uint
		pending []uint
	}{
		{
			name:    "empty database",
			fake:    &fakeMigrate{err: migrate.ErrNilVersion},
			pending: []uint{1, 2, 3},
		},
		{
			name:    "users only",
			fake:    &fakeMigrate{version: 1},
			version: 1,
			applied: []uint{1},
			pending: []uint{2, 3},
		},
		{
			name:    "sessions migration failed halfway",
			fake:    &fakeMigrate{version: 2, dirty: true},
			version: 2,
			dirty:   true,
			applied: []uint{1, 2},
			pending: []uint{3},
		},
		{
			name:    "rate limit buckets applied",
			fake:    &fakeMigrate{version: 3},
			version: 3,
			applied: []uint{1, 2, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := (&Migrator{m: tt.fake}).Status()
			require.NoError(t, err)
			assert.Equal(t, &Status{Version: tt.version, Dirty: tt.dirty, Applied: tt.applied, Pending: tt.pending}, st)
		})
	}
}

func TestMigrator_StatusWrapsVersionFailure(t *testing.T) {
	_, err := (&Migrator{m: &fakeMigrate{err: errors.New("connection reset")}}).Status()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
	errutil.AssertErrorContext(t, err, "operation", "get migration status")
}

func TestMigrator_Close(t *testing.T) {
	srcErr := errors.New("source closed twice")
	dbErr := errors.New("pool closed twice")

	tests := []struct {
		name      string
		fake      *fakeMigrate
		component string
	}{
		{"clean", &fakeMigrate{}, ""},
		{"source", &fakeMigrate{closeSrc: srcErr}, "source"},
		{"database", &fakeMigrate{closeDB: dbErr}, "database"},
		{"both", &fakeMigrate{closeSrc: srcErr, closeDB: dbErr}, "both"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Migrator{m: tt.fake}).Close()
			if tt.component == "" {
				require.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, "MIGRATION_CLOSE_FAILED")
			errutil.AssertErrorContext(t, err, "component", tt.component)
		})
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	versions, err := allMigrationVersions()
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2, 3}, versions)

	versions[0] = 42
	again, err := allMigrationVersions()
	require.NoError(t, err)
	assert.Equal(t, uint(1), again[0], "callers get a copy")

	names := map[uint]string{
		1:  "000001_users",
		2:  "000002_sessions",
		3:  "000003_rate_limit_buckets",
		99: "",
	}
	for v, want := range names {
		got, err := MigrationName(v)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
