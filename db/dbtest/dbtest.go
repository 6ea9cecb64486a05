// Package dbtest opens throwaway SQLite databases with the application
// schema applied, for repository and service tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"eventpass-backend/db"
)

// Open returns a migrated database backed by a file in t.TempDir(). The pool
// is capped at one connection so concurrent test goroutines serialize on the
// pool instead of failing with SQLITE_BUSY. Transactions therefore never
// interleave in tests built on this package.
func Open(t testing.TB) *db.DB {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "eventpass.db") +
		"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	database, err := db.Open(context.Background(), db.Options{
		Driver:       "sqlite",
		DSN:          dsn,
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, database.ApplySchema(context.Background()))
	return database
}
