// Package dbtest opens migrated SQLite databases for repository tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/migrations"
	"github.com/stretchr/testify/require"
)

// NewConnection returns a file-backed SQLite connection with the full schema
// applied. The database is removed with the test's temp dir.
func NewConnection(t testing.TB) database.Connection {
	t.Helper()
	ctx := context.Background()

	conn, err := sqlite.NewConnection(ctx, database.Config{
		SQLitePath: filepath.Join(t.TempDir(), "fundsaga.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, migrations.Run(ctx, conn))
	return conn
}
