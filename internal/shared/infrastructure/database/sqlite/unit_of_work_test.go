package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConn(t *testing.T) database.Connection {
	t.Helper()
	conn, err := NewConnection(context.Background(), database.Config{
		SQLitePath: filepath.Join(t.TempDir(), "uow.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = conn.Exec(context.Background(), `CREATE TABLE items (id TEXT PRIMARY KEY)`)
	require.NoError(t, err)
	return conn
}

func countItems(t *testing.T, conn database.Connection) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow(context.Background(), `SELECT COUNT(*) FROM items`).Scan(&n))
	return n
}

func TestGenericUnitOfWork(t *testing.T) {
	t.Run("commits through the context executor", func(t *testing.T) {
		conn := newTestConn(t)
		uow := database.NewUnitOfWork(conn)

		txCtx, err := uow.Begin(context.Background())
		require.NoError(t, err)
		_, err = database.ExecutorFromContext(txCtx, conn).Exec(txCtx, `INSERT INTO items (id) VALUES (?)`, "a")
		require.NoError(t, err)
		require.NoError(t, uow.Commit(txCtx))

		assert.Equal(t, 1, countItems(t, conn))
	})

	t.Run("rolls back", func(t *testing.T) {
		conn := newTestConn(t)
		uow := database.NewUnitOfWork(conn)

		txCtx, err := uow.Begin(context.Background())
		require.NoError(t, err)
		_, err = database.ExecutorFromContext(txCtx, conn).Exec(txCtx, `INSERT INTO items (id) VALUES (?)`, "a")
		require.NoError(t, err)
		require.NoError(t, uow.Rollback(txCtx))

		assert.Equal(t, 0, countItems(t, conn))
	})

	t.Run("nested begin does not own the transaction", func(t *testing.T) {
		conn := newTestConn(t)
		uow := database.NewUnitOfWork(conn)

		outer, err := uow.Begin(context.Background())
		require.NoError(t, err)
		inner, err := uow.Begin(outer)
		require.NoError(t, err)

		_, err = database.ExecutorFromContext(inner, conn).Exec(inner, `INSERT INTO items (id) VALUES (?)`, "a")
		require.NoError(t, err)
		require.NoError(t, uow.Commit(inner))
		require.NoError(t, uow.Rollback(outer))

		assert.Equal(t, 0, countItems(t, conn))
	})

	t.Run("rollback hooks run only when the outermost unit does not commit", func(t *testing.T) {
		conn := newTestConn(t)
		uow := database.NewUnitOfWork(conn)

		var undone []string
		outer, err := uow.Begin(context.Background())
		require.NoError(t, err)
		uow.OnRollback(outer, func() { undone = append(undone, "outer") })
		inner, err := uow.Begin(outer)
		require.NoError(t, err)
		uow.OnRollback(inner, func() { undone = append(undone, "inner") })

		require.NoError(t, uow.Commit(inner))
		assert.Empty(t, undone)
		require.NoError(t, uow.Rollback(outer))
		assert.Equal(t, []string{"inner", "outer"}, undone)

		committed, err := uow.Begin(context.Background())
		require.NoError(t, err)
		uow.OnRollback(committed, func() { undone = append(undone, "committed") })
		require.NoError(t, uow.Commit(committed))
		assert.Equal(t, []string{"inner", "outer"}, undone)

		// Outside a transaction the hook is dropped.
		uow.OnRollback(context.Background(), func() { t.Fatal("hook ran without a transaction") })
	})

	t.Run("commit without transaction fails", func(t *testing.T) {
		conn := newTestConn(t)
		err := database.NewUnitOfWork(conn).Commit(context.Background())
		assert.Error(t, err)
		assert.False(t, errors.Is(err, context.Canceled))
	})
}
