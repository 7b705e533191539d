package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConnection_Pragmas(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "fundsaga.db")

	conn, err := NewConnection(ctx, database.Config{Driver: database.DriverSQLite, SQLitePath: path})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Ping(ctx))
	assert.Equal(t, database.DriverSQLite, conn.Driver())

	var mode string
	require.NoError(t, conn.QueryRow(ctx, `PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, conn.QueryRow(ctx, `PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestConnection_QueryRows(t *testing.T) {
	ctx := context.Background()
	conn := newTestConn(t)

	for _, id := range []string{"SUB2", "SUB1"} {
		res, err := conn.Exec(ctx, `INSERT INTO items (id) VALUES (?)`, id)
		require.NoError(t, err)
		n, err := res.RowsAffected()
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	}

	rows, err := conn.Query(ctx, `SELECT id FROM items ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"SUB1", "SUB2"}, ids)

	var missing string
	err = conn.QueryRow(ctx, `SELECT id FROM items WHERE id = ?`, "SUB9").Scan(&missing)
	assert.True(t, database.IsNoRows(err))
}

func TestConnection_ConcurrentWritersSerialize(t *testing.T) {
	ctx := context.Background()
	conn := newTestConn(t)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx, err := conn.BeginTx(ctx)
			if err != nil {
				errs <- err
				return
			}
			if _, err := tx.Exec(ctx, `INSERT INTO items (id) VALUES (?)`, "SUB"+string(rune('A'+i))); err != nil {
				_ = tx.Rollback(ctx)
				errs <- err
				return
			}
			errs <- tx.Commit(ctx)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 20, countItems(t, conn))
}
