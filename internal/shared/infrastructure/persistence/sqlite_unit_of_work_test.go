package persistence_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/eshields/caseplan/internal/shared/application"
	"github.com/eshields/caseplan/internal/shared/infrastructure/persistence"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE audit_rows (id INTEGER PRIMARY KEY, note TEXT NOT NULL)`)
	require.NoError(t, err)
	return db
}

func countRows(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM audit_rows`).Scan(&n))
	return n
}

func TestSQLiteUnitOfWork_CommitPersists(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	uow := persistence.NewSQLiteUnitOfWork(db)

	err := application.WithUnitOfWork(ctx, uow, func(txCtx context.Context) error {
		q := persistence.SQLiteExecutor(txCtx, db)
		_, err := q.ExecContext(txCtx, `INSERT INTO audit_rows (note) VALUES (?)`, "first")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countRows(t, db))
}

func TestSQLiteUnitOfWork_RollbackDiscards(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	uow := persistence.NewSQLiteUnitOfWork(db)

	failErr := errors.New("downstream failure")
	err := application.WithUnitOfWork(ctx, uow, func(txCtx context.Context) error {
		q := persistence.SQLiteExecutor(txCtx, db)
		if _, err := q.ExecContext(txCtx, `INSERT INTO audit_rows (note) VALUES (?)`, "doomed"); err != nil {
			return err
		}
		return failErr
	})
	require.ErrorIs(t, err, failErr)
	assert.Zero(t, countRows(t, db))
}

func TestSQLiteUnitOfWork_NestedBeginReusesTransaction(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	uow := persistence.NewSQLiteUnitOfWork(db)

	err := application.WithUnitOfWork(ctx, uow, func(outerCtx context.Context) error {
		outer, ok := persistence.SQLiteTxInfoFromContext(outerCtx)
		require.True(t, ok)
		require.True(t, outer.Owned)

		// The inner unit joins the outer transaction; its commit and
		// rollback are no-ops.
		return application.WithUnitOfWork(outerCtx, uow, func(innerCtx context.Context) error {
			inner, ok := persistence.SQLiteTxInfoFromContext(innerCtx)
			require.True(t, ok)
			assert.False(t, inner.Owned)
			assert.Same(t, outer.Tx, inner.Tx)

			q := persistence.SQLiteExecutor(innerCtx, db)
			_, err := q.ExecContext(innerCtx, `INSERT INTO audit_rows (note) VALUES (?)`, "nested")
			return err
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countRows(t, db))
}

func TestSQLiteUnitOfWork_CommitWithoutBegin(t *testing.T) {
	db := setupTestDB(t)
	uow := persistence.NewSQLiteUnitOfWork(db)

	assert.Error(t, uow.Commit(context.Background()))
	assert.Error(t, uow.Rollback(context.Background()))
}
