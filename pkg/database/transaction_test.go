package database

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func newMockDB(t *testing.T) (DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return NewDatabaseInstance(sqlx.NewDb(mockDB, "sqlmock"), testLogger()), mock
}

func TestGetTxNestedCallerJoinsOpenTransaction(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	logger := testLogger()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE organization").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctx, outer, err := GetTx(ctx, logger, db, nil)
	require.NoError(t, err)

	// A nested caller must not begin a second transaction.
	_, inner, err := GetTx(ctx, logger, db, nil)
	require.NoError(t, err)

	// Queries through the nested view run on the shared transaction.
	_, err = inner.ExecContext(ctx, "UPDATE organization SET name = $1", "x")
	require.NoError(t, err)

	// The nested view cannot settle the transaction.
	require.NoError(t, inner.Commit(ctx))
	assert.True(t, outer.IsOpen())
	require.NoError(t, inner.Rollback(ctx))
	assert.True(t, outer.IsOpen())

	require.NoError(t, outer.Commit(ctx))
	assert.False(t, outer.IsOpen())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTxBeginsFreshTransactionAfterSettle(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	logger := testLogger()

	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectRollback()

	ctx, first, err := GetTx(ctx, logger, db, nil)
	require.NoError(t, err)
	require.NoError(t, first.Commit(ctx))

	// The settled transaction still sits on the context, so a later call
	// must open a new one rather than hand out a dead view.
	ctx, second, err := GetTx(ctx, logger, db, nil)
	require.NoError(t, err)
	assert.True(t, second.IsOpen())

	require.NoError(t, second.Rollback(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenerDeferredRollbackAfterCommitIsNoOp(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	logger := testLogger()

	mock.ExpectBegin()
	mock.ExpectCommit()

	ctx, tx, err := GetTx(ctx, logger, db, nil)
	require.NoError(t, err)

	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, tx.Rollback(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenerRollbackOnAbandonment(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	logger := testLogger()

	mock.ExpectBegin()
	mock.ExpectRollback()

	ctx, tx, err := GetTx(ctx, logger, db, nil)
	require.NoError(t, err)

	require.NoError(t, tx.Rollback(ctx))
	assert.False(t, tx.IsOpen())

	assert.NoError(t, mock.ExpectationsWereMet())
}
