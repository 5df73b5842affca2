package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type txContextKey string

const txStatusKey = txContextKey("txStatus")
const txKey = txContextKey("tx-context-key")

// Tx is the subset of sqlx.Tx the repositories use inside a transaction.
// Commit and Rollback are no-ops when the transaction is owned by an outer
// caller through the context.
type Tx interface {
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	Rebind(query string) string
}

// Transaction wraps sqlx.Tx with close tracking.
type Transaction struct {
	*sqlx.Tx
	logger   ectologger.Logger
	isClosed bool
}

func NewTx(tx *sqlx.Tx, logger ectologger.Logger) Tx {
	return &Transaction{
		Tx:       tx,
		logger:   logger,
		isClosed: false,
	}
}

// GetTx returns the transaction stored on the context when one is open,
// otherwise it begins a new one and stores it. Nested callers get a view
// whose Commit and Rollback do nothing, so only the opener can settle the
// transaction.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	ctxTx, ok := ctx.Value(txKey).(Tx)
	if ok && ctxTx != nil && ctxTx.IsOpen() {
		status, ok := ctx.Value(txStatusKey).(string)
		if ok && status == "open" {
			return ctx, &nestedTx{owner: ctxTx}, nil
		}
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("error while beginning transaction")
		return ctx, nil, fmt.Errorf("error while beginning transaction")
	}

	newTx := NewTx(tx, logger)

	ctx = context.WithValue(ctx, txStatusKey, "open")
	ctx = context.WithValue(ctx, txKey, newTx)
	return ctx, newTx, nil
}

func (t *Transaction) IsOpen() bool {
	return !t.isClosed
}

// Rollback is a no-op after Commit, so a deferred Rollback on the opener
// is always safe.
func (t *Transaction) Rollback(ctx context.Context) error {
	if t.isClosed {
		return nil
	}

	if err := t.Tx.Rollback(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back transaction")
		return fmt.Errorf("error while rolling back transaction")
	}

	t.isClosed = true
	return nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	if t.isClosed {
		return nil
	}

	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while committing transaction")
		return fmt.Errorf("error while committing transaction")
	}

	t.isClosed = true
	return nil
}

// nestedTx is the view a nested caller gets of a transaction opened
// further up the stack. Queries run on the shared transaction; Commit and
// Rollback do nothing, because the opener settles it.
type nestedTx struct {
	owner Tx
}

func (t *nestedTx) IsOpen() bool {
	return t.owner.IsOpen()
}

func (t *nestedTx) Commit(ctx context.Context) error {
	return nil
}

func (t *nestedTx) Rollback(ctx context.Context) error {
	return nil
}

func (t *nestedTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.owner.ExecContext(ctx, query, args...)
}

func (t *nestedTx) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return t.owner.GetContext(ctx, dest, query, args...)
}

func (t *nestedTx) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return t.owner.SelectContext(ctx, dest, query, args...)
}

func (t *nestedTx) NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error) {
	return t.owner.NamedExecContext(ctx, query, arg)
}

func (t *nestedTx) QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row {
	return t.owner.QueryRowxContext(ctx, query, args...)
}

func (t *nestedTx) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return t.owner.QueryxContext(ctx, query, args...)
}

func (t *nestedTx) Rebind(query string) string {
	return t.owner.Rebind(query)
}
