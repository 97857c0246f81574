package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upb/llm-governance/repositories"
	"go.uber.org/zap"
)

type txKey struct{}

// TransactionManager implements repositories.TransactionManager over *sql.DB
type TransactionManager struct {
	db     *DB
	logger *zap.Logger
}

// NewTransactionManager creates a new transaction manager
func NewTransactionManager(db *DB, logger *zap.Logger) repositories.TransactionManager {
	return &TransactionManager{db: db, logger: logger}
}

// Begin starts a transaction and returns it bound to a context that
// repositories pick up through executorFor.
func (tm *TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	sqlTx, err := tm.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	t := &Transaction{tx: sqlTx, logger: tm.logger}
	t.ctx = context.WithValue(ctx, txKey{}, t)
	return t, nil
}

// InTransaction runs fn inside a transaction, committing on success
func (tm *TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, err := tm.Begin(ctx)
	if err != nil {
		return err
	}

	if err := fn(tx.Context(), tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			tm.logger.Error("failed to rollback transaction",
				zap.Error(rbErr),
				zap.NamedError("original_error", err))
		}
		return err
	}

	return tx.Commit()
}

// Transaction implements repositories.Transaction
type Transaction struct {
	tx     *sql.Tx
	ctx    context.Context
	logger *zap.Logger
}

// Commit commits the transaction
func (t *Transaction) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback rolls back the transaction; rolling back a finished transaction is a no-op
func (t *Transaction) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// Context returns a context carrying this transaction
func (t *Transaction) Context() context.Context {
	return t.ctx
}

// executor is satisfied by both *sql.DB and *sql.Tx
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// executorFor returns the transaction bound to ctx, or the pool
func executorFor(ctx context.Context, db *DB) executor {
	if t, ok := ctx.Value(txKey{}).(*Transaction); ok {
		return t.tx
	}
	return db.DB
}
