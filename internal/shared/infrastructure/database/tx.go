package database

import (
	"context"
	"errors"
)

// ErrNoTransaction is returned when committing or rolling back a context
// that carries no transaction.
var ErrNoTransaction = errors.New("database: no transaction in context")

type txKey struct{}

// txScope is the transaction bound to a context. Only the scope that began
// the transaction may end it. Joined scopes share the owner's hooks.
type txScope struct {
	tx    Transaction
	owner bool
	undo  *[]func()
}

func scopeFrom(ctx context.Context) (txScope, bool) {
	scope, ok := ctx.Value(txKey{}).(txScope)
	return scope, ok && scope.tx != nil
}

// TxFromContext returns the transaction bound to ctx, or nil.
func TxFromContext(ctx context.Context) Transaction {
	scope, _ := scopeFrom(ctx)
	return scope.tx
}

// ExecutorFromContext returns the transaction bound to ctx, falling back to
// conn. Repositories call it on every statement so they join an open unit
// of work transparently.
func ExecutorFromContext(ctx context.Context, conn Connection) Executor {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return conn
}

// UnitOfWork binds one transaction to a context. Begin inside an existing
// unit joins it; the outermost Commit or Rollback ends it.
type UnitOfWork struct {
	conn Connection
}

// NewUnitOfWork creates a unit of work over conn.
func NewUnitOfWork(conn Connection) *UnitOfWork {
	return &UnitOfWork{conn: conn}
}

// Begin starts a transaction, or joins the one already bound to ctx.
func (u *UnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	if scope, ok := scopeFrom(ctx); ok {
		return context.WithValue(ctx, txKey{}, txScope{tx: scope.tx, undo: scope.undo}), nil
	}
	tx, err := u.conn.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return context.WithValue(ctx, txKey{}, txScope{tx: tx, owner: true, undo: new([]func())}), nil
}

// OnRollback registers fn to run if the outermost transaction bound to ctx
// rolls back or fails to commit. Without a transaction it does nothing.
func (u *UnitOfWork) OnRollback(ctx context.Context, fn func()) {
	if scope, ok := scopeFrom(ctx); ok && scope.undo != nil {
		*scope.undo = append(*scope.undo, fn)
	}
}

// Commit commits when ctx owns the transaction.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	return u.end(ctx, Transaction.Commit, false)
}

// Rollback rolls back when ctx owns the transaction.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	return u.end(ctx, Transaction.Rollback, true)
}

func (u *UnitOfWork) end(ctx context.Context, finish func(Transaction, context.Context) error, rollback bool) error {
	scope, ok := scopeFrom(ctx)
	if !ok {
		return ErrNoTransaction
	}
	if !scope.owner {
		return nil
	}
	err := finish(scope.tx, ctx)
	if rollback || err != nil {
		runUndo(scope.undo)
	}
	return err
}

// runUndo runs the hooks newest first, once.
func runUndo(hooks *[]func()) {
	if hooks == nil {
		return
	}
	for i := len(*hooks) - 1; i >= 0; i-- {
		(*hooks)[i]()
	}
	*hooks = nil
}
