package application

import (
	"context"
	"errors"
	"fmt"
)

// UnitOfWork scopes a set of writes to one transaction carried by the
// returned context.
type UnitOfWork interface {
	Begin(ctx context.Context) (context.Context, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// RollbackNotifier is implemented by units of work that can undo in-memory
// effects when the outermost transaction does not commit.
type RollbackNotifier interface {
	OnRollback(ctx context.Context, fn func())
}

// OnRollback registers fn with uow when it supports rollback hooks.
func OnRollback(ctx context.Context, uow UnitOfWork, fn func()) {
	if n, ok := uow.(RollbackNotifier); ok {
		n.OnRollback(ctx, fn)
	}
}

// WithUnitOfWork runs fn in a unit of work. The unit commits when fn
// returns nil and rolls back when fn fails or panics; a panic is re-raised
// after the rollback.
func WithUnitOfWork(ctx context.Context, uow UnitOfWork, fn func(ctx context.Context) error) (err error) {
	txCtx, err := uow.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = uow.Rollback(txCtx)
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := uow.Rollback(txCtx); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := uow.Commit(txCtx); err != nil {
		return fmt.Errorf("commit unit of work: %w", err)
	}
	return nil
}
