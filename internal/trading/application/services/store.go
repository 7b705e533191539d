package services

import (
	"context"
	"slices"

	sharedApplication "github.com/felixgeelhaar/fundsaga/internal/shared/application"
	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/fundsaga/internal/trading/domain"
)

// TransactionStore writes a transaction together with its pending domain
// events in one unit of work.
type TransactionStore struct {
	repo   domain.Repository
	outbox outbox.Writer
	uow    sharedApplication.UnitOfWork
}

// NewTransactionStore creates a store.
func NewTransactionStore(repo domain.Repository, outboxRepo outbox.Writer, uow sharedApplication.UnitOfWork) *TransactionStore {
	return &TransactionStore{repo: repo, outbox: outboxRepo, uow: uow}
}

// Repository returns the underlying transaction repository.
func (s *TransactionStore) Repository() domain.Repository { return s.repo }

// Insert saves a new transaction.
func (s *TransactionStore) Insert(ctx context.Context, txn *domain.Transaction, actor string) error {
	return s.write(ctx, txn, actor, s.repo.Save)
}

// Update writes a changed transaction under optimistic locking.
func (s *TransactionStore) Update(ctx context.Context, txn *domain.Transaction, actor string) error {
	return s.write(ctx, txn, actor, s.repo.Update)
}

// Within runs fn in the store's unit of work.
func (s *TransactionStore) Within(ctx context.Context, fn func(ctx context.Context) error) error {
	return sharedApplication.WithUnitOfWork(ctx, s.uow, fn)
}

// write persists txn and its events. If the enclosing unit of work does not
// commit, the aggregate's version and pending events are rewound so the next
// write still matches the stored row.
func (s *TransactionStore) write(ctx context.Context, txn *domain.Transaction, actor string, persist func(context.Context, *domain.Transaction) error) error {
	version, pending := txn.Version(), slices.Clone(txn.DomainEvents())
	err := s.Within(ctx, func(txCtx context.Context) error {
		sharedApplication.OnRollback(txCtx, s.uow, func() { txn.Rewind(version, pending) })
		if err := persist(txCtx, txn); err != nil {
			return err
		}
		events := txn.DomainEvents()
		if len(events) == 0 {
			return nil
		}
		sharedApplication.ApplyEventMetadata(events, sharedApplication.EventMetadataFromContext(txCtx, actor, txn.SerialNumber()))
		msgs, err := outbox.NewMessages(events)
		if err != nil {
			return err
		}
		return s.outbox.SaveBatch(txCtx, msgs)
	})
	if err != nil {
		return err
	}
	txn.ClearDomainEvents()
	return nil
}
