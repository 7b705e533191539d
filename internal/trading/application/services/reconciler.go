package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/felixgeelhaar/fundsaga/internal/trading/domain"
	"github.com/felixgeelhaar/fundsaga/pkg/observability"
)

// DefaultMaxCompensationAttempts bounds how often one transaction is compensated
// before it is parked for manual intervention.
const DefaultMaxCompensationAttempts = 10

// ReconcileOutcome is what a reconciliation did.
type ReconcileOutcome string

const (
	// OutcomeSkipped means nothing was owed or another worker holds the claim.
	OutcomeSkipped     ReconcileOutcome = "skipped"
	OutcomeCompensated ReconcileOutcome = "compensated"
	// OutcomeRetry means compensation failed and the transaction stays in the sweep.
	OutcomeRetry     ReconcileOutcome = "retry"
	OutcomeEscalated ReconcileOutcome = "escalated"
)

// ReconcileResult is the outcome of one claim-compensate-finalize pass.
type ReconcileResult struct {
	SerialNumber string
	Outcome      ReconcileOutcome
	Compensation CompensationResult
	Err          error
}

// ReconcileTask is a reconciliation running in the background.
type ReconcileTask = Task[ReconcileResult]

// QuotaReleaser hands back the daily quota held by a transaction.
type QuotaReleaser interface {
	ReleaseTransactionQuota(ctx context.Context, txn *domain.Transaction) error
}

// Reconciler is the single claim-then-act path shared by inline and
// scheduled compensation. A claim moves the transaction to COMPENSATING with
// a version check, so two workers never compensate the same transaction at
// once.
type Reconciler struct {
	store       *TransactionStore
	engine      *CompensationEngine
	quota       QuotaReleaser
	maxAttempts int
	logger      *slog.Logger
	metrics     observability.Metrics
	inflight    sync.WaitGroup
}

// NewReconciler creates a reconciler. A non-positive maxAttempts uses the default.
func NewReconciler(store *TransactionStore, engine *CompensationEngine, maxAttempts int, logger *slog.Logger, metrics observability.Metrics) *Reconciler {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxCompensationAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Reconciler{
		store:       store,
		engine:      engine,
		maxAttempts: maxAttempts,
		logger:      logger,
		metrics:     metrics,
	}
}

// WithQuotaRelease makes a compensation that reversed or unfroze the money
// hand the subscription's daily quota back.
func (r *Reconciler) WithQuotaRelease(q QuotaReleaser) *Reconciler {
	r.quota = q
	return r
}

// MaxAttempts returns the compensation attempt ceiling.
func (r *Reconciler) MaxAttempts() int { return r.maxAttempts }

// Reconcile compensates the transaction identified by serial if it owes
// compensation and nobody else holds it. It runs detached from ctx
// cancellation so a shutdown never aborts an undo call mid-flight.
func (r *Reconciler) Reconcile(ctx context.Context, serial string, actor string) ReconcileResult {
	ctx = context.WithoutCancel(ctx)
	result := ReconcileResult{SerialNumber: serial, Outcome: OutcomeSkipped}

	txn, claimed, err := r.claim(ctx, serial, actor)
	if err != nil || !claimed {
		result.Err = err
		return result
	}

	result.Compensation = r.engine.Compensate(ctx, txn)

	if result.Compensation.Success {
		if err := txn.CompleteCompensation(); err != nil {
			result.Err = err
			return result
		}
		result.Outcome = OutcomeCompensated
	} else {
		escalated, err := txn.AbortCompensation(result.Compensation.ErrorMessage, r.maxAttempts)
		if err != nil {
			result.Err = err
			return result
		}
		result.Outcome = OutcomeRetry
		if escalated {
			result.Outcome = OutcomeEscalated
			r.metrics.Counter(observability.MetricCompensationEscalations, 1)
			r.logger.ErrorContext(ctx, "compensation escalated to manual intervention",
				"serial_number", serial,
				"attempts", txn.CompensationAttempts(),
				"error", result.Compensation.ErrorMessage,
			)
		}
	}

	if err := r.store.Update(ctx, txn, actor); err != nil {
		result.Err = fmt.Errorf("finalize compensation of %s: %w", serial, err)
		r.logger.ErrorContext(ctx, "finalize compensation failed", "serial_number", serial, "error", err)
		return result
	}
	if result.Outcome == OutcomeCompensated {
		r.releaseQuota(ctx, txn, result.Compensation)
	}
	return result
}

// releaseQuota frees the quota once the booked money went back. Failures
// without a ledger leg released it on the request path already.
func (r *Reconciler) releaseQuota(ctx context.Context, txn *domain.Transaction, comp CompensationResult) {
	if r.quota == nil || !(comp.AccountingCompensated || comp.FreezeCompensated) {
		return
	}
	if err := r.quota.ReleaseTransactionQuota(ctx, txn); err != nil {
		r.logger.WarnContext(ctx, "release quota after compensation failed", "serial_number", txn.SerialNumber(), "error", err)
	}
}

// claim loads the transaction and moves it to COMPENSATING. It reports false
// without error when nothing is owed or the claim was lost to another worker.
func (r *Reconciler) claim(ctx context.Context, serial, actor string) (*domain.Transaction, bool, error) {
	txn, err := r.store.Repository().FindBySerialNumber(ctx, serial)
	if err != nil {
		return nil, false, err
	}
	if txn.Status() != domain.StatusFailed || !txn.SagaState().IsCompensable() || !txn.NeedsCompensation() {
		return txn, false, nil
	}
	if err := txn.BeginCompensation(); err != nil {
		return txn, false, err
	}
	if err := r.store.Update(ctx, txn, actor); err != nil {
		if errors.Is(err, domain.ErrConcurrentModification) {
			r.logger.DebugContext(ctx, "compensation claim lost", "serial_number", serial)
			return txn, false, nil
		}
		return txn, false, err
	}
	return txn, true, nil
}

// Dispatch reconciles serial in the background, detached from ctx
// cancellation. Drain waits for dispatched work.
func (r *Reconciler) Dispatch(ctx context.Context, serial, actor string) *ReconcileTask {
	r.inflight.Add(1)
	return startTask(func() ReconcileResult {
		defer r.inflight.Done()
		return r.Reconcile(ctx, serial, actor)
	})
}

// Drain waits until every dispatched reconciliation has finished or ctx ends.
func (r *Reconciler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReleaseStuck fails a transaction that stopped making progress. A claim
// left behind by a crashed compensation is released first, which counts as
// a failed attempt.
func (r *Reconciler) ReleaseStuck(ctx context.Context, txn *domain.Transaction, actor string) error {
	if txn.SagaState() == domain.SagaCompensating {
		if _, err := txn.AbortCompensation("compensation claim expired", r.maxAttempts); err != nil {
			return err
		}
	} else if err := txn.MarkFailed(string(sharedDomain.CodeStuckTransaction), "Transaction stuck in "+txn.SagaState().String()); err != nil {
		return err
	}
	return r.store.Update(ctx, txn, actor)
}
