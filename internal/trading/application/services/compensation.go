package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/felixgeelhaar/fundsaga/internal/integration/coupon"
	"github.com/felixgeelhaar/fundsaga/internal/integration/ledger"
	marketingDomain "github.com/felixgeelhaar/fundsaga/internal/marketing/domain"
	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/resilience"
	"github.com/felixgeelhaar/fundsaga/internal/trading/domain"
	"github.com/felixgeelhaar/fundsaga/pkg/observability"
)

const compensationReason = "Subscription compensation"

// CompensationResult reports which undo steps were carried out. Steps that
// were not owed count as done.
type CompensationResult struct {
	AccountingCompensated bool
	FreezeCompensated     bool
	CouponCompensated     bool
	Success               bool
	ErrorMessage          string
}

// CompensationEngine undoes the side effects of a failed subscription: the
// ledger step first, then the coupon. Steps are independent; a failed
// ledger undo does not stop the coupon return.
type CompensationEngine struct {
	ledger   ledger.Gateway
	coupons  coupon.Gateway
	usages   marketingDomain.UsageRepository
	breakers *resilience.Registry
	logger   *slog.Logger
	metrics  observability.Metrics
}

// NewCompensationEngine creates a compensation engine.
func NewCompensationEngine(
	ledgerGateway ledger.Gateway,
	couponGateway coupon.Gateway,
	usages marketingDomain.UsageRepository,
	breakers *resilience.Registry,
	logger *slog.Logger,
	metrics observability.Metrics,
) *CompensationEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &CompensationEngine{
		ledger:   ledgerGateway,
		coupons:  couponGateway,
		usages:   usages,
		breakers: breakers,
		logger:   logger,
		metrics:  metrics,
	}
}

// Compensate runs every owed undo step against txn. It never returns an
// error or panics; failures are reported in the result.
func (e *CompensationEngine) Compensate(ctx context.Context, txn *domain.Transaction) (result CompensationResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "compensation panicked", "panic", fmt.Sprint(r))
			result.Success = false
			result.ErrorMessage = fmt.Sprintf("panic: %v", r)
		}
	}()

	start := time.Now()
	var failures []string

	needsAccounting := txn.NeedsAccountingCompensation()
	needsFreeze := txn.NeedsFreezeCompensation()
	needsCoupon := txn.NeedsCouponCompensation()

	if needsAccounting {
		if err := e.step(ctx, "reversal", resilience.BreakerCoreBankingCompensation, func(ctx context.Context) error {
			return e.ledger.Reversal(ctx, ledger.ReversalRequest{
				SerialNumber:  txn.SerialNumber(),
				TransactionID: txn.CoreBankingTxnID(),
				AccountNumber: txn.AccountNumber(),
				Amount:        txn.Amount(),
				Fee:           txn.FinalFee(),
				Reason:        compensationReason,
			})
		}); err != nil {
			failures = append(failures, "reversal: "+err.Error())
		} else {
			result.AccountingCompensated = true
		}
	}

	if needsFreeze {
		if err := e.step(ctx, "unfreeze", resilience.BreakerCoreBankingCompensation, func(ctx context.Context) error {
			return e.ledger.Unfreeze(ctx, ledger.UnfreezeRequest{
				SerialNumber:  txn.SerialNumber(),
				FreezeID:      txn.FreezeID(),
				AccountNumber: txn.AccountNumber(),
				Amount:        txn.Amount(),
				Fee:           txn.FinalFee(),
				Reason:        compensationReason,
			})
		}); err != nil {
			failures = append(failures, "unfreeze: "+err.Error())
		} else {
			result.FreezeCompensated = true
		}
	}

	if needsCoupon {
		if err := e.step(ctx, "coupon return", resilience.BreakerMarketingCompensation, func(ctx context.Context) error {
			return e.coupons.ReturnCoupon(ctx, coupon.ReturnRequest{
				SerialNumber: txn.SerialNumber(),
				CustomerID:   txn.CustomerID(),
				CouponID:     txn.CouponID(),
				UsageID:      txn.CouponUsageID(),
				Reason:       compensationReason,
			})
		}); err != nil {
			failures = append(failures, "coupon return: "+err.Error())
		} else {
			result.CouponCompensated = true
			e.markUsageReturned(ctx, txn)
		}
	}

	// Flags report steps that ran and succeeded; nothing owed is a success.
	result.Success = (!needsAccounting || result.AccountingCompensated) &&
		(!needsFreeze || result.FreezeCompensated) &&
		(!needsCoupon || result.CouponCompensated)
	result.ErrorMessage = strings.Join(failures, "; ")

	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	e.metrics.Counter(observability.MetricCompensations, 1, observability.T("result", outcome))
	e.logger.InfoContext(ctx, "compensation finished",
		"serial_number", txn.SerialNumber(),
		"success", result.Success,
		"accounting_compensated", result.AccountingCompensated,
		"freeze_compensated", result.FreezeCompensated,
		"coupon_compensated", result.CouponCompensated,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result
}

// step runs one undo call through its breaker, turning a panic into an error.
func (e *CompensationEngine) step(ctx context.Context, name, breaker string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			e.logger.ErrorContext(ctx, "compensation step failed", "step", name, "error", err)
		}
	}()

	_, err = resilience.Execute(ctx, e.breakers, breaker, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return fmt.Errorf("%s skipped: %w", name, err)
	}
	return err
}

// markUsageReturned flips the local usage record. The remote return already
// happened, so a local failure is only logged.
func (e *CompensationEngine) markUsageReturned(ctx context.Context, txn *domain.Transaction) {
	if e.usages == nil {
		return
	}
	usages, err := e.usages.FindBySerialNumber(ctx, txn.SerialNumber())
	if err != nil {
		e.logger.WarnContext(ctx, "load coupon usage failed", "serial_number", txn.SerialNumber(), "error", err)
		return
	}
	for _, u := range usages {
		if u.UsageID != txn.CouponUsageID() || u.Status == marketingDomain.UsageReturned {
			continue
		}
		u.MarkReturned()
		if err := e.usages.Update(ctx, u); err != nil {
			e.logger.WarnContext(ctx, "mark coupon usage returned failed", "serial_number", txn.SerialNumber(), "error", err)
		}
	}
}

// CompensationTask is a compensation running in the background.
type CompensationTask = Task[CompensationResult]

// Dispatch runs Compensate in its own goroutine. The run is detached from
// ctx cancellation but keeps its values.
func (e *CompensationEngine) Dispatch(ctx context.Context, txn *domain.Transaction) *CompensationTask {
	detached := context.WithoutCancel(ctx)
	return startTask(func() CompensationResult {
		return e.Compensate(detached, txn)
	})
}
