package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fundsaga/internal/integration/coupon"
	marketingDomain "github.com/felixgeelhaar/fundsaga/internal/marketing/domain"
	sharedApplication "github.com/felixgeelhaar/fundsaga/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/resilience"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/services"
	"github.com/felixgeelhaar/fundsaga/internal/trading/domain"
	"github.com/felixgeelhaar/fundsaga/pkg/observability"
)

// actor tags events and logs written by the orchestrator.
const actor = "saga-orchestrator"

// SerialGenerator hands out cluster-unique serial numbers.
type SerialGenerator interface {
	Next(ctx context.Context) (string, error)
}

// ProcessSubscriptionCommand is a customer's request to buy into a fund.
type ProcessSubscriptionCommand struct {
	CustomerID    string
	AccountNumber string
	ProductCode   string
	Amount        sharedDomain.Money
	Channel       string
	CouponID      string
}

func (ProcessSubscriptionCommand) CommandName() string { return "trading.process_subscription" }

var (
	_ sharedApplication.Command                                                  = ProcessSubscriptionCommand{}
	_ sharedApplication.Handler[ProcessSubscriptionCommand, *SubscriptionResult] = (*ProcessSubscriptionHandler)(nil)
)

// SubscriptionResult is the outcome reported to the caller.
type SubscriptionResult struct {
	SerialNumber   string
	Success        bool
	Status         domain.Status
	SagaState      domain.SagaState
	AccountingType domain.AccountingType
	Amount         sharedDomain.Money
	OriginalFee    sharedDomain.Money
	Discount       sharedDomain.Money
	FinalFee       sharedDomain.Money
	TotalDeduction sharedDomain.Money
	ErrorCode      string
	ErrorMessage   string
	// Compensation is set when inline compensation was dispatched.
	Compensation *services.ReconcileTask
}

// ProcessSubscriptionConfig tunes the orchestrator.
type ProcessSubscriptionConfig struct {
	// InlineCompensation starts compensation right after a failure instead
	// of leaving it to the recovery worker.
	InlineCompensation bool
}

// ProcessSubscriptionHandler runs the subscription saga: validate, price,
// persist, use the coupon, book the money and complete.
type ProcessSubscriptionHandler struct {
	serials    SerialGenerator
	validator  *services.SubscriptionValidator
	fees       *services.FeeService
	accounting *services.AccountingService
	store      *services.TransactionStore
	shares     domain.ShareRepository
	usages     marketingDomain.UsageRepository
	coupons    coupon.Gateway
	breakers   *resilience.Registry
	reconciler *services.Reconciler
	config     ProcessSubscriptionConfig
	logger     *slog.Logger
	metrics    observability.Metrics
}

// ProcessSubscriptionDeps are the collaborators of the orchestrator.
type ProcessSubscriptionDeps struct {
	Serials    SerialGenerator
	Validator  *services.SubscriptionValidator
	Fees       *services.FeeService
	Accounting *services.AccountingService
	Store      *services.TransactionStore
	Shares     domain.ShareRepository
	Usages     marketingDomain.UsageRepository
	Coupons    coupon.Gateway
	Breakers   *resilience.Registry
	Reconciler *services.Reconciler
	Logger     *slog.Logger
	Metrics    observability.Metrics
}

// NewProcessSubscriptionHandler creates the orchestrator.
func NewProcessSubscriptionHandler(deps ProcessSubscriptionDeps, config ProcessSubscriptionConfig) *ProcessSubscriptionHandler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &ProcessSubscriptionHandler{
		serials:    deps.Serials,
		validator:  deps.Validator,
		fees:       deps.Fees,
		accounting: deps.Accounting,
		store:      deps.Store,
		shares:     deps.Shares,
		usages:     deps.Usages,
		coupons:    deps.Coupons,
		breakers:   deps.Breakers,
		reconciler: deps.Reconciler,
		config:     config,
		logger:     logger,
		metrics:    metrics,
	}
}

// Handle executes the saga. On failure the returned error is an
// *sharedDomain.AppError and the result, when a serial was assigned,
// describes how far the saga got.
func (h *ProcessSubscriptionHandler) Handle(ctx context.Context, cmd ProcessSubscriptionCommand) (*SubscriptionResult, error) {
	start := time.Now()

	serial, err := h.serials.Next(ctx)
	if err != nil {
		appErr := &sharedDomain.AppError{
			Kind:    sharedDomain.KindSystem,
			Code:    sharedDomain.CodeSerialGenerationFailed,
			Message: "Serial number generation failed",
			Err:     err,
		}
		h.record(appErr, start)
		return nil, appErr
	}
	ctx = observability.WithSerialNumber(ctx, serial)
	logger := h.logger.With("command", cmd.CommandName(), "customer_id", cmd.CustomerID, "product_code", cmd.ProductCode)
	logger.InfoContext(ctx, "subscription started", "amount", cmd.Amount.StringFixed(), "currency", cmd.Amount.Currency())

	result := &SubscriptionResult{SerialNumber: serial, Amount: cmd.Amount}

	validated, err := h.validator.Validate(ctx, services.SubscriptionRequest{
		CustomerID:    cmd.CustomerID,
		AccountNumber: cmd.AccountNumber,
		ProductCode:   cmd.ProductCode,
		Amount:        cmd.Amount,
		Channel:       cmd.Channel,
	})
	if err != nil {
		return h.reject(ctx, logger, result, nil, err, start)
	}

	// Past validation the caller going away must not abandon a ledger or
	// coupon call mid-flight; each call is bounded by its breaker timeout.
	ctx = context.WithoutCancel(ctx)

	releaseQuota := func() {
		if err := h.validator.ReleaseQuota(ctx, validated, cmd.Amount); err != nil {
			logger.WarnContext(ctx, "release quota failed", "error", err)
		}
	}

	fee, err := h.fees.Calculate(ctx, validated.Product, cmd.CustomerID, cmd.Amount, cmd.CouponID)
	if err != nil {
		releaseQuota()
		return h.reject(ctx, logger, result, nil, err, start)
	}

	txn, err := domain.NewTransaction(domain.NewTransactionParams{
		SerialNumber:  serial,
		CustomerID:    cmd.CustomerID,
		AccountNumber: cmd.AccountNumber,
		ProductCode:   cmd.ProductCode,
		Channel:       cmd.Channel,
		CouponID:      cmd.CouponID,
		FirstTime:     validated.FirstTime,
		Fee:           fee,
		RequestTime:   validated.ReservedAt,
	})
	if err == nil {
		err = txn.MarkValidated()
	}
	if err == nil {
		err = txn.MarkSaved()
	}
	if err == nil {
		err = h.save(ctx, txn, validated)
	}
	if err != nil {
		releaseQuota()
		return h.reject(ctx, logger, result, nil, saveError(err), start)
	}

	if err := h.run(ctx, txn, validated, fee); err != nil {
		if txn.CoreBankingTxnID() == "" && txn.FreezeID() == "" {
			releaseQuota()
		}
		return h.reject(ctx, logger, result, txn, err, start)
	}

	h.fill(result, txn)
	h.record(nil, start)
	logger.InfoContext(ctx, "subscription completed",
		"accounting_type", txn.AccountingType().String(),
		"final_fee", txn.FinalFee().StringFixed(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// save persists the REQUEST_SAVED transaction and, for a first subscription,
// an empty share record.
func (h *ProcessSubscriptionHandler) save(ctx context.Context, txn *domain.Transaction, validated *services.ValidatedSubscription) error {
	return h.store.Within(ctx, func(txCtx context.Context) error {
		if err := h.store.Insert(txCtx, txn, actor); err != nil {
			return err
		}
		if !validated.FirstTime {
			return nil
		}
		record, err := domain.NewShareRecord(txn.CustomerID(), txn.ProductCode(), validated.Product.CurrencyCode)
		if err != nil {
			return err
		}
		return h.shares.Save(txCtx, record)
	})
}

// run executes the steps after the transaction was saved.
func (h *ProcessSubscriptionHandler) run(ctx context.Context, txn *domain.Transaction, validated *services.ValidatedSubscription, fee marketingDomain.FeeCalculation) error {
	if txn.HasCoupon() {
		if err := h.useCoupon(ctx, txn, fee); err != nil {
			return err
		}
	}

	if _, err := h.accounting.Book(ctx, txn, validated.Product.CurrencyCode, validated.Account.CurrencyCode); err != nil {
		return err
	}
	if err := h.store.Update(ctx, txn, actor); err != nil {
		return err
	}

	if err := txn.MarkCompleted(); err != nil {
		return err
	}
	return h.store.Update(ctx, txn, actor)
}

func (h *ProcessSubscriptionHandler) useCoupon(ctx context.Context, txn *domain.Transaction, fee marketingDomain.FeeCalculation) error {
	usageID, err := resilience.Execute(ctx, h.breakers, resilience.BreakerMarketing, func(ctx context.Context) (string, error) {
		usageID, err := h.coupons.UseCoupon(ctx, coupon.UseRequest{
			SerialNumber: txn.SerialNumber(),
			CustomerID:   txn.CustomerID(),
			CouponID:     txn.CouponID(),
			ProductCode:  txn.ProductCode(),
			OriginalFee:  txn.OriginalFee(),
			FinalFee:     txn.FinalFee(),
		})
		if errors.Is(err, coupon.ErrRejected) {
			return "", sharedDomain.NewBusinessError(sharedDomain.CodeCouponUseFailed, "Coupon use failed", err)
		}
		return usageID, err
	})
	if err != nil {
		if _, ok := sharedDomain.AsAppError(err); ok {
			return err
		}
		if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, context.DeadlineExceeded) {
			return sharedDomain.NewExternalError(sharedDomain.CodeExternalSystemTimeout, "Marketing system unavailable", err)
		}
		return sharedDomain.NewExternalError(sharedDomain.CodeCouponUseFailed, "Coupon use failed", err)
	}

	if err := txn.MarkCouponUsed(usageID); err != nil {
		return err
	}
	return h.store.Within(ctx, func(txCtx context.Context) error {
		if err := h.store.Update(txCtx, txn, actor); err != nil {
			return err
		}
		return h.usages.Save(txCtx, marketingDomain.NewCouponUsage(txn.SerialNumber(), txn.CustomerID(), txn.CouponID(), usageID, fee))
	})
}

// reject classifies err, marks a saved transaction FAILED and, when money or
// a coupon has to be given back, dispatches compensation.
func (h *ProcessSubscriptionHandler) reject(ctx context.Context, logger *slog.Logger, result *SubscriptionResult, txn *domain.Transaction, err error, start time.Time) (*SubscriptionResult, error) {
	appErr := sharedDomain.Classify(err)
	result.Status = domain.StatusFailed
	result.ErrorCode = string(appErr.Code)
	result.ErrorMessage = appErr.Message

	switch appErr.Kind {
	case sharedDomain.KindExternal, sharedDomain.KindSystem:
		logger.ErrorContext(ctx, "subscription failed", "error_code", appErr.Code, "error", err)
	default:
		logger.WarnContext(ctx, "subscription rejected", "error_code", appErr.Code, "error", appErr.Message)
	}

	if txn != nil {
		persistCtx := context.WithoutCancel(ctx)
		if markErr := txn.MarkFailed(string(appErr.Code), appErr.Message); markErr != nil {
			logger.ErrorContext(ctx, "mark transaction failed", "error", markErr)
		} else if saveErr := h.store.Update(persistCtx, txn, actor); saveErr != nil {
			// The recovery worker picks the transaction up as stuck.
			logger.ErrorContext(ctx, "persist failed transaction", "error", saveErr)
		} else if txn.NeedsCompensation() && h.config.InlineCompensation && h.reconciler != nil {
			result.Compensation = h.reconciler.Dispatch(persistCtx, txn.SerialNumber(), actor)
		}
		h.fill(result, txn)
	}

	h.record(appErr, start)
	return result, appErr
}

func (h *ProcessSubscriptionHandler) fill(result *SubscriptionResult, txn *domain.Transaction) {
	result.Success = txn.Status() == domain.StatusSuccess
	result.Status = txn.Status()
	result.SagaState = txn.SagaState()
	result.AccountingType = txn.AccountingType()
	result.Amount = txn.Amount()
	result.OriginalFee = txn.OriginalFee()
	result.Discount = txn.Discount()
	result.FinalFee = txn.FinalFee()
	result.TotalDeduction = txn.TotalDeduction()
	if txn.ErrorCode() != "" {
		result.ErrorCode = txn.ErrorCode()
		result.ErrorMessage = txn.ErrorMessage()
	}
}

func (h *ProcessSubscriptionHandler) record(appErr *sharedDomain.AppError, start time.Time) {
	outcome, code := "success", ""
	if appErr != nil {
		outcome, code = "failure", string(appErr.Code)
	}
	h.metrics.Counter(observability.MetricSubscriptions, 1,
		observability.T("result", outcome),
		observability.T("code", code),
	)
	h.metrics.Timing(observability.MetricSubscriptionDuration, time.Since(start), observability.T("result", outcome))
	if appErr != nil && appErr.Code == sharedDomain.CodeQuotaExceeded {
		h.metrics.Counter(observability.MetricQuotaRejections, 1)
	}
}

func saveError(err error) error {
	if _, ok := sharedDomain.AsAppError(err); ok {
		return err
	}
	return &sharedDomain.AppError{
		Kind:    sharedDomain.KindSystem,
		Code:    sharedDomain.CodeTransactionSaveFailed,
		Message: "Transaction save failed",
		Err:     err,
	}
}
