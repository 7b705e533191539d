package commands_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/fundsaga/internal/integration/coupon"
	"github.com/felixgeelhaar/fundsaga/internal/integration/ledger"
	marketingDomain "github.com/felixgeelhaar/fundsaga/internal/marketing/domain"
	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/commands"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/sagatest"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/services"
	"github.com/felixgeelhaar/fundsaga/internal/trading/domain"
	"github.com/felixgeelhaar/fundsaga/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireCode(t *testing.T, err error, code sharedDomain.ErrorCode, kind sharedDomain.ErrorKind) {
	t.Helper()
	appErr, ok := sharedDomain.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
	assert.Equal(t, kind, appErr.Kind)
}

func routingKeys(t *testing.T, h *sagatest.Harness) []string {
	t.Helper()
	msgs, err := h.Outbox.GetUnpublished(context.Background(), 100)
	require.NoError(t, err)
	keys := make([]string, 0, len(msgs))
	for _, m := range msgs {
		keys = append(keys, m.RoutingKey)
	}
	return keys
}

func TestProcessSubscription_DirectAccounting(t *testing.T) {
	h := sagatest.New(t, sagatest.Options{})
	ctx := context.Background()

	result, err := h.Subscribe(ctx, sagatest.ProductCNY, "10000", "CNY", "")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, domain.StatusSuccess, result.Status)
	assert.Equal(t, domain.SagaCompleted, result.SagaState)
	assert.Equal(t, domain.AccountingDirect, result.AccountingType)
	assert.Equal(t, "150.00", result.OriginalFee.StringFixed())
	assert.Equal(t, "0.00", result.Discount.StringFixed())
	assert.Equal(t, "10150.00", result.TotalDeduction.StringFixed())
	assert.Nil(t, result.Compensation)

	txn, err := h.Transactions.FindBySerialNumber(ctx, result.SerialNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.SagaCompleted, txn.SagaState())
	assert.True(t, txn.FirstTime())
	assert.True(t, h.Ledger.Booked(txn.CoreBankingTxnID()))
	assert.NotNil(t, txn.CompleteTime())

	share, err := h.Shares.Find(ctx, sagatest.CustomerID, sagatest.ProductCNY)
	require.NoError(t, err)
	require.NotNil(t, share)
	assert.True(t, share.TotalShares.IsZero())

	assert.Equal(t, int64(1_000_000), h.QuotaUsed(t, sagatest.ProductCNY))
	assert.Equal(t, []string{domain.RoutingKeySubscriptionCompleted}, routingKeys(t, h))
	assert.Equal(t, int64(1), h.Metrics.GetCounter(observability.MetricSubscriptions,
		observability.T("result", "success"), observability.T("code", "")))
}

func TestProcessSubscription_SecondSubscriptionUsesAdditionalMinimum(t *testing.T) {
	h := sagatest.New(t, sagatest.Options{})
	ctx := context.Background()

	_, err := h.Subscribe(ctx, sagatest.ProductCNY, "1000", "CNY", "")
	require.NoError(t, err)

	result, err := h.Subscribe(ctx, sagatest.ProductCNY, "200", "CNY", "")
	require.NoError(t, err)

	txn, err := h.Transactions.FindBySerialNumber(ctx, result.SerialNumber)
	require.NoError(t, err)
	assert.False(t, txn.FirstTime())
}

func TestProcessSubscription_WithCoupon(t *testing.T) {
	h := sagatest.New(t, sagatest.Options{})
	ctx := context.Background()

	result, err := h.Subscribe(ctx, sagatest.ProductCNY, "10000", "CNY", sagatest.CouponHalf)
	require.NoError(t, err)

	assert.Equal(t, "150.00", result.OriginalFee.StringFixed())
	assert.Equal(t, "75.00", result.Discount.StringFixed())
	assert.Equal(t, "75.00", result.FinalFee.StringFixed())
	assert.True(t, h.Coupons.InUse(sagatest.CouponHalf))

	usages, err := h.Usages.FindBySerialNumber(ctx, result.SerialNumber)
	require.NoError(t, err)
	require.Len(t, usages, 1)
	assert.Equal(t, marketingDomain.UsageUsed, usages[0].Status)
	assert.Equal(t, "75.00", usages[0].FinalFee.StringFixed())
}

func TestProcessSubscription_FreezeOutsideTradingWindow(t *testing.T) {
	h := sagatest.New(t, sagatest.Options{Clock: sagatest.AfterHours})

	result, err := h.Subscribe(context.Background(), sagatest.ProductCNY, "10000", "CNY", "")
	require.NoError(t, err)

	assert.Equal(t, domain.AccountingFreeze, result.AccountingType)
	txn, err := h.Transactions.FindBySerialNumber(context.Background(), result.SerialNumber)
	require.NoError(t, err)
	assert.True(t, h.Ledger.Frozen(txn.FreezeID()))
	assert.Empty(t, txn.CoreBankingTxnID())
}

func TestProcessSubscription_ExchangeForForeignCurrencyProduct(t *testing.T) {
	h := sagatest.New(t, sagatest.Options{Clock: sagatest.AfterHours})

	result, err := h.Subscribe(context.Background(), sagatest.ProductUSD, "1000", "USD", "")
	require.NoError(t, err)

	assert.Equal(t, domain.AccountingExchange, result.AccountingType)
	assert.Equal(t, "10.00", result.FinalFee.StringFixed())
	assert.Equal(t, 1, h.Ledger.Calls(ledger.OpExchange))
	assert.Zero(t, h.Ledger.Calls(ledger.OpFreeze))
}

func TestProcessSubscription_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		product string
		amount  string
		coupon  string
		code    sharedDomain.ErrorCode
		kind    sharedDomain.ErrorKind
	}{
		{"unknown product", "999999", "10000", "", sharedDomain.CodeProductNotFound, sharedDomain.KindValidation},
		{"below initial minimum", sagatest.ProductCNY, "500", "", sharedDomain.CodeAmountTooLow, sharedDomain.KindValidation},
		{"currency mismatch", sagatest.ProductCNY, "10000", "", sharedDomain.CodeInvalidParameter, sharedDomain.KindValidation},
		{"unknown coupon", sagatest.ProductCNY, "10000", "NOPE", sharedDomain.CodeCouponTrialFailed, sharedDomain.KindBusiness},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := sagatest.New(t, sagatest.Options{})
			ctx := context.Background()
			currency := "CNY"
			if tt.name == "currency mismatch" {
				currency = "USD"
			}

			result, err := h.Subscribe(ctx, tt.product, tt.amount, currency, tt.coupon)
			requireCode(t, err, tt.code, tt.kind)
			require.NotNil(t, result)
			assert.False(t, result.Success)
			assert.Equal(t, string(tt.code), result.ErrorCode)

			_, err = h.Transactions.FindBySerialNumber(ctx, result.SerialNumber)
			assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
			assert.Zero(t, h.QuotaUsed(t, sagatest.ProductCNY))
			assert.Zero(t, h.Ledger.Calls(ledger.OpAccounting))
		})
	}
}

func TestProcessSubscription_QuotaExceeded(t *testing.T) {
	h := sagatest.New(t, sagatest.Options{})
	ctx := context.Background()

	product, err := h.Products.FindByCode(ctx, sagatest.ProductCNY)
	require.NoError(t, err)
	product.DailyQuota = sharedDomain.MustMoney("15000", "CNY")
	require.NoError(t, h.Products.Save(ctx, product))

	_, err = h.Subscribe(ctx, sagatest.ProductCNY, "10000", "CNY", "")
	require.NoError(t, err)

	_, err = h.Subscribe(ctx, sagatest.ProductCNY, "10000", "CNY", "")
	requireCode(t, err, sharedDomain.CodeQuotaExceeded, sharedDomain.KindValidation)
	assert.Equal(t, int64(1_000_000), h.QuotaUsed(t, sagatest.ProductCNY))
	assert.Equal(t, int64(1), h.Metrics.GetCounter(observability.MetricQuotaRejections))
}

func TestProcessSubscription_CouponUseRejected(t *testing.T) {
	h := sagatest.New(t, sagatest.Options{InlineCompensation: true})
	ctx := context.Background()
	h.Coupons.Fail(coupon.OpUse, coupon.ErrRejected)

	result, err := h.Subscribe(ctx, sagatest.ProductCNY, "10000", "CNY", sagatest.CouponHalf)
	requireCode(t, err, sharedDomain.CodeCouponUseFailed, sharedDomain.KindBusiness)

	assert.Equal(t, domain.StatusFailed, result.Status)
	assert.Equal(t, domain.SagaRequestSaved, result.SagaState)
	assert.Nil(t, result.Compensation, "nothing to undo before the coupon was used")
	assert.Zero(t, h.QuotaUsed(t, sagatest.ProductCNY))
	assert.Zero(t, h.Ledger.Calls(ledger.OpAccounting))

	txn, err := h.Transactions.FindBySerialNumber(ctx, result.SerialNumber)
	require.NoError(t, err)
	assert.Equal(t, string(sharedDomain.CodeCouponUseFailed), txn.ErrorCode())
}

func TestProcessSubscription_AccountingFailureCompensatesInline(t *testing.T) {
	h := sagatest.New(t, sagatest.Options{InlineCompensation: true})
	ctx := context.Background()
	h.Ledger.Fail(ledger.OpAccounting, errors.New("connection reset"))

	result, err := h.Subscribe(ctx, sagatest.ProductCNY, "10000", "CNY", sagatest.CouponHalf)
	requireCode(t, err, sharedDomain.CodeAccountingFailed, sharedDomain.KindExternal)

	assert.Equal(t, domain.SagaCouponUsed, result.SagaState)
	assert.Zero(t, h.QuotaUsed(t, sagatest.ProductCNY))
	require.NotNil(t, result.Compensation)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rec, err := result.Compensation.Wait(waitCtx)
	require.NoError(t, err)
	require.NoError(t, rec.Err)
	assert.Equal(t, services.OutcomeCompensated, rec.Outcome)
	assert.True(t, rec.Compensation.CouponCompensated)

	assert.False(t, h.Coupons.InUse(sagatest.CouponHalf))
	assert.Zero(t, h.Ledger.Calls(ledger.OpReversal))

	txn, err := h.Transactions.FindBySerialNumber(ctx, result.SerialNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.SagaCompensationCompleted, txn.SagaState())
	assert.Equal(t, domain.StatusFailed, txn.Status())

	usages, err := h.Usages.FindBySerialNumber(ctx, result.SerialNumber)
	require.NoError(t, err)
	require.Len(t, usages, 1)
	assert.Equal(t, marketingDomain.UsageReturned, usages[0].Status)

	assert.Equal(t, []string{
		domain.RoutingKeySubscriptionFailed,
		domain.RoutingKeyCompensationCompleted,
	}, routingKeys(t, h))
}

func TestProcessSubscription_AccountingFailureWithoutInlineCompensation(t *testing.T) {
	h := sagatest.New(t, sagatest.Options{})
	h.Ledger.Fail(ledger.OpFreeze, errors.New("timeout"))
	h.Accounting.WithClock(func() time.Time { return sagatest.AfterHours })

	result, err := h.Subscribe(context.Background(), sagatest.ProductCNY, "10000", "CNY", sagatest.CouponHalf)
	requireCode(t, err, sharedDomain.CodeFreezeFailed, sharedDomain.KindExternal)

	assert.Nil(t, result.Compensation)
	assert.True(t, h.Coupons.InUse(sagatest.CouponHalf), "left for the recovery worker")
}

func TestProcessSubscription_OpenBreakerIsTimeout(t *testing.T) {
	h := sagatest.New(t, sagatest.Options{BreakerThreshold: 1})
	ctx := context.Background()
	h.Ledger.Fail(ledger.OpAccounting, errors.New("down"))

	_, err := h.Subscribe(ctx, sagatest.ProductCNY, "10000", "CNY", "")
	requireCode(t, err, sharedDomain.CodeAccountingFailed, sharedDomain.KindExternal)

	_, err = h.Subscribe(ctx, sagatest.ProductCNY, "10000", "CNY", "")
	requireCode(t, err, sharedDomain.CodeExternalSystemTimeout, sharedDomain.KindExternal)
	assert.Equal(t, 1, h.Ledger.Calls(ledger.OpAccounting))
}

func TestProcessSubscription_SerialFailure(t *testing.T) {
	h := sagatest.New(t, sagatest.Options{})
	handler := commands.NewProcessSubscriptionHandler(commands.ProcessSubscriptionDeps{
		Serials:   failingSerials{},
		Validator: h.Validator,
		Store:     h.Store,
	}, commands.ProcessSubscriptionConfig{})

	result, err := handler.Handle(context.Background(), commands.ProcessSubscriptionCommand{
		CustomerID:  sagatest.CustomerID,
		ProductCode: sagatest.ProductCNY,
		Amount:      sharedDomain.MustMoney("10000", "CNY"),
	})
	assert.Nil(t, result)
	requireCode(t, err, sharedDomain.CodeSerialGenerationFailed, sharedDomain.KindSystem)
}

type failingSerials struct{}

func (failingSerials) Next(context.Context) (string, error) { return "", errors.New("redis down") }

// cancelAfterBooking books at the simulator and then cancels the caller's
// context, as a client disconnecting mid-request would.
type cancelAfterBooking struct {
	ledger.Gateway
	cancel context.CancelFunc
}

func (c cancelAfterBooking) Accounting(ctx context.Context, req ledger.Request) (ledger.Result, error) {
	res, err := c.Gateway.Accounting(ctx, req)
	c.cancel()
	return res, err
}

func TestProcessSubscription_CallerCancelDoesNotLoseBooking(t *testing.T) {
	h := sagatest.New(t, sagatest.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := h.Deps
	deps.Accounting = services.NewAccountingService(cancelAfterBooking{Gateway: h.Ledger, cancel: cancel}, h.Breakers, sagatest.Window(), h.Logger).
		WithClock(func() time.Time { return sagatest.InWindow })
	handler := commands.NewProcessSubscriptionHandler(deps, h.Config)

	result, err := handler.Handle(ctx, commands.ProcessSubscriptionCommand{
		CustomerID:    sagatest.CustomerID,
		AccountNumber: sagatest.AccountNumber,
		ProductCode:   sagatest.ProductCNY,
		Amount:        sharedDomain.MustMoney("10000", "CNY"),
		Channel:       "WEB",
	})
	require.NoError(t, err)
	require.Error(t, ctx.Err())
	assert.True(t, result.Success)

	txn, err := h.Transactions.FindBySerialNumber(context.Background(), result.SerialNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.SagaCompleted, txn.SagaState())
	assert.Equal(t, domain.AccountingDirect, txn.AccountingType())
	assert.True(t, h.Ledger.Booked(txn.CoreBankingTxnID()))
	assert.Equal(t, int64(1_000_000), h.QuotaUsed(t, sagatest.ProductCNY))
}

type failingUsages struct {
	marketingDomain.UsageRepository
}

func (failingUsages) Save(context.Context, *marketingDomain.CouponUsage) error {
	return errors.New("disk full")
}

func TestProcessSubscription_UsageSaveFailureReturnsCoupon(t *testing.T) {
	h := sagatest.New(t, sagatest.Options{InlineCompensation: true})
	ctx := context.Background()

	deps := h.Deps
	deps.Usages = failingUsages{h.Usages}
	handler := commands.NewProcessSubscriptionHandler(deps, h.Config)

	result, err := handler.Handle(ctx, commands.ProcessSubscriptionCommand{
		CustomerID:    sagatest.CustomerID,
		AccountNumber: sagatest.AccountNumber,
		ProductCode:   sagatest.ProductCNY,
		Amount:        sharedDomain.MustMoney("10000", "CNY"),
		Channel:       "WEB",
		CouponID:      sagatest.CouponHalf,
	})
	require.Error(t, err)
	assert.Equal(t, domain.StatusFailed, result.Status)
	assert.Equal(t, domain.SagaCouponUsed, result.SagaState)
	require.NotNil(t, result.Compensation, "the used coupon is owed back")

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rec, err := result.Compensation.Wait(waitCtx)
	require.NoError(t, err)
	require.NoError(t, rec.Err)
	assert.Equal(t, services.OutcomeCompensated, rec.Outcome)
	assert.False(t, h.Coupons.InUse(sagatest.CouponHalf))
	assert.Zero(t, h.Ledger.Calls(ledger.OpAccounting))
	assert.Zero(t, h.QuotaUsed(t, sagatest.ProductCNY))

	txn, err := h.Transactions.FindBySerialNumber(ctx, result.SerialNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.SagaCompensationCompleted, txn.SagaState())
	assert.Equal(t, domain.StatusFailed, txn.Status())
}
